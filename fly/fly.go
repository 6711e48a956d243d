// Package fly wraps the compute-resource operations a fly daemon exposes with typed replies.
//
// It only extracts values from results; how they are shown is up to the caller.
package fly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"fgp-rpc/client"
	"fgp-rpc/message"
)

const (
	DefaultNamespace = "fly"
	// DefaultAppsLimit is what daemons apply when apps is called without a limit.
	DefaultAppsLimit = 25
)

var (
	ErrAppRequired     = errors.New("fly: app name is required")
	ErrMachineRequired = errors.New("fly: machine id is required")
	ErrKeyRequired     = errors.New("fly: secret key is required")
	ErrValueRequired   = errors.New("fly: secret value is required")
	ErrInvalidAction   = errors.New(`fly: scale action must be "start" or "stop"`)
	ErrInvalidSecret   = errors.New(`fly: secrets action must be "list", "set" or "delete"`)
)

// Client issues fly operations through an rpc client.
type Client struct {
	rpc       *client.Client
	namespace string
}

// New binds rpc to the operations under namespace ("fly" when empty).
func New(rpc *client.Client, namespace string) *Client {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Client{rpc: rpc, namespace: namespace}
}

func (c *Client) method(action string) string {
	return c.namespace + "." + action
}

// Health calls the health method and decodes its status.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var h HealthStatus
	if err := c.rpc.Call(ctx, message.HealthMethod, nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Apps lists applications. limit <= 0 leaves the daemon default in place.
func (c *Client) Apps(ctx context.Context, limit int) (*AppList, error) {
	var params map[string]any
	if limit > 0 {
		params = map[string]any{"limit": limit}
	}
	var list AppList
	if err := c.rpc.Call(ctx, c.method("apps"), params, &list); err != nil {
		return nil, err
	}
	if list.Apps == nil {
		list.Apps = []App{}
	}
	if list.Count == 0 {
		list.Count = len(list.Apps)
	}
	return &list, nil
}

// Status returns the status of one app and its machines.
func (c *Client) Status(ctx context.Context, app string) (*AppStatus, error) {
	if app == "" {
		return nil, ErrAppRequired
	}
	var st AppStatus
	if err := c.rpc.Call(ctx, c.method("status"), map[string]any{"app": app}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Machines lists the machines of app.
func (c *Client) Machines(ctx context.Context, app string) (*MachineList, error) {
	if app == "" {
		return nil, ErrAppRequired
	}
	var list MachineList
	if err := c.rpc.Call(ctx, c.method("machines"), map[string]any{"app": app}, &list); err != nil {
		return nil, err
	}
	if list.Machines == nil {
		list.Machines = []Machine{}
	}
	if list.Count == 0 {
		list.Count = len(list.Machines)
	}
	return &list, nil
}

// Scale starts or stops one machine. The action is checked before anything is sent; the
// daemon's reply is returned undecoded.
func (c *Client) Scale(ctx context.Context, app, machineID string, action ScaleAction) (json.RawMessage, error) {
	switch {
	case app == "":
		return nil, ErrAppRequired
	case machineID == "":
		return nil, ErrMachineRequired
	case !action.Valid():
		return nil, fmt.Errorf("%w, got %q", ErrInvalidAction, action)
	}
	return c.rpc.Invoke(ctx, c.method("scale"), map[string]any{
		"app":        app,
		"machine_id": machineID,
		"action":     string(action),
	})
}

// User returns the account behind the daemon's API token.
func (c *Client) User(ctx context.Context) (*User, error) {
	var reply struct {
		Viewer struct {
			ID            string `json:"id"`
			Email         string `json:"email"`
			Name          string `json:"name"`
			Organizations struct {
				Nodes []Organization `json:"nodes"`
			} `json:"organizations"`
		} `json:"viewer"`
	}
	if err := c.rpc.Call(ctx, c.method("user"), nil, &reply); err != nil {
		return nil, err
	}
	v := reply.Viewer
	u := &User{ID: v.ID, Email: v.Email, Name: v.Name, Organizations: v.Organizations.Nodes}
	if u.Organizations == nil {
		u.Organizations = []Organization{}
	}
	return u, nil
}

// Regions returns the platform's region list as the daemon sent it.
func (c *Client) Regions(ctx context.Context) (json.RawMessage, error) {
	return c.rpc.Invoke(ctx, c.method("regions"), nil)
}

// Secrets lists, sets or deletes an app secret. An empty action lists. key is required for set
// and delete, value for set; both are ignored when listing. The reply of a list is returned in
// Result with Done false.
func (c *Client) Secrets(ctx context.Context, app string, action SecretAction, key, value string) (*Mutation, error) {
	if action == "" {
		action = SecretsList
	}
	switch {
	case app == "":
		return nil, ErrAppRequired
	case !action.Valid():
		return nil, fmt.Errorf("%w, got %q", ErrInvalidSecret, action)
	case action != SecretsList && key == "":
		return nil, ErrKeyRequired
	case action == SecretsSet && value == "":
		return nil, ErrValueRequired
	}

	params := map[string]any{"app": app, "action": string(action)}
	if action != SecretsList {
		params["key"] = key
	}
	if action == SecretsSet {
		params["value"] = value
	}
	result, err := c.rpc.Invoke(ctx, c.method("secrets"), params)
	if err != nil {
		return nil, err
	}
	switch action {
	case SecretsSet:
		return decodeMutation(result, "set")
	case SecretsDelete:
		return decodeMutation(result, "deleted")
	}
	return &Mutation{Result: result}, nil
}

// Restart restarts every machine of app.
func (c *Client) Restart(ctx context.Context, app string) (*Mutation, error) {
	if app == "" {
		return nil, ErrAppRequired
	}
	result, err := c.rpc.Invoke(ctx, c.method("restart"), map[string]any{"app": app})
	if err != nil {
		return nil, err
	}
	return decodeMutation(result, "restarted")
}

// decodeMutation reads {"<flag>":true,"result":...}.
func decodeMutation(raw json.RawMessage, flag string) (*Mutation, error) {
	if len(raw) == 0 {
		return &Mutation{}, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("fly: decode %s reply: %w", flag, err)
	}
	m := &Mutation{Result: fields["result"]}
	if v, ok := fields[flag]; ok {
		if err := json.Unmarshal(v, &m.Done); err != nil {
			return nil, fmt.Errorf("fly: decode %s flag: %w", flag, err)
		}
	}
	return m, nil
}
