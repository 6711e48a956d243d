package fly

import "encoding/json"

// Organization owns apps.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type App struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Status       string        `json:"status,omitempty"`
	Hostname     string        `json:"hostname,omitempty"`
	Deployed     bool          `json:"deployed,omitempty"`
	Organization *Organization `json:"organization,omitempty"`
}

// Machine is one VM instance of an app.
type Machine struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	State     string `json:"state"`
	Region    string `json:"region"`
	CreatedAt string `json:"created_at,omitempty"`
}

// AppList is the reply of <ns>.apps.
type AppList struct {
	Apps  []App `json:"apps"`
	Count int   `json:"count"`
}

// MachineList is the reply of <ns>.machines.
type MachineList struct {
	Machines []Machine `json:"machines"`
	Count    int       `json:"count"`
}

// User is the account the daemon's token belongs to.
type User struct {
	ID            string         `json:"id"`
	Email         string         `json:"email,omitempty"`
	Name          string         `json:"name,omitempty"`
	Organizations []Organization `json:"organizations"`
}

// AppStatus is the reply of <ns>.status.
type AppStatus struct {
	Name     string    `json:"name"`
	Status   string    `json:"status"`
	Hostname string    `json:"hostname,omitempty"`
	Machines []Machine `json:"machines"`
}

// HealthStatus is the reply of health.
type HealthStatus struct {
	Status       string `json:"status"`
	APIConnected bool   `json:"api_connected"`
	Version      string `json:"version,omitempty"`
}

// Healthy reports whether the daemon says it is healthy.
func (h HealthStatus) Healthy() bool {
	return h.Status == "healthy"
}

// ScaleAction is the only parameter of <ns>.scale with a closed set of values.
type ScaleAction string

const (
	ScaleStart ScaleAction = "start"
	ScaleStop  ScaleAction = "stop"
)

func (a ScaleAction) Valid() bool {
	return a == ScaleStart || a == ScaleStop
}

// SecretAction selects what <ns>.secrets does. The empty action lists.
type SecretAction string

const (
	SecretsList   SecretAction = "list"
	SecretsSet    SecretAction = "set"
	SecretsDelete SecretAction = "delete"
)

func (a SecretAction) Valid() bool {
	return a == SecretsList || a == SecretsSet || a == SecretsDelete
}

// Mutation is the reply of operations that change state: restart, secrets set and delete.
// Done mirrors the daemon's "restarted" / "set" / "deleted" flag; Result is passed through.
type Mutation struct {
	Done   bool
	Result json.RawMessage
}
