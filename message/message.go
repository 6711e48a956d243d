// Package message defines the request and response envelopes exchanged with the daemon.
//
// One envelope pair makes up one call. The client builds a Request, the framer writes it as a
// single JSON line, and the daemon answers with exactly one Response line:
//
//	→ {"id":"<uuid>","v":1,"method":"fly.apps","params":{}}\n
//	← {"ok":true,"result":{"apps":[]}}\n
//	← {"ok":false,"error":"not found"}\n
package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ProtocolVersion is sent in the "v" field of every request built by this package.
const ProtocolVersion = 1

// HealthMethod is the zero-argument liveness check every daemon answers.
const HealthMethod = "health"

var (
	ErrEmptyMethod = errors.New("message: method must not be empty")
	ErrEmptyID     = errors.New("message: request id must not be empty")
	ErrMissingOK   = errors.New(`message: response is missing the "ok" field`)
)

// Request carries a single call to the daemon.
//
//   - ID is the correlation token, a random UUID generated per call and never reused.
//   - Params maps names to arbitrary JSON values; it is always encoded as an object, never null.
type Request struct {
	ID      string         `json:"id"`
	Version int            `json:"v"`
	Method  string         `json:"method"`   // "<namespace>.<action>", e.g. "fly.status", or "health"
	Params  map[string]any `json:"params"`
}

// NewRequest builds a request with a fresh correlation id and the current protocol version.
func NewRequest(method string, params map[string]any) *Request {
	if params == nil {
		params = map[string]any{}
	}
	return &Request{
		ID:      NewID(),
		Version: ProtocolVersion,
		Method:  method,
		Params:  params,
	}
}

// NewID returns a random 128-bit correlation identifier in canonical UUID form.
func NewID() string {
	return uuid.NewString()
}

// Validate checks the invariants that must hold before a request is transmitted.
func (r *Request) Validate() error {
	if r.Method == "" {
		return ErrEmptyMethod
	}
	if r.ID == "" {
		return ErrEmptyID
	}
	return nil
}

// Renew returns a copy of the request carrying a new correlation id. Params are shared, not copied.
func (r *Request) Renew() *Request {
	next := *r
	next.ID = NewID()
	return &next
}

// Response is the daemon's answer to one Request.
//
// Exactly one of Result / Error is meaningful, selected by OK. Result is kept as raw JSON so the
// core never has to know the shape a particular method returns.
type Response struct {
	ID     string          `json:"id,omitempty"` // echoed by daemons that support it
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Success builds an ok response. A nil result is encoded as an absent field.
func Success(id string, result any) (*Response, error) {
	resp := &Response{ID: id, OK: true}
	if result == nil {
		return resp, nil
	}
	if raw, ok := result.(json.RawMessage); ok {
		resp.Result = raw
		return resp, nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("message: encode result: %w", err)
	}
	resp.Result = raw
	return resp, nil
}

// Failure builds a response with ok=false and the given error text.
func Failure(id, msg string) *Response {
	return &Response{ID: id, OK: false, Error: msg}
}

type wireResponse struct {
	ID     string          `json:"id"`
	OK     *bool           `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// UnmarshalJSON requires "ok" to be present and boolean. "error" is normally a string; any other
// JSON value is kept in its compact textual form rather than rejected.
func (r *Response) UnmarshalJSON(data []byte) error {
	var w wireResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.OK == nil {
		return ErrMissingOK
	}
	r.ID = w.ID
	r.OK = *w.OK
	r.Result = nil
	if len(w.Result) > 0 && !bytes.Equal(w.Result, []byte("null")) {
		r.Result = w.Result
	}
	r.Error = errorText(w.Error)
	return nil
}

func errorText(raw json.RawMessage) string {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
