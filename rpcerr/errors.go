// Package rpcerr defines the failures a daemon call can end in.
//
// Every call ends in exactly one of:
//
//	UnavailableError       nothing is listening at the socket path (daemon not running)
//	TransportError         the connection failed or dropped mid-exchange
//	MalformedResponseError the reply is not a valid response envelope
//	OperationError         a well-formed reply with ok=false
//
// Only OperationError means the daemon was reached and answered; the other three mean no usable
// response envelope was obtained.
package rpcerr

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Kind tags an error with its place in the taxonomy.
type Kind int

const (
	KindNone Kind = iota
	KindUnavailable
	KindTransport
	KindMalformedResponse
	KindOperation
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindUnavailable:
		return "unavailable"
	case KindTransport:
		return "transport"
	case KindMalformedResponse:
		return "malformed_response"
	case KindOperation:
		return "operation"
	default:
		return "other"
	}
}

// UnavailableError reports that no daemon is listening at Path.
type UnavailableError struct {
	Path string
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("daemon unavailable at %s: %v", e.Path, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Service guesses the service name from the conventional
// <home>/.<app>/services/<service>/daemon.sock layout.
func (e *UnavailableError) Service() string {
	return filepath.Base(filepath.Dir(e.Path))
}

// Hint is the remediation a user-facing caller should show.
func (e *UnavailableError) Hint() string {
	if svc := e.Service(); svc != "" && svc != "." && svc != string(filepath.Separator) {
		return fmt.Sprintf("start the daemon: fgp start %s", svc)
	}
	return "start the daemon"
}

// TransportError reports an I/O failure during dial, write or read.
type TransportError struct {
	Op  string // "dial", "write", "read"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponseError reports a reply that could not be parsed into a response envelope.
type MalformedResponseError struct {
	Reason string
	Raw    string // truncated preview of the offending record
	Err    error
}

// rawPreviewLimit bounds how much of a bad record is kept for diagnostics.
const rawPreviewLimit = 300

// NewMalformed builds a MalformedResponseError, keeping at most rawPreviewLimit bytes of raw.
func NewMalformed(reason string, raw []byte, err error) *MalformedResponseError {
	if len(raw) > rawPreviewLimit {
		raw = raw[:rawPreviewLimit]
	}
	return &MalformedResponseError{Reason: reason, Raw: string(raw), Err: err}
}

func (e *MalformedResponseError) Error() string {
	msg := "malformed response: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Raw != "" {
		msg += " | raw: " + e.Raw
	}
	return msg
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// OperationError carries the daemon's error text verbatim.
type OperationError struct {
	Method  string
	Message string
}

func (e *OperationError) Error() string {
	if e.Method == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}

// KindOf classifies err. Wrapped errors are unwrapped with errors.As.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var (
		unavailable *UnavailableError
		transport   *TransportError
		malformed   *MalformedResponseError
		operation   *OperationError
	)
	switch {
	case errors.As(err, &unavailable):
		return KindUnavailable
	case errors.As(err, &transport):
		return KindTransport
	case errors.As(err, &malformed):
		return KindMalformedResponse
	case errors.As(err, &operation):
		return KindOperation
	default:
		return KindOther
	}
}

func IsUnavailable(err error) bool { return KindOf(err) == KindUnavailable }

func IsTransport(err error) bool { return KindOf(err) == KindTransport }

func IsMalformed(err error) bool { return KindOf(err) == KindMalformedResponse }

func IsOperation(err error) bool { return KindOf(err) == KindOperation }
