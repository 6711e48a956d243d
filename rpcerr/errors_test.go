package rpcerr

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{&UnavailableError{Path: "/tmp/x.sock", Err: io.EOF}, KindUnavailable},
		{&TransportError{Op: "read", Err: io.ErrUnexpectedEOF}, KindTransport},
		{NewMalformed("bad json", []byte("{"), nil), KindMalformedResponse},
		{&OperationError{Method: "fly.status", Message: "not found"}, KindOperation},
		{fmt.Errorf("call: %w", &OperationError{Message: "wrapped"}), KindOperation},
		{errors.New("plain"), KindOther},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Errorf("KindOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestUnavailableHint(t *testing.T) {
	err := &UnavailableError{Path: "/home/u/.fgp/services/fly/daemon.sock", Err: io.EOF}
	if got := err.Hint(); got != "start the daemon: fgp start fly" {
		t.Fatalf("unexpected hint: %q", got)
	}
}

func TestTransportErrorUnwraps(t *testing.T) {
	err := &TransportError{Op: "read", Err: io.ErrUnexpectedEOF}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatal("expect errors.Is to reach the wrapped error")
	}
}

func TestMalformedTruncatesRaw(t *testing.T) {
	raw := []byte(strings.Repeat("x", 1000))
	err := NewMalformed("bad json", raw, nil)
	if len(err.Raw) != rawPreviewLimit {
		t.Fatalf("expect raw preview of %d bytes, got %d", rawPreviewLimit, len(err.Raw))
	}
}

func TestOperationErrorVerbatim(t *testing.T) {
	err := &OperationError{Message: "not found"}
	if err.Error() != "not found" {
		t.Fatalf("expect verbatim message, got %q", err.Error())
	}
}
