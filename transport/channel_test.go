package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fgp-rpc/codec"
	"fgp-rpc/message"
	"fgp-rpc/protocol"
	"fgp-rpc/rpcerr"
)

// serveOnce listens on a fresh socket and runs handle for the first accepted connection.
func serveOnce(t *testing.T, handle func(conn net.Conn)) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "d.sock")
	l, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}()
	return path
}

// echoOK answers one request with {"id":<req id>,"ok":true,"result":{"method":<req method>}}.
func echoOK(conn net.Conn) {
	r := bufio.NewReader(conn)
	req, err := protocol.DecodeRequest(r, codec.Default(), 0)
	if err != nil {
		return
	}
	resp, _ := message.Success(req.ID, map[string]any{"method": req.Method})
	_ = protocol.EncodeResponse(conn, codec.Default(), resp)
}

func TestExchange(t *testing.T) {
	path := serveOnce(t, echoOK)

	ch, err := Dial(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ch.Close()

	req := message.NewRequest("fly.apps", nil)
	resp, err := ch.Exchange(req)
	if err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	if !resp.OK || resp.ID != req.ID {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if string(resp.Result) != `{"method":"fly.apps"}` {
		t.Fatalf("unexpected result: %s", resp.Result)
	}
}

func TestExchangeOnlyOnce(t *testing.T) {
	path := serveOnce(t, echoOK)

	ch, err := Dial(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ch.Close()

	if _, err := ch.Exchange(message.NewRequest("health", nil)); err != nil {
		t.Fatalf("first Exchange failed: %v", err)
	}
	if _, err := ch.Exchange(message.NewRequest("health", nil)); !errors.Is(err, ErrChannelUsed) {
		t.Fatalf("expect ErrChannelUsed, got %v", err)
	}
}

func TestDialMissingSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.sock")

	start := time.Now()
	_, err := Dial(context.Background(), path, Options{DialTimeout: time.Second})
	if !rpcerr.IsUnavailable(err) {
		t.Fatalf("expect UnavailableError, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("dial took too long: %v", time.Since(start))
	}
}

func TestDialStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stale.sock")
	l, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		t.Fatal(err)
	}
	l.SetUnlinkOnClose(false)
	l.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expect stale socket file to remain: %v", err)
	}
	_, err = Dial(context.Background(), path, Options{})
	if !rpcerr.IsUnavailable(err) {
		t.Fatalf("expect UnavailableError for a stale socket, got %v", err)
	}
}

func TestExchangeUnterminated(t *testing.T) {
	path := serveOnce(t, func(conn net.Conn) {
		bufio.NewReader(conn).ReadBytes('\n')
		conn.Write([]byte(`{"ok":true`))
	})

	ch, err := Dial(context.Background(), path, Options{ReadTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ch.Close()

	_, err = ch.Exchange(message.NewRequest("health", nil))
	if !rpcerr.IsTransport(err) {
		t.Fatalf("expect TransportError, got %v", err)
	}
	if !errors.Is(err, protocol.ErrUnterminated) {
		t.Fatalf("expect ErrUnterminated in chain, got %v", err)
	}
}

func TestExchangeMalformed(t *testing.T) {
	path := serveOnce(t, func(conn net.Conn) {
		bufio.NewReader(conn).ReadBytes('\n')
		conn.Write([]byte("{\"result\":{}}\n"))
	})

	ch, err := Dial(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ch.Close()

	_, err = ch.Exchange(message.NewRequest("health", nil))
	if !rpcerr.IsMalformed(err) {
		t.Fatalf("expect MalformedResponseError, got %v", err)
	}
}

func TestExchangeReadTimeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	path := serveOnce(t, func(conn net.Conn) {
		<-release
	})

	ch, err := Dial(context.Background(), path, Options{ReadTimeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ch.Close()

	_, err = ch.Exchange(message.NewRequest("health", nil))
	if !rpcerr.IsTransport(err) {
		t.Fatalf("expect TransportError, got %v", err)
	}
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("expect deadline exceeded in chain, got %v", err)
	}
}

func TestExchangeContextCancel(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	path := serveOnce(t, func(conn net.Conn) {
		<-release
	})

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := Dial(ctx, path, Options{})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ch.Close()

	time.AfterFunc(50*time.Millisecond, cancel)

	_, err = ch.Exchange(message.NewRequest("health", nil))
	if !rpcerr.IsTransport(err) {
		t.Fatalf("expect TransportError, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expect context.Canceled in chain, got %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	path := serveOnce(t, echoOK)
	ch, err := Dial(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if _, err := ch.Exchange(message.NewRequest("health", nil)); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("expect ErrChannelClosed, got %v", err)
	}
}

func TestExchangeFrameRequiresTerminator(t *testing.T) {
	path := serveOnce(t, echoOK)
	ch, err := Dial(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ch.Close()

	if _, err := ch.ExchangeFrame([]byte(`{"id":"x","v":1,"method":"health","params":{}}`)); !errors.Is(err, ErrIncompleteFrame) {
		t.Fatalf("expect ErrIncompleteFrame, got %v", err)
	}
}

func TestExchangeFramePreEncoded(t *testing.T) {
	path := serveOnce(t, echoOK)
	ch, err := Dial(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ch.Close()

	req := message.NewRequest("fly.machines", map[string]any{"app": "web"})
	var frame bytes.Buffer
	if err := protocol.EncodeRequest(&frame, codec.Default(), req); err != nil {
		t.Fatal(err)
	}
	resp, err := ch.ExchangeFrame(frame.Bytes())
	if err != nil {
		t.Fatalf("ExchangeFrame failed: %v", err)
	}
	if resp.ID != req.ID || string(resp.Result) != `{"method":"fly.machines"}` {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
