// Package transport implements the client side of one daemon exchange over a unix stream socket.
//
// A Channel is opened right before a request is sent and closed right after its response is
// read. There is no pooling and no multiplexing: one connection, one request, one response.
//
//	Dial ──► Exchange: write frame ──► read frame ──► Close
//	  │                   │                 │
//	  └ UnavailableError  └ TransportError  └ TransportError / MalformedResponseError
//
// Dial, write and the read loop are the only places a call blocks.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"sync"
	"time"

	"fgp-rpc/codec"
	"fgp-rpc/message"
	"fgp-rpc/protocol"
	"fgp-rpc/rpcerr"

	"golang.org/x/sys/unix"
)

// DefaultDialTimeout bounds connect when Options.DialTimeout is zero.
const DefaultDialTimeout = 5 * time.Second

var (
	ErrChannelUsed     = errors.New("transport: channel already carried an exchange")
	ErrChannelClosed   = errors.New("transport: channel closed")
	ErrIncompleteFrame = errors.New("transport: frame does not end with the terminator")
)

// Options are the explicit timeouts of a channel. Zero read/write timeouts mean no deadline.
type Options struct {
	DialTimeout      time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	MaxResponseBytes int // 0 = unlimited
	Codec            codec.Codec
}

// Channel is a single-use connection to the daemon socket.
type Channel struct {
	path   string
	conn   net.Conn
	reader *bufio.Reader
	opts   Options

	mu     sync.Mutex
	used   bool
	closed bool

	ctx        context.Context
	stopCancel func() bool // detaches the ctx watcher
}

// Dial connects to the socket at path. It fails with *rpcerr.UnavailableError when nothing is
// listening there, and with *rpcerr.TransportError for any other dial failure.
//
// If ctx is cancelled while the channel is open, the connection is closed and the pending
// operation fails with a TransportError wrapping ctx.Err().
func Dial(ctx context.Context, path string, opts Options) (*Channel, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default()
	}

	dialer := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		if isUnavailable(err) {
			return nil, &rpcerr.UnavailableError{Path: path, Err: err}
		}
		return nil, &rpcerr.TransportError{Op: "dial", Err: err}
	}

	ch := &Channel{
		path:   path,
		conn:   conn,
		reader: bufio.NewReader(conn),
		opts:   opts,
		ctx:    ctx,
	}
	// Closing the conn unblocks any in-flight read or write.
	ch.stopCancel = context.AfterFunc(ctx, func() {
		_ = ch.conn.Close()
	})
	return ch, nil
}

// isUnavailable reports dial errors that mean "no daemon listening": the socket file is missing,
// exists but nobody accepts on it, or the path is not a socket at all.
func isUnavailable(err error) bool {
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, unix.ENOENT) ||
		errors.Is(err, unix.ECONNREFUSED) ||
		errors.Is(err, unix.ENOTSOCK)
}

// Path returns the socket path this channel is connected to.
func (c *Channel) Path() string {
	return c.path
}

// Exchange encodes req as one frame and sends it with ExchangeFrame.
//
// Validation and encoding errors are returned before anything is written.
func (c *Channel) Exchange(req *message.Request) (*message.Response, error) {
	var frame bytes.Buffer
	if err := protocol.EncodeRequest(&frame, c.opts.Codec, req); err != nil {
		return nil, err
	}
	return c.ExchangeFrame(frame.Bytes())
}

// ExchangeFrame writes an already encoded request frame and waits for exactly one response frame.
//
// Errors are *rpcerr.TransportError or *rpcerr.MalformedResponseError.
func (c *Channel) ExchangeFrame(frame []byte) (*message.Response, error) {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return nil, ErrChannelClosed
	case c.used:
		c.mu.Unlock()
		return nil, ErrChannelUsed
	}
	c.used = true
	c.mu.Unlock()

	if len(frame) == 0 || frame[len(frame)-1] != protocol.Terminator {
		return nil, ErrIncompleteFrame
	}

	if c.opts.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
	if _, err := c.conn.Write(frame); err != nil {
		return nil, c.ioError("write", err)
	}

	if c.opts.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	}
	resp, err := protocol.DecodeResponse(c.reader, c.opts.Codec, c.opts.MaxResponseBytes)
	if err != nil {
		var malformed *rpcerr.MalformedResponseError
		if errors.As(err, &malformed) {
			return nil, err
		}
		return nil, c.ioError("read", err)
	}
	return resp, nil
}

// ioError wraps err as a TransportError, preferring the context error when the failure was
// caused by cancellation.
func (c *Channel) ioError(op string, err error) error {
	if ctxErr := c.ctx.Err(); ctxErr != nil {
		return &rpcerr.TransportError{Op: op, Err: fmt.Errorf("%w (%v)", ctxErr, err)}
	}
	return &rpcerr.TransportError{Op: op, Err: err}
}

// Close releases the connection. It is safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.stopCancel()
	err := c.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		// Already closed by the context watcher.
		return nil
	}
	return err
}

// Conn returns the underlying connection.
func (c *Channel) Conn() net.Conn {
	return c.conn
}
