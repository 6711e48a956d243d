// Package client issues calls to a local daemon over its unix socket.
//
// Every call opens a fresh connection, sends one request line, reads one response line and closes
// the connection, whatever the outcome:
//
//	Invoke → NewRequest → [middleware chain] → Encode → Dial → Exchange → Close
//	                                                     │      │
//	                                 UnavailableError ───┘      └──── Transport / Malformed / Operation
//
// The client holds only its immutable configuration and an optional middleware chain, so a
// single Client may be used from many goroutines at once.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"fgp-rpc/codec"
	"fgp-rpc/config"
	"fgp-rpc/message"
	"fgp-rpc/middleware"
	"fgp-rpc/protocol"
	"fgp-rpc/registry"
	"fgp-rpc/rpcerr"
	"fgp-rpc/transport"
)

type Client struct {
	cfg   config.Client
	codec codec.Codec

	mu          sync.RWMutex
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc
}

type Option func(*Client)

// WithLogger adds the logging middleware with l as its sink.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.middlewares = append(c.middlewares, middleware.Logging(l.With("component", "client")))
	}
}

// WithMiddleware appends mws to the call chain. The first one added is the outermost.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(c *Client) {
		c.middlewares = append(c.middlewares, mws...)
	}
}

// New returns a client for the daemon described by cfg. No connection is made until a call.
func New(cfg config.Client, opts ...Option) *Client {
	c := &Client{cfg: cfg, codec: codec.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.handler = middleware.Chain(c.middlewares...)(c.exchange)
	return c
}

// Discover resolves service through reg and returns a client bound to the socket it found.
func Discover(ctx context.Context, reg registry.Registry, service string, cfg config.Client, opts ...Option) (*Client, error) {
	path, err := registry.Resolve(ctx, reg, service, "")
	if err != nil {
		return nil, fmt.Errorf("client: discover %s: %w", service, err)
	}
	cfg.Service = service
	cfg.Socket = path
	return New(cfg, opts...), nil
}

// Use appends a middleware to the chain of subsequent calls.
func (c *Client) Use(mw middleware.Middleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = append(c.middlewares, mw)
	c.handler = middleware.Chain(c.middlewares...)(c.exchange)
}

// Config returns the configuration the client was built with.
func (c *Client) Config() config.Client {
	return c.cfg
}

// SocketPath is where calls are sent.
func (c *Client) SocketPath() string {
	return c.cfg.SocketPath()
}

// Invoke calls method with params and returns the raw "result" value (nil when the daemon
// sent none).
//
// Errors:
//   - *rpcerr.UnavailableError: nothing is listening on the socket
//   - *rpcerr.TransportError: I/O failed or ctx was cancelled mid-call
//   - *rpcerr.MalformedResponseError: the reply could not be parsed or answered another request
//   - *rpcerr.OperationError: the daemon answered ok=false; Message holds its error verbatim
func (c *Client) Invoke(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	req := message.NewRequest(method, params)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()

	resp, err := handler(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &rpcerr.OperationError{Method: method, Message: resp.Error}
	}
	return resp.Result, nil
}

// Call invokes method and decodes the result into reply. params may be nil, a
// map[string]any, or any value that encodes to a JSON object; reply may be nil to discard the
// result.
func (c *Client) Call(ctx context.Context, method string, params any, reply any) error {
	p, err := toParams(params)
	if err != nil {
		return err
	}
	result, err := c.Invoke(ctx, method, p)
	if err != nil {
		return err
	}
	if reply == nil || len(result) == 0 {
		return nil
	}
	if err := json.Unmarshal(result, reply); err != nil {
		return fmt.Errorf("client: decode %s result: %w", method, err)
	}
	return nil
}

// Health checks the daemon with the zero-argument health method.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.Invoke(ctx, message.HealthMethod, nil)
	return err
}

// exchange is the innermost handler: one request over one fresh channel.
func (c *Client) exchange(ctx context.Context, req *message.Request) (*message.Response, error) {
	// Encode before connecting so a request that cannot be sent never opens a connection.
	var frame bytes.Buffer
	if err := protocol.EncodeRequest(&frame, c.codec, req); err != nil {
		return nil, err
	}

	ch, err := transport.Dial(ctx, c.cfg.SocketPath(), transport.Options{
		DialTimeout:      c.cfg.DialTimeout,
		ReadTimeout:      c.cfg.ReadTimeout,
		WriteTimeout:     c.cfg.WriteTimeout,
		MaxResponseBytes: c.cfg.MaxResponseBytes,
		Codec:            c.codec,
	})
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	resp, err := ch.ExchangeFrame(frame.Bytes())
	if err != nil {
		return nil, err
	}
	if resp.ID != "" && resp.ID != req.ID {
		return nil, rpcerr.NewMalformed("correlation id mismatch", nil,
			fmt.Errorf("sent %s, received %s", req.ID, resp.ID))
	}
	return resp, nil
}

func toParams(params any) (map[string]any, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return p, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("client: encode params: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("client: params must encode to a JSON object: %w", err)
	}
	return out, nil
}
