// Package server implements the daemon side of the socket protocol: a unix-socket listener that
// reads one request line per connection, runs it through a middleware chain and writes exactly
// one response line back.
//
// Request processing pipeline:
//
//	Accept conn → handleConn
//	  → ReadFrame → Codec.Decode → Middleware Chain → dispatch (plain handler or reflect.Call)
//	  → Codec.Encode → WriteFrame → Close
//
// It backs the stub daemon and doubles as the fake daemon in client tests.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"fgp-rpc/codec"
	"fgp-rpc/message"
	"fgp-rpc/middleware"
	"fgp-rpc/protocol"
	"fgp-rpc/registry"

	"github.com/coreos/go-systemd/daemon"
)

// RegistryTTL is the lease, in seconds, the server asks a registry to hold its entry for.
const RegistryTTL = 10

var (
	ErrServerClosed   = errors.New("server: closed")
	ErrAlreadyServing = errors.New("server: another daemon is listening on the socket")
)

// Server dispatches requests to registered services and handlers.
type Server struct {
	mu          sync.RWMutex
	services    map[string]*service               // "fly" → *service
	handlers    map[string]middleware.HandlerFunc // full method name → handler
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc // middleware(...(dispatch)), built once in Serve

	listener   net.Listener
	socketPath string
	registry   registry.Registry
	instance   registry.ServiceInstance

	wg       sync.WaitGroup // in-flight connections
	shutdown atomic.Bool
	ready    chan struct{}

	name            string
	version         string
	logger          *slog.Logger
	codec           codec.Codec
	readTimeout     time.Duration
	maxRequestBytes int
}

type Option func(*Server)

// WithLogger sets the server logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithName sets the service name advertised to a registry. By default it is the name of the
// socket's parent directory, matching <home>/.<app>/services/<service>/daemon.sock.
func WithName(name string) Option {
	return func(s *Server) { s.name = name }
}

// WithVersion sets the version advertised to a registry.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithReadTimeout bounds how long a connection may take to deliver its request line.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) { s.readTimeout = d }
}

// WithMaxRequestBytes rejects request lines longer than n bytes.
func WithMaxRequestBytes(n int) Option {
	return func(s *Server) { s.maxRequestBytes = n }
}

// NewServer creates a server with no services.
func NewServer(opts ...Option) *Server {
	s := &Server{
		services: make(map[string]*service),
		handlers: make(map[string]middleware.HandlerFunc),
		ready:    make(chan struct{}),
		logger:   slog.Default(),
		codec:    codec.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")
	return s
}

// Register exposes the suitable exported methods of rcvr (e.g. &Fly{}) as "fly.<snake_method>".
func (s *Server) Register(rcvr any) error {
	return s.RegisterName("", rcvr)
}

// RegisterName is like Register but uses name as the method namespace.
func (s *Server) RegisterName(name string, rcvr any) error {
	svc, err := newService(rcvr, name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.services[svc.name]; dup {
		return fmt.Errorf("server: service %q already registered", svc.name)
	}
	s.services[svc.name] = svc
	return nil
}

// Handle serves method with h. Plain handlers take precedence over reflected services.
func (s *Server) Handle(method string, h middleware.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Use registers a middleware. Middlewares are applied in the order they are added and must be
// registered before Serve.
func (s *Server) Use(mw middleware.Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middlewares = append(s.middlewares, mw)
}

// Methods lists every method the server answers, sorted.
func (s *Server) Methods() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for m := range s.handlers {
		out = append(out, m)
	}
	for _, svc := range s.services {
		out = append(out, svc.names()...)
	}
	sort.Strings(out)
	return out
}

// Ready is closed once the socket accepts connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the socket path being served, or "" before Serve.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.socketPath
}

// Serve listens on socketPath and blocks in the accept loop until Shutdown.
//
// A leftover socket file from a crashed daemon is removed; a live one is an ErrAlreadyServing.
// The socket is restricted to its owner. When reg is non-nil the endpoint is registered there.
func (s *Server) Serve(socketPath string, reg registry.Registry) error {
	if s.shutdown.Load() {
		return ErrServerClosed
	}
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o700); err != nil {
		return fmt.Errorf("server: create socket dir: %w", err)
	}
	if err := removeStale(socketPath); err != nil {
		return err
	}
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("server: chmod socket: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.socketPath = socketPath
	// Build the chain once at startup, not per request.
	s.handler = middleware.Chain(s.middlewares...)(s.dispatch)
	s.mu.Unlock()

	if reg != nil {
		name := s.name
		if name == "" {
			name = filepath.Base(filepath.Dir(socketPath))
		}
		host, _ := os.Hostname()
		inst := registry.ServiceInstance{Service: name, SocketPath: socketPath, Host: host, Version: s.version}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := reg.Register(ctx, inst, RegistryTTL)
		cancel()
		if err != nil {
			listener.Close()
			return fmt.Errorf("server: register %s: %w", name, err)
		}
		s.mu.Lock()
		s.registry, s.instance = reg, inst
		s.mu.Unlock()
	}

	if supported, err := daemon.SdNotify(false, daemon.SdNotifyReady); supported && err != nil {
		s.logger.Warn("systemd ready notification failed", "error", err)
	}
	s.logger.Info("listening", "socket", socketPath)
	close(s.ready)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// removeStale deletes a socket file nobody is accepting on.
func removeStale(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("server: stat socket: %w", err)
	}
	if info.Mode().Type() != fs.ModeSocket {
		return fmt.Errorf("server: %s exists and is not a socket", path)
	}
	if conn, err := net.DialTimeout("unix", path, time.Second); err == nil {
		conn.Close()
		return ErrAlreadyServing
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("server: remove stale socket: %w", err)
	}
	return nil
}

// handleConn serves exactly one request on conn and closes it.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	if s.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
	req, err := protocol.DecodeRequest(bufio.NewReader(conn), s.codec, s.maxRequestBytes)
	if err != nil {
		if req == nil && errors.Is(err, protocol.ErrUnterminated) {
			// Peer hung up without sending a full line; nobody is left to answer.
			s.logger.Debug("connection closed before request", "error", err)
			return
		}
		id := ""
		if req != nil {
			id = req.ID
		}
		s.logger.Warn("bad request", "error", err)
		s.write(conn, message.Failure(id, "invalid request: "+err.Error()))
		return
	}

	resp, err := s.invoke(context.Background(), req)
	switch {
	case err != nil:
		resp = message.Failure(req.ID, err.Error())
	case resp == nil:
		resp, _ = message.Success(req.ID, nil)
	}
	resp.ID = req.ID
	s.write(conn, resp)
}

// invoke runs the handler chain, turning a panic into an error for this request only.
func (s *Server) invoke(ctx context.Context, req *message.Request) (resp *message.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panicked", "method", req.Method, "correlation_id", req.ID, "panic", r)
			resp, err = nil, fmt.Errorf("internal error in %s: %v", req.Method, r)
		}
	}()
	return s.handler(ctx, req)
}

func (s *Server) write(conn net.Conn, resp *message.Response) {
	if err := protocol.EncodeResponse(conn, s.codec, resp); err != nil {
		s.logger.Warn("write response failed", "correlation_id", resp.ID, "error", err)
	}
}

// dispatch is the innermost handler: plain handlers first, then "<service>.<method>" by reflection.
func (s *Server) dispatch(ctx context.Context, req *message.Request) (*message.Response, error) {
	s.mu.RLock()
	h := s.handlers[req.Method]
	svc, mType := s.lookup(req.Method)
	s.mu.RUnlock()

	if h != nil {
		return h(ctx, req)
	}
	if mType == nil {
		return nil, fmt.Errorf("unknown method: %s", req.Method)
	}
	reply, err := svc.call(ctx, mType, req.Params)
	if err != nil {
		return nil, err
	}
	return message.Success(req.ID, reply)
}

// lookup splits method at its last dot. Callers hold s.mu.
func (s *Server) lookup(method string) (*service, *methodType) {
	for i := len(method) - 1; i > 0; i-- {
		if method[i] != '.' {
			continue
		}
		svc := s.services[method[:i]]
		if svc == nil {
			return nil, nil
		}
		return svc, svc.method[method[i+1:]]
	}
	return nil, nil
}

// Shutdown performs graceful shutdown:
//  1. Deregister from the registry so clients stop resolving this socket
//  2. Tell systemd the daemon is stopping
//  3. Close the listener and wait for in-flight requests (bounded by timeout)
//  4. Remove the socket file
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.shutdown.Swap(true) {
		return ErrServerClosed
	}
	s.mu.RLock()
	reg, inst, listener, path := s.registry, s.instance, s.listener, s.socketPath
	s.mu.RUnlock()

	if reg != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := reg.Deregister(ctx, inst.Service, inst.SocketPath); err != nil {
			s.logger.Warn("deregister failed", "service", inst.Service, "error", err)
		}
		cancel()
	}
	daemon.SdNotify(false, daemon.SdNotifyStopping)

	if listener != nil {
		listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("server: timeout waiting for ongoing requests to finish")
	}

	if path != "" {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) && err == nil {
			err = fmt.Errorf("server: remove socket: %w", rmErr)
		}
	}
	s.logger.Info("stopped", "socket", path)
	return err
}
