package registry

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"fgp-rpc/config"
)

// DirRegistry discovers daemons from the socket files they create under Root:
//
//	<Root>/<service>/daemon.sock
//
// The socket file is the registration; Register only prepares the directory.
type DirRegistry struct {
	Root         string
	PollInterval time.Duration // Watch interval, 1s when zero
}

// NewDirRegistry returns a registry rooted at <home>/.<app>/services.
func NewDirRegistry(home, app string) *DirRegistry {
	return &DirRegistry{Root: filepath.Join(home, "."+app, "services")}
}

// SocketPath returns where service's socket is expected.
func (r *DirRegistry) SocketPath(service string) string {
	return filepath.Join(r.Root, service, config.SocketFileName)
}

// Register creates the service directory with owner-only permissions.
func (r *DirRegistry) Register(ctx context.Context, instance ServiceInstance, ttl int64) error {
	return os.MkdirAll(filepath.Dir(r.SocketPath(instance.Service)), 0o700)
}

// Deregister removes a leftover socket file, if any.
func (r *DirRegistry) Deregister(ctx context.Context, service, socketPath string) error {
	if socketPath == "" {
		socketPath = r.SocketPath(service)
	}
	err := os.Remove(socketPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Discover returns the service's socket when the file exists and is a socket.
func (r *DirRegistry) Discover(ctx context.Context, service string) ([]ServiceInstance, error) {
	path := r.SocketPath(service)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if info.Mode().Type() != fs.ModeSocket {
		return nil, nil
	}
	host, _ := os.Hostname()
	return []ServiceInstance{{Service: service, SocketPath: path, Host: host}}, nil
}

// Services lists every service directory that currently holds a socket, sorted by name.
func (r *DirRegistry) Services(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.Root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		instances, err := r.Discover(ctx, e.Name())
		if err != nil {
			return nil, err
		}
		if len(instances) > 0 {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Watch polls the socket path and emits the instance list whenever it changes, until ctx is done.
func (r *DirRegistry) Watch(ctx context.Context, service string) <-chan []ServiceInstance {
	interval := r.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ch := make(chan []ServiceInstance, 1)

	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last []ServiceInstance
		first := true
		for {
			instances, err := r.Discover(ctx, service)
			if err == nil && (first || !slices.Equal(instances, last)) {
				first = false
				last = instances
				select {
				case ch <- instances:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return ch
}
