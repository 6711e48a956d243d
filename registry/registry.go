// Package registry resolves a daemon service name to the socket it listens on.
//
// Two implementations exist: DirRegistry reads the conventional on-disk layout
// (<home>/.<app>/services/<service>/daemon.sock), EtcdRegistry lets daemons advertise their
// sockets under a lease so clients on shared hosts can discover them.
package registry

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Resolve when no instance of the service is registered.
var ErrNotFound = errors.New("registry: service not found")

type ServiceInstance struct {
	Service    string `json:"service"`
	SocketPath string `json:"socket_path"`
	Host       string `json:"host,omitempty"`
	Version    string `json:"version,omitempty"`
}

type Registry interface {
	Register(ctx context.Context, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, service, socketPath string) error
	Discover(ctx context.Context, service string) ([]ServiceInstance, error)
	Watch(ctx context.Context, service string) <-chan []ServiceInstance
}

// Resolve returns the socket path of the first instance of service, preferring one on host
// when host is non-empty.
func Resolve(ctx context.Context, reg Registry, service, host string) (string, error) {
	instances, err := reg.Discover(ctx, service)
	if err != nil {
		return "", err
	}
	if len(instances) == 0 {
		return "", ErrNotFound
	}
	if host != "" {
		for _, inst := range instances {
			if inst.Host == host {
				return inst.SocketPath, nil
			}
		}
	}
	return instances[0].SocketPath, nil
}
