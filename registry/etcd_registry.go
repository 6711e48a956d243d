package registry

// etcd layout:
//
//	Key:   /fgp/services/{service}/{socketPath}
//	Value: JSON-encoded ServiceInstance
//
// Registration rides on a TTL lease kept alive in the background; if the daemon dies the lease
// expires and the entry disappears, so clients never resolve a dead socket for long.

import (
	"context"
	"encoding/json"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const etcdPrefix = "/fgp/services/"

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID // key → lease, revoked on Deregister
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	return NewEtcdRegistryFromClient(c), nil
}

// NewEtcdRegistryFromClient wraps an existing client; the caller keeps ownership of it.
func NewEtcdRegistryFromClient(c *clientv3.Client) *EtcdRegistry {
	return &EtcdRegistry{client: c, leases: make(map[string]clientv3.LeaseID)}
}

func instanceKey(service, socketPath string) string {
	return etcdPrefix + service + "/" + socketPath
}

func servicePrefix(service string) string {
	return etcdPrefix + service + "/"
}

// Register stores instance under a lease of ttl seconds and keeps the lease alive until
// Deregister or until the keep-alive context is lost.
func (r *EtcdRegistry) Register(ctx context.Context, instance ServiceInstance, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	key := instanceKey(instance.Service, instance.SocketPath)
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	// Keep-alive outlives the registering call; it stops when the lease is revoked.
	ch, err := r.client.KeepAlive(context.WithoutCancel(ctx), lease.ID)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
		}
	}()

	r.mu.Lock()
	r.leases[key] = lease.ID
	r.mu.Unlock()
	return nil
}

// Deregister deletes the instance and revokes its lease.
func (r *EtcdRegistry) Deregister(ctx context.Context, service, socketPath string) error {
	key := instanceKey(service, socketPath)
	if _, err := r.client.Delete(ctx, key); err != nil {
		return err
	}

	r.mu.Lock()
	leaseID, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()
	if ok {
		if _, err := r.client.Revoke(ctx, leaseID); err != nil {
			return err
		}
	}
	return nil
}

// Watch emits the full instance list of service every time its key range changes, until ctx is done.
func (r *EtcdRegistry) Watch(ctx context.Context, service string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, servicePrefix(service), clientv3.WithPrefix())
		for range watchChan {
			instances, err := r.Discover(ctx, service)
			if err != nil {
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Discover returns all currently registered instances of service.
func (r *EtcdRegistry) Discover(ctx context.Context, service string) ([]ServiceInstance, error) {
	resp, err := r.client.Get(ctx, servicePrefix(service), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			continue // skip malformed entries
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Close closes the underlying etcd client.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
