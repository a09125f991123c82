package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/config"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/logging"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/registry"
)

const (
	defaultPrefix      = "/services/"
	defaultDialTimeout = 5 * time.Second
)

// Registry reads instances from etcd keys of the form
// <prefix><service-id>/<instance-id>, each holding a JSON registry.Instance.
// Records without a health field count as passing.
type Registry struct {
	kv      clientv3.KV
	watcher clientv3.Watcher
	closer  func() error
	prefix  string

	ctx    context.Context
	cancel context.CancelFunc
}

// New connects to the configured endpoints and checks the first one answers.
func New(cfg config.EtcdConfig) (*Registry, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd registry requires at least one endpoint")
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: dialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if _, err := client.Status(ctx, cfg.Endpoints[0]); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	r := newRegistry(cfg.Prefix)
	r.kv, r.watcher, r.closer = client, client, client.Close
	return r, nil
}

func newRegistry(prefix string) *Registry {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{prefix: prefix, ctx: ctx, cancel: cancel}
}

// Discover lists the passing instances under the service's key prefix.
func (r *Registry) Discover(ctx context.Context, serviceID string) ([]*registry.Instance, error) {
	resp, err := r.kv.Get(ctx, r.servicePrefix(serviceID), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("%w: etcd get %s: %v", registry.ErrRegistryUnavailable, serviceID, err)
	}

	values := make([][]byte, len(resp.Kvs))
	for i, kv := range resp.Kvs {
		values[i] = kv.Value
	}
	return decodeHealthy(values), nil
}

// decodeHealthy decodes instance records, skipping malformed and non-passing ones.
func decodeHealthy(values [][]byte) []*registry.Instance {
	instances := make([]*registry.Instance, 0, len(values))
	for _, v := range values {
		var inst registry.Instance
		if err := json.Unmarshal(v, &inst); err != nil {
			continue
		}
		if inst.Health == "" || inst.Health == registry.HealthPassing {
			instances = append(instances, &inst)
		}
	}
	return instances
}

// Watch delivers the current instance set, then a fresh set after every
// change under the service prefix. A broken etcd watch is re-established
// with backoff.
func (r *Registry) Watch(ctx context.Context, serviceID string) (<-chan []*registry.Instance, error) {
	if r.ctx.Err() != nil {
		return nil, registry.ErrRegistryUnavailable
	}

	watchCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(r.ctx, cancel)

	ch := make(chan []*registry.Instance, 1)
	go func() {
		defer close(ch)
		defer stop()
		defer cancel()
		r.follow(watchCtx, serviceID, ch)
	}()
	return ch, nil
}

func (r *Registry) follow(ctx context.Context, serviceID string, ch chan []*registry.Instance) {
	exp := backoff.NewExponentialBackOff()
	exp.MaxElapsedTime = 0
	retry := backoff.WithContext(exp, ctx)

	for ctx.Err() == nil {
		r.publish(ctx, serviceID, ch)

		events := r.watcher.Watch(clientv3.WithRequireLeader(ctx), r.servicePrefix(serviceID), clientv3.WithPrefix())
		for resp := range events {
			if err := resp.Err(); err != nil {
				logging.Warn("etcd watch error", zap.String("service", serviceID), zap.Error(err))
				continue
			}
			retry.Reset()
			r.publish(ctx, serviceID, ch)
		}

		wait := retry.NextBackOff()
		if wait == backoff.Stop {
			return
		}
		logging.Warn("etcd watch closed, re-establishing",
			zap.String("service", serviceID),
			zap.Duration("retry_in", wait),
		)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
		}
	}
}

func (r *Registry) publish(ctx context.Context, serviceID string, ch chan []*registry.Instance) {
	instances, err := r.Discover(ctx, serviceID)
	if err != nil {
		return
	}
	registry.Publish(ch, instances)
}

// Close stops all watches and closes the etcd client.
func (r *Registry) Close() error {
	r.cancel()
	if r.closer == nil {
		return nil
	}
	return r.closer()
}

func (r *Registry) servicePrefix(serviceID string) string {
	return r.prefix + serviceID + "/"
}
