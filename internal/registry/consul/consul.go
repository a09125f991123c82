package consul

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	consulapi "github.com/hashicorp/consul/api"
	"go.uber.org/zap"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/config"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/logging"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/registry"
)

// watchWait bounds a single Consul blocking query.
const watchWait = 30 * time.Second

// Registry answers health queries from the Consul catalog. Only instances
// whose checks are all passing are returned.
type Registry struct {
	health     *consulapi.Health
	datacenter string

	// ctx scopes every watch; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
}

// New connects to Consul and verifies the agent is reachable.
func New(cfg config.ConsulConfig) (*Registry, error) {
	consulCfg := consulapi.DefaultConfig()
	consulCfg.Address = cfg.Address
	if cfg.Scheme != "" {
		consulCfg.Scheme = cfg.Scheme
	}
	consulCfg.Datacenter = cfg.Datacenter
	if cfg.Token != "" {
		consulCfg.Token = cfg.Token
	}

	client, err := consulapi.NewClient(consulCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Consul client: %w", err)
	}
	if _, err := client.Agent().Self(); err != nil {
		return nil, fmt.Errorf("failed to connect to Consul at %s: %w", cfg.Address, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		health:     client.Health(),
		datacenter: cfg.Datacenter,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Discover returns the passing instances of serviceID.
func (r *Registry) Discover(ctx context.Context, serviceID string) ([]*registry.Instance, error) {
	instances, _, err := r.query(ctx, serviceID, 0)
	return instances, err
}

// query runs a health query. A non-zero waitIndex turns it into a blocking
// query that returns once the index moves past it or watchWait elapses.
func (r *Registry) query(ctx context.Context, serviceID string, waitIndex uint64) ([]*registry.Instance, uint64, error) {
	opts := &consulapi.QueryOptions{Datacenter: r.datacenter}
	if waitIndex > 0 {
		opts.WaitIndex = waitIndex
		opts.WaitTime = watchWait
	}

	entries, meta, err := r.health.Service(serviceID, "", true, opts.WithContext(ctx))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: consul health query for %s: %v", registry.ErrRegistryUnavailable, serviceID, err)
	}
	return toInstances(entries), meta.LastIndex, nil
}

func toInstances(entries []*consulapi.ServiceEntry) []*registry.Instance {
	instances := make([]*registry.Instance, 0, len(entries))
	for _, entry := range entries {
		inst := &registry.Instance{
			ID:       entry.Service.ID,
			Name:     entry.Service.Service,
			Address:  entry.Service.Address,
			Port:     entry.Service.Port,
			Tags:     entry.Service.Tags,
			Metadata: entry.Service.Meta,
			Health:   convertHealth(entry.Checks),
		}
		// Services registered without an address listen on the node address
		if inst.Address == "" && entry.Node != nil {
			inst.Address = entry.Node.Address
		}
		instances = append(instances, inst)
	}
	return instances
}

// convertHealth reports the worst state among checks.
func convertHealth(checks consulapi.HealthChecks) registry.HealthStatus {
	status := registry.HealthPassing
	for _, check := range checks {
		switch check.Status {
		case consulapi.HealthCritical:
			return registry.HealthCritical
		case consulapi.HealthWarning:
			status = registry.HealthWarning
		}
	}
	return status
}

// Watch follows serviceID with blocking queries and delivers the instance
// set whenever the Consul index advances.
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

	var index uint64
	for ctx.Err() == nil {
		instances, next, err := r.query(ctx, serviceID, index)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := retry.NextBackOff()
			if wait == backoff.Stop {
				return
			}
			logging.Warn("Consul watch failed, retrying",
				zap.String("service", serviceID),
				zap.Duration("retry_in", wait),
				zap.Error(err),
			)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
			}
			continue
		}
		retry.Reset()

		switch {
		case next < index:
			// Index went backwards after a Consul restore; start over
			index = 0
		case next != index:
			index = next
			registry.Publish(ch, instances)
		}
	}
}

// Close stops every watch started on the registry.
func (r *Registry) Close() error {
	r.cancel()
	return nil
}
