package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/config"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/registry"
)

// Registry is an in-process registry for static deployments and tests.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]*registry.Instance // by instance id
	watchers  map[string]map[chan []*registry.Instance]func() bool
	closed    bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		instances: make(map[string]*registry.Instance),
		watchers:  make(map[string]map[chan []*registry.Instance]func() bool),
	}
}

// NewFromStatic creates a registry seeded with instances keyed by service id.
// Instances without an explicit healthy flag are passing.
func NewFromStatic(static map[string][]config.StaticInstance) *Registry {
	r := New()
	for serviceID, list := range static {
		for i, si := range list {
			health := registry.HealthPassing
			if si.Healthy != nil && !*si.Healthy {
				health = registry.HealthCritical
			}
			id := fmt.Sprintf("%s-%d", serviceID, i)
			r.instances[id] = &registry.Instance{
				ID:      id,
				Name:    serviceID,
				Address: si.Address,
				Port:    si.Port,
				Health:  health,
			}
		}
	}
	return r
}

// Register adds or replaces an instance. A missing id is generated and a
// missing health state defaults to passing.
func (r *Registry) Register(_ context.Context, inst *registry.Instance) error {
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	if inst.Health == "" {
		inst.Health = registry.HealthPassing
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[inst.ID] = inst
	r.notify(inst.Name)
	return nil
}

// Deregister removes the instance with instanceID.
func (r *Registry) Deregister(_ context.Context, instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[instanceID]
	if !ok {
		return registry.ErrServiceNotFound
	}
	delete(r.instances, instanceID)
	r.notify(inst.Name)
	return nil
}

// SetHealth changes the check state of a registered instance.
func (r *Registry) SetHealth(instanceID string, health registry.HealthStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[instanceID]
	if !ok {
		return registry.ErrServiceNotFound
	}
	updated := *inst
	updated.Health = health
	r.instances[instanceID] = &updated
	r.notify(inst.Name)
	return nil
}

// Discover returns the passing instances of serviceID sorted by id.
func (r *Registry) Discover(ctx context.Context, serviceID string) ([]*registry.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.passing(serviceID), nil
}

// passing must be called with r.mu held.
func (r *Registry) passing(serviceID string) []*registry.Instance {
	var result []*registry.Instance
	for _, inst := range r.instances {
		if inst.Name == serviceID && inst.Health == registry.HealthPassing {
			result = append(result, inst)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Watch delivers the current passing set, then a new one after every change
// to serviceID. The channel closes when ctx is done or the registry closes.
func (r *Registry) Watch(ctx context.Context, serviceID string) (<-chan []*registry.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, registry.ErrRegistryUnavailable
	}

	ch := make(chan []*registry.Instance, 1)
	ch <- r.passing(serviceID)

	if r.watchers[serviceID] == nil {
		r.watchers[serviceID] = make(map[chan []*registry.Instance]func() bool)
	}
	r.watchers[serviceID][ch] = context.AfterFunc(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.watchers[serviceID][ch]; ok {
			delete(r.watchers[serviceID], ch)
			close(ch)
		}
	})
	return ch, nil
}

// notify must be called with r.mu held.
func (r *Registry) notify(serviceID string) {
	watchers := r.watchers[serviceID]
	if len(watchers) == 0 {
		return
	}
	instances := r.passing(serviceID)
	for ch := range watchers {
		registry.Publish(ch, instances)
	}
}

// Close ends every watch. Further watches fail with ErrRegistryUnavailable.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for serviceID, watchers := range r.watchers {
		for ch, stop := range watchers {
			stop()
			close(ch)
		}
		delete(r.watchers, serviceID)
	}
	return nil
}

// All returns every registered instance sorted by id, healthy or not.
func (r *Registry) All() []*registry.Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*registry.Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		result = append(result, inst)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
