package registry

import (
	"context"
	"errors"
)

// HealthStatus is the check state a registry reports for an instance.
type HealthStatus string

const (
	HealthPassing  HealthStatus = "passing"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// Instance is one registered instance of a backend service.
type Instance struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Address  string            `json:"address"`
	Port     int               `json:"port"`
	Tags     []string          `json:"tags,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Health   HealthStatus      `json:"health"`
}

// Registry lists the healthy instances registered for a service id.
// The health gate treats an empty list as "service down".
type Registry interface {
	// Discover returns the healthy instances of a service. Implementations
	// must query the backing store on every call.
	Discover(ctx context.Context, serviceID string) ([]*Instance, error)

	// Watch delivers the healthy instance set each time it changes.
	// The channel is closed when ctx is done or the registry is closed.
	Watch(ctx context.Context, serviceID string) (<-chan []*Instance, error)

	Close() error
}

// Type selects the registry backend in configuration.
type Type string

const (
	TypeNone   Type = "none"
	TypeConsul Type = "consul"
	TypeEtcd   Type = "etcd"
	TypeMemory Type = "memory"
)

var (
	// ErrServiceNotFound is returned for operations on an unknown instance.
	ErrServiceNotFound = errors.New("service not found")
	// ErrRegistryUnavailable is returned when the backing store cannot be
	// reached or has been closed.
	ErrRegistryUnavailable = errors.New("registry unavailable")
)

// Publish hands instances to a watch channel of capacity 1, replacing any
// snapshot the consumer has not read yet. ch must have a single sender.
func Publish(ch chan []*Instance, instances []*Instance) {
	select {
	case <-ch:
	default:
	}
	ch <- instances
}
