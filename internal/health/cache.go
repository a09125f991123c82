package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/logging"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/metrics"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/registry"
)

// Status represents health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Entry is a cached verdict for one service.
type Entry struct {
	Status      Status    `json:"status"`
	LastChecked time.Time `json:"last_checked"`
}

// Cache holds process-local health verdicts per service id. Entries do not
// expire: they stay until Invalidate or InvalidateAll is called. A miss
// queries the registry, and concurrent misses for one service share a lookup.
type Cache struct {
	registry      registry.Registry
	lookupTimeout time.Duration
	metrics       *metrics.Collector
	warn          *logging.Throttled

	mu      sync.RWMutex
	entries map[string]Entry
	gen     uint64 // bumped on every invalidation
	group   singleflight.Group
	now     func() time.Time
}

// NewCache creates a health cache backed by reg. A nil registry reports
// every service healthy.
func NewCache(reg registry.Registry, lookupTimeout time.Duration, m *metrics.Collector) *Cache {
	if lookupTimeout <= 0 {
		lookupTimeout = 500 * time.Millisecond
	}
	return &Cache{
		registry:      reg,
		lookupTimeout: lookupTimeout,
		metrics:       m,
		warn:          logging.NewThrottled(10 * time.Second),
		entries:       make(map[string]Entry),
		now:           time.Now,
	}
}

// IsHealthy reports whether serviceID may receive traffic. Registry failures
// count as healthy and are not cached, so the next request retries.
func (c *Cache) IsHealthy(ctx context.Context, serviceID string) bool {
	if c.registry == nil {
		return true
	}

	c.mu.RLock()
	entry, ok := c.entries[serviceID]
	c.mu.RUnlock()
	if ok {
		c.metrics.RecordHealthLookup(metrics.HealthHit)
		return entry.Status == StatusHealthy
	}

	v, err, _ := c.group.Do(serviceID, func() (interface{}, error) {
		return c.lookup(ctx, serviceID)
	})
	if err != nil {
		c.metrics.RecordHealthLookup(metrics.HealthFailOpen)
		c.warn.Warn("health registry lookup failed, allowing request",
			zap.String("service", serviceID),
			zap.Error(err),
		)
		return true
	}
	c.metrics.RecordHealthLookup(metrics.HealthMiss)
	return v.(Status) == StatusHealthy
}

func (c *Cache) lookup(ctx context.Context, serviceID string) (Status, error) {
	c.mu.RLock()
	gen := c.gen
	c.mu.RUnlock()

	// Shared by every waiter, so one caller going away must not cancel it.
	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.lookupTimeout)
	defer cancel()

	instances, err := c.registry.Discover(lookupCtx, serviceID)
	if err != nil {
		return "", err
	}

	status := StatusUnhealthy
	if len(instances) > 0 {
		status = StatusHealthy
	}

	c.mu.Lock()
	// An invalidation that raced with the lookup wins.
	if c.gen == gen {
		c.entries[serviceID] = Entry{Status: status, LastChecked: c.now()}
	}
	c.mu.Unlock()

	return status, nil
}

// Invalidate drops the verdict for serviceID.
func (c *Cache) Invalidate(serviceID string) {
	c.mu.Lock()
	delete(c.entries, serviceID)
	c.gen++
	c.mu.Unlock()
	logging.Debug("health cache invalidated", zap.String("service", serviceID))
}

// InvalidateAll drops every verdict.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.gen++
	c.mu.Unlock()
	logging.Debug("health cache invalidated", zap.String("service", "*"))
}

// Snapshot returns a copy of the cached verdicts.
func (c *Cache) Snapshot() map[string]Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]Entry, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Services returns the ids with a cached verdict in sorted order.
func (c *Cache) Services() []string {
	snap := c.Snapshot()
	ids := make([]string, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
