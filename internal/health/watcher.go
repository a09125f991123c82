package health

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/logging"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/registry"
)

// Watcher invalidates cached verdicts whenever the registry reports a change
// to one of the watched services.
type Watcher struct {
	registry registry.Registry
	cache    *Cache
	services []string
}

// NewWatcher creates a watcher for serviceIDs.
func NewWatcher(reg registry.Registry, cache *Cache, serviceIDs []string) *Watcher {
	seen := make(map[string]bool, len(serviceIDs))
	var unique []string
	for _, id := range serviceIDs {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	return &Watcher{registry: reg, cache: cache, services: unique}
}

// Run watches every service until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, id := range w.services {
		g.Go(func() error {
			w.watch(ctx, id)
			return nil
		})
	}
	return g.Wait()
}

func (w *Watcher) watch(ctx context.Context, serviceID string) {
	retry := backoff.NewExponentialBackOff()
	retry.MaxElapsedTime = 0

	for ctx.Err() == nil {
		ch, err := w.registry.Watch(ctx, serviceID)
		if err == nil {
			for range ch {
				retry.Reset()
				w.cache.Invalidate(serviceID)
			}
		}
		if ctx.Err() != nil {
			return
		}

		wait := retry.NextBackOff()
		logging.Warn("registry watch ended, retrying",
			zap.String("service", serviceID),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}
