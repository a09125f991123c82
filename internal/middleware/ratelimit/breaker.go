package ratelimit

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/config"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/logging"
)

// BreakerStore trips after consecutive store failures so that, while the
// store is down, requests fail open immediately instead of waiting on it.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker[Counter]
}

// NewBreakerStore wraps next with a circuit breaker.
func NewBreakerStore(next Store, cfg config.BreakerConfig) *BreakerStore {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &BreakerStore{
		next: next,
		cb: gobreaker.NewCircuitBreaker[Counter](gobreaker.Settings{
			Name:        "rate-limit-store",
			MaxRequests: 1,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logging.Warn("Rate limit store breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}
}

// Increment delegates to the wrapped store unless the breaker is open.
func (s *BreakerStore) Increment(ctx context.Context, key string, window time.Duration) (Counter, error) {
	return s.cb.Execute(func() (Counter, error) {
		return s.next.Increment(ctx, key, window)
	})
}

// State returns the breaker state name.
func (s *BreakerStore) State() string {
	return s.cb.State().String()
}
