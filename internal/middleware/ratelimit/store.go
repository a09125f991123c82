package ratelimit

import (
	"context"
	"time"
)

// Counter is the state of one key after an increment.
type Counter struct {
	Count     int64
	ExpiresAt time.Time
}

// Store atomically increments fixed-window counters. The first increment
// of a key in a window starts the window with a TTL of window.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (Counter, error)
}
