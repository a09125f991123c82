package ratelimit

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type window struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore keeps fixed-window counters in a bounded LRU. Counters are
// local to the process; use it for single-instance deployments and tests.
type MemoryStore struct {
	mu      sync.Mutex
	windows *lru.Cache[string, *window]
	now     func() time.Time
}

// NewMemoryStore creates a store holding at most maxKeys counters.
func NewMemoryStore(maxKeys int) (*MemoryStore, error) {
	if maxKeys <= 0 {
		maxKeys = 100000
	}
	c, err := lru.New[string, *window](maxKeys)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{windows: c, now: time.Now}, nil
}

// Increment increments key, starting a new window when the previous expired.
func (s *MemoryStore) Increment(ctx context.Context, key string, ttl time.Duration) (Counter, error) {
	if err := ctx.Err(); err != nil {
		return Counter{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows.Get(key)
	if !ok || !now.Before(w.expiresAt) {
		w = &window{expiresAt: now.Add(ttl)}
		s.windows.Add(key, w)
	}
	w.count++
	return Counter{Count: w.count, ExpiresAt: w.expiresAt}, nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	return s.windows.Len()
}
