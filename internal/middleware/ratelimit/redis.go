package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript increments the counter and sets its expiry on the first
// increment of a window. A key left without a TTL is repaired the same way.
// Returns: [count, pttl]
var incrementScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if count == 1 or ttl < 0 then
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
    ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisStore keeps counters in Redis so all gateway instances share them.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// Increment runs INCR and PEXPIRE atomically in one round trip.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (Counter, error) {
	result, err := incrementScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Counter{}, fmt.Errorf("redis increment %s: %w", key, err)
	}
	if len(result) != 2 {
		return Counter{}, fmt.Errorf("redis increment %s: unexpected reply %v", key, result)
	}
	return Counter{
		Count:     result[0],
		ExpiresAt: s.now().Add(time.Duration(result[1]) * time.Millisecond),
	}, nil
}
