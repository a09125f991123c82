package health

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/logging"
)

// InvalidateAllPayload on the invalidation channel clears the whole cache.
const InvalidateAllPayload = "*"

// RedisInvalidator applies health invalidation signals published on a Redis
// pub/sub channel. Every gateway instance subscribes, so one publish clears
// the verdict everywhere.
type RedisInvalidator struct {
	client  redis.UniversalClient
	channel string
	cache   *Cache
}

// NewRedisInvalidator creates an invalidator for channel.
func NewRedisInvalidator(client redis.UniversalClient, channel string, cache *Cache) *RedisInvalidator {
	return &RedisInvalidator{client: client, channel: channel, cache: cache}
}

// Publish signals every subscribed instance to drop the verdict for
// serviceID, or all verdicts when serviceID is "*".
func (i *RedisInvalidator) Publish(ctx context.Context, serviceID string) error {
	return i.client.Publish(ctx, i.channel, serviceID).Err()
}

// Run subscribes until ctx is done, resubscribing with backoff on failure.
func (i *RedisInvalidator) Run(ctx context.Context) error {
	retry := backoff.NewExponentialBackOff()
	retry.MaxElapsedTime = 0

	for ctx.Err() == nil {
		err := i.subscribe(ctx, retry)
		if ctx.Err() != nil {
			return nil
		}

		wait := retry.NextBackOff()
		logging.Warn("health invalidation subscription lost, retrying",
			zap.String("channel", i.channel),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

func (i *RedisInvalidator) subscribe(ctx context.Context, retry backoff.BackOff) error {
	pubsub := i.client.Subscribe(ctx, i.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	retry.Reset()
	logging.Info("subscribed to health invalidation channel", zap.String("channel", i.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return redis.ErrClosed
			}
			i.handle(msg.Payload)
		}
	}
}

func (i *RedisInvalidator) handle(payload string) {
	serviceID := strings.TrimSpace(payload)
	switch serviceID {
	case "":
		return
	case InvalidateAllPayload:
		i.cache.InvalidateAll()
	default:
		i.cache.Invalidate(serviceID)
	}
}
