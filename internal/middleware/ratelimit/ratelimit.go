// Package ratelimit counts requests per client identity in fixed windows
// held by a shared store, failing open when the store is unavailable.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/errors"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/logging"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/metrics"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/variables"
)

// Response headers
const (
	HeaderRemaining = "X-Rate-Limit-Remaining"
	HeaderReset     = "X-Rate-Limit-Reset"
)

// unknownKey identifies requests with neither a user nor a client address.
const unknownKey = "unknown"

// Config holds limiter settings.
type Config struct {
	Limit        int64
	Window       time.Duration
	KeyPrefix    string
	StoreTimeout time.Duration
}

// Limiter enforces a per-identity request limit.
type Limiter struct {
	store   Store
	cfg     Config
	metrics *metrics.Collector
	warn    *logging.Throttled
	now     func() time.Time
}

// NewLimiter creates a limiter over store.
func NewLimiter(store Store, cfg Config, m *metrics.Collector) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "rate-limit:"
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 100 * time.Millisecond
	}
	return &Limiter{
		store:   store,
		cfg:     cfg,
		metrics: m,
		warn:    logging.NewThrottled(10 * time.Second),
		now:     time.Now,
	}
}

// Key returns the store key for r: authenticated user id, then client IP,
// then "unknown".
func (l *Limiter) Key(r *http.Request) string {
	id := unknownKey
	if varCtx := variables.GetFromRequest(r); varCtx != nil {
		if uid := varCtx.UserID(); uid != "" {
			id = uid
		} else if varCtx.ClientIP != "" {
			id = varCtx.ClientIP
		}
	}
	return l.cfg.KeyPrefix + id
}

// Middleware returns the stage middleware.
func (l *Limiter) Middleware() middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := l.Key(r)

			ctx, cancel := context.WithTimeout(r.Context(), l.cfg.StoreTimeout)
			counter, err := l.store.Increment(ctx, key, l.cfg.Window)
			cancel()

			if err != nil {
				// Fail open: the limiter must not become an outage vector
				l.metrics.RecordRateLimitStoreError()
				l.warn.Warn("Rate limit store unavailable, failing open",
					zap.String("key", key),
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			remaining := l.cfg.Limit - counter.Count
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set(HeaderRemaining, strconv.FormatInt(remaining, 10))
			w.Header().Set(HeaderReset, strconv.FormatInt(counter.ExpiresAt.Unix(), 10))

			if counter.Count > l.cfg.Limit {
				retryAfter := int(counter.ExpiresAt.Sub(l.now()).Round(time.Second).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				route := ""
				if varCtx := variables.GetFromRequest(r); varCtx != nil {
					route = varCtx.RouteName()
				}
				l.metrics.RecordRateLimited(route)
				errors.ErrTooManyRequests.WriteJSON(w, r)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
