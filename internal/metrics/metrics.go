package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gateway"

// Health cache lookup results
const (
	HealthHit      = "hit"
	HealthMiss     = "miss"
	HealthFailOpen = "fail_open"
)

// DefaultBuckets are default histogram buckets in seconds
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0}

// Collector tracks gateway metrics on a private Prometheus registry.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	rateLimited      *prometheus.CounterVec
	rateLimitErrors  prometheus.Counter
	authDelegation   *prometheus.CounterVec
	healthCache      *prometheus.CounterVec
	upstreamTimeouts *prometheus.CounterVec
}

// NewCollector creates a collector and registers its metrics
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of requests handled by the gateway",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   DefaultBuckets,
			},
			[]string{"method", "route", "status"},
		),
		rateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_rejections_total",
				Help:      "Requests rejected by the rate limiter",
			},
			[]string{"route"},
		),
		rateLimitErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_store_errors_total",
				Help:      "Counter store failures that let requests through",
			},
		),
		authDelegation: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_delegation_total",
				Help:      "Auth service validation calls by result",
			},
			[]string{"result"},
		),
		healthCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "health_cache_total",
				Help:      "Service health cache lookups by result",
			},
			[]string{"result"},
		),
		upstreamTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_timeouts_total",
				Help:      "Requests that exceeded their downstream deadline",
			},
			[]string{"route"},
		),
	}

	c.registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.rateLimited,
		c.rateLimitErrors,
		c.authDelegation,
		c.healthCache,
		c.upstreamTimeouts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying Prometheus registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordRequest records a completed request
func (c *Collector) RecordRequest(method, route string, statusCode int, duration time.Duration) {
	if c == nil {
		return
	}
	status := strconv.Itoa(statusCode)
	c.requestsTotal.WithLabelValues(method, route, status).Inc()
	c.requestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// RecordRateLimited records a 429 issued for route
func (c *Collector) RecordRateLimited(route string) {
	if c == nil {
		return
	}
	c.rateLimited.WithLabelValues(route).Inc()
}

// RecordRateLimitStoreError records a failed counter store increment
func (c *Collector) RecordRateLimitStoreError() {
	if c == nil {
		return
	}
	c.rateLimitErrors.Inc()
}

// RecordAuthDelegation records an auth service call outcome:
// "valid", "invalid" or "error".
func (c *Collector) RecordAuthDelegation(result string) {
	if c == nil {
		return
	}
	c.authDelegation.WithLabelValues(result).Inc()
}

// RecordHealthLookup records a health cache lookup result
func (c *Collector) RecordHealthLookup(result string) {
	if c == nil {
		return
	}
	c.healthCache.WithLabelValues(result).Inc()
}

// RecordUpstreamTimeout records a 504 issued for route
func (c *Collector) RecordUpstreamTimeout(route string) {
	if c == nil {
		return
	}
	c.upstreamTimeouts.WithLabelValues(route).Inc()
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
