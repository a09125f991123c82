package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/config"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/health"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/logging"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/metrics"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware/bodylimit"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware/claims"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware/correlation"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware/cors"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware/csrf"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware/extauth"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware/healthgate"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware/ipfilter"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware/methodgate"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware/ratelimit"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware/rolegate"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware/timeout"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware/validation"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/proxy"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/registry"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/registry/consul"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/registry/etcd"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/registry/memory"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/router"
)

// Stage priorities. Lower runs first.
const (
	PriorityCorrelation    = 100
	PriorityCORS           = 200
	PriorityIPAccess       = 300
	PriorityClaims         = 400
	PriorityMethodGate     = 500
	PriorityAuthDelegation = 600
	PriorityRoleGate       = 700
	PriorityCSRF           = 800
	PriorityValidation     = 900
	PriorityBodySize       = 1000
	PriorityRateLimit      = 1100
	PriorityHealthGate     = 1200
	PriorityTimeout        = 1300
)

// Gateway is the edge pipeline in front of the shop services
type Gateway struct {
	config      *config.Config
	routes      *router.Table
	metrics     *metrics.Collector
	redisClient redis.UniversalClient
	registry    registry.Registry
	healthCache *health.Cache
	watcher     *health.Watcher
	invalidator *health.RedisInvalidator
	breaker     *ratelimit.BreakerStore
	pipeline    *middleware.Pipeline
	handler     http.Handler
}

// New creates a new gateway
func New(cfg *config.Config) (*Gateway, error) {
	routes, err := router.New(cfg.Routes)
	if err != nil {
		return nil, fmt.Errorf("failed to build route table: %w", err)
	}

	g := &Gateway{
		config:  cfg,
		routes:  routes,
		metrics: metrics.NewCollector(),
	}

	if cfg.Redis.Address != "" {
		g.redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Address,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			PoolSize:     cfg.Redis.PoolSize,
		})
	}

	// Initialize registry
	if err := g.initRegistry(); err != nil {
		g.Close()
		return nil, fmt.Errorf("failed to initialize registry: %w", err)
	}

	g.initHealth()

	g.pipeline, err = g.buildPipeline()
	if err != nil {
		g.Close()
		return nil, err
	}

	p := proxy.New(proxy.Config{
		Transport:     proxy.NewTransport(cfg.Transport),
		FlushInterval: cfg.Transport.FlushInterval,
	})

	g.handler = middleware.NewChain(
		middleware.RequestContext(routes, trustForwarded(cfg.IPFilter)),
		middleware.Metrics(g.metrics),
		middleware.Logging(),
		middleware.ErrorNormalizer(),
	).Then(g.pipeline.Then(p))

	logging.Info("Gateway pipeline assembled",
		zap.Strings("stages", g.pipeline.Names()),
		zap.Int("routes", len(routes.Routes())),
	)

	return g, nil
}

func trustForwarded(cfg config.IPFilterConfig) bool {
	return cfg.TrustForwarded == nil || *cfg.TrustForwarded
}

// initRegistry initializes the service registry
func (g *Gateway) initRegistry() error {
	switch registry.Type(g.config.Registry.Type) {
	case registry.TypeConsul:
		reg, err := consul.New(g.config.Registry.Consul)
		if err != nil {
			return err
		}
		g.registry = reg
	case registry.TypeEtcd:
		reg, err := etcd.New(g.config.Registry.Etcd)
		if err != nil {
			return err
		}
		g.registry = reg
	case registry.TypeMemory:
		g.registry = memory.NewFromStatic(g.config.Registry.Static)
	case registry.TypeNone, "":
	default:
		return fmt.Errorf("unknown registry type %q", g.config.Registry.Type)
	}
	return nil
}

// initHealth sets up the health cache and its invalidation sources.
func (g *Gateway) initHealth() {
	hc := g.config.Health
	g.healthCache = health.NewCache(g.registry, hc.LookupTimeout, g.metrics)

	if g.registry != nil && hc.WatchRegistry {
		ids := make([]string, 0, len(g.routes.Routes()))
		for _, route := range g.routes.Routes() {
			ids = append(ids, route.ServiceID)
		}
		g.watcher = health.NewWatcher(g.registry, g.healthCache, ids)
	}

	if g.redisClient != nil && hc.InvalidationChannel != "" {
		g.invalidator = health.NewRedisInvalidator(g.redisClient, hc.InvalidationChannel, g.healthCache)
	}
}

// buildPipeline registers every enabled stage at its fixed priority.
func (g *Gateway) buildPipeline() (*middleware.Pipeline, error) {
	cfg := g.config
	p := middleware.NewPipeline()

	p.Register(middleware.Stage{Name: "correlation", Priority: PriorityCorrelation, Middleware: correlation.New().Middleware()})

	if cfg.CORS.Enabled {
		p.Register(middleware.Stage{Name: "cors", Priority: PriorityCORS, Middleware: cors.New(cfg.CORS).Middleware()})
	}

	if cfg.IPFilter.Enabled {
		filter, err := ipfilter.New(cfg.IPFilter)
		if err != nil {
			return nil, fmt.Errorf("ip filter: %w", err)
		}
		p.Register(middleware.Stage{Name: "ip_access", Priority: PriorityIPAccess, Middleware: filter.Middleware()})
	}

	extractor, err := claims.New(cfg.JWT)
	if err != nil {
		return nil, fmt.Errorf("claims extraction: %w", err)
	}
	p.Register(
		middleware.Stage{Name: "claims_extraction", Priority: PriorityClaims, Middleware: extractor.Middleware()},
		middleware.Stage{Name: "method_gate", Priority: PriorityMethodGate, Middleware: methodgate.Middleware()},
	)

	if cfg.AuthService.BaseURL == "" {
		for _, route := range g.routes.Routes() {
			if route.RequiresAuth || route.PublicRead {
				return nil, fmt.Errorf("route %s requires authentication but auth_service.base_url is not set", route.Name)
			}
		}
	} else {
		ea, err := extauth.New(cfg.AuthService, g.metrics)
		if err != nil {
			return nil, fmt.Errorf("auth delegation: %w", err)
		}
		p.Register(middleware.Stage{Name: "auth_delegation", Priority: PriorityAuthDelegation, Middleware: ea.Middleware()})
	}

	p.Register(middleware.Stage{Name: "role_gate", Priority: PriorityRoleGate, Middleware: rolegate.Middleware()})

	if cfg.CSRF.Enabled {
		protector, err := csrf.New(cfg.CSRF)
		if err != nil {
			return nil, fmt.Errorf("csrf: %w", err)
		}
		p.Register(middleware.Stage{Name: "csrf", Priority: PriorityCSRF, Middleware: protector.Middleware()})
	}

	if cfg.Validation.Enabled {
		p.Register(middleware.Stage{Name: "validation", Priority: PriorityValidation, Middleware: validation.New(cfg.Validation).Middleware()})
	}

	p.Register(middleware.Stage{Name: "body_size", Priority: PriorityBodySize, Middleware: bodylimit.Middleware(cfg.BodyLimit.MaxBytes)})

	if cfg.RateLimit.Enabled {
		store, err := g.counterStore()
		if err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
		limiter := ratelimit.NewLimiter(store, ratelimit.Config{
			Limit:        int64(cfg.RateLimit.RequestsPerMinute),
			Window:       cfg.RateLimit.Window,
			KeyPrefix:    cfg.RateLimit.KeyPrefix,
			StoreTimeout: cfg.RateLimit.StoreTimeout,
		}, g.metrics)
		p.Register(middleware.Stage{Name: "rate_limit", Priority: PriorityRateLimit, Middleware: limiter.Middleware()})
	}

	if cfg.Health.Enabled && g.registry != nil {
		p.Register(middleware.Stage{Name: "health_gate", Priority: PriorityHealthGate, Middleware: healthgate.Middleware(g.healthCache)})
	}

	p.Register(middleware.Stage{Name: "timeout", Priority: PriorityTimeout, Middleware: timeout.New(cfg.Timeouts.Default, g.metrics).Middleware()})

	return p, nil
}

// counterStore builds the rate-limit store, wrapped in a breaker if enabled.
func (g *Gateway) counterStore() (ratelimit.Store, error) {
	rl := g.config.RateLimit

	var store ratelimit.Store
	switch rl.Store {
	case "redis", "":
		if g.redisClient == nil {
			return nil, errors.New("redis store requires redis.address")
		}
		store = ratelimit.NewRedisStore(g.redisClient)
	case "memory":
		mem, err := ratelimit.NewMemoryStore(rl.MemoryMaxKeys)
		if err != nil {
			return nil, err
		}
		store = mem
	default:
		return nil, fmt.Errorf("unknown store %q", rl.Store)
	}

	if rl.Breaker.Enabled {
		g.breaker = ratelimit.NewBreakerStore(store, rl.Breaker)
		store = g.breaker
	}
	return store, nil
}

// Handler returns the main HTTP handler
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Routes returns the route table
func (g *Gateway) Routes() *router.Table {
	return g.routes
}

// Metrics returns the metrics collector
func (g *Gateway) Metrics() *metrics.Collector {
	return g.metrics
}

// HealthCache returns the service health cache
func (g *Gateway) HealthCache() *health.Cache {
	return g.healthCache
}

// Stages returns the registered stage names in execution order.
func (g *Gateway) Stages() []string {
	return g.pipeline.Names()
}

// BreakerState reports the counter store breaker state, or "" if disabled.
func (g *Gateway) BreakerState() string {
	if g.breaker == nil {
		return ""
	}
	return g.breaker.State()
}

// InvalidateHealth drops cached verdicts for serviceID, or all of them when
// serviceID is "*". With a Redis channel configured the signal reaches every
// gateway instance, this one included.
func (g *Gateway) InvalidateHealth(ctx context.Context, serviceID string) error {
	if g.invalidator != nil {
		return g.invalidator.Publish(ctx, serviceID)
	}
	if serviceID == health.InvalidateAllPayload {
		g.healthCache.InvalidateAll()
	} else {
		g.healthCache.Invalidate(serviceID)
	}
	return nil
}

// Run runs the background health invalidation sources until ctx is done.
func (g *Gateway) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	if g.watcher != nil {
		eg.Go(func() error { return g.watcher.Run(ctx) })
	}
	if g.invalidator != nil {
		eg.Go(func() error { return g.invalidator.Run(ctx) })
	}
	return eg.Wait()
}

// Close releases the registry and Redis connections.
func (g *Gateway) Close() error {
	var errs []error
	if g.registry != nil {
		errs = append(errs, g.registry.Close())
	}
	if g.redisClient != nil {
		errs = append(errs, g.redisClient.Close())
	}
	return errors.Join(errs...)
}
