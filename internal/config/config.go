package config

import (
	"time"
)

// Config represents the complete gateway configuration
type Config struct {
	Listen      ListenConfig      `yaml:"listen"`
	Admin       AdminConfig       `yaml:"admin"`
	Logging     LoggingConfig     `yaml:"logging"`
	Redis       RedisConfig       `yaml:"redis"`
	Registry    RegistryConfig    `yaml:"registry"`
	AuthService AuthServiceConfig `yaml:"auth_service"`
	JWT         JWTConfig         `yaml:"jwt"`
	CORS        CORSConfig        `yaml:"cors"`
	CSRF        CSRFConfig        `yaml:"csrf"`
	IPFilter    IPFilterConfig    `yaml:"ip_filter"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	BodyLimit   BodyLimitConfig   `yaml:"body_limit"`
	Validation  ValidationConfig  `yaml:"validation"`
	Timeouts    TimeoutsConfig    `yaml:"timeouts"`
	Health      HealthConfig      `yaml:"health"`
	Transport   TransportConfig   `yaml:"transport"`
	Routes      []RouteConfig     `yaml:"routes"`
}

// ListenConfig defines the public HTTP listener
type ListenConfig struct {
	Address           string        `yaml:"address"` // e.g., ":8080"
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"` // 0 = none; proxied responses are streamed
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes    int           `yaml:"max_header_bytes"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// AdminConfig defines admin API settings
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig defines logging settings
type LoggingConfig struct {
	Level    string            `yaml:"level"`
	Output   string            `yaml:"output"` // stdout, stderr, or a file path
	Rotation LogRotationConfig `yaml:"rotation"`
}

// LogRotationConfig defines log file rotation settings (powered by lumberjack).
type LogRotationConfig struct {
	MaxSize    int  `yaml:"max_size"`    // megabytes before rotation (default 100)
	MaxBackups int  `yaml:"max_backups"` // old rotated files to keep (default 3)
	MaxAge     int  `yaml:"max_age"`     // days to retain old files (default 28)
	Compress   bool `yaml:"compress"`
}

// RedisConfig holds the shared Redis connection used by rate limiting and
// health invalidation
type RedisConfig struct {
	Address      string        `yaml:"address"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
}

// RegistryConfig defines the service registry used by the health gate
type RegistryConfig struct {
	Type   string       `yaml:"type"` // none, memory, consul, etcd
	Consul ConsulConfig `yaml:"consul"`
	Etcd   EtcdConfig   `yaml:"etcd"`
	// Static seeds the memory registry with instances per service id
	Static map[string][]StaticInstance `yaml:"static"`
}

// ConsulConfig defines Consul settings
type ConsulConfig struct {
	Address    string `yaml:"address"`
	Scheme     string `yaml:"scheme"`
	Datacenter string `yaml:"datacenter"`
	Token      string `yaml:"token"`
}

// EtcdConfig defines etcd settings
type EtcdConfig struct {
	Endpoints   []string      `yaml:"endpoints"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	Prefix      string        `yaml:"prefix"`
}

// StaticInstance is a registry entry loaded from configuration
type StaticInstance struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	Healthy *bool  `yaml:"healthy"`
}

// AuthServiceConfig defines the external authentication service
type AuthServiceConfig struct {
	BaseURL      string        `yaml:"base_url"`
	ValidatePath string        `yaml:"validate_path"` // default /auth/validate
	Timeout      time.Duration `yaml:"timeout"`
}

// JWTConfig defines local claims extraction settings
type JWTConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Secret    string `yaml:"secret"`
	Algorithm string `yaml:"algorithm"` // HS256 (default), HS384, HS512
	Issuer    string `yaml:"issuer"`
}

// CORSConfig defines CORS settings
type CORSConfig struct {
	Enabled          bool     `yaml:"enabled"`
	AllowOrigins     []string `yaml:"allow_origins"`
	AllowMethods     []string `yaml:"allow_methods"`
	AllowHeaders     []string `yaml:"allow_headers"`
	ExposeHeaders    []string `yaml:"expose_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	MaxAge           int      `yaml:"max_age"` // seconds
}

// CSRFConfig defines CSRF protection settings
type CSRFConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Secret       string        `yaml:"secret"`
	CookieName   string        `yaml:"cookie_name"`
	HeaderName   string        `yaml:"header_name"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
	CookiePath   string        `yaml:"cookie_path"`
	CookieDomain string        `yaml:"cookie_domain"`
	// DoubleSubmit requires the header token to equal the cookie token and
	// carry a valid signature. Off by default: presence only.
	DoubleSubmit bool     `yaml:"double_submit"`
	ExemptPaths  []string `yaml:"exempt_paths"`
}

// IPFilterConfig defines IP allow/deny lists
type IPFilterConfig struct {
	Enabled bool     `yaml:"enabled"`
	Allow   []string `yaml:"allow"` // IPs or CIDRs
	Deny    []string `yaml:"deny"`
	// TrustForwarded uses X-Forwarded-For / X-Real-IP before RemoteAddr
	TrustForwarded *bool `yaml:"trust_forwarded"`
}

// RateLimitConfig defines distributed rate limiting.
//
// RequestsPerMinute is the number of requests allowed in one Window. It reads
// as a per-minute rate only with the default 60s window; with window: 30s the
// same value is allowed every 30 seconds.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerMinute int           `yaml:"requests_per_minute"` // per window
	Window            time.Duration `yaml:"window"`
	Store             string        `yaml:"store"` // redis (default), memory
	KeyPrefix         string        `yaml:"key_prefix"`
	StoreTimeout      time.Duration `yaml:"store_timeout"`
	MemoryMaxKeys     int           `yaml:"memory_max_keys"`
	Breaker           BreakerConfig `yaml:"breaker"`
}

// BreakerConfig defines circuit breaking around the counter store
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

// BodyLimitConfig defines the request body size limit
type BodyLimitConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// ValidationConfig defines content-type and protected-path checks
type ValidationConfig struct {
	Enabled             bool     `yaml:"enabled"`
	AllowedContentTypes []string `yaml:"allowed_content_types"`
	ProtectedPrefixes   []string `yaml:"protected_prefixes"`
}

// TimeoutsConfig defines downstream deadlines
type TimeoutsConfig struct {
	Default time.Duration `yaml:"default"`
}

// HealthConfig defines health gate behavior
type HealthConfig struct {
	Enabled       bool          `yaml:"enabled"`
	LookupTimeout time.Duration `yaml:"lookup_timeout"`
	// WatchRegistry invalidates cached verdicts when the registry reports changes
	WatchRegistry bool `yaml:"watch_registry"`
	// InvalidationChannel is a Redis pub/sub channel carrying service ids (or "*")
	InvalidationChannel string `yaml:"invalidation_channel"`
}

// TransportConfig defines upstream transport settings
type TransportConfig struct {
	MaxIdleConns          int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost       int           `yaml:"max_conns_per_host"`
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout"`
	DialTimeout           time.Duration `yaml:"dial_timeout"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout"`
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`
	InsecureSkipVerify    bool          `yaml:"insecure_skip_verify"`
	FlushInterval         time.Duration `yaml:"flush_interval"`
}

// RouteConfig defines a route
type RouteConfig struct {
	Name        string `yaml:"name"`
	PathPrefix  string `yaml:"path_prefix"`
	Target      string `yaml:"target"`
	ServiceID   string `yaml:"service_id"` // registry id for the health gate; defaults to name
	StripPrefix bool   `yaml:"strip_prefix"`
	// RequiresAuth delegates every request to the auth service
	RequiresAuth bool `yaml:"requires_auth"`
	// PublicRead lets GET/HEAD through while writes need a validated token
	PublicRead    bool          `yaml:"public_read"`
	RequiredRoles []string      `yaml:"required_roles"`
	RoleMethods   []string      `yaml:"role_methods"` // empty = all methods
	Timeout       time.Duration `yaml:"timeout"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Listen: ListenConfig{
			Address:           ":8080",
			ReadTimeout:       30 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
			ShutdownTimeout:   30 * time.Second,
		},
		Admin: AdminConfig{
			Enabled: true,
			Address: ":8081",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
			Rotation: LogRotationConfig{
				MaxSize:    100,
				MaxBackups: 3,
				MaxAge:     28,
				Compress:   true,
			},
		},
		Redis: RedisConfig{
			DialTimeout:  time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			PoolSize:     50,
		},
		Registry: RegistryConfig{
			Type: "none",
			Consul: ConsulConfig{
				Address: "localhost:8500",
				Scheme:  "http",
			},
			Etcd: EtcdConfig{
				DialTimeout: 5 * time.Second,
				Prefix:      "/services/",
			},
		},
		AuthService: AuthServiceConfig{
			ValidatePath: "/auth/validate",
			Timeout:      5 * time.Second,
		},
		JWT: JWTConfig{
			Algorithm: "HS256",
		},
		CORS: CORSConfig{
			Enabled:       true,
			AllowOrigins:  []string{"*"},
			AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Authorization", "Content-Type", "X-Correlation-ID", "X-Trace-ID", "X-CSRF-Token"},
			ExposeHeaders: []string{
				"X-Correlation-ID", "X-Trace-ID", "X-Request-ID",
				"X-Rate-Limit-Remaining", "X-Rate-Limit-Reset", "Retry-After", "X-CSRF-Token",
			},
			MaxAge:        3600,
		},
		CSRF: CSRFConfig{
			CookieName: "XSRF-TOKEN",
			HeaderName: "X-CSRF-Token",
			TokenTTL:   time.Hour,
			CookiePath: "/",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 100,
			Window:            time.Minute,
			Store:             "redis",
			KeyPrefix:         "rate-limit:",
			StoreTimeout:      100 * time.Millisecond,
			MemoryMaxKeys:     100000,
			Breaker: BreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				OpenTimeout:      10 * time.Second,
			},
		},
		BodyLimit: BodyLimitConfig{
			MaxBytes: 10 << 20,
		},
		Validation: ValidationConfig{
			Enabled: true,
			AllowedContentTypes: []string{
				"application/json",
				"application/x-www-form-urlencoded",
				"multipart/form-data",
				"application/xml",
				"text/xml",
				"application/ld+json",
			},
			ProtectedPrefixes: []string{
				"/checkout",
				"/orders",
				"/users/profile",
				"/admin",
				"/notifications",
				"/returns",
			},
		},
		Timeouts: TimeoutsConfig{
			Default: 30 * time.Second,
		},
		Health: HealthConfig{
			Enabled:       true,
			LookupTimeout: 500 * time.Millisecond,
		},
		Transport: TransportConfig{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DialTimeout:         10 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			FlushInterval:       100 * time.Millisecond,
		},
	}
}
