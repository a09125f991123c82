package config

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"
)

// validHTTPMethods contains all valid HTTP method names.
var validHTTPMethods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "PUT": true,
	"DELETE": true, "PATCH": true, "OPTIONS": true,
}

// Loader handles configuration loading and parsing
type Loader struct {
	envPattern *regexp.Regexp
	secrets    *SecretRegistry
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPattern: regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`),
		secrets:    NewSecretRegistry(EnvProvider{}, FileProvider{}),
	}
}

// Load reads and parses a configuration file
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return l.Parse(data)
}

// Parse parses configuration from YAML bytes
func (l *Loader) Parse(data []byte) (*Config, error) {
	expanded := l.expandEnvVars(string(data))

	cfg := DefaultConfig()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := resolveSecretRefs(context.Background(), cfg, l.secrets); err != nil {
		return nil, err
	}

	normalize(cfg)

	if err := l.validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} with environment variable values
func (l *Loader) expandEnvVars(input string) string {
	return l.envPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match // Keep original if env var not set
	})
}

// normalize fills per-route defaults that depend on other fields
func normalize(cfg *Config) {
	for i := range cfg.Routes {
		r := &cfg.Routes[i]
		if r.ServiceID == "" {
			r.ServiceID = r.Name
		}
		for j, m := range r.RoleMethods {
			r.RoleMethods[j] = strings.ToUpper(m)
		}
	}
	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = DefaultConfig().RateLimit.Window
	}
	if cfg.Timeouts.Default <= 0 {
		cfg.Timeouts.Default = DefaultConfig().Timeouts.Default
	}
	if cfg.AuthService.ValidatePath == "" {
		cfg.AuthService.ValidatePath = "/auth/validate"
	}
}

// validate checks configuration for errors
func (l *Loader) validate(cfg *Config) error {
	if len(cfg.Routes) == 0 {
		return fmt.Errorf("at least one route is required")
	}

	validRegistries := map[string]bool{
		"":       true,
		"none":   true,
		"memory": true,
		"consul": true,
		"etcd":   true,
	}
	if !validRegistries[cfg.Registry.Type] {
		return fmt.Errorf("invalid registry type: %s", cfg.Registry.Type)
	}
	if cfg.Registry.Type == "etcd" && len(cfg.Registry.Etcd.Endpoints) == 0 {
		return fmt.Errorf("registry type etcd requires at least one endpoint")
	}

	names := make(map[string]bool)
	prefixes := make(map[string]bool)
	needsAuthService := false
	for i, route := range cfg.Routes {
		if route.Name == "" {
			return fmt.Errorf("route %d: name is required", i)
		}
		if names[route.Name] {
			return fmt.Errorf("duplicate route name: %s", route.Name)
		}
		names[route.Name] = true

		if !strings.HasPrefix(route.PathPrefix, "/") {
			return fmt.Errorf("route %s: path_prefix must start with /", route.Name)
		}
		if prefixes[route.PathPrefix] {
			return fmt.Errorf("route %s: duplicate path_prefix %s", route.Name, route.PathPrefix)
		}
		prefixes[route.PathPrefix] = true

		u, err := url.Parse(route.Target)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("route %s: invalid target %q", route.Name, route.Target)
		}

		for _, m := range route.RoleMethods {
			if !validHTTPMethods[m] {
				return fmt.Errorf("route %s: invalid role method %q", route.Name, m)
			}
		}
		if route.Timeout < 0 {
			return fmt.Errorf("route %s: timeout must not be negative", route.Name)
		}

		if route.RequiresAuth || route.PublicRead {
			needsAuthService = true
		}
	}

	if needsAuthService && cfg.AuthService.BaseURL == "" {
		return fmt.Errorf("auth_service.base_url is required when routes require authentication")
	}
	if cfg.AuthService.BaseURL != "" {
		if u, err := url.Parse(cfg.AuthService.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid auth_service.base_url %q", cfg.AuthService.BaseURL)
		}
	}

	if cfg.JWT.Enabled {
		if cfg.JWT.Secret == "" {
			return fmt.Errorf("jwt enabled but no secret provided")
		}
		switch cfg.JWT.Algorithm {
		case "", "HS256", "HS384", "HS512":
		default:
			return fmt.Errorf("unsupported jwt algorithm: %s", cfg.JWT.Algorithm)
		}
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.RequestsPerMinute <= 0 {
			return fmt.Errorf("rate_limit.requests_per_minute must be positive")
		}
		switch cfg.RateLimit.Store {
		case "", "redis":
			if cfg.Redis.Address == "" {
				return fmt.Errorf("rate_limit store redis requires redis.address to be configured")
			}
		case "memory":
		default:
			return fmt.Errorf("invalid rate_limit.store %q (must be \"redis\" or \"memory\")", cfg.RateLimit.Store)
		}
	}

	if cfg.Health.InvalidationChannel != "" && cfg.Redis.Address == "" {
		return fmt.Errorf("health.invalidation_channel requires redis.address to be configured")
	}

	for _, entry := range cfg.IPFilter.Allow {
		if !validIPOrCIDR(entry) {
			return fmt.Errorf("ip_filter.allow: invalid IP or CIDR %q", entry)
		}
	}
	for _, entry := range cfg.IPFilter.Deny {
		if !validIPOrCIDR(entry) {
			return fmt.Errorf("ip_filter.deny: invalid IP or CIDR %q", entry)
		}
	}

	if cfg.BodyLimit.MaxBytes < 0 {
		return fmt.Errorf("body_limit.max_bytes must not be negative")
	}

	return nil
}

func validIPOrCIDR(s string) bool {
	if net.ParseIP(s) != nil {
		return true
	}
	_, _, err := net.ParseCIDR(s)
	return err == nil
}
