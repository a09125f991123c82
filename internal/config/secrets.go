package config

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// SecretProvider resolves secret references for a given scheme.
type SecretProvider interface {
	Scheme() string
	Resolve(ctx context.Context, reference string) (string, error)
}

// SecretRegistry maps schemes to providers.
type SecretRegistry struct {
	providers map[string]SecretProvider
}

// NewSecretRegistry creates a registry holding the given providers.
func NewSecretRegistry(providers ...SecretProvider) *SecretRegistry {
	r := &SecretRegistry{providers: make(map[string]SecretProvider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds p, replacing any provider with the same scheme.
func (r *SecretRegistry) Register(p SecretProvider) {
	r.providers[p.Scheme()] = p
}

// Resolve delegates to the provider registered for scheme.
func (r *SecretRegistry) Resolve(ctx context.Context, scheme, reference string) (string, error) {
	p, ok := r.providers[scheme]
	if !ok {
		return "", fmt.Errorf("unknown secret provider scheme %q", scheme)
	}
	return p.Resolve(ctx, reference)
}

// EnvProvider resolves ${env:NAME} from the environment. Unlike bare ${NAME}
// expansion, a missing variable is an error.
type EnvProvider struct{}

func (EnvProvider) Scheme() string { return "env" }

func (EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	val, ok := os.LookupEnv(ref)
	if !ok {
		return "", fmt.Errorf("environment variable %q not set", ref)
	}
	return val, nil
}

// FileProvider resolves ${file:/path} by reading the file, as mounted by
// container secret stores.
type FileProvider struct {
	// AllowedPrefixes restricts readable paths. Empty allows any path.
	AllowedPrefixes []string
}

func (p FileProvider) Scheme() string { return "file" }

func (p FileProvider) Resolve(_ context.Context, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("file path is empty")
	}
	if len(p.AllowedPrefixes) > 0 && !hasAnyPrefix(ref, p.AllowedPrefixes) {
		return "", fmt.Errorf("file path %q not under any allowed prefix", ref)
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		return "", fmt.Errorf("reading secret file %q: %w", ref, err)
	}
	return strings.TrimRight(string(data), " \t\r\n"), nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// secretRefPattern matches a whole value of the form ${scheme:reference}.
var secretRefPattern = regexp.MustCompile(`^\$\{([a-z][a-z0-9]*):(.+)\}$`)

// secretFields lists the settings that may hold credentials.
func secretFields(cfg *Config) map[string]*string {
	return map[string]*string{
		"redis.password":         &cfg.Redis.Password,
		"registry.consul.token":  &cfg.Registry.Consul.Token,
		"registry.etcd.password": &cfg.Registry.Etcd.Password,
		"jwt.secret":             &cfg.JWT.Secret,
		"csrf.secret":            &cfg.CSRF.Secret,
	}
}

// resolveSecretRefs replaces ${scheme:ref} values in credential fields.
func resolveSecretRefs(ctx context.Context, cfg *Config, registry *SecretRegistry) error {
	for path, field := range secretFields(cfg) {
		m := secretRefPattern.FindStringSubmatch(*field)
		if m == nil {
			continue
		}
		resolved, err := registry.Resolve(ctx, m[1], m[2])
		if err != nil {
			return fmt.Errorf("secret resolution failed for %s: %w", path, err)
		}
		*field = resolved
	}
	return nil
}

// Redacted returns a copy of cfg with credential fields masked, for logging.
func (c *Config) Redacted() *Config {
	cp := *c
	for _, field := range secretFields(&cp) {
		if *field != "" {
			*field = "[REDACTED]"
		}
	}
	return &cp
}
