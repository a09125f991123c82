package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnvProvider(t *testing.T) {
	t.Setenv("TEST_SECRET_VAL", "s3cret")

	got, err := EnvProvider{}.Resolve(context.Background(), "TEST_SECRET_VAL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "s3cret" {
		t.Fatalf("got %q, want %q", got, "s3cret")
	}

	if _, err := (EnvProvider{}).Resolve(context.Background(), "DEFINITELY_NOT_SET_XYZ_42"); err == nil {
		t.Fatal("expected error for unset env var")
	}
}

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret.txt")
	if err := os.WriteFile(path, []byte("file-secret\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := FileProvider{}.Resolve(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "file-secret" {
		t.Errorf("expected trailing newline trimmed, got %q", got)
	}

	if _, err := (FileProvider{}).Resolve(context.Background(), filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing file")
	}

	restricted := FileProvider{AllowedPrefixes: []string{"/run/secrets/"}}
	if _, err := restricted.Resolve(context.Background(), path); err == nil {
		t.Error("expected error for path outside allowed prefixes")
	}
}

func TestSecretRegistryUnknownScheme(t *testing.T) {
	r := NewSecretRegistry(EnvProvider{})
	if _, err := r.Resolve(context.Background(), "vault", "secret/jwt"); err == nil {
		t.Fatal("expected error for unknown scheme")
	}
}

func TestParseWithSecretRefs(t *testing.T) {
	dir := t.TempDir()
	jwtPath := filepath.Join(dir, "jwt-secret")
	if err := os.WriteFile(jwtPath, []byte("file-jwt-secret\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TEST_CSRF_SECRET", "env-csrf-secret")

	yaml := baseRoutes + `
jwt:
  enabled: true
  secret: "${file:` + jwtPath + `}"
csrf:
  enabled: true
  secret: "${env:TEST_CSRF_SECRET}"
`
	cfg, err := NewLoader().Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.JWT.Secret != "file-jwt-secret" {
		t.Errorf("jwt secret = %q", cfg.JWT.Secret)
	}
	if cfg.CSRF.Secret != "env-csrf-secret" {
		t.Errorf("csrf secret = %q", cfg.CSRF.Secret)
	}
}

func TestParseWithMissingSecretRef(t *testing.T) {
	yaml := baseRoutes + `
redis:
  address: localhost:6379
  password: "${env:DEFINITELY_NOT_SET_XYZ_42}"
`
	_, err := NewLoader().Parse([]byte(yaml))
	if err == nil {
		t.Fatal("expected error for unresolvable secret")
	}
	if !strings.Contains(err.Error(), "redis.password") {
		t.Errorf("expected field path in error, got %v", err)
	}
}

func TestRedacted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWT.Secret = "jwt"
	cfg.Redis.Password = "pw"

	red := cfg.Redacted()
	if red.JWT.Secret != "[REDACTED]" || red.Redis.Password != "[REDACTED]" {
		t.Errorf("secrets not masked: %+v %+v", red.JWT, red.Redis)
	}
	if red.CSRF.Secret != "" {
		t.Errorf("empty secret should stay empty, got %q", red.CSRF.Secret)
	}
	if cfg.JWT.Secret != "jwt" {
		t.Error("Redacted modified the original")
	}
}
