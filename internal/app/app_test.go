package app

import (
	"testing"

	"github.com/hivefetch/hivefetch/internal/config"
)

func defaultConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	return cfg
}

func TestNewWithDefaults(t *testing.T) {
	t.Parallel()

	a, err := New(defaultConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close() //nolint:errcheck

	if a.Orchestrator == nil {
		t.Fatal("expected an orchestrator")
	}
	if a.Logger == nil {
		t.Fatal("expected a logger")
	}
}

func TestNewWithFileCache(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig(t)
	cfg.Cache.Backend = "file"
	cfg.Cache.Dir = t.TempDir()

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close() //nolint:errcheck
}

func TestNewRejectsUnknownCacheBackend(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig(t)
	cfg.Cache.Backend = "tape"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected an error for an unknown cache backend")
	}
}

func TestNewRejectsUnknownAuthMethod(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig(t)
	cfg.Auth.Method = "magic"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected an error for an unknown auth method")
	}
}

func TestBuildAuthProviders(t *testing.T) {
	t.Parallel()

	basic, err := buildAuth(config.AuthConfig{Method: "basic", Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("basic: %v", err)
	}
	if basic.Headers().Get("Authorization") == "" {
		t.Fatal("expected a basic Authorization header")
	}

	token, err := buildAuth(config.AuthConfig{Method: "token", Token: "abc"})
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if got := token.Headers().Get("Authorization"); got != "Bearer abc" {
		t.Fatalf("unexpected token header %q", got)
	}
}
