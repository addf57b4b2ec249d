package config

import (
	"os"
	"path/filepath"
	"testing"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	for _, key := range []string{"AUTH_SECRET", "DATABASE_URL", "SQLITE_PATH", "PORT", "LOG_LEVEL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.Port != "8080" || cfg.AccessTokenTTLMinutes != 480 || cfg.DashboardCacheTTLSeconds != 30 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.StoreKind() != "memory" {
		t.Fatalf("expected memory store, got %s", cfg.StoreKind())
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "9090")
	t.Setenv("SQLITE_PATH", "/tmp/pharmapos.db")
	t.Setenv("REJECT_UNDERPAYMENT", "true")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "15")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address() != ":9090" {
		t.Fatalf("expected :9090, got %s", cfg.Address())
	}
	if cfg.StoreKind() != "sqlite" {
		t.Fatalf("expected sqlite store, got %s", cfg.StoreKind())
	}
	if !cfg.RejectUnderpayment {
		t.Fatalf("expected REJECT_UNDERPAYMENT to be read")
	}
	if cfg.AccessTokenTTLMinutes != 15 {
		t.Fatalf("expected 15 minute tokens, got %d", cfg.AccessTokenTTLMinutes)
	}
}

func TestLoadReadsDotEnvWithoutOverriding(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("LOG_LEVEL=debug\nDATABASE_URL=postgres://file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ENV_FILE", path)
	t.Setenv("DATABASE_URL", "postgres://process")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected LOG_LEVEL from file, got %q", cfg.LogLevel)
	}
	if cfg.DatabaseURL != "postgres://process" || cfg.StoreKind() != "postgres" {
		t.Fatalf("process environment must win, got %q", cfg.DatabaseURL)
	}
}
