package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"jewelpos/backend/internal/config"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := []config.Config{
		{AuthSecret: "short", StoreBackend: config.BackendMemory},
		{AuthSecret: strings.Repeat("secret", 6), StoreBackend: config.BackendMemory},
		{AuthSecret: strongSecret, StoreBackend: "mongo"},
	}
	for _, cfg := range cases {
		if err := validateSecurityConfig(cfg); err == nil {
			t.Fatalf("expected %+v to be rejected", cfg)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: strongSecret, StoreBackend: config.BackendMemory})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidateSecurityConfigRejectsDefaultSeedPassword(t *testing.T) {
	t.Setenv("SEED_ADMIN_PASSWORD", "admin123")
	if err := validateSecurityConfig(config.Config{AuthSecret: strongSecret, StoreBackend: config.BackendMemory}); err == nil {
		t.Fatalf("expected default admin password to be rejected")
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	kv, err := openStore(ctx, config.Config{StoreBackend: config.BackendMemory})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if err := kv.Ping(ctx); err != nil {
		t.Fatalf("memory ping: %v", err)
	}

	path := filepath.Join(t.TempDir(), "pos.db")
	kv, err = openStore(ctx, config.Config{StoreBackend: config.BackendSQLite, SQLitePath: path})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	if err := kv.Set(ctx, "product:1", []byte(`{}`)); err != nil {
		t.Fatalf("sqlite set: %v", err)
	}

	if _, err := openStore(ctx, config.Config{StoreBackend: "mongo"}); err == nil {
		t.Fatalf("expected unknown backend error")
	}
}

func TestRedisNamespaceSeparatesKeys(t *testing.T) {
	if got := redisNamespace + "product:1"; got != "jewelpos:product:1" {
		t.Fatalf("unexpected redis key %q", got)
	}
}
