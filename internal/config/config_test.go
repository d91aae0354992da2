package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret")
	defer os.Unsetenv("JWT_SECRET")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Store.Backend != StoreSQLite {
		t.Errorf("Expected default store backend %s, got %s", StoreSQLite, cfg.Store.Backend)
	}

	if cfg.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("Expected HTTPAddr 127.0.0.1:8080, got %s", cfg.HTTPAddr)
	}

	if cfg.Gateway.PairLimitPerMin != 10 {
		t.Errorf("Expected pair limit 10, got %d", cfg.Gateway.PairLimitPerMin)
	}

	if cfg.Gateway.HookLimitPerMin != 60 {
		t.Errorf("Expected webhook limit 60, got %d", cfg.Gateway.HookLimitPerMin)
	}

	if cfg.Gateway.IdempotencyTTLSec != 300 {
		t.Errorf("Expected idempotency TTL 300, got %d", cfg.Gateway.IdempotencyTTLSec)
	}

	if cfg.Gateway.AllowPublicBind {
		t.Error("Public bind should be disallowed by default")
	}

	if cfg.Registry.HealthyHeartbeatSec != 90 {
		t.Errorf("Expected healthy heartbeat threshold 90, got %d", cfg.Registry.HealthyHeartbeatSec)
	}
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	os.Unsetenv("JWT_SECRET")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when JWT_SECRET is missing")
	}
}

func TestLoad_MySQLBackendRequiresDSN(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret")
	os.Setenv("STORE_BACKEND", StoreMySQL)
	defer func() {
		os.Unsetenv("JWT_SECRET")
		os.Unsetenv("STORE_BACKEND")
	}()

	_, err := Load()
	if err == nil {
		t.Error("Expected error when MYSQL_DSN is missing for mysql backend")
	}

	os.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/agenthub")
	defer os.Unsetenv("MYSQL_DSN")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Store.MySQLDSN == "" {
		t.Error("MySQL DSN should not be empty")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret")
	os.Setenv("STORE_BACKEND", StoreMemory)
	os.Setenv("GATEWAY_ADDR", "0.0.0.0:9999")
	os.Setenv("GATEWAY_ALLOW_PUBLIC_BIND", "1")
	os.Setenv("GATEWAY_PAIR_LIMIT_PER_MIN", "3")
	os.Setenv("REDIS_DB", "5")

	defer func() {
		os.Unsetenv("JWT_SECRET")
		os.Unsetenv("STORE_BACKEND")
		os.Unsetenv("GATEWAY_ADDR")
		os.Unsetenv("GATEWAY_ALLOW_PUBLIC_BIND")
		os.Unsetenv("GATEWAY_PAIR_LIMIT_PER_MIN")
		os.Unsetenv("REDIS_DB")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Store.Backend != StoreMemory {
		t.Errorf("Expected memory backend, got %s", cfg.Store.Backend)
	}

	if cfg.Gateway.Addr != "0.0.0.0:9999" {
		t.Errorf("Expected custom gateway addr, got %s", cfg.Gateway.Addr)
	}

	if !cfg.Gateway.AllowPublicBind {
		t.Error("Expected public bind to be allowed")
	}

	if cfg.Gateway.PairLimitPerMin != 3 {
		t.Errorf("Expected pair limit 3, got %d", cfg.Gateway.PairLimitPerMin)
	}

	if cfg.Redis.DB != 5 {
		t.Errorf("Expected Redis DB 5, got %d", cfg.Redis.DB)
	}
}

func TestLoad_UnknownBackend(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret")
	os.Setenv("STORE_BACKEND", "postgres")
	defer func() {
		os.Unsetenv("JWT_SECRET")
		os.Unsetenv("STORE_BACKEND")
	}()

	_, err := Load()
	if err == nil {
		t.Error("Expected error for unknown store backend")
	}
}
