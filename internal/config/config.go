package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Store backend names
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreMySQL  = "mysql"
)

// Token store backend names
const (
	TokensMemory = "memory"
	TokensRedis  = "redis"
)

// Config holds all configuration
type Config struct {
	Store    StoreConfig
	Redis    RedisConfig
	JWT      JWTConfig
	HTTPAddr string
	Gateway  GatewayConfig
	Registry RegistryConfig
}

// StoreConfig selects and configures the persistence backend
type StoreConfig struct {
	Backend    string // memory | sqlite | mysql
	MySQLDSN   string
	SQLitePath string
	Migrate    bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT configuration for console sessions
type JWTConfig struct {
	Secret        string
	ExpireMinutes int
	Issuer        string
}

// GatewayConfig holds the external access gateway configuration
type GatewayConfig struct {
	Addr              string
	AllowPublicBind   bool
	PairLimitPerMin   int
	HookLimitPerMin   int
	PairFailLockout   int // consecutive failures before lockout
	LockoutSec        int
	IdempotencyTTLSec int
	WebhookSecret     string
	TokenBackend      string // memory | redis
}

// RegistryConfig holds connection registry tuning
type RegistryConfig struct {
	HealthyHeartbeatSec int
	StatusTimeoutSec    int
	ProvisionTimeoutSec int
	StaleSweepSec       int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Store: StoreConfig{
			Backend:    getEnv("STORE_BACKEND", StoreSQLite),
			MySQLDSN:   getEnv("MYSQL_DSN", ""),
			SQLitePath: getEnv("SQLITE_PATH", "data/agenthub.db"),
			Migrate:    getEnv("MIGRATE", "1") == "1",
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASS", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:        os.Getenv("JWT_SECRET"),
			ExpireMinutes: getEnvInt("JWT_EXPIRE_MINUTES", 1440),
			Issuer:        getEnv("JWT_ISSUER", "agenthub"),
		},
		HTTPAddr: getEnv("HTTP_ADDR", "127.0.0.1:8080"),
		Gateway: GatewayConfig{
			Addr:              getEnv("GATEWAY_ADDR", "127.0.0.1:9190"),
			AllowPublicBind:   getEnv("GATEWAY_ALLOW_PUBLIC_BIND", "0") == "1",
			PairLimitPerMin:   getEnvInt("GATEWAY_PAIR_LIMIT_PER_MIN", 10),
			HookLimitPerMin:   getEnvInt("GATEWAY_HOOK_LIMIT_PER_MIN", 60),
			PairFailLockout:   getEnvInt("GATEWAY_PAIR_FAIL_LOCKOUT", 5),
			LockoutSec:        getEnvInt("GATEWAY_LOCKOUT_SEC", 300),
			IdempotencyTTLSec: getEnvInt("GATEWAY_IDEMPOTENCY_TTL_SEC", 300),
			WebhookSecret:     getEnv("GATEWAY_WEBHOOK_SECRET", ""),
			TokenBackend:      getEnv("GATEWAY_TOKEN_BACKEND", TokensMemory),
		},
		Registry: RegistryConfig{
			HealthyHeartbeatSec: getEnvInt("REGISTRY_HEALTHY_HEARTBEAT_SEC", 90),
			StatusTimeoutSec:    getEnvInt("REGISTRY_STATUS_TIMEOUT_SEC", 5),
			ProvisionTimeoutSec: getEnvInt("REGISTRY_PROVISION_TIMEOUT_SEC", 90),
			StaleSweepSec:       getEnvInt("REGISTRY_STALE_SWEEP_SEC", 30),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromINI loads configuration from an INI file with environment variable override
func LoadFromINI(iniPath string) (*Config, error) {
	cfgFile, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}

	// Priority: ENV > INI > default
	getValue := func(envKey, iniSection, iniKey, defaultValue string) string {
		if value := os.Getenv(envKey); value != "" {
			return value
		}
		if value := cfgFile.Section(iniSection).Key(iniKey).String(); value != "" {
			return value
		}
		return defaultValue
	}

	getValueInt := func(envKey, iniSection, iniKey string, defaultValue int) int {
		if value := os.Getenv(envKey); value != "" {
			if intValue, err := strconv.Atoi(value); err == nil {
				return intValue
			}
		}
		if cfgFile.Section(iniSection).HasKey(iniKey) {
			if value, err := cfgFile.Section(iniSection).Key(iniKey).Int(); err == nil {
				return value
			}
		}
		return defaultValue
	}

	getValueBool := func(envKey, iniSection, iniKey string, defaultValue bool) bool {
		if value := os.Getenv(envKey); value != "" {
			return value == "1" || value == "true"
		}
		if value, err := cfgFile.Section(iniSection).Key(iniKey).Bool(); err == nil {
			return value
		}
		return defaultValue
	}

	cfg := &Config{
		Store: StoreConfig{
			Backend:    getValue("STORE_BACKEND", "store", "backend", StoreSQLite),
			MySQLDSN:   getValue("MYSQL_DSN", "mysql", "dsn", ""),
			SQLitePath: getValue("SQLITE_PATH", "store", "sqlite_path", "data/agenthub.db"),
			Migrate:    getValueBool("MIGRATE", "store", "migrate", true),
		},
		Redis: RedisConfig{
			Addr:     getValue("REDIS_ADDR", "redis", "addr", "localhost:6379"),
			Password: getValue("REDIS_PASS", "redis", "pass", ""),
			DB:       getValueInt("REDIS_DB", "redis", "db", 0),
		},
		JWT: JWTConfig{
			Secret:        getValue("JWT_SECRET", "jwt", "secret", ""),
			ExpireMinutes: getValueInt("JWT_EXPIRE_MINUTES", "jwt", "expire_minutes", 1440),
			Issuer:        getValue("JWT_ISSUER", "jwt", "issuer", "agenthub"),
		},
		HTTPAddr: getValue("HTTP_ADDR", "http", "addr", "127.0.0.1:8080"),
		Gateway: GatewayConfig{
			Addr:              getValue("GATEWAY_ADDR", "gateway", "addr", "127.0.0.1:9190"),
			AllowPublicBind:   getValueBool("GATEWAY_ALLOW_PUBLIC_BIND", "gateway", "allow_public_bind", false),
			PairLimitPerMin:   getValueInt("GATEWAY_PAIR_LIMIT_PER_MIN", "gateway", "pair_limit_per_min", 10),
			HookLimitPerMin:   getValueInt("GATEWAY_HOOK_LIMIT_PER_MIN", "gateway", "hook_limit_per_min", 60),
			PairFailLockout:   getValueInt("GATEWAY_PAIR_FAIL_LOCKOUT", "gateway", "pair_fail_lockout", 5),
			LockoutSec:        getValueInt("GATEWAY_LOCKOUT_SEC", "gateway", "lockout_sec", 300),
			IdempotencyTTLSec: getValueInt("GATEWAY_IDEMPOTENCY_TTL_SEC", "gateway", "idempotency_ttl_sec", 300),
			WebhookSecret:     getValue("GATEWAY_WEBHOOK_SECRET", "gateway", "webhook_secret", ""),
			TokenBackend:      getValue("GATEWAY_TOKEN_BACKEND", "gateway", "token_backend", TokensMemory),
		},
		Registry: RegistryConfig{
			HealthyHeartbeatSec: getValueInt("REGISTRY_HEALTHY_HEARTBEAT_SEC", "registry", "healthy_heartbeat_sec", 90),
			StatusTimeoutSec:    getValueInt("REGISTRY_STATUS_TIMEOUT_SEC", "registry", "status_timeout_sec", 5),
			ProvisionTimeoutSec: getValueInt("REGISTRY_PROVISION_TIMEOUT_SEC", "registry", "provision_timeout_sec", 90),
			StaleSweepSec:       getValueInt("REGISTRY_STALE_SWEEP_SEC", "registry", "stale_sweep_sec", 30),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
		}
	case StoreMySQL:
		if c.Store.MySQLDSN == "" {
			return fmt.Errorf("MYSQL_DSN is required for the mysql backend")
		}
	default:
		return fmt.Errorf("unknown store backend: %s", c.Store.Backend)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	switch c.Gateway.TokenBackend {
	case TokensMemory, TokensRedis:
	default:
		return fmt.Errorf("unknown gateway token backend: %s", c.Gateway.TokenBackend)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
