// Package config loads service configuration from an optional YAML file and
// SCEDGE_* environment variables; environment wins. Tenant credentials come
// from a separate JSON file so they can be mounted independently.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/memophor/scedge/internal/policy"
)

// Backend selectors for the storage layer.
const (
	BackendRedis    = "redis"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// UpstreamConfig enables hydration on cache miss.
type UpstreamConfig struct {
	BaseURL     string `yaml:"base_url"`
	TimeoutSecs int64  `yaml:"timeout_secs"`
}

// Timeout returns the per-request bound for upstream calls.
func (u UpstreamConfig) Timeout() time.Duration {
	return time.Duration(u.TimeoutSecs) * time.Second
}

// Config is the full set of recognized options.
type Config struct {
	ListenAddr        string `yaml:"listen_addr"`
	DefaultTTLSeconds int64  `yaml:"default_ttl_seconds"`

	Backend     string `yaml:"backend"`
	RedisURL    string `yaml:"redis_url"`
	PostgresDSN string `yaml:"postgres_dsn"`

	TenantKeysPath string `yaml:"tenant_keys_path"`
	JWTSecret      string `yaml:"jwt_secret"`

	EventBusEnabled bool   `yaml:"event_bus_enabled"`
	EventBusChannel string `yaml:"event_bus_channel"`
	EventBusURL     string `yaml:"event_bus_url"`

	MetricsEnabled bool `yaml:"metrics_enabled"`

	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	Upstream *UpstreamConfig `yaml:"upstream"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:        "0.0.0.0:8080",
		DefaultTTLSeconds: 86400,
		Backend:           BackendRedis,
		RedisURL:          "redis://127.0.0.1:6379",
		EventBusEnabled:   true,
		EventBusChannel:   "synagraph.cache",
		EventBusURL:       "redis://127.0.0.1:6379",
		MetricsEnabled:    true,
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// the environment, in that order.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if addr := os.Getenv("SCEDGE_ADDR"); addr != "" {
		c.ListenAddr = addr
	} else if port := os.Getenv("SCEDGE_PORT"); port != "" {
		c.ListenAddr = "0.0.0.0:" + port
	}

	if err := envInt64("SCEDGE_DEFAULT_TTL", &c.DefaultTTLSeconds); err != nil {
		return err
	}

	envString("SCEDGE_BACKEND", &c.Backend)
	envString("SCEDGE_REDIS_URL", &c.RedisURL)
	envString("SCEDGE_POSTGRES_DSN", &c.PostgresDSN)
	envString("SCEDGE_TENANT_KEYS_PATH", &c.TenantKeysPath)
	envString("SCEDGE_JWT_SECRET", &c.JWTSecret)
	envString("SCEDGE_EVENT_BUS_CHANNEL", &c.EventBusChannel)
	envString("SCEDGE_EVENT_BUS_URL", &c.EventBusURL)

	if err := envBool("SCEDGE_EVENT_BUS_ENABLED", &c.EventBusEnabled); err != nil {
		return err
	}
	if err := envBool("SCEDGE_METRICS_ENABLED", &c.MetricsEnabled); err != nil {
		return err
	}

	if base := os.Getenv("SCEDGE_UPSTREAM_URL"); base != "" {
		upstream := UpstreamConfig{BaseURL: base, TimeoutSecs: 5}
		if c.Upstream != nil {
			upstream = *c.Upstream
			upstream.BaseURL = base
		}
		if err := envInt64("SCEDGE_UPSTREAM_TIMEOUT_SECS", &upstream.TimeoutSecs); err != nil {
			return err
		}
		c.Upstream = &upstream
	}
	if c.Upstream != nil && c.Upstream.TimeoutSecs <= 0 {
		c.Upstream.TimeoutSecs = 5
	}
	return nil
}

// DefaultTTL returns the default expiry as a duration; zero disables expiry.
func (c Config) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLSeconds) * time.Second
}

type tenantsFile struct {
	Tenants []policy.TenantConfig `json:"tenants"`
}

// LoadTenants reads the tenants JSON file named by TenantKeysPath. An unset
// path yields an empty list.
func (c Config) LoadTenants() ([]policy.TenantConfig, error) {
	if c.TenantKeysPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(c.TenantKeysPath)
	if err != nil {
		return nil, fmt.Errorf("read tenant keys file %s: %w", c.TenantKeysPath, err)
	}
	var file tenantsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tenant keys file %s: %w", c.TenantKeysPath, err)
	}
	return file.Tenants, nil
}

func envString(key string, target *string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

func envInt64(key string, target *int64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("%s must be an integer number of seconds: %w", key, err)
	}
	*target = parsed
	return nil
}

func envBool(key string, target *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	*target = parsed
	return nil
}
