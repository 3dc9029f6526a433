package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr)
	assert.Equal(t, int64(86400), cfg.DefaultTTLSeconds)
	assert.Equal(t, BackendRedis, cfg.Backend)
	assert.Equal(t, "redis://127.0.0.1:6379", cfg.RedisURL)
	assert.True(t, cfg.EventBusEnabled)
	assert.Equal(t, "synagraph.cache", cfg.EventBusChannel)
	assert.True(t, cfg.MetricsEnabled)
	assert.Nil(t, cfg.Upstream)
	assert.Equal(t, 24*time.Hour, cfg.DefaultTTL())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SCEDGE_ADDR", "127.0.0.1:9999")
	t.Setenv("SCEDGE_DEFAULT_TTL", "600")
	t.Setenv("SCEDGE_BACKEND", "memory")
	t.Setenv("SCEDGE_EVENT_BUS_ENABLED", "false")
	t.Setenv("SCEDGE_METRICS_ENABLED", "false")
	t.Setenv("SCEDGE_JWT_SECRET", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.ListenAddr)
	assert.Equal(t, int64(600), cfg.DefaultTTLSeconds)
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.False(t, cfg.EventBusEnabled)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
}

func TestPortEnvFallback(t *testing.T) {
	t.Setenv("SCEDGE_PORT", "9090")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
}

func TestAddrWinsOverPort(t *testing.T) {
	t.Setenv("SCEDGE_ADDR", "10.0.0.1:8000")
	t.Setenv("SCEDGE_PORT", "9090")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:8000", cfg.ListenAddr)
}

func TestInvalidEnvValues(t *testing.T) {
	t.Setenv("SCEDGE_DEFAULT_TTL", "not-a-number")
	_, err := Load("")
	assert.Error(t, err)
}

func TestYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scedge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: "0.0.0.0:7070"
default_ttl_seconds: 120
backend: postgres
postgres_dsn: "postgres://localhost/scedge"
event_bus_enabled: false
rate_limit_rps: 50
rate_limit_burst: 100
upstream:
  base_url: "http://knowledge.internal"
  timeout_secs: 3
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:7070", cfg.ListenAddr)
	assert.Equal(t, int64(120), cfg.DefaultTTLSeconds)
	assert.Equal(t, BackendPostgres, cfg.Backend)
	assert.Equal(t, "postgres://localhost/scedge", cfg.PostgresDSN)
	assert.False(t, cfg.EventBusEnabled)
	assert.Equal(t, float64(50), cfg.RateLimitRPS)
	assert.Equal(t, 100, cfg.RateLimitBurst)
	require.NotNil(t, cfg.Upstream)
	assert.Equal(t, "http://knowledge.internal", cfg.Upstream.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Upstream.Timeout())
}

func TestEnvWinsOverYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scedge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: postgres\n"), 0o644))
	t.Setenv("SCEDGE_BACKEND", "memory")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Backend)
}

func TestMissingConfigFile(t *testing.T) {
	_, err := Load("/no/such/file.yaml")
	assert.Error(t, err)
}

func TestUpstreamEnv(t *testing.T) {
	t.Setenv("SCEDGE_UPSTREAM_URL", "http://knowledge.internal")
	t.Setenv("SCEDGE_UPSTREAM_TIMEOUT_SECS", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg.Upstream)
	assert.Equal(t, "http://knowledge.internal", cfg.Upstream.BaseURL)
	assert.Equal(t, 7*time.Second, cfg.Upstream.Timeout())
}

func TestUpstreamTimeoutDefaultsWhenUnset(t *testing.T) {
	t.Setenv("SCEDGE_UPSTREAM_URL", "http://knowledge.internal")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg.Upstream)
	assert.Equal(t, 5*time.Second, cfg.Upstream.Timeout())
}

func TestLoadTenants(t *testing.T) {
	t.Run("unset path yields empty list", func(t *testing.T) {
		tenants, err := Config{}.LoadTenants()
		require.NoError(t, err)
		assert.Empty(t, tenants)
	})

	t.Run("reads tenants file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tenants.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			"tenants": [
				{"tenant_id": "acme", "api_key": "key-acme", "max_ttl_seconds": 3600},
				{"tenant_id": "globex", "api_key": "key-globex", "allowed_regions": ["us-east-1"]}
			]
		}`), 0o644))

		tenants, err := Config{TenantKeysPath: path}.LoadTenants()
		require.NoError(t, err)
		require.Len(t, tenants, 2)
		assert.Equal(t, "acme", tenants[0].TenantID)
		require.NotNil(t, tenants[0].MaxTTLSeconds)
		assert.Equal(t, int64(3600), *tenants[0].MaxTTLSeconds)
		assert.Equal(t, []string{"us-east-1"}, tenants[1].AllowedRegions)
	})

	t.Run("malformed file is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tenants.json")
		require.NoError(t, os.WriteFile(path, []byte("nope"), 0o644))

		_, err := Config{TenantKeysPath: path}.LoadTenants()
		assert.Error(t, err)
	})
}
