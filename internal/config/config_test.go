package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 0.05, cfg.Cache.VolatilityThreshold)
	assert.NotEmpty(t, cfg.Providers)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default().Cache.DefaultTTL, cfg.Cache.DefaultTTL)
}

func TestLoad_TOMLOverrides(t *testing.T) {
	dir := t.TempDir()
	toml := `
[cache]
backend = "redis"
default_ttl = "30s"

[monitor]
check_interval = "15s"
max_workers = 2
universe = ["BTC"]

[[providers]]
name = "coingecko"
base_url = "https://api.coingecko.com/api/v3"
rate_limit_per_minute = 10
max_retries = 1
retry_delay = "2s"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 30*time.Second, cfg.Cache.DefaultTTL)
	assert.Equal(t, 15*time.Second, cfg.Monitor.CheckInterval)
	assert.Equal(t, 2, cfg.Monitor.MaxWorkers)
	assert.Equal(t, []string{"BTC"}, cfg.Monitor.Universe)

	p, ok := cfg.Provider("coingecko")
	require.True(t, ok)
	assert.Equal(t, 10, p.RateLimitPerMinute)
	assert.Equal(t, 6*time.Second, p.MinInterval())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SENTRY_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("SENTRY_COINGECKO_API_KEY", "cg-test-key")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6380", cfg.Cache.Redis.Addr)

	p, ok := cfg.Provider("coingecko")
	require.True(t, ok)
	assert.Equal(t, "cg-test-key", p.APIKey)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad backend", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"zero ttl", func(c *Config) { c.Cache.DefaultTTL = 0 }},
		{"negative volatility", func(c *Config) { c.Cache.VolatilityThreshold = -0.1 }},
		{"zero interval", func(c *Config) { c.Monitor.CheckInterval = 0 }},
		{"zero workers", func(c *Config) { c.Monitor.MaxWorkers = 0 }},
		{"no providers", func(c *Config) { c.Providers = nil }},
		{"provider without url", func(c *Config) { c.Providers[0].BaseURL = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestProviderMinInterval(t *testing.T) {
	assert.Equal(t, 2*time.Second, ProviderConfig{RateLimitPerMinute: 30}.MinInterval())
	assert.Equal(t, time.Duration(0), ProviderConfig{}.MinInterval())
}
