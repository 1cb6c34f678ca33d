// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Cache         CacheConfig        `mapstructure:"cache"`
	Monitor       MonitorConfig      `mapstructure:"monitor"`
	Providers     []ProviderConfig   `mapstructure:"providers"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Storage       StorageConfig      `mapstructure:"storage"`
}

// CacheConfig holds market-data cache configuration.
type CacheConfig struct {
	// Backend selects the cache store: "memory" or "redis".
	Backend string `mapstructure:"backend"`
	// DefaultTTL is the freshness window for cached market data.
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	// PreloadInterval is the minimum time between bulk preload attempts.
	PreloadInterval time.Duration `mapstructure:"preload_interval"`
	// VolatilityThreshold is the relative price delta of the reference
	// symbol that forces a cache invalidation (0.05 = 5%).
	VolatilityThreshold float64 `mapstructure:"volatility_threshold"`
	// ReferenceSymbol is the symbol whose price delta drives invalidation.
	ReferenceSymbol string      `mapstructure:"reference_symbol"`
	Redis           RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds the external cache backend configuration.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MonitorConfig holds alert monitoring configuration.
type MonitorConfig struct {
	// CheckInterval is the scheduler tick cadence.
	CheckInterval time.Duration `mapstructure:"check_interval"`
	// MaxWorkers bounds concurrent rule evaluations per tick.
	MaxWorkers int `mapstructure:"max_workers"`
	// RuleTimeout bounds a single rule's fetch+evaluate time.
	RuleTimeout time.Duration `mapstructure:"rule_timeout"`
	// StopTimeout bounds how long Stop waits for in-flight evaluations.
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
	// DefaultCooldown is the notification cool-down used when a rule does
	// not carry one of its own.
	DefaultCooldown time.Duration `mapstructure:"default_cooldown"`
	// Universe is the tracked-asset universe bulk preloads cover.
	Universe []string `mapstructure:"universe"`
}

// ProviderConfig describes one upstream market-data API identity.
type ProviderConfig struct {
	Name    string `mapstructure:"name"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	// RateLimitPerMinute is the provider's request budget; all calls under
	// this identity share it.
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`
	MaxRetries         int `mapstructure:"max_retries"`
	// RetryDelay is the base delay of the exponential backoff schedule.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// MinInterval returns the minimum spacing between calls to this provider.
func (p ProviderConfig) MinInterval() time.Duration {
	if p.RateLimitPerMinute <= 0 {
		return 0
	}
	return time.Minute / time.Duration(p.RateLimitPerMinute)
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Email    EmailConfig    `mapstructure:"email"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// EmailConfig holds email notification configuration.
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// DBPath is the SQLite database path. Empty uses the default under the
	// config directory.
	DBPath string `mapstructure:"db_path"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/portfolio-sentry"
	}
	return filepath.Join(home, ".config", "portfolio-sentry")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			Backend:             "memory",
			DefaultTTL:          2 * time.Minute,
			PreloadInterval:     5 * time.Minute,
			VolatilityThreshold: 0.05,
			ReferenceSymbol:     "BTC",
			Redis:               RedisConfig{Addr: "localhost:6379"},
		},
		Monitor: MonitorConfig{
			CheckInterval:   time.Minute,
			MaxWorkers:      8,
			RuleTimeout:     30 * time.Second,
			StopTimeout:     45 * time.Second,
			DefaultCooldown: 15 * time.Minute,
			Universe:        []string{"BTC", "ETH", "SOL"},
		},
		Providers: []ProviderConfig{
			{
				Name:               "coingecko",
				BaseURL:            "https://api.coingecko.com/api/v3",
				RateLimitPerMinute: 30,
				MaxRetries:         3,
				RetryDelay:         time.Second,
			},
		},
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Missing config is fine, defaults apply.
			return nil
		}
		return err
	}

	return v.Unmarshal(target)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SENTRY_SMTP_PASSWORD"); v != "" {
		cfg.Notifications.Email.Password = v
	}
	if v := os.Getenv("SENTRY_TELEGRAM_TOKEN"); v != "" {
		cfg.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv("SENTRY_REDIS_ADDR"); v != "" {
		cfg.Cache.Redis.Addr = v
	}
	for i := range cfg.Providers {
		key := "SENTRY_" + envName(cfg.Providers[i].Name) + "_API_KEY"
		if v := os.Getenv(key); v != "" {
			cfg.Providers[i].APIKey = v
		}
	}
}

func envName(provider string) string {
	out := make([]rune, 0, len(provider))
	for _, r := range provider {
		switch {
		case r >= 'a' && r <= 'z':
			out = append(out, r-'a'+'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
		return fmt.Errorf("invalid cache backend: %s (must be 'memory' or 'redis')", c.Cache.Backend)
	}
	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("cache default_ttl must be positive")
	}
	if c.Cache.VolatilityThreshold < 0 {
		return fmt.Errorf("volatility_threshold must be non-negative")
	}
	if c.Monitor.CheckInterval <= 0 {
		return fmt.Errorf("monitor check_interval must be positive")
	}
	if c.Monitor.MaxWorkers <= 0 {
		return fmt.Errorf("monitor max_workers must be positive")
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one market-data provider is required")
	}
	for _, p := range c.Providers {
		if p.Name == "" || p.BaseURL == "" {
			return fmt.Errorf("provider name and base_url are required")
		}
		if p.MaxRetries < 0 {
			return fmt.Errorf("provider %s: max_retries must be non-negative", p.Name)
		}
	}
	return nil
}

// Provider returns the provider configuration with the given name.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}
