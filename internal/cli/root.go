// Package cli provides the command-line interface for the alert sentry.
package cli

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"portfolio-sentry/internal/config"
	"portfolio-sentry/internal/logging"
	"portfolio-sentry/internal/marketdata"
	"portfolio-sentry/internal/models"
	"portfolio-sentry/internal/monitor"
	"portfolio-sentry/internal/notify"
	"portfolio-sentry/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-06-01"
)

// App holds the application dependencies.
type App struct {
	Config      *config.Config
	Logger      zerolog.Logger
	Store       store.DataStore
	Cache       marketdata.CacheStore
	Fetcher     *marketdata.Fetcher
	Provider    marketdata.Provider
	Policy      marketdata.FetchPolicy
	Identity    string
	Preloader   *marketdata.BatchPreloader
	Invalidator *marketdata.SmartInvalidator
	Notifier    *notify.MultiNotifier
	Monitor     *monitor.Service
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Market-data plumbing. The first configured provider is the primary
	// identity; its rate budget covers all calls made under it.
	app.Cache = newCacheStore(cfg.Cache, logger)
	app.Fetcher = marketdata.NewFetcher(app.Cache, logger)

	provider := cfg.Providers[0]
	app.Identity = provider.Name
	app.Provider = marketdata.NewCoinGeckoClient(provider.Name, provider.BaseURL, provider.APIKey, logger)
	app.Policy = marketdata.FetchPolicy{
		TTL:          cfg.Cache.DefaultTTL,
		RateInterval: provider.MinInterval(),
		MaxRetries:   provider.MaxRetries,
		RetryDelay:   provider.RetryDelay,
	}

	app.Preloader = marketdata.NewBatchPreloader(
		app.Fetcher, app.Provider, app.Policy, cfg.Cache.PreloadInterval, logger)
	app.Invalidator = marketdata.NewSmartInvalidator(
		app.currentPrice,
		app.Cache,
		app.Preloader,
		cfg.Cache.ReferenceSymbol,
		cfg.Monitor.Universe,
		cfg.Cache.VolatilityThreshold,
		logger,
	)

	// Initialize SQLite store
	dbPath := cfg.Storage.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(config.DefaultConfigDir(), "sentry.db")
	}
	dataStore, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize store, alert commands unavailable")
	} else {
		app.Store = dataStore
		logger.Debug().Str("path", dbPath).Msg("SQLite store initialized")
	}

	if cfg.Notifications.Enabled {
		app.Notifier = notify.NewMultiNotifier(cfg.Notifications, logger)
	}

	if app.Store != nil {
		app.Monitor = monitor.NewService(monitor.ServiceConfig{
			Monitor:  cfg.Monitor,
			Rules:    app.Store,
			Prices:   app,
			Valuer:   app,
			Notifier: senderOrNil(app.Notifier),
			BeforeTick: func(ctx context.Context) {
				app.Invalidator.ConditionalRefresh(ctx)
				app.Preloader.EnsureFresh(ctx, cfg.Monitor.Universe)
			},
			Log: logger,
		})
	}

	rootCmd := &cobra.Command{
		Use:   "sentry",
		Short: "Portfolio Sentry - resilient market-data and alert monitoring CLI",
		Long: `Portfolio Sentry watches crypto market data through a cached, rate-limited
access layer and evaluates portfolio alert rules on a fixed schedule.

Alert rules fire notifications over email, webhook, and Telegram channels.

Use 'sentry help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/portfolio-sentry)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addPriceCommands(rootCmd, app)
	addRuleCommands(rootCmd, app)
	addMonitorCommands(rootCmd, app)
	addCacheCommands(rootCmd, app)

	return rootCmd
}

// newCacheStore selects the configured cache backend.
func newCacheStore(cfg config.CacheConfig, logger zerolog.Logger) marketdata.CacheStore {
	if cfg.Backend == "redis" {
		logger.Debug().Str("addr", cfg.Redis.Addr).Msg("Using Redis cache backend")
		return marketdata.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	}
	return marketdata.NewMemoryCache()
}

// currentPrice routes a single-symbol lookup through the resilient fetcher.
func (a *App) currentPrice(ctx context.Context, symbol string) (models.PriceData, error) {
	return a.Fetcher.Fetch(ctx, a.Identity, marketdata.PriceKey(symbol), a.Policy,
		func(ctx context.Context) (models.PriceData, error) {
			return a.Provider.GetPrice(ctx, symbol)
		})
}

// CurrentPrice implements monitor.PriceSource.
func (a *App) CurrentPrice(ctx context.Context, symbol string) (models.PriceData, error) {
	return a.currentPrice(ctx, symbol)
}

// PortfolioValue implements monitor.PortfolioValuer by summing the current
// prices of the tracked universe. Holdings tracking is out of scope, so the
// universe acts as a one-unit-per-asset portfolio.
func (a *App) PortfolioValue(ctx context.Context, userID string) (float64, error) {
	var total float64
	for _, symbol := range a.Config.Monitor.Universe {
		data, err := a.currentPrice(ctx, symbol)
		if err != nil {
			return 0, err
		}
		total += data.Price
	}
	return total, nil
}

func senderOrNil(mn *notify.MultiNotifier) notify.Sender {
	if mn == nil {
		return nil
	}
	return mn
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Portfolio Sentry v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			output.Bold("Portfolio Sentry Configuration")
			output.Printf("  Cache backend:    %s\n", app.Config.Cache.Backend)
			output.Printf("  Cache TTL:        %s\n", app.Config.Cache.DefaultTTL)
			output.Printf("  Check interval:   %s\n", app.Config.Monitor.CheckInterval)
			output.Printf("  Max workers:      %d\n", app.Config.Monitor.MaxWorkers)
			output.Printf("  Universe:         %v\n", app.Config.Monitor.Universe)
			for _, p := range app.Config.Providers {
				output.Printf("  Provider:         %s (%d req/min)\n", p.Name, p.RateLimitPerMinute)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config directory path",
		Run: func(cmd *cobra.Command, args []string) {
			NewOutput(cmd).Println(config.DefaultConfigDir())
		},
	})

	return cmd
}
