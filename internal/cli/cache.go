// Package cli provides the command-line interface for the alert sentry.
package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"portfolio-sentry/internal/marketdata"
)

// addCacheCommands adds cache inspection commands.
func addCacheCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Market-data cache operations",
	}

	cmd.AddCommand(newCacheStatsCmd(app))
	cmd.AddCommand(newCacheClearCmd(app))
	cmd.AddCommand(newCachePreloadCmd(app))

	rootCmd.AddCommand(cmd)
}

func newCacheStatsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			stats := app.Cache.Stats()
			healthy := app.Cache.HealthCheck(ctx) == nil

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"stats":   stats,
					"healthy": healthy,
				})
			}

			output.Bold("Cache (%s)", stats.Backend)
			if healthy {
				output.Success("  Backend:     healthy")
			} else {
				output.Error("  Backend:     unreachable")
			}
			output.Printf("  Entries:     %d\n", stats.Entries)
			output.Printf("  Hits:        %d\n", stats.Hits)
			output.Printf("  Misses:      %d\n", stats.Misses)
			output.Printf("  Stale hits:  %d\n", stats.StaleHits)
			output.Printf("  Sets:        %d\n", stats.Sets)
			return nil
		},
	}
}

func newCacheClearCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cached market data",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			pattern, _ := cmd.Flags().GetString("pattern")
			removed, err := app.Cache.ClearPattern(ctx, pattern)
			if err != nil {
				output.Error("Failed to clear cache: %v", err)
				return err
			}
			output.Success("Removed %d entries", removed)
			return nil
		},
	}
	cmd.Flags().String("pattern", marketdata.PricePattern, "glob pattern of keys to remove")
	return cmd
}

func newCachePreloadCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "preload",
		Short: "Bulk-load the tracked universe into the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			started := app.Preloader.EnsureFresh(ctx, app.Config.Monitor.Universe)
			if !started {
				output.Warning("Preload skipped: one already ran recently or is in flight")
				return nil
			}
			app.Preloader.Wait()
			output.Success("Preloaded %d symbols", len(app.Config.Monitor.Universe))
			return nil
		},
	}
}
