// Package cli provides the command-line interface for the alert sentry.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"portfolio-sentry/internal/models"
)

// addPriceCommands adds market-data commands.
func addPriceCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newPriceCmd(app))
	rootCmd.AddCommand(newPricesCmd(app))
}

func newPriceCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "price <symbol>",
		Short: "Fetch the current price for a symbol",
		Long: `Fetch the current price for a symbol through the cached, rate-limited
access layer. A fresh cache entry is served without an upstream call.`,
		Example: `  sentry price BTC
  sentry price ETH --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			symbol := strings.ToUpper(args[0])
			data, err := app.CurrentPrice(ctx, symbol)
			if err != nil {
				output.Error("Failed to fetch %s: %v", symbol, err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(data)
			}
			output.Bold("%s", symbol)
			output.Printf("  Price:       $%.2f\n", data.Price)
			if data.Volume24h > 0 {
				output.Printf("  24h Volume:  $%.0f\n", data.Volume24h)
			}
			if data.MarketCap > 0 {
				output.Printf("  Market Cap:  $%.0f\n", data.MarketCap)
			}
			output.Dim("  Fetched: %s", data.FetchedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func newPricesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "prices [symbols...]",
		Short: "Fetch prices for several symbols in one upstream call",
		Long: `Fetch prices for multiple symbols with a single batched upstream request.
Without arguments the configured monitoring universe is fetched.`,
		Example: `  sentry prices
  sentry prices BTC ETH SOL`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			symbols := args
			if len(symbols) == 0 {
				symbols = app.Config.Monitor.Universe
			}
			for i := range symbols {
				symbols[i] = strings.ToUpper(symbols[i])
			}

			prices, err := app.Fetcher.FetchBatch(ctx, app.Identity, app.Policy,
				func(ctx context.Context) (map[string]models.PriceData, error) {
					return app.Provider.GetPrices(ctx, symbols)
				})
			if err != nil {
				output.Error("Batch fetch failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(prices)
			}

			table := NewTable(output, "Symbol", "Price", "24h Volume")
			for _, symbol := range symbols {
				data, ok := prices[symbol]
				if !ok {
					table.AddRow(symbol, "-", "-")
					continue
				}
				table.AddRow(symbol,
					fmt.Sprintf("$%.2f", data.Price),
					fmt.Sprintf("$%.0f", data.Volume24h))
			}
			table.Render()
			return nil
		},
	}
}
