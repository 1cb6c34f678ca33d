// Package cli provides the command-line interface for the alert sentry.
package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// addMonitorCommands adds monitoring lifecycle commands.
func addMonitorCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Alert monitoring lifecycle",
		Long:  "Start the alert monitoring loop and inspect its status.",
	}

	cmd.AddCommand(newMonitorStartCmd(app))
	cmd.AddCommand(newMonitorStatusCmd(app))

	rootCmd.AddCommand(cmd)
}

func newMonitorStartCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start monitoring and run until interrupted",
		Long: `Start the monitoring loop. On every tick all due ACTIVE rules are
evaluated across a bounded worker pool; the loop runs until Ctrl-C.`,
		Example: `  sentry monitor start
  sentry monitor start --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Monitor == nil {
				output.Error("Monitoring unavailable: store failed to initialize.")
				return fmt.Errorf("monitor not configured")
			}

			result := app.Monitor.Start()
			if !result.Success {
				output.Error("%s", result.Message)
				return fmt.Errorf("%s", result.Message)
			}
			output.Success("Monitoring started (interval %s, %d workers)",
				app.Config.Monitor.CheckInterval, app.Config.Monitor.MaxWorkers)
			output.Dim("Press Ctrl-C to stop.")

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			output.Println()
			output.Info("Stopping...")
			stop := app.Monitor.Stop()
			if !stop.Success {
				output.Warning("%s", stop.Message)
				return nil
			}
			output.Success("Monitoring stopped")
			return nil
		},
	}
}

func newMonitorStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show monitoring status",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Monitor == nil {
				output.Error("Monitoring unavailable: store failed to initialize.")
				return fmt.Errorf("monitor not configured")
			}

			status := app.Monitor.Status()
			if output.IsJSON() {
				return output.JSON(status)
			}

			output.Bold("Monitoring Status")
			if status.Running {
				output.Success("  State:            running")
			} else {
				output.Dim("  State:            idle")
			}
			lastCheck := "-"
			if !status.LastCheck.IsZero() {
				lastCheck = status.LastCheck.Format(time.RFC3339)
			}
			output.Printf("  Last check:       %s\n", lastCheck)
			output.Printf("  Active rules:     %d\n", status.ActiveRuleCount)
			output.Printf("  Checks completed: %d\n", status.ChecksCompleted)
			output.Printf("  Checks failed:    %d\n", status.ChecksFailed)
			output.Printf("  Alerts triggered: %d\n", status.AlertsTriggered)
			return nil
		},
	}
}
