// Package cli provides the command-line interface for the alert sentry.
package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"portfolio-sentry/internal/models"
	"portfolio-sentry/internal/store"
)

// addRuleCommands adds alert rule management commands.
func addRuleCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage alert rules",
		Long:  "Create, list, pause, resume, and delete portfolio alert rules.",
	}

	cmd.AddCommand(newRulesAddCmd(app))
	cmd.AddCommand(newRulesListCmd(app))
	cmd.AddCommand(newRulesPauseCmd(app))
	cmd.AddCommand(newRulesResumeCmd(app))
	cmd.AddCommand(newRulesDeleteCmd(app))
	cmd.AddCommand(newRulesHistoryCmd(app))

	rootCmd.AddCommand(cmd)
}

func requireStore(app *App, output *Output) error {
	if app.Store == nil {
		output.Error("Store not available. Check the database path and permissions.")
		return fmt.Errorf("store not available")
	}
	return nil
}

func newRulesAddCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <condition> <threshold>",
		Short: "Create an alert rule",
		Long: `Create an alert rule. Conditions:

  price_above      fires when the symbol's price exceeds the threshold
  price_below      fires when the symbol's price drops below the threshold
  percent_change   fires when the price moves more than threshold percent
                   from the baseline (requires --baseline)
  portfolio_value  fires when total portfolio value crosses the threshold`,
		Example: `  sentry rules add price_above 70000 --symbol BTC
  sentry rules add percent_change 10 --symbol ETH --baseline 3200
  sentry rules add portfolio_value 50000 --baseline 60000 --channels email,webhook`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := requireStore(app, output); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			threshold, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				output.Error("Invalid threshold: %s", args[1])
				return err
			}

			symbol, _ := cmd.Flags().GetString("symbol")
			baseline, _ := cmd.Flags().GetFloat64("baseline")
			channels, _ := cmd.Flags().GetString("channels")
			rearm, _ := cmd.Flags().GetBool("rearm")
			cooldown, _ := cmd.Flags().GetDuration("cooldown")
			userID, _ := cmd.Flags().GetString("user")

			rule := &models.AlertRule{
				UserID:          userID,
				Symbol:          strings.ToUpper(symbol),
				Condition:       models.Condition(args[0]),
				Threshold:       threshold,
				Baseline:        baseline,
				Status:          models.RuleActive,
				Rearm:           rearm,
				CooldownSeconds: int(cooldown.Seconds()),
			}
			if channels != "" {
				rule.Channels = strings.Split(channels, ",")
			}
			if err := validateRule(rule); err != nil {
				output.Error("%v", err)
				return err
			}

			if err := app.Store.SaveRule(ctx, rule); err != nil {
				output.Error("Failed to save rule: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(rule)
			}
			output.Success("Rule created: %s", rule.ID)
			return nil
		},
	}

	cmd.Flags().String("symbol", "", "asset symbol the rule watches (empty for portfolio rules)")
	cmd.Flags().Float64("baseline", 0, "reference value for percent_change and portfolio_value rules")
	cmd.Flags().String("channels", "", "comma-separated notification channels (default: all enabled)")
	cmd.Flags().Bool("rearm", false, "keep the rule active after it triggers")
	cmd.Flags().Duration("cooldown", 0, "minimum time between repeated notifications (default from config)")
	cmd.Flags().String("user", "default", "owning user id")
	return cmd
}

func validateRule(rule *models.AlertRule) error {
	switch rule.Condition {
	case models.ConditionPriceAbove, models.ConditionPriceBelow:
		if rule.Symbol == "" {
			return fmt.Errorf("condition %s requires --symbol", rule.Condition)
		}
	case models.ConditionPercentChange:
		if rule.Symbol == "" {
			return fmt.Errorf("condition %s requires --symbol", rule.Condition)
		}
		if rule.Baseline == 0 {
			return fmt.Errorf("condition %s requires a non-zero --baseline", rule.Condition)
		}
	case models.ConditionPortfolioValue:
		// Portfolio rules span the whole universe; no symbol.
	default:
		return fmt.Errorf("unknown condition: %s", rule.Condition)
	}
	return nil
}

func newRulesListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alert rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := requireStore(app, output); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			status, _ := cmd.Flags().GetString("status")
			symbol, _ := cmd.Flags().GetString("symbol")
			rules, err := app.Store.ListRules(ctx, store.RuleFilter{
				Status: models.RuleStatus(strings.ToUpper(status)),
				Symbol: strings.ToUpper(symbol),
			})
			if err != nil {
				output.Error("Failed to list rules: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(rules)
			}
			if len(rules) == 0 {
				output.Dim("No rules found.")
				return nil
			}

			table := NewTable(output, "ID", "Symbol", "Condition", "Threshold", "Status", "Last Triggered")
			for _, r := range rules {
				lastTriggered := "-"
				if r.LastTriggeredAt != nil {
					lastTriggered = r.LastTriggeredAt.Format("2006-01-02 15:04")
				}
				symbol := r.Symbol
				if symbol == "" {
					symbol = "portfolio"
				}
				table.AddRow(shortID(r.ID), symbol, string(r.Condition),
					fmt.Sprintf("%.2f", r.Threshold), string(r.Status), lastTriggered)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().String("status", "", "filter by status (ACTIVE, PAUSED, TRIGGERED, DISABLED)")
	cmd.Flags().String("symbol", "", "filter by symbol")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// resolveRule accepts a full or shortened rule id.
func resolveRule(ctx context.Context, app *App, id string) (*models.AlertRule, error) {
	rule, err := app.Store.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule != nil {
		return rule, nil
	}

	rules, err := app.Store.ListRules(ctx, store.RuleFilter{})
	if err != nil {
		return nil, err
	}
	var match *models.AlertRule
	for i := range rules {
		if strings.HasPrefix(rules[i].ID, id) {
			if match != nil {
				return nil, fmt.Errorf("rule id %q is ambiguous", id)
			}
			match = &rules[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("rule not found: %s", id)
	}
	return match, nil
}

func newRuleStatusCmd(app *App, use, short string, status models.RuleStatus, verb string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <rule-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := requireStore(app, output); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			rule, err := resolveRule(ctx, app, args[0])
			if err != nil {
				output.Error("%v", err)
				return err
			}
			if err := app.Store.UpdateRuleStatus(ctx, rule.ID, status); err != nil {
				output.Error("Failed to update rule: %v", err)
				return err
			}
			output.Success("Rule %s %s", shortID(rule.ID), verb)
			return nil
		},
	}
}

func newRulesPauseCmd(app *App) *cobra.Command {
	return newRuleStatusCmd(app, "pause", "Pause an alert rule", models.RulePaused, "paused")
}

func newRulesResumeCmd(app *App) *cobra.Command {
	return newRuleStatusCmd(app, "resume", "Resume a paused or triggered rule", models.RuleActive, "resumed")
}

func newRulesDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <rule-id>",
		Short: "Delete an alert rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := requireStore(app, output); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			rule, err := resolveRule(ctx, app, args[0])
			if err != nil {
				output.Error("%v", err)
				return err
			}
			if err := app.Store.DeleteRule(ctx, rule.ID); err != nil {
				output.Error("Failed to delete rule: %v", err)
				return err
			}
			output.Success("Rule %s deleted", shortID(rule.ID))
			return nil
		},
	}
}

func newRulesHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [rule-id]",
		Short: "Show evaluation history",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := requireStore(app, output); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			filter := store.HistoryFilter{Limit: 50}
			if triggered, _ := cmd.Flags().GetBool("triggered"); triggered {
				filter.TriggeredOnly = true
			}
			if len(args) > 0 {
				rule, err := resolveRule(ctx, app, args[0])
				if err != nil {
					output.Error("%v", err)
					return err
				}
				filter.RuleID = rule.ID
			}

			entries, err := app.Store.ListHistory(ctx, filter)
			if err != nil {
				output.Error("Failed to list history: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(entries)
			}
			if len(entries) == 0 {
				output.Dim("No history entries.")
				return nil
			}

			table := NewTable(output, "Time", "Rule", "Observed", "Threshold", "Triggered", "Outcome")
			for _, e := range entries {
				outcome := e.NotificationOutcome
				if e.CheckError != "" {
					outcome = "error: " + e.CheckError
				}
				table.AddRow(
					e.Timestamp.Format("2006-01-02 15:04:05"),
					shortID(e.RuleID),
					fmt.Sprintf("%.2f", e.ObservedValue),
					fmt.Sprintf("%.2f", e.Threshold),
					strconv.FormatBool(e.Triggered),
					outcome,
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().Bool("triggered", false, "show only triggered entries")
	return cmd
}
