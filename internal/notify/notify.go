// Package notify provides multi-channel delivery of triggered alerts.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"portfolio-sentry/internal/config"
	"portfolio-sentry/internal/errors"
	"portfolio-sentry/internal/models"
)

// Sender delivers a triggered alert and reports per-channel outcomes.
type Sender interface {
	Send(ctx context.Context, rule models.AlertRule, breach models.BreachContext) []ChannelResult
}

// Channel is a single notification transport.
type Channel interface {
	Name() string
	Enabled() bool
	Send(ctx context.Context, rule models.AlertRule, breach models.BreachContext) error
}

// ChannelResult is the outcome of one channel's delivery attempt.
type ChannelResult struct {
	Channel string
	Success bool
	Err     error
}

// Summary renders per-channel results into the aggregate form stored in
// alert history, e.g. "email=ok webhook=failed".
func Summary(results []ChannelResult) string {
	if len(results) == 0 {
		return ""
	}
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if r.Success {
			parts = append(parts, r.Channel+"=ok")
		} else {
			parts = append(parts, r.Channel+"=failed")
		}
	}
	return strings.Join(parts, " ")
}

// MultiNotifier fans a breach out to the channels the rule is configured
// for. Each channel attempt is independent: a partial failure is reported
// per channel and never blocks the other channels.
type MultiNotifier struct {
	channels []Channel
	log      zerolog.Logger
}

// NewMultiNotifier creates a notifier with the channels enabled in cfg.
func NewMultiNotifier(cfg config.NotificationConfig, log zerolog.Logger) *MultiNotifier {
	mn := &MultiNotifier{
		log: log.With().Str("component", "notify").Logger(),
	}
	if cfg.Email.Enabled {
		mn.channels = append(mn.channels, NewEmailChannel(cfg.Email))
	}
	if cfg.Webhook.Enabled {
		mn.channels = append(mn.channels, NewWebhookChannel(cfg.Webhook))
	}
	if cfg.Telegram.Enabled {
		mn.channels = append(mn.channels, NewTelegramChannel(cfg.Telegram))
	}
	return mn
}

// AddChannel registers an additional channel.
func (mn *MultiNotifier) AddChannel(ch Channel) {
	mn.channels = append(mn.channels, ch)
}

// Send attempts delivery on every enabled channel the rule names. Rules
// with no channel list go to all enabled channels.
func (mn *MultiNotifier) Send(ctx context.Context, rule models.AlertRule, breach models.BreachContext) []ChannelResult {
	wanted := make(map[string]bool, len(rule.Channels))
	for _, name := range rule.Channels {
		wanted[name] = true
	}

	var results []ChannelResult
	for _, ch := range mn.channels {
		if !ch.Enabled() {
			continue
		}
		if len(wanted) > 0 && !wanted[ch.Name()] {
			continue
		}

		err := ch.Send(ctx, rule, breach)
		if err != nil {
			err = errors.NewNotificationError(ch.Name(), rule.ID, err)
			mn.log.Warn().Err(err).Str("channel", ch.Name()).Msg("Notification delivery failed")
		}
		results = append(results, ChannelResult{
			Channel: ch.Name(),
			Success: err == nil,
			Err:     err,
		})
	}
	return results
}

// subjectLine renders the notification subject for a breach.
func subjectLine(rule models.AlertRule, breach models.BreachContext) string {
	target := rule.Symbol
	if target == "" {
		target = "portfolio"
	}
	return fmt.Sprintf("Alert triggered: %s %s %.2f", target, conditionPhrase(rule.Condition), rule.Threshold)
}

// bodyText renders the notification body for a breach.
func bodyText(rule models.AlertRule, breach models.BreachContext) string {
	var sb strings.Builder
	target := rule.Symbol
	if target == "" {
		target = "portfolio"
	}
	sb.WriteString(fmt.Sprintf("Target: %s\n", target))
	sb.WriteString(fmt.Sprintf("Condition: %s %.2f\n", conditionPhrase(rule.Condition), rule.Threshold))
	sb.WriteString(fmt.Sprintf("Observed: %.2f\n", breach.ObservedValue))
	sb.WriteString(fmt.Sprintf("Rule: %s\n", rule.ID))
	sb.WriteString(fmt.Sprintf("Time: %s\n", breach.Timestamp.Format(time.RFC3339)))
	return sb.String()
}

func conditionPhrase(c models.Condition) string {
	switch c {
	case models.ConditionPriceAbove:
		return "price above"
	case models.ConditionPriceBelow:
		return "price below"
	case models.ConditionPercentChange:
		return "moved more than (%)"
	case models.ConditionPortfolioValue:
		return "value crossed"
	default:
		return string(c)
	}
}
