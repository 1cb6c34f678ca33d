// Package models contains the core domain types shared across the application.
package models

import "time"

// RuleStatus represents the lifecycle status of an alert rule.
type RuleStatus string

const (
	RuleActive    RuleStatus = "ACTIVE"
	RulePaused    RuleStatus = "PAUSED"
	RuleTriggered RuleStatus = "TRIGGERED"
	RuleDisabled  RuleStatus = "DISABLED"
)

// Condition represents the kind of condition an alert rule checks.
type Condition string

const (
	// ConditionPriceAbove triggers when the price goes above the threshold.
	ConditionPriceAbove Condition = "price_above"
	// ConditionPriceBelow triggers when the price goes below the threshold.
	ConditionPriceBelow Condition = "price_below"
	// ConditionPercentChange triggers when the absolute percentage change
	// from the baseline reaches the threshold.
	ConditionPercentChange Condition = "percent_change"
	// ConditionPortfolioValue triggers when the aggregate portfolio value
	// crosses the threshold from the baseline side.
	ConditionPortfolioValue Condition = "portfolio_value"
)

// AlertRule represents a stored alert rule.
//
// Business fields (symbol, threshold, channels) are owned by the portfolio
// management side; the monitoring engine only transitions Status and the
// last-checked/last-triggered timestamps.
type AlertRule struct {
	ID        string
	UserID    string
	Symbol    string // empty for portfolio-wide rules
	Condition Condition
	Threshold float64
	// Baseline is the reference value for percent_change and
	// portfolio_value conditions. Ignored by the price conditions.
	Baseline float64
	Channels []string // notification channel names: email, webhook, telegram
	Status   RuleStatus
	// Rearm keeps the rule ACTIVE after a trigger instead of moving it to
	// TRIGGERED. Repeat notifications for the same ongoing breach are
	// suppressed for CooldownSeconds.
	Rearm           bool
	CooldownSeconds int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastCheckedAt   *time.Time
	LastTriggeredAt *time.Time
}

// Cooldown returns the rule's notification cool-down as a duration.
func (r *AlertRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownSeconds) * time.Second
}

// AlertHistoryEntry is an immutable record of a single evaluation outcome.
// Entries are insert-only; the monitoring engine never mutates or deletes them.
type AlertHistoryEntry struct {
	ID            string
	RuleID        string
	Timestamp     time.Time
	ObservedValue float64
	Threshold     float64
	Triggered     bool
	// CheckError holds the error text for a failed check, empty otherwise.
	CheckError string
	// NotificationOutcome is the aggregate delivery summary, e.g.
	// "email=ok webhook=failed". Empty when no notification was attempted.
	NotificationOutcome string
}

// BreachContext is the normalized payload handed to notification channels
// when a rule triggers.
type BreachContext struct {
	RuleID        string    `json:"rule_id"`
	Symbol        string    `json:"symbol"`
	Condition     Condition `json:"condition"`
	ObservedValue float64   `json:"observed_value"`
	Threshold     float64   `json:"threshold"`
	Timestamp     time.Time `json:"timestamp"`
}
