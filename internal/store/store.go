// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"portfolio-sentry/internal/models"
)

// DataStore defines the persistence interface for alert rules and history.
// It is the narrow surface the monitoring engine and CLI read and write;
// schema ownership beyond these fields stays with the portfolio side.
type DataStore interface {
	// Rules
	SaveRule(ctx context.Context, rule *models.AlertRule) error
	GetRule(ctx context.Context, ruleID string) (*models.AlertRule, error)
	ListRules(ctx context.Context, filter RuleFilter) ([]models.AlertRule, error)
	DeleteRule(ctx context.Context, ruleID string) error
	UpdateRuleStatus(ctx context.Context, ruleID string, status models.RuleStatus) error
	TouchRuleChecked(ctx context.Context, ruleID string, t time.Time) error
	GetActiveRules(ctx context.Context, dueBefore time.Time) ([]models.AlertRule, error)

	// History
	RecordHistory(ctx context.Context, entry models.AlertHistoryEntry) error
	ListHistory(ctx context.Context, filter HistoryFilter) ([]models.AlertHistoryEntry, error)

	// Lifecycle
	Close() error
}

// RuleFilter represents filters for querying rules.
type RuleFilter struct {
	UserID string
	Symbol string
	Status models.RuleStatus
	Limit  int
}

// HistoryFilter represents filters for querying history entries.
type HistoryFilter struct {
	RuleID        string
	Since         time.Time
	TriggeredOnly bool
	Limit         int
}
