// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"portfolio-sentry/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Alert rules table
	CREATE TABLE IF NOT EXISTS alert_rules (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		symbol TEXT NOT NULL DEFAULT '',
		condition TEXT NOT NULL,
		threshold REAL NOT NULL,
		baseline REAL NOT NULL DEFAULT 0,
		channels TEXT,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		rearm INTEGER NOT NULL DEFAULT 0,
		cooldown_seconds INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		last_checked_at DATETIME,
		last_triggered_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_rules_status ON alert_rules(status);
	CREATE INDEX IF NOT EXISTS idx_rules_user ON alert_rules(user_id);

	-- Alert history table, insert-only
	CREATE TABLE IF NOT EXISTS alert_history (
		id TEXT PRIMARY KEY,
		rule_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		observed_value REAL NOT NULL DEFAULT 0,
		threshold REAL NOT NULL DEFAULT 0,
		triggered INTEGER NOT NULL DEFAULT 0,
		check_error TEXT NOT NULL DEFAULT '',
		notification_outcome TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_history_rule ON alert_history(rule_id, timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRule inserts or replaces a rule, assigning an ID and timestamps when
// missing.
func (s *SQLiteStore) SaveRule(ctx context.Context, rule *models.AlertRule) error {
	now := time.Now().UTC()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	if rule.Status == "" {
		rule.Status = models.RuleActive
	}

	channels, err := json.Marshal(rule.Channels)
	if err != nil {
		return fmt.Errorf("marshaling channels: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO alert_rules
		(id, user_id, symbol, condition, threshold, baseline, channels, status,
		 rearm, cooldown_seconds, created_at, updated_at, last_checked_at, last_triggered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.UserID, rule.Symbol, string(rule.Condition), rule.Threshold,
		rule.Baseline, string(channels), string(rule.Status), boolToInt(rule.Rearm),
		rule.CooldownSeconds, rule.CreatedAt, rule.UpdatedAt,
		nullableTime(rule.LastCheckedAt), nullableTime(rule.LastTriggeredAt))
	return err
}

// GetRule returns the rule with the given ID, or nil when absent.
func (s *SQLiteStore) GetRule(ctx context.Context, ruleID string) (*models.AlertRule, error) {
	rows, err := s.db.QueryContext(ctx, selectRules+" WHERE id = ?", ruleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules, err := scanRules(rows)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}
	return &rules[0], nil
}

// ListRules returns rules matching the filter, newest first.
func (s *SQLiteStore) ListRules(ctx context.Context, filter RuleFilter) ([]models.AlertRule, error) {
	query := selectRules
	var conds []string
	var args []interface{}

	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Symbol != "" {
		conds = append(conds, "symbol = ?")
		args = append(args, filter.Symbol)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

// DeleteRule removes a rule. Its history entries are kept.
func (s *SQLiteStore) DeleteRule(ctx context.Context, ruleID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM alert_rules WHERE id = ?", ruleID)
	return err
}

// UpdateRuleStatus transitions a rule's lifecycle status.
func (s *SQLiteStore) UpdateRuleStatus(ctx context.Context, ruleID string, status models.RuleStatus) error {
	now := time.Now().UTC()
	if status == models.RuleTriggered {
		_, err := s.db.ExecContext(ctx,
			"UPDATE alert_rules SET status = ?, updated_at = ?, last_triggered_at = ? WHERE id = ?",
			string(status), now, now, ruleID)
		return err
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE alert_rules SET status = ?, updated_at = ? WHERE id = ?",
		string(status), now, ruleID)
	return err
}

// TouchRuleChecked records when a rule was last checked.
func (s *SQLiteStore) TouchRuleChecked(ctx context.Context, ruleID string, t time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE alert_rules SET last_checked_at = ? WHERE id = ?", t.UTC(), ruleID)
	return err
}

// GetActiveRules returns ACTIVE rules not checked since dueBefore.
func (s *SQLiteStore) GetActiveRules(ctx context.Context, dueBefore time.Time) ([]models.AlertRule, error) {
	rows, err := s.db.QueryContext(ctx,
		selectRules+` WHERE status = ? AND (last_checked_at IS NULL OR last_checked_at <= ?)
		ORDER BY created_at`,
		string(models.RuleActive), dueBefore.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

// RecordHistory appends an immutable evaluation record.
func (s *SQLiteStore) RecordHistory(ctx context.Context, entry models.AlertHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_history
		(id, rule_id, timestamp, observed_value, threshold, triggered, check_error, notification_outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RuleID, entry.Timestamp.UTC(), entry.ObservedValue,
		entry.Threshold, boolToInt(entry.Triggered), entry.CheckError, entry.NotificationOutcome)
	return err
}

// ListHistory returns history entries matching the filter, newest first.
func (s *SQLiteStore) ListHistory(ctx context.Context, filter HistoryFilter) ([]models.AlertHistoryEntry, error) {
	query := `SELECT id, rule_id, timestamp, observed_value, threshold, triggered, check_error, notification_outcome
		FROM alert_history`
	var conds []string
	var args []interface{}

	if filter.RuleID != "" {
		conds = append(conds, "rule_id = ?")
		args = append(args, filter.RuleID)
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, filter.Since.UTC())
	}
	if filter.TriggeredOnly {
		conds = append(conds, "triggered = 1")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AlertHistoryEntry
	for rows.Next() {
		var e models.AlertHistoryEntry
		var triggered int
		if err := rows.Scan(&e.ID, &e.RuleID, &e.Timestamp, &e.ObservedValue,
			&e.Threshold, &triggered, &e.CheckError, &e.NotificationOutcome); err != nil {
			return nil, err
		}
		e.Triggered = triggered != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const selectRules = `SELECT id, user_id, symbol, condition, threshold, baseline, channels, status,
	rearm, cooldown_seconds, created_at, updated_at, last_checked_at, last_triggered_at
	FROM alert_rules`

func scanRules(rows *sql.Rows) ([]models.AlertRule, error) {
	var rules []models.AlertRule
	for rows.Next() {
		var r models.AlertRule
		var condition, status, channels string
		var rearm int
		var lastChecked, lastTriggered sql.NullTime

		if err := rows.Scan(&r.ID, &r.UserID, &r.Symbol, &condition, &r.Threshold,
			&r.Baseline, &channels, &status, &rearm, &r.CooldownSeconds,
			&r.CreatedAt, &r.UpdatedAt, &lastChecked, &lastTriggered); err != nil {
			return nil, err
		}

		r.Condition = models.Condition(condition)
		r.Status = models.RuleStatus(status)
		r.Rearm = rearm != 0
		if channels != "" {
			if err := json.Unmarshal([]byte(channels), &r.Channels); err != nil {
				return nil, fmt.Errorf("unmarshaling channels for rule %s: %w", r.ID, err)
			}
		}
		if lastChecked.Valid {
			t := lastChecked.Time
			r.LastCheckedAt = &t
		}
		if lastTriggered.Valid {
			t := lastTriggered.Time
			r.LastTriggeredAt = &t
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
