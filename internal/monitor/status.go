package monitor

import (
	"sync"
	"time"
)

// Status is a point-in-time view of the monitoring run state.
type Status struct {
	Running         bool      `json:"running"`
	LastCheck       time.Time `json:"last_check"`
	ActiveRuleCount int       `json:"active_rule_count"`
	ChecksCompleted int64     `json:"checks_completed"`
	ChecksFailed    int64     `json:"checks_failed"`
	AlertsTriggered int64     `json:"alerts_triggered"`
}

// StatusManager tracks the in-memory run state of the monitoring service:
// whether it is running, when it last checked, and per-rule last-triggered
// times for cool-down enforcement. All access goes through its mutex.
// The state is discarded on service stop; durable truth lives in the
// alert history.
type StatusManager struct {
	mu            sync.RWMutex
	status        Status
	lastTriggered map[string]time.Time

	now func() time.Time
}

// NewStatusManager creates an empty status manager.
func NewStatusManager() *StatusManager {
	return &StatusManager{
		lastTriggered: make(map[string]time.Time),
		now:           time.Now,
	}
}

// SetRunning marks the service running or stopped.
func (m *StatusManager) SetRunning(running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.Running = running
}

// Running reports whether the service is running.
func (m *StatusManager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Running
}

// MarkTick stamps the last-check time at the start of a scheduler pass,
// before the rule load, so a failed load still shows the loop is alive.
func (m *StatusManager) MarkTick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.LastCheck = m.now()
}

// BeginTick records a scheduler tick over count active rules.
func (m *StatusManager) BeginTick(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.LastCheck = m.now()
	m.status.ActiveRuleCount = count
}

// RecordCheck records a completed rule check.
func (m *StatusManager) RecordCheck(failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.ChecksCompleted++
	if failed {
		m.status.ChecksFailed++
	}
}

// RecordTrigger records a trigger for cool-down tracking.
func (m *StatusManager) RecordTrigger(ruleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.AlertsTriggered++
	m.lastTriggered[ruleID] = m.now()
}

// InCooldown reports whether the rule triggered within the cool-down window.
func (m *StatusManager) InCooldown(ruleID string, cooldown time.Duration) bool {
	if cooldown <= 0 {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	last, ok := m.lastTriggered[ruleID]
	if !ok {
		return false
	}
	return m.now().Sub(last) < cooldown
}

// Snapshot returns a copy of the current status.
func (m *StatusManager) Snapshot() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Reset discards the run state, keeping only the zero status.
func (m *StatusManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = Status{}
	m.lastTriggered = make(map[string]time.Time)
}
