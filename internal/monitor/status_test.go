package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusManager_Counters(t *testing.T) {
	m := NewStatusManager()

	m.SetRunning(true)
	m.BeginTick(3)
	m.RecordCheck(false)
	m.RecordCheck(false)
	m.RecordCheck(true)
	m.RecordTrigger("r1")

	s := m.Snapshot()
	assert.True(t, s.Running)
	assert.Equal(t, 3, s.ActiveRuleCount)
	assert.Equal(t, int64(3), s.ChecksCompleted)
	assert.Equal(t, int64(1), s.ChecksFailed)
	assert.Equal(t, int64(1), s.AlertsTriggered)
	assert.False(t, s.LastCheck.IsZero())
}

func TestStatusManager_Cooldown(t *testing.T) {
	current := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewStatusManager()
	m.now = func() time.Time { return current }

	assert.False(t, m.InCooldown("r1", time.Minute), "never-triggered rule has no cool-down")

	m.RecordTrigger("r1")
	assert.True(t, m.InCooldown("r1", time.Minute))
	assert.False(t, m.InCooldown("r2", time.Minute), "cool-down is per rule")

	current = current.Add(59 * time.Second)
	assert.True(t, m.InCooldown("r1", time.Minute))

	current = current.Add(time.Second)
	assert.False(t, m.InCooldown("r1", time.Minute), "cool-down ends at the window boundary")

	assert.False(t, m.InCooldown("r1", 0), "zero cool-down never suppresses")
}

func TestStatusManager_ResetDiscardsRunState(t *testing.T) {
	m := NewStatusManager()

	m.SetRunning(true)
	m.BeginTick(5)
	m.RecordCheck(false)
	m.RecordTrigger("r1")

	m.Reset()

	s := m.Snapshot()
	assert.Equal(t, Status{}, s)
	assert.False(t, m.InCooldown("r1", time.Hour), "cool-down state is discarded on reset")
}
