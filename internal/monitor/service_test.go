package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-sentry/internal/config"
	"portfolio-sentry/internal/models"
	"portfolio-sentry/internal/notify"
)

type fakeRuleStore struct {
	mu      sync.Mutex
	rules   []models.AlertRule
	history []models.AlertHistoryEntry
	touched map[string]time.Time
	loadErr error
}

func newFakeRuleStore(rules ...models.AlertRule) *fakeRuleStore {
	return &fakeRuleStore{rules: rules, touched: make(map[string]time.Time)}
}

func (s *fakeRuleStore) GetActiveRules(_ context.Context, _ time.Time) ([]models.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	var active []models.AlertRule
	for _, r := range s.rules {
		if r.Status == models.RuleActive {
			active = append(active, r)
		}
	}
	return active, nil
}

func (s *fakeRuleStore) RecordHistory(ctx context.Context, entry models.AlertHistoryEntry) error {
	// Like the SQLite store, writes under a dead context fail.
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, entry)
	return nil
}

func (s *fakeRuleStore) UpdateRuleStatus(ctx context.Context, ruleID string, status models.RuleStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].ID == ruleID {
			s.rules[i].Status = status
		}
	}
	return nil
}

func (s *fakeRuleStore) TouchRuleChecked(_ context.Context, ruleID string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched[ruleID] = t
	return nil
}

func (s *fakeRuleStore) entries() []models.AlertHistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AlertHistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

type fakePrices struct {
	mu     sync.Mutex
	prices map[string]float64
	err    error
	delay  time.Duration

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

func (p *fakePrices) CurrentPrice(_ context.Context, symbol string) (models.PriceData, error) {
	cur := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		max := p.maxInFlight.Load()
		if cur <= max || p.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return models.PriceData{}, p.err
	}
	return models.PriceData{Symbol: symbol, Price: p.prices[symbol], FetchedAt: time.Now()}, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	sends []models.BreachContext
	fail  bool
}

func (n *fakeNotifier) Send(_ context.Context, rule models.AlertRule, breach models.BreachContext) []notify.ChannelResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends = append(n.sends, breach)
	if n.fail {
		return []notify.ChannelResult{{Channel: "email", Success: false}}
	}
	return []notify.ChannelResult{{Channel: "email", Success: true}}
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sends)
}

func testMonitorConfig() config.MonitorConfig {
	return config.MonitorConfig{
		CheckInterval:   time.Hour,
		MaxWorkers:      4,
		RuleTimeout:     5 * time.Second,
		StopTimeout:     5 * time.Second,
		DefaultCooldown: time.Hour,
	}
}

func newTestService(store *fakeRuleStore, prices PriceSource, notifier notify.Sender) *Service {
	return NewService(ServiceConfig{
		Monitor:  testMonitorConfig(),
		Rules:    store,
		Prices:   prices,
		Notifier: notifier,
		Log:      zerolog.Nop(),
	})
}

func btcRule(threshold float64, rearm bool) models.AlertRule {
	return models.AlertRule{
		ID:        "rule-btc",
		UserID:    "u1",
		Symbol:    "BTC",
		Condition: models.ConditionPriceAbove,
		Threshold: threshold,
		Status:    models.RuleActive,
		Rearm:     rearm,
	}
}

func TestService_TickNoTrigger(t *testing.T) {
	store := newFakeRuleStore(btcRule(50000, true))
	prices := &fakePrices{prices: map[string]float64{"BTC": 49000}}
	notifier := &fakeNotifier{}
	svc := newTestService(store, prices, notifier)

	svc.tick(context.Background())

	assert.Equal(t, 0, notifier.count())
	entries := store.entries()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Triggered)
	assert.Equal(t, 49000.0, entries[0].ObservedValue)
	assert.Empty(t, entries[0].CheckError)

	s := svc.Status()
	assert.Equal(t, int64(1), s.ChecksCompleted)
	assert.Equal(t, int64(0), s.AlertsTriggered)
}

func TestService_TriggerNotifiesOnceWithinCooldown(t *testing.T) {
	store := newFakeRuleStore(btcRule(50000, true))
	prices := &fakePrices{prices: map[string]float64{"BTC": 51000}}
	notifier := &fakeNotifier{}
	svc := newTestService(store, prices, notifier)

	ctx := context.Background()
	svc.tick(ctx)
	svc.tick(ctx) // breach persists, still inside the cool-down

	assert.Equal(t, 1, notifier.count(), "ongoing breach must notify exactly once")

	// The suppressed re-trigger also leaves no duplicate history entry.
	var triggered int
	for _, e := range store.entries() {
		if e.Triggered {
			triggered++
		}
	}
	assert.Equal(t, 1, triggered)

	s := svc.Status()
	assert.Equal(t, int64(1), s.AlertsTriggered)
	assert.Equal(t, int64(2), s.ChecksCompleted)
}

func TestService_CooldownExpiryReNotifies(t *testing.T) {
	rule := btcRule(50000, true)
	rule.CooldownSeconds = 600
	store := newFakeRuleStore(rule)
	prices := &fakePrices{prices: map[string]float64{"BTC": 51000}}
	notifier := &fakeNotifier{}
	svc := newTestService(store, prices, notifier)

	current := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return current }
	svc.status.now = svc.now

	ctx := context.Background()
	svc.tick(ctx)
	current = current.Add(5 * time.Minute)
	svc.tick(ctx) // inside the 10 minute cool-down
	current = current.Add(6 * time.Minute)
	svc.tick(ctx) // cool-down elapsed

	assert.Equal(t, 2, notifier.count())
}

func TestService_NonRearmRuleRetires(t *testing.T) {
	store := newFakeRuleStore(btcRule(50000, false))
	prices := &fakePrices{prices: map[string]float64{"BTC": 51000}}
	notifier := &fakeNotifier{}
	svc := newTestService(store, prices, notifier)

	ctx := context.Background()
	svc.tick(ctx)

	store.mu.Lock()
	status := store.rules[0].Status
	store.mu.Unlock()
	assert.Equal(t, models.RuleTriggered, status)

	// The retired rule leaves the active set, so the next tick skips it.
	svc.tick(ctx)
	assert.Equal(t, 1, notifier.count())
}

func TestService_FailedCheckRecordedAndIsolated(t *testing.T) {
	good := btcRule(50000, true)
	bad := models.AlertRule{
		ID:        "rule-eth",
		Symbol:    "ETH",
		Condition: models.ConditionPriceAbove,
		Threshold: 3000,
		Status:    models.RuleActive,
	}
	store := newFakeRuleStore(good, bad)
	prices := &fakePrices{prices: map[string]float64{"BTC": 49000}}
	// ETH resolves to the zero price, but we force a harder failure:
	// evaluation of an unknown condition.
	bad.Condition = "volume_spike"
	store.rules[1] = bad
	notifier := &fakeNotifier{}
	svc := newTestService(store, prices, notifier)

	svc.tick(context.Background())

	s := svc.Status()
	assert.Equal(t, int64(2), s.ChecksCompleted)
	assert.Equal(t, int64(1), s.ChecksFailed)

	var failed int
	for _, e := range store.entries() {
		if e.CheckError != "" {
			failed++
			assert.Equal(t, "rule-eth", e.RuleID)
			assert.False(t, e.Triggered)
		}
	}
	assert.Equal(t, 1, failed, "the failed rule is recorded, the healthy one unaffected")
}

// slowPrices blocks until the evaluation context gives up, the way a real
// upstream fetch does when the per-rule deadline fires mid-call.
type slowPrices struct{}

func (slowPrices) CurrentPrice(ctx context.Context, _ string) (models.PriceData, error) {
	<-ctx.Done()
	return models.PriceData{}, ctx.Err()
}

func TestService_TimedOutCheckRecordedInHistory(t *testing.T) {
	store := newFakeRuleStore(btcRule(50000, true))
	cfg := testMonitorConfig()
	cfg.RuleTimeout = 20 * time.Millisecond
	svc := NewService(ServiceConfig{
		Monitor: cfg,
		Rules:   store,
		Prices:  slowPrices{},
		Log:     zerolog.Nop(),
	})

	svc.tick(context.Background())

	// The timed-out check must land in history even though the rule's
	// own context is already dead when the write happens.
	entries := store.entries()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Triggered)
	assert.Contains(t, entries[0].CheckError, context.DeadlineExceeded.Error())

	s := svc.Status()
	assert.Equal(t, int64(1), s.ChecksFailed)
}

func TestService_FailedRuleLoadStillStampsLastCheck(t *testing.T) {
	store := newFakeRuleStore()
	store.loadErr = assert.AnError
	svc := newTestService(store, &fakePrices{}, nil)

	before := time.Now()
	svc.tick(context.Background())

	s := svc.Status()
	assert.False(t, s.LastCheck.Before(before), "a failing tick still reports scheduler liveness")
}

func TestService_PortfolioRuleWithoutValuerFails(t *testing.T) {
	rule := models.AlertRule{
		ID:        "rule-pv",
		Condition: models.ConditionPortfolioValue,
		Threshold: 50000,
		Baseline:  60000,
		Status:    models.RuleActive,
	}
	store := newFakeRuleStore(rule)
	prices := &fakePrices{prices: map[string]float64{}}
	svc := newTestService(store, prices, nil)

	svc.tick(context.Background())

	entries := store.entries()
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].CheckError)
}

func TestService_WorkerPoolBounded(t *testing.T) {
	var rules []models.AlertRule
	for _, symbol := range []string{"A", "B", "C", "D", "E", "F"} {
		rules = append(rules, models.AlertRule{
			ID:        "rule-" + symbol,
			Symbol:    symbol,
			Condition: models.ConditionPriceAbove,
			Threshold: 100,
			Status:    models.RuleActive,
		})
	}
	store := newFakeRuleStore(rules...)
	prices := &fakePrices{
		prices: map[string]float64{"A": 1, "B": 1, "C": 1, "D": 1, "E": 1, "F": 1},
		delay:  20 * time.Millisecond,
	}
	svc := NewService(ServiceConfig{
		Monitor: config.MonitorConfig{
			CheckInterval: time.Hour,
			MaxWorkers:    2,
			RuleTimeout:   5 * time.Second,
			StopTimeout:   5 * time.Second,
		},
		Rules:  store,
		Prices: prices,
		Log:    zerolog.Nop(),
	})

	svc.tick(context.Background())

	assert.LessOrEqual(t, prices.maxInFlight.Load(), int64(2),
		"concurrent evaluations must stay within the worker bound")
	assert.Equal(t, int64(6), svc.Status().ChecksCompleted)
}

func TestService_StartStopLifecycle(t *testing.T) {
	store := newFakeRuleStore()
	prices := &fakePrices{prices: map[string]float64{}}
	svc := newTestService(store, prices, nil)

	result := svc.Start()
	require.True(t, result.Success)

	second := svc.Start()
	assert.False(t, second.Success, "double start must be refused")
	assert.Contains(t, second.Message, "already running")

	stop := svc.Stop()
	assert.True(t, stop.Success)
	assert.False(t, svc.Status().Running, "run state is never left RUNNING after Stop")

	again := svc.Stop()
	assert.False(t, again.Success, "stopping an idle service must be refused")

	// The service is restartable after a clean stop.
	assert.True(t, svc.Start().Success)
	assert.True(t, svc.Stop().Success)
}

func TestService_TickOnSchedule(t *testing.T) {
	store := newFakeRuleStore(btcRule(50000, true))
	prices := &fakePrices{prices: map[string]float64{"BTC": 49000}}
	svc := newTestService(store, prices, nil)

	tickCh := make(chan time.Time)
	svc.newTicker = func(d time.Duration) (<-chan time.Time, func()) {
		return tickCh, func() {}
	}

	require.True(t, svc.Start().Success)

	// The first pass runs immediately on start; two manual ticks follow.
	tickCh <- time.Now()
	tickCh <- time.Now()
	require.True(t, svc.Stop().Success)

	assert.GreaterOrEqual(t, len(store.entries()), 3)
}
