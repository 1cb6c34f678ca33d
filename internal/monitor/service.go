package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"portfolio-sentry/internal/config"
	"portfolio-sentry/internal/errors"
	"portfolio-sentry/internal/models"
	"portfolio-sentry/internal/notify"
)

// RuleStore is the narrow read/write interface over the portfolio data
// collaborator. The monitoring engine never owns the rules' business fields
// or performs schema work through it.
type RuleStore interface {
	// GetActiveRules returns the ACTIVE rules due for a check.
	GetActiveRules(ctx context.Context, dueBefore time.Time) ([]models.AlertRule, error)
	// RecordHistory appends an immutable evaluation record.
	RecordHistory(ctx context.Context, entry models.AlertHistoryEntry) error
	// UpdateRuleStatus transitions a rule's lifecycle status.
	UpdateRuleStatus(ctx context.Context, ruleID string, status models.RuleStatus) error
	// TouchRuleChecked records when a rule was last checked.
	TouchRuleChecked(ctx context.Context, ruleID string, t time.Time) error
}

// PriceSource supplies current market data for rule evaluation. The
// production implementation goes through the resilient fetcher.
type PriceSource interface {
	CurrentPrice(ctx context.Context, symbol string) (models.PriceData, error)
}

// PortfolioValuer supplies the aggregate portfolio value for
// portfolio-wide rules.
type PortfolioValuer interface {
	PortfolioValue(ctx context.Context, userID string) (float64, error)
}

// ControlResult is the outcome of a Start or Stop request.
type ControlResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type serviceState int

const (
	stateIdle serviceState = iota
	stateRunning
	stateStopping
)

// recordTimeout bounds the durable writes made once a check's outcome is
// known, independent of the per-rule evaluation deadline.
const recordTimeout = 5 * time.Second

// ServiceConfig holds the dependencies of the monitoring service.
type ServiceConfig struct {
	Monitor  config.MonitorConfig
	Rules    RuleStore
	Prices   PriceSource
	Valuer   PortfolioValuer // optional; portfolio rules fail without it
	Notifier notify.Sender   // optional
	// BeforeTick runs at the start of every tick, before rules load. Used
	// to hook in volatility-driven cache refresh and batch preloading.
	BeforeTick func(ctx context.Context)
	Log        zerolog.Logger
}

// Service is the top-level scheduler. On a fixed cadence it loads due
// rules, evaluates them across a bounded worker pool, and pipes triggers
// into notification delivery and history recording.
type Service struct {
	cfg      config.MonitorConfig
	rules    RuleStore
	prices   PriceSource
	valuer   PortfolioValuer
	notifier notify.Sender
	before   func(ctx context.Context)
	status   *StatusManager
	log      zerolog.Logger

	mu     sync.Mutex
	state  serviceState
	stopCh chan struct{}
	doneCh chan struct{}
	cancel context.CancelFunc

	// newTicker is swappable so tests can drive ticks without wall-clock
	// delays.
	newTicker func(d time.Duration) (<-chan time.Time, func())
	now       func() time.Time
}

// NewService creates a monitoring service in the IDLE state.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		cfg:      cfg.Monitor,
		rules:    cfg.Rules,
		prices:   cfg.Prices,
		valuer:   cfg.Valuer,
		notifier: cfg.Notifier,
		before:   cfg.BeforeTick,
		status:   NewStatusManager(),
		log:      cfg.Log.With().Str("component", "monitor").Logger(),
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
		now: time.Now,
	}
}

// Start transitions IDLE -> RUNNING and spawns the scheduling loop.
// Starting an already-running service is a no-op that reports so.
func (s *Service) Start() ControlResult {
	s.mu.Lock()
	if s.state != stateIdle {
		s.mu.Unlock()
		return ControlResult{Success: false, Message: "monitoring already running"}
	}
	s.state = stateRunning
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	s.status.SetRunning(true)
	go s.loop(ctx)

	s.log.Info().Dur("interval", s.cfg.CheckInterval).Msg("Monitoring started")
	return ControlResult{Success: true, Message: "monitoring started"}
}

// Stop transitions RUNNING -> STOPPING, signals the loop to exit, and waits
// for in-flight evaluations to finish or hit their timeout. The run state is
// never left RUNNING after Stop returns.
func (s *Service) Stop() ControlResult {
	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		return ControlResult{Success: false, Message: "monitoring not running"}
	}
	s.state = stateStopping
	close(s.stopCh)
	s.mu.Unlock()

	select {
	case <-s.doneCh:
	case <-time.After(s.cfg.StopTimeout):
		// In-flight evaluations exceeded the stop budget; cancel them.
		s.cancel()
		<-s.doneCh
	}
	s.cancel()

	s.status.Reset()

	s.mu.Lock()
	s.state = stateIdle
	s.mu.Unlock()

	s.log.Info().Msg("Monitoring stopped")
	return ControlResult{Success: true, Message: "monitoring stopped"}
}

// Status returns the current run state.
func (s *Service) Status() Status {
	return s.status.Snapshot()
}

func (s *Service) loop(ctx context.Context) {
	defer close(s.doneCh)

	tickCh, stop := s.newTicker(s.cfg.CheckInterval)
	defer stop()

	s.tick(ctx)
	for {
		select {
		case <-s.stopCh:
			return
		case <-tickCh:
			s.tick(ctx)
		}
	}
}

// tick runs one scheduling pass. Loop-level failures are logged and the
// loop self-heals on the next tick.
func (s *Service) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("Scheduler tick panicked")
		}
	}()

	s.status.MarkTick()

	if s.before != nil {
		s.before(ctx)
	}

	rules, err := s.rules.GetActiveRules(ctx, s.now())
	if err != nil {
		s.log.Error().Err(err).Msg("Loading active rules failed")
		return
	}
	s.status.BeginTick(len(rules))

	if len(rules) == 0 {
		return
	}

	sem := make(chan struct{}, s.cfg.MaxWorkers)
	var wg sync.WaitGroup
	for _, rule := range rules {
		wg.Add(1)
		sem <- struct{}{}
		go func(rule models.AlertRule) {
			defer wg.Done()
			defer func() { <-sem }()
			s.checkRule(ctx, rule)
		}(rule)
	}
	wg.Wait()
}

// checkRule evaluates a single rule under its timeout. Every failure is
// caught and recorded; nothing here aborts the tick or other rules.
func (s *Service) checkRule(ctx context.Context, rule models.AlertRule) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("rule_id", rule.ID).Msg("Rule evaluation panicked")
			s.status.RecordCheck(true)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RuleTimeout)
	defer cancel()

	now := s.now()
	if err := s.rules.TouchRuleChecked(ctx, rule.ID, now); err != nil {
		s.log.Warn().Err(err).Str("rule_id", rule.ID).Msg("Updating last-checked failed")
	}

	current, err := s.currentValue(ctx, rule)
	if err == nil {
		var triggered bool
		triggered, err = Evaluate(rule, current)
		if err == nil {
			s.finishCheck(ctx, rule, current, triggered)
			return
		}
	}

	// Failed check: recorded in history, rule left unchanged.
	s.status.RecordCheck(true)
	s.log.Warn().Err(err).Str("rule_id", rule.ID).Str("symbol", rule.Symbol).Msg("Rule check failed")
	s.record(models.AlertHistoryEntry{
		ID:         uuid.NewString(),
		RuleID:     rule.ID,
		Timestamp:  now,
		Threshold:  rule.Threshold,
		Triggered:  false,
		CheckError: err.Error(),
	})
}

func (s *Service) currentValue(ctx context.Context, rule models.AlertRule) (float64, error) {
	if rule.Condition == models.ConditionPortfolioValue {
		if s.valuer == nil {
			return 0, errors.NewEvaluationError(rule.ID, rule.Symbol, "portfolio valuer not configured", nil)
		}
		return s.valuer.PortfolioValue(ctx, rule.UserID)
	}
	data, err := s.prices.CurrentPrice(ctx, rule.Symbol)
	if err != nil {
		return 0, err
	}
	return data.Price, nil
}

func (s *Service) finishCheck(ctx context.Context, rule models.AlertRule, current float64, triggered bool) {
	s.status.RecordCheck(false)
	now := s.now()

	if !triggered {
		s.record(models.AlertHistoryEntry{
			ID:            uuid.NewString(),
			RuleID:        rule.ID,
			Timestamp:     now,
			ObservedValue: current,
			Threshold:     rule.Threshold,
			Triggered:     false,
		})
		return
	}

	// An ongoing breach inside the cool-down window is suppressed
	// entirely: no repeat notification and no duplicate history entry.
	cooldown := rule.Cooldown()
	if cooldown <= 0 {
		cooldown = s.cfg.DefaultCooldown
	}
	if s.status.InCooldown(rule.ID, cooldown) {
		s.log.Debug().Str("rule_id", rule.ID).Msg("Breach still in cool-down, suppressed")
		return
	}
	s.status.RecordTrigger(rule.ID)

	breach := models.BreachContext{
		RuleID:        rule.ID,
		Symbol:        rule.Symbol,
		Condition:     rule.Condition,
		ObservedValue: current,
		Threshold:     rule.Threshold,
		Timestamp:     now,
	}

	outcome := ""
	if s.notifier != nil {
		results := s.notifier.Send(ctx, rule, breach)
		outcome = notify.Summary(results)
	}

	s.log.Info().
		Str("rule_id", rule.ID).
		Str("symbol", rule.Symbol).
		Str("condition", string(rule.Condition)).
		Float64("observed", current).
		Float64("threshold", rule.Threshold).
		Str("notifications", outcome).
		Msg("Alert triggered")

	s.record(models.AlertHistoryEntry{
		ID:                  uuid.NewString(),
		RuleID:              rule.ID,
		Timestamp:           now,
		ObservedValue:       current,
		Threshold:           rule.Threshold,
		Triggered:           true,
		NotificationOutcome: outcome,
	})

	if !rule.Rearm {
		// Retirement is a durable write like the history entry: it must
		// not be lost to a shutdown cancel racing the triggered check.
		retireCtx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := s.rules.UpdateRuleStatus(retireCtx, rule.ID, models.RuleTriggered); err != nil {
			s.log.Warn().Err(err).Str("rule_id", rule.ID).Msg("Updating rule status failed")
		}
	}
}

// record writes a history entry under its own deadline. The evaluation
// context may already be expired (rule timeout) or cancelled (shutdown)
// by the time the outcome is known; the durable record must survive both.
func (s *Service) record(entry models.AlertHistoryEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := s.rules.RecordHistory(ctx, entry); err != nil {
		s.log.Warn().Err(err).Str("rule_id", entry.RuleID).Msg("Recording history failed")
	}
}
