package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"portfolio-sentry/internal/errors"
)

// RetryExecutor wraps a call with bounded exponential-backoff retry.
//
// Rate-limited (429) and transient failures are retried with delay
// baseDelay * 2^attempt; permanent upstream failures are surfaced
// immediately. Exhausting the budget propagates the last observed error.
type RetryExecutor struct {
	maxRetries int
	baseDelay  time.Duration
	log        zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryExecutor creates an executor allowing maxRetries retries after the
// initial attempt.
func NewRetryExecutor(maxRetries int, baseDelay time.Duration, log zerolog.Logger) *RetryExecutor {
	return &RetryExecutor{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		log:        log.With().Str("component", "retry").Logger(),
		sleep:      sleepCtx,
	}
}

// Do runs fn, retrying retryable failures up to the configured budget.
func (e *RetryExecutor) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.IsPermanent(err) {
			return err
		}
		if attempt == e.maxRetries {
			break
		}

		delay := e.baseDelay << uint(attempt)
		e.log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_retries", e.maxRetries).
			Dur("delay", delay).
			Bool("rate_limited", errors.IsRateLimited(err)).
			Msg("Retrying after failure")

		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return lastErr
}

// MaxRetries returns the configured retry budget.
func (e *RetryExecutor) MaxRetries() int {
	return e.maxRetries
}
