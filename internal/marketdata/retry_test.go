package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-sentry/internal/errors"
)

func rateLimitedErr() error {
	return errors.NewUpstreamError("test", errors.UpstreamRateLimited, 429, "too many requests", nil)
}

func transientErr() error {
	return errors.NewUpstreamError("test", errors.UpstreamTransient, 503, "service unavailable", nil)
}

func permanentErr() error {
	return errors.NewUpstreamError("test", errors.UpstreamPermanent, 400, "bad request", nil)
}

func newTestRetrier(maxRetries int, baseDelay time.Duration) (*RetryExecutor, *fakeClock) {
	clock := newFakeClock()
	e := NewRetryExecutor(maxRetries, baseDelay, zerolog.Nop())
	e.sleep = clock.sleep
	return e, clock
}

func TestRetryExecutor_SucceedsFirstAttempt(t *testing.T) {
	e, clock := newTestRetrier(3, time.Second)

	calls := 0
	err := e.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clock.sleeps())
}

func TestRetryExecutor_ExponentialBackoffSchedule(t *testing.T) {
	e, clock := newTestRetrier(3, time.Second)

	calls := 0
	err := e.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls <= 3 {
			return transientErr()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, clock.sleeps())
}

func TestRetryExecutor_RateLimitedExhaustsBudget(t *testing.T) {
	// Three consecutive 429s against a budget of two retries: the run
	// fails with the last 429 after exactly three attempts.
	e, clock := newTestRetrier(2, time.Second)

	calls := 0
	err := e.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return rateLimitedErr()
	})
	require.Error(t, err)
	assert.True(t, errors.IsRateLimited(err))
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.sleeps())
}

func TestRetryExecutor_PermanentFailsImmediately(t *testing.T) {
	e, clock := newTestRetrier(5, time.Second)

	calls := 0
	err := e.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return permanentErr()
	})
	require.Error(t, err)
	assert.True(t, errors.IsPermanent(err))
	assert.Equal(t, 1, calls, "permanent failures must not be retried")
	assert.Empty(t, clock.sleeps())
}

func TestRetryExecutor_ZeroRetries(t *testing.T) {
	e, _ := newTestRetrier(0, time.Second)

	calls := 0
	err := e.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return transientErr()
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryExecutor_ContextCancelledDuringBackoff(t *testing.T) {
	e := NewRetryExecutor(3, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		// Cancel once the first attempt has failed and backoff started.
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := e.Do(ctx, func(ctx context.Context) error {
		calls++
		return transientErr()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
