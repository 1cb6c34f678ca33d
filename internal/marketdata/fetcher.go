package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"portfolio-sentry/internal/models"
)

// FetchPolicy bundles the per-call policy parameters of a resilient fetch.
type FetchPolicy struct {
	// TTL is the freshness window for the cached result.
	TTL time.Duration
	// RateInterval is the minimum spacing between calls to the API identity.
	RateInterval time.Duration
	// MaxRetries is the retry budget after the initial attempt.
	MaxRetries int
	// RetryDelay is the base delay of the exponential backoff schedule.
	RetryDelay time.Duration
}

// Fetcher is the fetch-with-policy primitive every upstream call goes
// through. It composes the cache, per-identity rate limiting, bounded retry,
// and a per-identity circuit breaker.
type Fetcher struct {
	cache    CacheStore
	limiters *LimiterRegistry

	breakerMu  sync.Mutex
	breakers   map[string]*CircuitBreaker
	breakerCfg BreakerConfig

	log zerolog.Logger
}

// NewFetcher creates a Fetcher over the given cache.
func NewFetcher(cache CacheStore, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		cache:      cache,
		limiters:   NewLimiterRegistry(),
		breakers:   make(map[string]*CircuitBreaker),
		breakerCfg: DefaultBreakerConfig(),
		log:        log.With().Str("component", "fetcher").Logger(),
	}
}

// Cache exposes the underlying cache store for stats and invalidation.
func (f *Fetcher) Cache() CacheStore {
	return f.cache
}

// Fetch returns the value for key, producing it through producer when no
// fresh cache entry exists.
//
// A fresh cache hit returns without invoking producer or consuming rate
// budget. On miss the rate slot for identity is acquired before every
// attempt (failed attempts still consume pacing budget), and producer runs
// under the retry policy. Successful results are cached before being
// returned; a producer error is never cached and the last observed error
// propagates once retries exhaust.
func (f *Fetcher) Fetch(
	ctx context.Context,
	identity, key string,
	policy FetchPolicy,
	producer func(ctx context.Context) (models.PriceData, error),
) (models.PriceData, error) {
	if value, ok, err := f.cache.Get(ctx, key); err == nil && ok {
		return value, nil
	} else if err != nil {
		f.log.Warn().Err(err).Str("key", key).Msg("Cache read failed, fetching upstream")
	}

	var result models.PriceData
	err := f.execute(ctx, identity, policy, func(ctx context.Context) error {
		value, err := producer(ctx)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return models.PriceData{}, err
	}

	if err := f.cache.Set(ctx, key, result, policy.TTL); err != nil {
		f.log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
	return result, nil
}

// FetchBatch runs one bulk producer call under the identity's policies and
// caches every returned symbol. The cache is not consulted first: batch
// fetches are forced refreshes.
func (f *Fetcher) FetchBatch(
	ctx context.Context,
	identity string,
	policy FetchPolicy,
	producer func(ctx context.Context) (map[string]models.PriceData, error),
) (map[string]models.PriceData, error) {
	var result map[string]models.PriceData
	err := f.execute(ctx, identity, policy, func(ctx context.Context) error {
		prices, err := producer(ctx)
		if err != nil {
			return err
		}
		result = prices
		return nil
	})
	if err != nil {
		return nil, err
	}

	for symbol, data := range result {
		if err := f.cache.Set(ctx, PriceKey(symbol), data, policy.TTL); err != nil {
			f.log.Warn().Err(err).Str("symbol", symbol).Msg("Cache write failed")
		}
	}
	return result, nil
}

func (f *Fetcher) execute(ctx context.Context, identity string, policy FetchPolicy, fn func(ctx context.Context) error) error {
	limiter := f.limiters.Get(identity, policy.RateInterval)
	breaker := f.breaker(identity)
	retrier := NewRetryExecutor(policy.MaxRetries, policy.RetryDelay, f.log)

	return retrier.Do(ctx, func(ctx context.Context) error {
		if err := breaker.Allow(); err != nil {
			return err
		}
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		if err := fn(ctx); err != nil {
			breaker.RecordFailure()
			return err
		}
		breaker.RecordSuccess()
		return nil
	})
}

func (f *Fetcher) breaker(identity string) *CircuitBreaker {
	f.breakerMu.Lock()
	defer f.breakerMu.Unlock()

	if cb, ok := f.breakers[identity]; ok {
		return cb
	}
	cb := NewCircuitBreaker(identity, f.breakerCfg)
	f.breakers[identity] = cb
	return cb
}
