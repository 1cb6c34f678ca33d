package marketdata

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"portfolio-sentry/internal/models"
)

// BatchPreloader bulk-fetches and caches market data for the tracked-asset
// universe in the background.
//
// At most one preload runs system-wide at a time, and a new attempt may not
// start within minInterval of the previous attempt regardless of its
// outcome, so a failed preload is not retried more aggressively than a
// successful one.
type BatchPreloader struct {
	fetcher  *Fetcher
	provider Provider
	policy   FetchPolicy

	minInterval time.Duration

	inFlight atomic.Bool
	mu       sync.Mutex
	lastTry  time.Time

	wg  sync.WaitGroup
	log zerolog.Logger
	now func() time.Time
}

// NewBatchPreloader creates a preloader fetching through the given fetcher
// and provider.
func NewBatchPreloader(fetcher *Fetcher, provider Provider, policy FetchPolicy, minInterval time.Duration, log zerolog.Logger) *BatchPreloader {
	return &BatchPreloader{
		fetcher:     fetcher,
		provider:    provider,
		policy:      policy,
		minInterval: minInterval,
		log:         log.With().Str("component", "preloader").Logger(),
		now:         time.Now,
	}
}

// EnsureFresh starts a background preload of symbols unless one is already
// in flight or the previous attempt was less than the minimum interval ago.
// It returns immediately; the return value reports whether a preload was
// started.
func (p *BatchPreloader) EnsureFresh(ctx context.Context, symbols []string) bool {
	if len(symbols) == 0 {
		return false
	}

	p.mu.Lock()
	if !p.lastTry.IsZero() && p.now().Sub(p.lastTry) < p.minInterval {
		p.mu.Unlock()
		return false
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		p.mu.Unlock()
		return false
	}
	p.lastTry = p.now()
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		// The flag clears unconditionally so a failed preload never
		// blocks future attempts.
		defer p.inFlight.Store(false)
		defer p.wg.Done()
		p.run(ctx, symbols)
	}()
	return true
}

// Wait blocks until any in-flight preload has finished.
func (p *BatchPreloader) Wait() {
	p.wg.Wait()
}

// InFlight reports whether a preload is currently running.
func (p *BatchPreloader) InFlight() bool {
	return p.inFlight.Load()
}

func (p *BatchPreloader) run(ctx context.Context, symbols []string) {
	start := p.now()
	prices, err := p.fetcher.FetchBatch(ctx, p.provider.Name(), p.policy, func(ctx context.Context) (map[string]models.PriceData, error) {
		return p.provider.GetPrices(ctx, symbols)
	})
	if err != nil {
		p.log.Warn().
			Err(err).
			Int("symbols", len(symbols)).
			Msg("Batch preload failed")
		return
	}

	p.log.Info().
		Int("requested", len(symbols)).
		Int("loaded", len(prices)).
		Dur("duration", p.now().Sub(start)).
		Msg("Batch preload completed")
}
