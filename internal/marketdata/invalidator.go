package marketdata

import (
	"context"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"portfolio-sentry/internal/models"
)

// PriceFunc fetches the current price record for a symbol.
type PriceFunc func(ctx context.Context, symbol string) (models.PriceData, error)

// SmartInvalidator forces cache invalidation and a preload when the
// reference asset's price moves more than the volatility threshold since
// the last recorded observation.
type SmartInvalidator struct {
	priceFn   PriceFunc
	cache     CacheStore
	preloader *BatchPreloader

	refSymbol string
	universe  []string
	threshold float64

	mu        sync.Mutex
	reference map[string]float64

	log zerolog.Logger
}

// NewSmartInvalidator creates an invalidator watching refSymbol with the
// given relative threshold (0.05 = 5%).
func NewSmartInvalidator(
	priceFn PriceFunc,
	cache CacheStore,
	preloader *BatchPreloader,
	refSymbol string,
	universe []string,
	threshold float64,
	log zerolog.Logger,
) *SmartInvalidator {
	return &SmartInvalidator{
		priceFn:   priceFn,
		cache:     cache,
		preloader: preloader,
		refSymbol: refSymbol,
		universe:  universe,
		threshold: threshold,
		reference: make(map[string]float64),
		log:       log.With().Str("component", "invalidator").Logger(),
	}
}

// ShouldInvalidate fetches the current price for symbol and compares it to
// the last recorded reference. The first observation records the price and
// returns false; afterwards it returns true iff |current-prev|/prev exceeds
// the threshold, recording the new reference only on exceedance.
func (v *SmartInvalidator) ShouldInvalidate(ctx context.Context, symbol string) (bool, error) {
	data, err := v.priceFn(ctx, symbol)
	if err != nil {
		return false, err
	}
	current := data.Price

	v.mu.Lock()
	defer v.mu.Unlock()

	prev, ok := v.reference[symbol]
	if !ok || prev == 0 {
		v.reference[symbol] = current
		return false, nil
	}

	delta := math.Abs(current-prev) / prev
	if delta > v.threshold {
		v.reference[symbol] = current
		v.log.Info().
			Str("symbol", symbol).
			Float64("previous", prev).
			Float64("current", current).
			Float64("delta", delta).
			Msg("Volatility threshold exceeded")
		return true, nil
	}
	return false, nil
}

// ConditionalRefresh invalidates the market-data cache and triggers a bulk
// preload when the reference asset is volatile. Failures never propagate:
// an error while computing volatility means no invalidation.
func (v *SmartInvalidator) ConditionalRefresh(ctx context.Context) {
	invalidate, err := v.ShouldInvalidate(ctx, v.refSymbol)
	if err != nil {
		v.log.Warn().Err(err).Str("symbol", v.refSymbol).Msg("Volatility check failed, skipping invalidation")
		return
	}
	if !invalidate {
		return
	}

	removed, err := v.cache.ClearPattern(ctx, PricePattern)
	if err != nil {
		v.log.Warn().Err(err).Msg("Cache invalidation failed")
		return
	}
	v.log.Info().Int("removed", removed).Msg("Cache invalidated on volatility")

	if v.preloader != nil {
		v.preloader.EnsureFresh(ctx, v.universe)
	}
}
