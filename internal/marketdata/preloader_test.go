package marketdata

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-sentry/internal/models"
)

// fakeProvider serves canned prices and counts upstream calls.
type fakeProvider struct {
	mu         sync.Mutex
	prices     map[string]models.PriceData
	err        error
	priceCalls atomic.Int64
	batchCalls atomic.Int64
}

func newFakeProvider(prices map[string]float64) *fakeProvider {
	p := &fakeProvider{prices: make(map[string]models.PriceData)}
	for symbol, price := range prices {
		p.prices[symbol] = models.PriceData{Symbol: symbol, Price: price, FetchedAt: time.Now()}
	}
	return p
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) setPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = models.PriceData{Symbol: symbol, Price: price, FetchedAt: time.Now()}
}

func (p *fakeProvider) GetPrice(_ context.Context, symbol string) (models.PriceData, error) {
	p.priceCalls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return models.PriceData{}, p.err
	}
	data, ok := p.prices[symbol]
	if !ok {
		return models.PriceData{}, permanentErr()
	}
	return data, nil
}

func (p *fakeProvider) GetPrices(_ context.Context, symbols []string) (map[string]models.PriceData, error) {
	p.batchCalls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	out := make(map[string]models.PriceData, len(symbols))
	for _, symbol := range symbols {
		if data, ok := p.prices[symbol]; ok {
			out[symbol] = data
		}
	}
	return out, nil
}

func newTestPreloader(provider Provider, minInterval time.Duration) (*BatchPreloader, *MemoryCache) {
	cache := NewMemoryCache()
	fetcher := NewFetcher(cache, zerolog.Nop())
	p := NewBatchPreloader(fetcher, provider, testPolicy(), minInterval, zerolog.Nop())
	return p, cache
}

func TestBatchPreloader_SingleFlight(t *testing.T) {
	provider := newFakeProvider(map[string]float64{"BTC": 65000, "ETH": 3200})
	preloader, cache := newTestPreloader(provider, 0)

	universe := []string{"BTC", "ETH"}
	var started atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if preloader.EnsureFresh(context.Background(), universe) {
				started.Add(1)
			}
		}()
	}
	wg.Wait()
	preloader.Wait()

	assert.Equal(t, int64(1), started.Load(), "exactly one preload may start")
	assert.Equal(t, int64(1), provider.batchCalls.Load())

	_, ok, err := cache.Get(context.Background(), PriceKey("BTC"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBatchPreloader_MinIntervalGuard(t *testing.T) {
	provider := newFakeProvider(map[string]float64{"BTC": 65000})
	preloader, _ := newTestPreloader(provider, time.Hour)

	clock := newFakeClock()
	preloader.now = clock.now

	ctx := context.Background()
	require.True(t, preloader.EnsureFresh(ctx, []string{"BTC"}))
	preloader.Wait()

	clock.advance(30 * time.Minute)
	assert.False(t, preloader.EnsureFresh(ctx, []string{"BTC"}),
		"preload within the minimum interval must be skipped")

	clock.advance(31 * time.Minute)
	assert.True(t, preloader.EnsureFresh(ctx, []string{"BTC"}))
	preloader.Wait()
}

func TestBatchPreloader_FailureClearsInFlight(t *testing.T) {
	provider := newFakeProvider(nil)
	provider.err = permanentErr()
	preloader, _ := newTestPreloader(provider, 0)

	ctx := context.Background()
	require.True(t, preloader.EnsureFresh(ctx, []string{"BTC"}))
	preloader.Wait()

	assert.False(t, preloader.InFlight(), "failed preload must clear the in-flight flag")
	assert.True(t, preloader.EnsureFresh(ctx, []string{"BTC"}),
		"a failed preload must not block future attempts")
	preloader.Wait()
}

func TestBatchPreloader_EmptyUniverse(t *testing.T) {
	provider := newFakeProvider(nil)
	preloader, _ := newTestPreloader(provider, 0)

	assert.False(t, preloader.EnsureFresh(context.Background(), nil))
	assert.Equal(t, int64(0), provider.batchCalls.Load())
}
