package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-sentry/internal/models"
)

func TestMemoryCache_FreshnessWindow(t *testing.T) {
	ctx := context.Background()
	current := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	cache := NewMemoryCache()
	cache.now = func() time.Time { return current }

	data := models.PriceData{Symbol: "BTC", Price: 65000, FetchedAt: current}
	require.NoError(t, cache.Set(ctx, PriceKey("BTC"), data, time.Minute))

	// Within the TTL the entry is fresh.
	current = current.Add(59 * time.Second)
	got, ok, err := cache.Get(ctx, PriceKey("BTC"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 65000.0, got.Price)

	// At exactly TTL the entry is no longer fresh: freshness is strict.
	current = current.Add(time.Second)
	_, ok, err = cache.Get(ctx, PriceKey("BTC"))
	require.NoError(t, err)
	assert.False(t, ok)

	// The stale entry remains readable and is never silently extended.
	got, ok, err = cache.GetStale(ctx, PriceKey("BTC"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 65000.0, got.Price)

	_, ok, _ = cache.Get(ctx, PriceKey("BTC"))
	assert.False(t, ok, "reading a stale entry must not refresh it")
}

func TestMemoryCache_SetRestampsFreshness(t *testing.T) {
	ctx := context.Background()
	current := time.Unix(1700000000, 0)

	cache := NewMemoryCache()
	cache.now = func() time.Time { return current }

	require.NoError(t, cache.Set(ctx, "price:ETH", models.PriceData{Price: 3000}, time.Minute))
	current = current.Add(2 * time.Minute)

	require.NoError(t, cache.Set(ctx, "price:ETH", models.PriceData{Price: 3100}, time.Minute))
	got, ok, err := cache.Get(ctx, "price:ETH")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3100.0, got.Price)
}

func TestMemoryCache_GetMissingKey(t *testing.T) {
	cache := NewMemoryCache()
	_, ok, err := cache.Get(context.Background(), "price:NOPE")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = cache.GetStale(context.Background(), "price:NOPE")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_ClearPattern(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()

	for _, symbol := range []string{"BTC", "ETH", "SOL"} {
		require.NoError(t, cache.Set(ctx, PriceKey(symbol), models.PriceData{Symbol: symbol}, time.Minute))
	}
	require.NoError(t, cache.Set(ctx, "volatility:BTC", models.PriceData{}, time.Minute))

	removed, err := cache.ClearPattern(ctx, PricePattern)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	// Entries outside the pattern survive.
	_, ok, err := cache.GetStale(ctx, "volatility:BTC")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCache_Stats(t *testing.T) {
	ctx := context.Background()
	current := time.Unix(1700000000, 0)

	cache := NewMemoryCache()
	cache.now = func() time.Time { return current }

	cache.Get(ctx, "price:BTC") // miss
	cache.Set(ctx, "price:BTC", models.PriceData{Price: 1}, time.Minute)
	cache.Get(ctx, "price:BTC") // hit

	current = current.Add(2 * time.Minute)
	cache.Get(ctx, "price:BTC")      // miss, expired
	cache.GetStale(ctx, "price:BTC") // stale hit

	stats := cache.Stats()
	assert.Equal(t, "memory", stats.Backend)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, int64(1), stats.StaleHits)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, 1, stats.Entries)
}
