// Package marketdata implements the resilient market-data access layer:
// a TTL cache with pluggable backends, per-provider rate limiting, retry
// with exponential backoff, and background bulk preloading.
package marketdata

import (
	"context"
	"time"

	"portfolio-sentry/internal/models"
)

// CacheStore is a key -> (value, timestamp) store with TTL expiry.
//
// An entry is fresh iff now - storedAt < ttl. Stale entries remain readable
// through GetStale so callers can serve degraded data while a refresh runs;
// they are never silently extended.
type CacheStore interface {
	// Get returns the value for key if a fresh entry exists.
	Get(ctx context.Context, key string) (models.PriceData, bool, error)
	// GetStale returns the value for key regardless of freshness. The
	// second return is true when any entry exists, fresh or stale.
	GetStale(ctx context.Context, key string) (models.PriceData, bool, error)
	// Set stores value under key with the given TTL, stamped now.
	Set(ctx context.Context, key string, value models.PriceData, ttl time.Duration) error
	// ClearPattern removes all entries whose key matches the glob pattern
	// (e.g. "price:*") and returns how many were removed.
	ClearPattern(ctx context.Context, pattern string) (int, error)
	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error
	// Stats returns a snapshot of cache counters.
	Stats() CacheStats
	Close() error
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Backend   string `json:"backend"`
	Hits      int64  `json:"hits"`
	Misses    int64  `json:"misses"`
	StaleHits int64  `json:"stale_hits"`
	Sets      int64  `json:"sets"`
	Entries   int    `json:"entries"`
}

// PriceKey builds the cache key for a single symbol's market data.
func PriceKey(symbol string) string {
	return "price:" + symbol
}

// PricePattern matches every cached market-data entry.
const PricePattern = "price:*"
