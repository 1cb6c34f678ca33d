package marketdata

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"portfolio-sentry/internal/models"
)

// redisEnvelope wraps a cached value with its write timestamp so freshness
// is computed client-side. The Redis key expiry is set to twice the TTL,
// which keeps stale entries readable for one extra TTL window.
type redisEnvelope struct {
	Value    models.PriceData `json:"value"`
	StoredAt time.Time        `json:"stored_at"`
	TTL      time.Duration    `json:"ttl"`
}

// RedisCache is the external CacheStore backend.
type RedisCache struct {
	client *redis.Client

	statsMu sync.Mutex
	stats   CacheStats

	now func() time.Time
}

// NewRedisCache creates a CacheStore backed by the given Redis server.
func NewRedisCache(addr, password string, db int) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{
		client: client,
		stats:  CacheStats{Backend: "redis"},
		now:    time.Now,
	}
}

// Get returns the value for key if a fresh entry exists.
func (c *RedisCache) Get(ctx context.Context, key string) (models.PriceData, bool, error) {
	env, ok, err := c.load(ctx, key)
	if err != nil || !ok {
		c.count(func(s *CacheStats) { s.Misses++ })
		return models.PriceData{}, false, err
	}
	if c.now().Sub(env.StoredAt) >= env.TTL {
		c.count(func(s *CacheStats) { s.Misses++ })
		return models.PriceData{}, false, nil
	}
	c.count(func(s *CacheStats) { s.Hits++ })
	return env.Value, true, nil
}

// GetStale returns the value for key regardless of freshness.
func (c *RedisCache) GetStale(ctx context.Context, key string) (models.PriceData, bool, error) {
	env, ok, err := c.load(ctx, key)
	if err != nil || !ok {
		return models.PriceData{}, false, err
	}
	if c.now().Sub(env.StoredAt) >= env.TTL {
		c.count(func(s *CacheStats) { s.StaleHits++ })
	}
	return env.Value, true, nil
}

// Set stores value under key with the given TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value models.PriceData, ttl time.Duration) error {
	env := redisEnvelope{Value: value, StoredAt: c.now(), TTL: ttl}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, data, 2*ttl).Err(); err != nil {
		return err
	}
	c.count(func(s *CacheStats) { s.Sets++ })
	return nil
}

// ClearPattern removes all entries matching the glob pattern using SCAN.
func (c *RedisCache) ClearPattern(ctx context.Context, pattern string) (int, error) {
	removed := 0
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, iter.Err()
}

// HealthCheck pings the Redis server.
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Stats returns a snapshot of cache counters. Entries reflects the server's
// keyspace size.
func (c *RedisCache) Stats() CacheStats {
	c.statsMu.Lock()
	stats := c.stats
	c.statsMu.Unlock()

	if n, err := c.client.DBSize(context.Background()).Result(); err == nil {
		stats.Entries = int(n)
	}
	return stats
}

// Close closes the underlying Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) load(ctx context.Context, key string) (redisEnvelope, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return redisEnvelope{}, false, nil
	}
	if err != nil {
		return redisEnvelope{}, false, err
	}
	var env redisEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return redisEnvelope{}, false, err
	}
	return env, true, nil
}

func (c *RedisCache) count(fn func(*CacheStats)) {
	c.statsMu.Lock()
	fn(&c.stats)
	c.statsMu.Unlock()
}
