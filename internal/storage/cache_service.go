package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// CacheKeyType represents different types of cache keys
type CacheKeyType string

const (
	// CacheKeyBalance is for the confirmed ledger balance
	CacheKeyBalance CacheKeyType = "balance"
	// CacheKeyLedger is for ledger listings
	CacheKeyLedger CacheKeyType = "ledger"
)

// CacheService provides JSON caching on top of Redis
type CacheService struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewCacheService creates a new cache service
func NewCacheService(redis *RedisCache, ttl time.Duration) *CacheService {
	return &CacheService{
		redis: redis,
		ttl:   ttl,
	}
}

// GenerateCacheKey generates a cache key for a given type and parameters.
// Format: <type>:<param1>:<param2>:...
func (c *CacheService) GenerateCacheKey(keyType CacheKeyType, params ...string) string {
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, string(keyType))
	for _, p := range params {
		parts = append(parts, strings.ToLower(p))
	}
	return strings.Join(parts, ":")
}

// BalanceKey is the key of the confirmed balance
func (c *CacheService) BalanceKey() string {
	return c.GenerateCacheKey(CacheKeyBalance, "confirmed")
}

// Set stores a value in cache with the configured TTL
func (c *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores a value in cache with a custom TTL
func (c *CacheService) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.redis.Set(ctx, key, data, ttl)
}

// Get loads key into dest. A miss returns false with no error.
func (c *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.redis.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get from cache: %w", err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return true, nil
}

// Invalidate removes one or more keys from cache
func (c *CacheService) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...)
}

// InvalidatePattern removes all keys matching a glob pattern, e.g. "ledger:*"
func (c *CacheService) InvalidatePattern(ctx context.Context, pattern string) error {
	var keys []string
	iter := c.redis.Client().Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to find keys matching pattern: %w", err)
	}
	return c.Invalidate(ctx, keys...)
}

// GetBalance returns the cached confirmed balance, if any
func (c *CacheService) GetBalance(ctx context.Context) (decimal.Decimal, bool, error) {
	var balance decimal.Decimal
	found, err := c.Get(ctx, c.BalanceKey(), &balance)
	if err != nil || !found {
		return decimal.Zero, false, err
	}
	return balance, true, nil
}

// SetBalance caches the confirmed balance
func (c *CacheService) SetBalance(ctx context.Context, balance decimal.Decimal) error {
	return c.Set(ctx, c.BalanceKey(), balance)
}

// InvalidateLedger drops every ledger-derived key. Called after a scan tick
// persisted something and after any API write.
func (c *CacheService) InvalidateLedger(ctx context.Context) error {
	if err := c.Invalidate(ctx, c.BalanceKey()); err != nil {
		return fmt.Errorf("failed to invalidate balance cache: %w", err)
	}
	return c.InvalidatePattern(ctx, string(CacheKeyLedger)+":*")
}

// GetTTL returns the configured TTL for this cache service
func (c *CacheService) GetTTL() time.Duration {
	return c.ttl
}
