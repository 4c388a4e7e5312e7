package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Cache provides typed caching utilities
// ⭐ SSOT: 캐시 헬퍼는 여기서만
type Cache struct {
	client *Client
}

// NewCache creates a new cache helper
func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

// Get retrieves a cached value
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.client.Key("cache", key)).Bytes()
	if err != nil {
		// Key not found is not an error
		return false, nil
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}

	return true, nil
}

// Set stores a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return c.client.Redis().Set(ctx, c.client.Key("cache", key), data, ttl).Err()
}

// Delete removes a cached value
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.client.Enabled() {
		return nil
	}

	return c.client.Redis().Del(ctx, c.client.Key("cache", key)).Err()
}

// DeleteMatching removes every cached value whose key matches a glob pattern
func (c *Cache) DeleteMatching(ctx context.Context, pattern string) (int, error) {
	if !c.client.Enabled() {
		return 0, nil
	}

	var keys []string
	iter := c.client.Redis().Scan(ctx, 0, c.client.Key("cache", pattern), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	n, err := c.client.Redis().Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("delete cache keys: %w", err)
	}
	return int(n), nil
}

// GetOrSet retrieves from cache or calls fn to populate it
func (c *Cache) GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, fn func() (interface{}, error)) error {
	found, err := c.Get(ctx, key, dest)
	if err != nil {
		return err
	}
	if found {
		return nil
	}

	// Cache miss - call function
	value, err := fn()
	if err != nil {
		return err
	}

	// Store failure is ignored, the value is still returned
	_ = c.Set(ctx, key, value, ttl)

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}
	return json.Unmarshal(data, dest)
}

// TTLShort bounds report staleness for writers that cannot invalidate (CLI, scheduler)
const TTLShort = 1 * time.Minute

// ReportKeyPatterns every report cache key, cleared after forecast writes
var ReportKeyPatterns = []string{"accuracy:*", "drift:*"}

// Common cache key generators
func HorizonAccuracyKey(year int, horizon string, orderType string) string {
	if orderType == "" {
		orderType = "all"
	}
	return fmt.Sprintf("accuracy:%d:%s:%s", year, horizon, orderType)
}

func DriftKey(year, month int, vendorID int64, sku string) string {
	return fmt.Sprintf("drift:%d:%02d:%d:%s", year, month, vendorID, sku)
}
