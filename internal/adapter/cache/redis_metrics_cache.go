package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JuhanV/Sleep-Game/internal/repository"
)

// RedisMetricsCache stores JSON encoded upstream responses.
type RedisMetricsCache struct {
	client redis.UniversalClient
}

var _ repository.MetricsCache = (*RedisMetricsCache)(nil)

// NewRedisMetricsCache constructs a Redis-backed metrics cache.
func NewRedisMetricsCache(client redis.UniversalClient) *RedisMetricsCache {
	return &RedisMetricsCache{client: client}
}

// Get decodes the cached value into dest. It reports false on a miss.
func (c *RedisMetricsCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	bytes, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("load cached metrics: %w", err)
	}
	if err := json.Unmarshal(bytes, dest); err != nil {
		return false, fmt.Errorf("decode cached metrics: %w", err)
	}
	return true, nil
}

// Set stores value for ttl. A non-positive ttl is a no-op.
func (c *RedisMetricsCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("cache metrics: %w", err)
	}
	return nil
}

// DeletePrefix drops every key starting with prefix.
func (c *RedisMetricsCache) DeletePrefix(ctx context.Context, prefix string) error {
	iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cached metrics: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete cached metrics: %w", err)
	}
	return nil
}
