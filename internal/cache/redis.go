package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/driaug/plunk/internal/perr"
)

// RedisCache backs the workflow-trigger and activity-stats caches with
// Redis, wrapping every client error as a CacheError so Degrading can
// detect it. A nil *redis.Client is never constructed here; the caller
// decides whether to wire RedisCache or fall back to MemoryCache based
// on configuration.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing go-redis client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &perr.CacheError{Op: "get", Cause: err}
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return &perr.CacheError{Op: "set", Cause: err}
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return &perr.CacheError{Op: "delete", Cause: err}
	}
	return nil
}

// DeleteByPrefix scans for prefix* keys and deletes them in batches. Scan
// is used instead of KEYS to avoid blocking the Redis event loop on a
// large keyspace.
func (c *RedisCache) DeleteByPrefix(ctx context.Context, prefix string) error {
	var cursor uint64
	pattern := prefix + "*"

	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return &perr.CacheError{Op: "scan", Cause: err}
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return &perr.CacheError{Op: "delete-by-prefix", Cause: err}
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}
