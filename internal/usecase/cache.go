package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/eco-collect/internal/retry"
)

// ErrCacheMiss is returned by Cache.Get for absent keys.
var ErrCacheMiss = redis.Nil

// Cache abstracts the Redis operations used by the use cases to make testing easier.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache is a concrete implementation backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a new Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set writes a value to Redis.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a cached value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// newCacheRetrier retries cache calls that failed for transient reasons.
// Misses are answered at once.
func newCacheRetrier(logger *zap.Logger) retry.Retrier {
	return retry.Retrier{
		Logger:         logger,
		Attempts:       3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     time.Second,
		Retryable:      retry.Transient,
		Expected:       isCacheMiss,
	}
}

func isCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
