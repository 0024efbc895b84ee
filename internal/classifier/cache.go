package classifier

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyCategory = "category:"

// Cache stores predicted categories by normalized description.
type Cache interface {
	Get(ctx context.Context, description string) (string, bool, error)
	Set(ctx context.Context, description, category string) error
}

// RedisCache keeps predictions in Redis with a fixed TTL.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, description string) (string, bool, error) {
	category, err := c.rdb.Get(ctx, keyCategory+description).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return category, true, nil
}

func (c *RedisCache) Set(ctx context.Context, description, category string) error {
	return c.rdb.Set(ctx, keyCategory+description, category, c.ttl).Err()
}
