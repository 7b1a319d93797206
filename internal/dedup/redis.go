package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a dedup cache backed by Redis, for gateways running more
// than one instance behind the same provider webhooks. It implements the
// same ShouldSkip contract as Cache using Redis's SETNX-with-expiry as the
// atomic "first sighting" check.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache wraps an existing Redis client. prefix namespaces keys so
// the dedup cache can share a Redis instance with other subsystems.
func NewRedisCache(client *redis.Client, ttl time.Duration, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "clawdbot:dedup:"
	}
	return &RedisCache{client: client, ttl: ttl, prefix: prefix}
}

// ShouldSkip mirrors Cache.ShouldSkip but uses Redis SETNX so concurrent
// gateway instances agree on which of them saw the message first.
func (c *RedisCache) ShouldSkip(ctx context.Context, e Entry) bool {
	if e.MessageID == "" {
		return false
	}

	ok, err := c.client.SetNX(ctx, c.prefix+e.key(), 1, c.ttl).Result()
	if err != nil {
		// Redis unavailable: fail open rather than block admission.
		return false
	}
	return !ok
}
