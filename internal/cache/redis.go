package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "url:"

// URLCache is a best-effort short code → long URL cache. Implementations
// must treat every underlying failure as a miss; the resolver never sees a
// cache error.
type URLCache interface {
	// Get returns the cached long URL for a short code, or ok=false on a
	// miss or any underlying error.
	Get(ctx context.Context, shortCode string) (longURL string, ok bool)

	// Set stores a mapping with the given TTL. A zero TTL means no expiry.
	Set(ctx context.Context, shortCode, longURL string, ttl time.Duration)
}

// Compile-time interface checks
var (
	_ URLCache = (*RedisURLCache)(nil)
	_ URLCache = noopURLCache{}
)

// RedisURLCache implements URLCache on Redis. Keys carry the "url:" prefix
// so this subsystem's entries stay partitioned from other uses of the same
// Redis instance.
type RedisURLCache struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedisURLCache creates the Redis-backed cache, or a no-op cache when
// the client is nil so the resolver degrades to store reads.
func NewRedisURLCache(rdb *redis.Client, logger *zap.Logger) URLCache {
	if rdb == nil {
		return noopURLCache{}
	}
	return &RedisURLCache{rdb: rdb, logger: logger}
}

// Key returns the namespaced cache key for a short code.
func Key(shortCode string) string {
	return keyPrefix + shortCode
}

func (c *RedisURLCache) Get(ctx context.Context, shortCode string) (string, bool) {
	val, err := c.rdb.Get(ctx, Key(shortCode)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache get failed, treating as miss",
				zap.String("short_code", shortCode),
				zap.Error(err),
			)
		}
		return "", false
	}
	return val, true
}

func (c *RedisURLCache) Set(ctx context.Context, shortCode, longURL string, ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	// Redis treats a zero expiration as "store without expiry", which is
	// the contract for records that never expire.
	if err := c.rdb.Set(ctx, Key(shortCode), longURL, ttl).Err(); err != nil {
		c.logger.Warn("cache set failed",
			zap.String("short_code", shortCode),
			zap.Error(err),
		)
	}
}

// noopURLCache stands in when Redis is not available. Every read is a miss.
type noopURLCache struct{}

func (noopURLCache) Get(context.Context, string) (string, bool) { return "", false }

func (noopURLCache) Set(context.Context, string, string, time.Duration) {}
