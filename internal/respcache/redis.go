package respcache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache shares cached responses between processes. Redis errors are
// logged and treated as misses so a cache outage never fails a query.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
	logger *zap.SugaredLogger
}

func NewRedisCache(rdb *redis.Client, prefix string, logger *zap.SugaredLogger) *RedisCache {
	if prefix == "" {
		prefix = "gqlcache:"
	}
	return &RedisCache{rdb: rdb, prefix: prefix, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warnw("response cache get failed", "err", err)
		}
		return nil, false
	}
	return b, true
}

func (c *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := c.rdb.Set(ctx, c.prefix+key, val, ttl).Err(); err != nil {
		c.logger.Warnw("response cache set failed", "err", err)
	}
}
