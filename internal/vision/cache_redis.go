package vision

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares extraction results across instances. Cache errors are
// logged and treated as misses; the cache is never on the failure path.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisCache) key(imageKey string) string {
	return "vision:extraction:" + imageKey
}

func (c *RedisCache) Get(ctx context.Context, imageKey string) (*Extraction, bool) {
	raw, err := c.client.Get(ctx, c.key(imageKey)).Bytes()
	if err != nil {
		if err != redis.Nil && c.logger != nil {
			c.logger.Warn("extraction cache read failed", "error", err)
		}
		return nil, false
	}
	var ext Extraction
	if err := json.Unmarshal(raw, &ext); err != nil {
		return nil, false
	}
	return &ext, true
}

func (c *RedisCache) Set(ctx context.Context, imageKey string, extraction *Extraction) {
	if extraction == nil {
		return
	}
	raw, err := json.Marshal(extraction)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(imageKey), raw, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.Warn("extraction cache write failed", "error", err)
	}
}
