package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/lorekeep/lorekeep/internal/models"
)

// RedisCache is the shared cache backend. Invalidation uses a per-project
// generation counter: bumping the counter orphans every key written under
// the previous generation, which then ages out via TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ RetrievalCache = (*RedisCache)(nil)

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, addr string, ttl time.Duration, logger *slog.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}, nil
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) generation(ctx context.Context, project string) int64 {
	gen, err := c.client.Get(ctx, "lorekeep:gen:"+project).Int64()
	if err != nil && err != redis.Nil {
		c.logger.Warn("cache generation lookup failed", "project", project, "error", err)
	}
	return gen
}

func (c *RedisCache) entryKey(ctx context.Context, project, key string) string {
	return fmt.Sprintf("lorekeep:q:%s:%d:%s", project, c.generation(ctx, project), key)
}

func (c *RedisCache) Get(ctx context.Context, project, key string) ([]models.MemoryEntry, bool) {
	raw, err := c.client.Get(ctx, c.entryKey(ctx, project, key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache get failed", "project", project, "error", err)
		}
		return nil, false
	}
	var entries []models.MemoryEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		c.logger.Warn("cache decode failed", "project", project, "error", err)
		return nil, false
	}
	return entries, true
}

func (c *RedisCache) Set(ctx context.Context, project, key string, entries []models.MemoryEntry) {
	raw, err := json.Marshal(entries)
	if err != nil {
		c.logger.Warn("cache encode failed", "project", project, "error", err)
		return
	}
	if err := c.client.Set(ctx, c.entryKey(ctx, project, key), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", "project", project, "error", err)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, project string) {
	if err := c.client.Incr(ctx, "lorekeep:gen:"+project).Err(); err != nil {
		c.logger.Warn("cache invalidate failed", "project", project, "error", err)
	}
}
