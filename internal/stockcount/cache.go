package stockcount

import (
	"context"
	"strconv"
	"time"

	"github.com/angelmondragon/credstock/pkg/logger"
	"golang.org/x/sync/singleflight"
)

const globalField = "all"

// Counter is the authoritative source of available counts.
type Counter interface {
	CountAvailable(ctx context.Context, bucket *int64) (int64, error)
}

// backend stores counts keyed by a generation so a load that races Invalidate is never served.
type backend interface {
	generation(ctx context.Context) (string, error)
	get(ctx context.Context, gen, field string) (int64, bool, error)
	set(ctx context.Context, gen, field string, n int64) error
	invalidate(ctx context.Context) error
}

// Cache is a cache-aside holder for available counts.
type Cache struct {
	source  Counter
	backend backend
	logg    *logger.Logger
	group   singleflight.Group
}

// NewMemory returns a process-local cache.
func NewMemory(source Counter, ttl time.Duration, logg *logger.Logger) *Cache {
	return &Cache{source: source, backend: newMemoryBackend(ttl, time.Now), logg: logg}
}

// NewRedis returns a cache shared through Redis.
func NewRedis(source Counter, store RedisStore, ttl time.Duration, logg *logger.Logger) *Cache {
	return &Cache{source: source, backend: newRedisBackend(store, ttl), logg: logg}
}

// Available returns the unsold count for bucket, or across every inventory when bucket is nil.
func (c *Cache) Available(ctx context.Context, bucket *int64) (int64, error) {
	field := fieldFor(bucket)

	gen, err := c.backend.generation(ctx)
	if err != nil {
		c.warn(ctx, "count cache generation lookup failed", err)
		return c.source.CountAvailable(ctx, bucket)
	}
	if n, ok, err := c.backend.get(ctx, gen, field); err != nil {
		c.warn(ctx, "count cache read failed", err)
	} else if ok {
		return n, nil
	}

	v, err, _ := c.group.Do(gen+":"+field, func() (any, error) {
		n, err := c.source.CountAvailable(ctx, bucket)
		if err != nil {
			return int64(0), err
		}
		if err := c.backend.set(ctx, gen, field, n); err != nil {
			c.warn(ctx, "count cache write failed", err)
		}
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Invalidate drops every cached count. Called after each committed write.
func (c *Cache) Invalidate(ctx context.Context) {
	if err := c.backend.invalidate(ctx); err != nil {
		c.warn(ctx, "count cache invalidation failed", err)
	}
}

func (c *Cache) warn(ctx context.Context, msg string, err error) {
	if c.logg == nil {
		return
	}
	c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), msg)
}

func fieldFor(bucket *int64) string {
	if bucket == nil {
		return globalField
	}
	return strconv.FormatInt(*bucket, 10)
}
