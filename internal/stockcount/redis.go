package stockcount

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the subset of pkg/redis.Client used by the shared cache.
type RedisStore interface {
	Get(ctx context.Context, key string) (string, error)
	Incr(ctx context.Context, key string) (int64, error)
	HGet(ctx context.Context, key, field string) (string, error)
	HSetWithTTL(ctx context.Context, key, field string, value any, ttl time.Duration) error
	CacheKey(parts ...string) string
}

// redisBackend keeps one hash per version; Invalidate bumps the version and old hashes expire.
type redisBackend struct {
	store RedisStore
	ttl   time.Duration
}

func newRedisBackend(store RedisStore, ttl time.Duration) *redisBackend {
	return &redisBackend{store: store, ttl: ttl}
}

func (r *redisBackend) versionKey() string {
	return r.store.CacheKey("count", "version")
}

func (r *redisBackend) hashKey(gen string) string {
	return r.store.CacheKey("count", "v"+gen)
}

func (r *redisBackend) generation(ctx context.Context) (string, error) {
	v, err := r.store.Get(ctx, r.versionKey())
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (r *redisBackend) get(ctx context.Context, gen, field string) (int64, bool, error) {
	raw, err := r.store.HGet(ctx, r.hashKey(gen), field)
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return n, true, nil
}

func (r *redisBackend) set(ctx context.Context, gen, field string, n int64) error {
	return r.store.HSetWithTTL(ctx, r.hashKey(gen), field, n, r.ttl)
}

func (r *redisBackend) invalidate(ctx context.Context) error {
	_, err := r.store.Incr(ctx, r.versionKey())
	return err
}
