package redis

import (
	"context"
	"time"
)

// compareAndDeleteScript deletes KEYS[1] only while it still holds ARGV[1].
const compareAndDeleteScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	return c.store.Get(ctx, key).Result()
}

// SetNX stores value only if key is absent.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	return c.store.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	return c.store.Incr(ctx, key).Result()
}

// IncrWithTTL increments key and arms its expiry on the first increment of a window.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := c.Incr(ctx, key)
	if err != nil || ttl <= 0 || count != 1 {
		return count, err
	}
	return count, c.store.Expire(ctx, key, ttl).Err()
}

// CompareAndDelete removes key only if it still holds value. It reports whether the key was deleted.
func (c *Client) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	n, err := c.store.Eval(ctx, compareAndDeleteScript, []string{key}, value).Int64()
	return n == 1, err
}

func (c *Client) HGet(ctx context.Context, key, field string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	return c.store.HGet(ctx, key, field).Result()
}

// HSetWithTTL writes one hash field and refreshes the TTL of the whole hash.
func (c *Client) HSetWithTTL(ctx context.Context, key, field string, value any, ttl time.Duration) error {
	if err := c.ready(); err != nil {
		return err
	}
	if err := c.store.HSet(ctx, key, field, value).Err(); err != nil || ttl <= 0 {
		return err
	}
	return c.store.Expire(ctx, key, ttl).Err()
}
