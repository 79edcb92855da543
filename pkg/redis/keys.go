package redis

import "strings"

// Every key lives under the "cs" namespace so a shared Redis can host other tenants.
const (
	keyNamespace    = "cs"
	rateLimitPrefix = "rate_limit"
	lockPrefix      = "lock"
	cachePrefix     = "cache"
)

func (c *Client) RateLimitKey(scope string) string {
	return buildKey(rateLimitPrefix, scope)
}

func (c *Client) LockKey(name string) string {
	return buildKey(lockPrefix, name)
}

func (c *Client) CacheKey(parts ...string) string {
	return buildKey(append([]string{cachePrefix}, parts...)...)
}

func buildKey(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}
