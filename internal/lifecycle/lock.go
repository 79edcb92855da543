package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// defaultLockTTL outlives any realistic cycle; a crashed holder frees the lock when it lapses.
const defaultLockTTL = 30 * time.Minute

// ErrLockLost reports that the lock expired and was taken over before Release ran.
var ErrLockLost = errors.New("scheduler lock lost before release")

// Lock makes a cycle exclusive across every process sharing the ledger.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LocalLock is an in-process Lock for single-node deployments.
type LocalLock struct {
	held atomic.Bool
}

func (l *LocalLock) Acquire(context.Context) (bool, error) {
	return l.held.CompareAndSwap(false, true), nil
}

func (l *LocalLock) Release(context.Context) error {
	l.held.Store(false)
	return nil
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}

// RedisLock is a lease keyed by a per-acquisition owner token. The token names the host so a
// stuck lease can be traced from redis-cli.
type RedisLock struct {
	client redisStore
	key    string
	ttl    time.Duration
	host   string

	mu    sync.Mutex
	owner string
}

func NewRedisLock(client redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return &RedisLock{client: client, key: key, ttl: ttl, host: host}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner != "" {
		return false, nil
	}
	token := l.host + "/" + uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if ok {
		l.owner = token
	}
	return ok, nil
}

// Release deletes the lease only while this instance still owns it. A lease that lapsed and was
// re-acquired elsewhere is left alone and ErrLockLost is returned.
func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner == "" {
		return nil
	}
	deleted, err := l.client.CompareAndDelete(ctx, l.key, l.owner)
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	l.owner = ""
	if !deleted {
		return ErrLockLost
	}
	return nil
}
