package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeRedisStore struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
}

func newFakeRedisStore() *fakeRedisStore {
	return &fakeRedisStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedisStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeRedisStore) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values[key] != value {
		return false, nil
	}
	delete(f.values, key)
	return true, nil
}

func (f *fakeRedisStore) held(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.values[key]
	return ok
}

func TestRedisLockExclusiveUntilReleased(t *testing.T) {
	store := newFakeRedisStore()
	ctx := context.Background()
	first, err := NewRedisLock(store, "cs:lock:lifecycle", 0)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, _ := NewRedisLock(store, "cs:lock:lifecycle", time.Minute)

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if store.ttls["cs:lock:lifecycle"] != defaultLockTTL {
		t.Fatalf("expected default ttl, got %v", store.ttls["cs:lock:lifecycle"])
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("second instance should not acquire a held lock")
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release without ownership: %v", err)
	}
	if !store.held("cs:lock:lifecycle") {
		t.Fatal("non-owner release must not delete the lock")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatal("expected lock to be free after owner release")
	}
}

func TestRedisLockSkipsDeleteWhenOwnershipLost(t *testing.T) {
	store := newFakeRedisStore()
	ctx := context.Background()
	lock, _ := NewRedisLock(store, "k", time.Minute)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected acquire")
	}
	owner := store.values["k"]
	if !strings.HasPrefix(owner, lock.host+"/") {
		t.Fatalf("owner token should name the host, got %q", owner)
	}
	store.values["k"] = "someone-else"
	if err := lock.Release(ctx); !errors.Is(err, ErrLockLost) {
		t.Fatalf("expected ErrLockLost, got %v", err)
	}
	if store.values["k"] != "someone-else" {
		t.Fatal("lock taken over by another owner must survive release")
	}
}

func TestRedisLockDoesNotReenter(t *testing.T) {
	store := newFakeRedisStore()
	ctx := context.Background()
	lock, _ := NewRedisLock(store, "k", time.Minute)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected acquire")
	}
	if ok, _ := lock.Acquire(ctx); ok {
		t.Fatal("holder must not acquire twice")
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("second release should be a no-op: %v", err)
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", 0); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewRedisLock(newFakeRedisStore(), "", 0); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestLocalLock(t *testing.T) {
	var lock LocalLock
	ctx := context.Background()
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected acquire")
	}
	if ok, _ := lock.Acquire(ctx); ok {
		t.Fatal("expected second acquire to fail")
	}
	_ = lock.Release(ctx)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected acquire after release")
	}
}
