package stockcount

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memoryEntry struct {
	n       int64
	expires time.Time
}

type memoryBackend struct {
	mu     sync.Mutex
	gen    uint64
	ttl    time.Duration
	now    func() time.Time
	values map[string]memoryEntry
}

func newMemoryBackend(ttl time.Duration, now func() time.Time) *memoryBackend {
	return &memoryBackend{ttl: ttl, now: now, values: map[string]memoryEntry{}}
}

func (m *memoryBackend) generation(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return strconv.FormatUint(m.gen, 10), nil
}

func (m *memoryBackend) get(_ context.Context, gen, field string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != strconv.FormatUint(m.gen, 10) {
		return 0, false, nil
	}
	entry, ok := m.values[field]
	if !ok {
		return 0, false, nil
	}
	if m.ttl > 0 && !m.now().Before(entry.expires) {
		delete(m.values, field)
		return 0, false, nil
	}
	return entry.n, true, nil
}

func (m *memoryBackend) set(_ context.Context, gen, field string, n int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != strconv.FormatUint(m.gen, 10) {
		return nil
	}
	m.values[field] = memoryEntry{n: n, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *memoryBackend) invalidate(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.values = map[string]memoryEntry{}
	return nil
}
