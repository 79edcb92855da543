package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/angelmondragon/credstock/internal/repo"
	"gorm.io/gorm"
)

const defaultBatchSize = 500

var (
	ErrStoreClosed        = errors.New("ledger store closed")
	ErrSoldConflict       = errors.New("product already sold or missing")
	ErrTxDone             = errors.New("write transaction already finished")
	ErrInventoryNotFound  = errors.New("inventory not found")
	ErrProtectedInventory = errors.New("default inventory cannot be deleted")
	ErrInventoryNotEmpty  = errors.New("inventory still holds products")
	ErrDuplicateInventory = errors.New("inventory name already exists")
)

// Store is the single-writer ledger over products and inventories.
// Every mutation holds the writer slot for the lifetime of its transaction.
type Store struct {
	base      repo.Base
	dialect   string
	writer    chan struct{}
	batchSize int
	now       func() time.Time

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// Option configures optional store behavior.
type Option func(*Store)

// WithClock overrides the time source. Tests use it to age products.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBatchSize caps how many rows one migrate/expire transaction touches.
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// NewStore wraps an open gorm connection.
func NewStore(conn *gorm.DB, opts ...Option) *Store {
	s := &Store{
		base:      repo.NewBase(conn),
		dialect:   conn.Dialector.Name(),
		writer:    make(chan struct{}, 1),
		batchSize: defaultBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Now returns the store clock in UTC.
func (s *Store) Now() time.Time {
	return s.now().UTC()
}

// acquire takes the writer slot and registers an in-flight write.
func (s *Store) acquire(ctx context.Context) (func(), error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStoreClosed
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		s.inflight.Done()
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.writer
			s.inflight.Done()
		})
	}, nil
}

// BeginWrite opens the exclusive write transaction used by allocation.
func (s *Store) BeginWrite(ctx context.Context) (*WriteTx, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	tx := s.base.DB(ctx).Begin()
	if tx.Error != nil {
		release()
		return nil, tx.Error
	}
	return &WriteTx{tx: tx, dialect: s.dialect, release: release}, nil
}

// write runs fn inside a transaction while holding the writer slot.
func (s *Store) write(ctx context.Context, fn func(tx *gorm.DB) error) error {
	wtx, err := s.BeginWrite(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = wtx.Rollback()
			panic(r)
		}
	}()
	if err := fn(wtx.tx.WithContext(ctx)); err != nil {
		_ = wtx.Rollback()
		return err
	}
	return wtx.Commit()
}

// Close refuses new writes and waits for in-flight transactions, bounded by ctx.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
