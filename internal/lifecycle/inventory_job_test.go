package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/angelmondragon/credstock/internal/ledger"
	"github.com/angelmondragon/credstock/internal/notify"
	"github.com/angelmondragon/credstock/pkg/config"
	"github.com/angelmondragon/credstock/pkg/db/models"
	"github.com/angelmondragon/credstock/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingCache struct{ calls atomic.Int32 }

func (c *countingCache) Invalidate(context.Context) { c.calls.Add(1) }

type sentMessage struct {
	kind    notify.Kind
	payload notify.Payload
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (r *recordingNotifier) Send(_ context.Context, kind notify.Kind, payload notify.Payload) notify.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMessage{kind: kind, payload: payload})
	return notify.Result{Success: true}
}

func testLifecycleConfig() config.LifecycleConfig {
	return config.LifecycleConfig{
		MigrationAge:           72 * time.Hour,
		ExpiryAge:              240 * time.Hour,
		SourceInventoryID:      1,
		DestinationInventoryID: 3,
		BatchSize:              2,
	}
}

func newAgingLedger(t *testing.T) (*ledger.Store, *gorm.DB, *clock) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:lifecycle_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(&models.Inventory{}, &models.Product{}))

	c := &clock{now: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)}
	store := ledger.NewStore(conn, ledger.WithClock(c.Now), ledger.WithBatchSize(2))
	require.NoError(t, store.EnsureDefaults(context.Background()))
	return store, conn, c
}

func newInventoryJobUnderTest(t *testing.T, store AgingStore, cache Invalidator, notifier notify.Notifier) Job {
	t.Helper()
	job, err := NewInventoryJob(InventoryJobParams{
		Logger:   logger.Nop(),
		Store:    store,
		Cache:    cache,
		Notifier: notifier,
		Config:   testLifecycleConfig(),
	})
	require.NoError(t, err)
	return job
}

func TestInventoryJobMigratesThenExpires(t *testing.T) {
	store, conn, c := newAgingLedger(t)
	ctx := context.Background()
	_, err := store.InsertProducts(ctx, 1, []string{"old-1", "old-2", "old-3"})
	require.NoError(t, err)
	c.Advance(48 * time.Hour)
	_, err = store.InsertProducts(ctx, 1, []string{"fresh"})
	require.NoError(t, err)

	cache := &countingCache{}
	notifier := &recordingNotifier{}
	job := newInventoryJobUnderTest(t, store, cache, notifier)

	c.Advance(25 * time.Hour)
	require.NoError(t, job.Run(ctx))

	var inDestination int64
	require.NoError(t, conn.Model(&models.Product{}).Where("inventory_id = ?", 3).Count(&inDestination).Error)
	assert.EqualValues(t, 3, inDestination)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, notify.KindProductsMoved, notifier.sent[0].kind)
	assert.EqualValues(t, 3, notifier.sent[0].payload.Quantity)
	assert.Equal(t, "ExpressVPN", notifier.sent[0].payload.Source)
	assert.Equal(t, "Trôi hạn", notifier.sent[0].payload.Destination)
	assert.EqualValues(t, 1, cache.calls.Load())

	// fresh clock after migration: nothing expires in the same tick
	require.NoError(t, job.Run(ctx))
	require.Len(t, notifier.sent, 1)

	c.Advance(241 * time.Hour)
	require.NoError(t, job.Run(ctx))

	// the fresh product aged past 72h in the meantime and moved on this tick
	require.Len(t, notifier.sent, 3)
	assert.Equal(t, notify.KindProductsMoved, notifier.sent[1].kind)
	assert.EqualValues(t, 1, notifier.sent[1].payload.Quantity)
	assert.Equal(t, notify.KindProductsDeleted, notifier.sent[2].kind)
	assert.EqualValues(t, 3, notifier.sent[2].payload.Quantity)
	assert.Equal(t, "expired after 10 days", notifier.sent[2].payload.Reason)
	assert.Equal(t, "Trôi hạn", notifier.sent[2].payload.Source)

	var remaining []models.Product
	require.NoError(t, conn.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, "fresh", remaining[0].Content)
}

func TestInventoryJobLeavesSoldProductsAlone(t *testing.T) {
	store, conn, c := newAgingLedger(t)
	ctx := context.Background()
	_, err := store.InsertProducts(ctx, 1, []string{"sold-1", "unsold-1"})
	require.NoError(t, err)

	tx, err := store.BeginWrite(ctx)
	require.NoError(t, err)
	picked, err := tx.SelectAvailable(ctx, nil, 1)
	require.NoError(t, err)
	require.NoError(t, tx.MarkSold(ctx, []int64{picked[0].ID}, "ORD-9", store.Now()))
	require.NoError(t, tx.Commit())

	job := newInventoryJobUnderTest(t, store, nil, nil)
	c.Advance(100 * time.Hour)
	require.NoError(t, job.Run(ctx))

	var sold models.Product
	require.NoError(t, conn.First(&sold, picked[0].ID).Error)
	assert.EqualValues(t, 1, sold.InventoryID)
	assert.Nil(t, sold.MovedAt)
}

type failingStore struct {
	migrateErr error
	expireErr  error
}

func (f failingStore) Migrate(context.Context, int64, int64, time.Time) (int64, error) {
	return 0, f.migrateErr
}

func (f failingStore) Expire(context.Context, int64, time.Time) (int64, error) {
	return 0, f.expireErr
}

func (failingStore) GetInventory(context.Context, int64) (*models.Inventory, error) {
	return nil, errors.New("unused")
}

func (failingStore) Now() time.Time { return time.Now() }

func TestInventoryJobCombinesStageErrors(t *testing.T) {
	job := newInventoryJobUnderTest(t, failingStore{
		migrateErr: errors.New("locked"),
		expireErr:  errors.New("disk full"),
	}, nil, nil)

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate: locked")
	assert.Contains(t, err.Error(), "expire: disk full")
}

func TestNewInventoryJobValidates(t *testing.T) {
	cfg := testLifecycleConfig()
	cfg.DestinationInventoryID = cfg.SourceInventoryID
	_, err := NewInventoryJob(InventoryJobParams{Logger: logger.Nop(), Store: failingStore{}, Config: cfg})
	assert.Error(t, err)

	_, err = NewInventoryJob(InventoryJobParams{Logger: logger.Nop(), Config: testLifecycleConfig()})
	assert.Error(t, err)
}

func TestAgeLabel(t *testing.T) {
	assert.Equal(t, "10 days", ageLabel(240*time.Hour))
	assert.Equal(t, "1 day", ageLabel(24*time.Hour))
	assert.Equal(t, "36h0m0s", ageLabel(36*time.Hour))
}
