package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type entry struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:repo_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := conn.AutoMigrate(&entry{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func TestBaseDBBindsContext(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), struct{}{}, "value")
	if got := base.DB(ctx); got.Statement == nil || got.Statement.Context != ctx {
		t.Fatalf("expected context to flow through")
	}
	if base.DB(nil) != db {
		t.Fatalf("expected nil context to return raw connection")
	}
}

func TestUpsertSkipsOrOverwrites(t *testing.T) {
	db := newTestDB(t)

	if err := Upsert(db, &[]entry{{Key: "a", Value: "1"}, {Key: "b", Value: "1"}}, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := Upsert(db, &[]entry{{Key: "a", Value: "2"}}, nil); err != nil {
		t.Fatalf("skip duplicate: %v", err)
	}
	if got := valueOf(t, db, "a"); got != "1" {
		t.Fatalf("conflict without update columns must keep the row, got %q", got)
	}

	if err := Upsert(db, &entry{Key: "a", Value: "3"}, []string{"key"}, "value"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if got := valueOf(t, db, "a"); got != "3" {
		t.Fatalf("expected overwritten value, got %q", got)
	}
}

func TestTxRollsBackAndExists(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)
	ctx := context.Background()

	boom := errors.New("boom")
	err := base.Tx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&entry{Key: "x", Value: "1"}).Error; err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	ok, err := Exists(base.DB(ctx), &entry{}, "key = ?", "x")
	if err != nil || ok {
		t.Fatalf("rolled back row must not exist (ok=%v err=%v)", ok, err)
	}

	if err := base.Tx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&entry{Key: "x", Value: "1"}).Error
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if ok, _ := Exists(base.DB(ctx), &entry{}, "key = ?", "x"); !ok {
		t.Fatal("expected committed row")
	}
}

func valueOf(t *testing.T, db *gorm.DB, key string) string {
	t.Helper()
	var e entry
	if err := db.Where("key = ?", key).First(&e).Error; err != nil {
		t.Fatalf("load %s: %v", key, err)
	}
	return e.Value
}
