package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Base carries the gorm connection shared by the persistence layers.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection bound to ctx. A nil ctx returns the raw connection.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Tx runs fn inside a transaction bound to ctx.
func (b Base) Tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return b.DB(ctx).Transaction(fn)
}

// Upsert inserts rows. On a conflict over keys the update columns are overwritten;
// with no update columns the conflicting row is skipped. Nil keys match any constraint.
func Upsert(db *gorm.DB, rows any, keys []string, update ...string) error {
	onConflict := clause.OnConflict{DoNothing: len(update) == 0}
	for _, key := range keys {
		onConflict.Columns = append(onConflict.Columns, clause.Column{Name: key})
	}
	if len(update) > 0 {
		onConflict.DoUpdates = clause.AssignmentColumns(update)
	}
	return db.Clauses(onConflict).Create(rows).Error
}

// Exists reports whether any row of model matches the condition.
func Exists(db *gorm.DB, model any, query string, args ...any) (bool, error) {
	var n int64
	if err := db.Model(model).Where(query, args...).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
