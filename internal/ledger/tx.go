package ledger

import (
	"context"
	"time"

	"github.com/angelmondragon/credstock/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WriteTx brackets one read-then-mutate sequence. Exactly one is open at a time.
type WriteTx struct {
	tx      *gorm.DB
	dialect string
	release func()
	done    bool
}

// SelectAvailable returns up to limit unsold products in ascending id order.
// A nil bucket selects across every inventory.
func (w *WriteTx) SelectAvailable(ctx context.Context, bucket *int64, limit int) ([]models.Product, error) {
	if w.done {
		return nil, ErrTxDone
	}
	q := w.tx.WithContext(ctx).Where("sold = ?", false)
	if bucket != nil {
		q = q.Where("inventory_id = ?", *bucket)
	}
	if w.dialect == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var products []models.Product
	if err := q.Order("id ASC").Limit(limit).Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// MarkSold flags every id as sold to orderID. Either all rows flip or ErrSoldConflict is returned.
func (w *WriteTx) MarkSold(ctx context.Context, ids []int64, orderID string, at time.Time) error {
	if w.done {
		return ErrTxDone
	}
	if len(ids) == 0 {
		return nil
	}
	res := w.tx.WithContext(ctx).
		Model(&models.Product{}).
		Where("id IN ? AND sold = ?", ids, false).
		Updates(map[string]any{
			"sold":     true,
			"order_id": orderID,
			"sold_at":  at.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != int64(len(ids)) {
		return ErrSoldConflict
	}
	return nil
}

func (w *WriteTx) Commit() error {
	if w.done {
		return ErrTxDone
	}
	err := w.tx.Commit().Error
	w.finish()
	return err
}

// Rollback is a no-op once the transaction has finished.
func (w *WriteTx) Rollback() error {
	if w.done {
		return nil
	}
	err := w.tx.Rollback().Error
	w.finish()
	return err
}

func (w *WriteTx) finish() {
	w.done = true
	if w.release != nil {
		w.release()
	}
}
