package ledger

import (
	"context"
	"time"

	"github.com/angelmondragon/credstock/pkg/db/models"
	"gorm.io/gorm"
)

// Migrate moves unsold products of src whose age, measured from moved_at when set and
// uploaded_at otherwise, is older than olderThan into dst, stamping moved_at with now.
// Work is split into capped batches, one write transaction per batch.
func (s *Store) Migrate(ctx context.Context, src, dst int64, olderThan time.Time) (int64, error) {
	cutoff := olderThan.UTC()
	var total int64
	for {
		var moved int64
		var selected int
		err := s.write(ctx, func(tx *gorm.DB) error {
			var ids []int64
			if err := tx.Model(&models.Product{}).
				Where("inventory_id = ? AND sold = ?", src, false).
				Where("COALESCE(moved_at, uploaded_at) < ?", cutoff).
				Order("id ASC").
				Limit(s.batchSize).
				Pluck("id", &ids).Error; err != nil {
				return err
			}
			selected = len(ids)
			if selected == 0 {
				return nil
			}
			res := tx.Model(&models.Product{}).
				Where("id IN ? AND inventory_id = ? AND sold = ?", ids, src, false).
				Updates(map[string]any{
					"inventory_id": dst,
					"moved_at":     s.Now(),
				})
			moved = res.RowsAffected
			return res.Error
		})
		if err != nil {
			return total, err
		}
		total += moved
		if selected < s.batchSize {
			return total, nil
		}
	}
}

// Expire hard-deletes unsold products in bucket whose moved_at is older than olderThan.
// Products that never migrated carry no moved_at and are ignored.
func (s *Store) Expire(ctx context.Context, bucket int64, olderThan time.Time) (int64, error) {
	cutoff := olderThan.UTC()
	var total int64
	for {
		var deleted int64
		var selected int
		err := s.write(ctx, func(tx *gorm.DB) error {
			var ids []int64
			if err := tx.Model(&models.Product{}).
				Where("inventory_id = ? AND sold = ?", bucket, false).
				Where("moved_at IS NOT NULL AND moved_at < ?", cutoff).
				Order("id ASC").
				Limit(s.batchSize).
				Pluck("id", &ids).Error; err != nil {
				return err
			}
			selected = len(ids)
			if selected == 0 {
				return nil
			}
			res := tx.Where("id IN ? AND sold = ?", ids, false).Delete(&models.Product{})
			deleted = res.RowsAffected
			return res.Error
		})
		if err != nil {
			return total, err
		}
		total += deleted
		if selected < s.batchSize {
			return total, nil
		}
	}
}
