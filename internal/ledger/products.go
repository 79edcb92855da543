package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/credstock/pkg/db/models"
	"github.com/angelmondragon/credstock/pkg/pagination"
	"gorm.io/gorm"
)

// ProductFilter narrows ListProducts.
type ProductFilter struct {
	InventoryID *int64
	Sold        *bool
	OrderID     string
	Page        pagination.Params
}

// ProductPage is one keyset page of products.
type ProductPage struct {
	Products   []models.Product `json:"products"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// InventoryStats summarizes the stock held by one inventory.
type InventoryStats struct {
	InventoryID int64  `json:"inventory_id"`
	Name        string `json:"name"`
	Total       int64  `json:"total"`
	Available   int64  `json:"available"`
	Sold        int64  `json:"sold"`
}

// Stats aggregates stock across every inventory.
type Stats struct {
	Total       int64            `json:"total"`
	Available   int64            `json:"available"`
	Sold        int64            `json:"sold"`
	Inventories []InventoryStats `json:"inventories"`
}

// CountAvailable counts unsold products in bucket, or everywhere when bucket is nil.
func (s *Store) CountAvailable(ctx context.Context, bucket *int64) (int64, error) {
	q := s.base.DB(ctx).Model(&models.Product{}).Where("sold = ?", false)
	if bucket != nil {
		q = q.Where("inventory_id = ?", *bucket)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// InsertProducts appends contents to inventoryID in the given order, so ids follow upload order.
func (s *Store) InsertProducts(ctx context.Context, inventoryID int64, contents []string) (int64, error) {
	if len(contents) == 0 {
		return 0, nil
	}
	now := s.Now()
	rows := make([]models.Product, 0, len(contents))
	for _, content := range contents {
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		rows = append(rows, models.Product{
			Content:     content,
			InventoryID: inventoryID,
			UploadedAt:  now,
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}

	err := s.write(ctx, func(tx *gorm.DB) error {
		if err := requireInventory(tx, inventoryID); err != nil {
			return err
		}
		return tx.CreateInBatches(&rows, s.batchSize).Error
	})
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// DeleteProducts hard-deletes the given ids, sold or not.
func (s *Store) DeleteProducts(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var deleted int64
	err := s.write(ctx, func(tx *gorm.DB) error {
		res := tx.Where("id IN ?", ids).Delete(&models.Product{})
		deleted = res.RowsAffected
		return res.Error
	})
	return deleted, err
}

// DeleteSoldProducts purges every sold product of inventoryID.
func (s *Store) DeleteSoldProducts(ctx context.Context, inventoryID int64) (int64, error) {
	var deleted int64
	err := s.write(ctx, func(tx *gorm.DB) error {
		res := tx.Where("inventory_id = ? AND sold = ?", inventoryID, true).Delete(&models.Product{})
		deleted = res.RowsAffected
		return res.Error
	})
	return deleted, err
}

// ListProducts walks products in id order using an opaque cursor.
func (s *Store) ListProducts(ctx context.Context, filter ProductFilter) (*ProductPage, error) {
	page, err := pagination.Scope(filter.Page, "id")
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	q := s.base.DB(ctx).Model(&models.Product{})
	if filter.InventoryID != nil {
		q = q.Where("inventory_id = ?", *filter.InventoryID)
	}
	if filter.Sold != nil {
		q = q.Where("sold = ?", *filter.Sold)
	}
	if order := strings.TrimSpace(filter.OrderID); order != "" {
		q = q.Where("order_id = ?", order)
	}

	var rows []models.Product
	if err := q.Scopes(page).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := &ProductPage{}
	out.Products, out.NextCursor = pagination.Trim(rows, filter.Page.Limit, func(p models.Product) int64 { return p.ID })
	return out, nil
}

// Stats returns per-inventory totals.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var rows []InventoryStats
	err := s.base.DB(ctx).
		Table("inventories AS i").
		Select(`i.id AS inventory_id, i.name AS name,
			COUNT(p.id) AS total,
			COALESCE(SUM(CASE WHEN p.sold = ? THEN 1 ELSE 0 END), 0) AS available,
			COALESCE(SUM(CASE WHEN p.sold = ? THEN 1 ELSE 0 END), 0) AS sold`, false, true).
		Joins("LEFT JOIN products AS p ON p.inventory_id = i.id").
		Group("i.id, i.name").
		Order("i.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &Stats{Inventories: rows}
	for _, row := range rows {
		stats.Total += row.Total
		stats.Available += row.Available
		stats.Sold += row.Sold
	}
	return stats, nil
}

// ListDeleteResult reports which requested contents were removed.
type ListDeleteResult struct {
	Deleted  int64    `json:"deleted"`
	NotFound []string `json:"not_found,omitempty"`
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// DeleteByContents removes one product of inventoryID per item. An item matches its exact content first,
// then any content starting with its "local@domain" account part. Every match is removed in one transaction.
func (s *Store) DeleteByContents(ctx context.Context, inventoryID int64, items []string) (*ListDeleteResult, error) {
	result := &ListDeleteResult{}
	err := s.write(ctx, func(tx *gorm.DB) error {
		if err := requireInventory(tx, inventoryID); err != nil {
			return err
		}
		result = &ListDeleteResult{}
		for _, item := range items {
			term := strings.TrimSpace(item)
			if term == "" {
				continue
			}
			id, err := matchContent(tx, inventoryID, term)
			if err != nil {
				return err
			}
			if id == 0 {
				result.NotFound = append(result.NotFound, term)
				continue
			}
			if err := tx.Delete(&models.Product{}, id).Error; err != nil {
				return err
			}
			result.Deleted++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func matchContent(tx *gorm.DB, inventoryID int64, term string) (int64, error) {
	var ids []int64
	err := tx.Model(&models.Product{}).
		Where("inventory_id = ? AND content = ?", inventoryID, term).
		Order("id ASC").Limit(1).Pluck("id", &ids).Error
	if err != nil || len(ids) > 0 {
		return firstID(ids), err
	}

	prefix, ok := accountPrefix(term)
	if !ok {
		return 0, nil
	}
	err = tx.Model(&models.Product{}).
		Where(`inventory_id = ? AND content LIKE ? ESCAPE '\'`, inventoryID, likeEscaper.Replace(prefix)+"%").
		Order("id ASC").Limit(1).Pluck("id", &ids).Error
	return firstID(ids), err
}

func firstID(ids []int64) int64 {
	if len(ids) == 0 {
		return 0
	}
	return ids[0]
}

// accountPrefix trims "user@host|secret|..." down to "user@host".
func accountPrefix(term string) (string, bool) {
	local, rest, ok := strings.Cut(term, "@")
	if !ok {
		return "", false
	}
	rest, _, _ = strings.Cut(rest, "@")
	domain, _, _ := strings.Cut(rest, "|")
	return local + "@" + domain, true
}
