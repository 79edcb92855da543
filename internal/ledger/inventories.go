package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/credstock/internal/repo"
	"github.com/angelmondragon/credstock/pkg/db"
	"github.com/angelmondragon/credstock/pkg/db/models"
	"gorm.io/gorm"
)

// DefaultInventories are seeded on first start.
var DefaultInventories = []models.Inventory{
	{ID: models.DefaultInventoryID, Name: "ExpressVPN", Description: "Default inventory", Active: true},
	{ID: 2, Name: "Email Trial", Description: "Email trial accounts", Active: true},
	{ID: 3, Name: "Trôi hạn", Description: "Aged stock awaiting expiry", Active: true},
}

// UpdateInventoryInput holds the mutable inventory fields. Nil fields are left untouched.
type UpdateInventoryInput struct {
	Name        *string
	Description *string
	Active      *bool
}

// EnsureDefaults inserts the default inventories that are missing.
func (s *Store) EnsureDefaults(ctx context.Context) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		for _, inv := range DefaultInventories {
			row := inv
			if err := repo.Upsert(tx, &row, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ListInventories(ctx context.Context) ([]models.Inventory, error) {
	var rows []models.Inventory
	if err := s.base.DB(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) GetInventory(ctx context.Context, id int64) (*models.Inventory, error) {
	var inv models.Inventory
	err := s.base.DB(ctx).Where("id = ?", id).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInventoryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *Store) CreateInventory(ctx context.Context, name, description string) (*models.Inventory, error) {
	inv := &models.Inventory{
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Active:      true,
	}
	err := s.write(ctx, func(tx *gorm.DB) error {
		return tx.Create(inv).Error
	})
	if db.IsUniqueViolation(err, "") {
		return nil, ErrDuplicateInventory
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Store) UpdateInventory(ctx context.Context, id int64, input UpdateInventoryInput) (*models.Inventory, error) {
	var inv models.Inventory
	err := s.write(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&inv).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInventoryNotFound
			}
			return err
		}
		updates := map[string]any{}
		if input.Name != nil {
			updates["name"] = strings.TrimSpace(*input.Name)
		}
		if input.Description != nil {
			updates["description"] = strings.TrimSpace(*input.Description)
		}
		if input.Active != nil {
			updates["active"] = *input.Active
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&inv).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&inv).Error
	})
	if db.IsUniqueViolation(err, "") {
		return nil, ErrDuplicateInventory
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// DeleteInventory removes an empty, non-default inventory.
func (s *Store) DeleteInventory(ctx context.Context, id int64) error {
	if id == models.DefaultInventoryID {
		return ErrProtectedInventory
	}
	return s.write(ctx, func(tx *gorm.DB) error {
		if err := requireInventory(tx, id); err != nil {
			return err
		}
		held, err := repo.Exists(tx, &models.Product{}, "inventory_id = ?", id)
		if err != nil {
			return err
		}
		if held {
			return ErrInventoryNotEmpty
		}
		return tx.Where("id = ?", id).Delete(&models.Inventory{}).Error
	})
}

func requireInventory(tx *gorm.DB, id int64) error {
	ok, err := repo.Exists(tx, &models.Inventory{}, "id = ?", id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInventoryNotFound
	}
	return nil
}
