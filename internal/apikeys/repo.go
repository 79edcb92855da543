package apikeys

import (
	"context"
	"time"

	"github.com/angelmondragon/credstock/internal/repo"
	"github.com/angelmondragon/credstock/pkg/db/models"
	"gorm.io/gorm"
)

// Repository exposes api key persistence operations.
type Repository struct {
	repo.Base
}

// NewRepository constructs an api key repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// FindActiveByHash retrieves the active key matching the digest.
func (r *Repository) FindActiveByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	var key models.APIKey
	if err := r.DB(ctx).Where("key_hash = ? AND is_active = ?", hash, true).First(&key).Error; err != nil {
		return nil, err
	}
	return &key, nil
}

// RecordUse bumps usage_count and stamps last_used_at.
func (r *Repository) RecordUse(ctx context.Context, id int64, at time.Time) error {
	return r.DB(ctx).
		Model(&models.APIKey{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"usage_count":  gorm.Expr("usage_count + 1"),
			"last_used_at": at,
		}).Error
}

// Create inserts a new key row.
func (r *Repository) Create(ctx context.Context, key *models.APIKey) error {
	return r.DB(ctx).Create(key).Error
}
