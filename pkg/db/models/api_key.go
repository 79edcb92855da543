package models

import "time"

// APIKey grants access to the sell surface. Only the SHA-256 digest of the key is stored.
type APIKey struct {
	ID          int64      `gorm:"column:id;primaryKey;autoIncrement"`
	KeyHash     string     `gorm:"column:key_hash;uniqueIndex;not null"`
	Name        string     `gorm:"column:name;not null"`
	Description string     `gorm:"column:description;not null;default:''"`
	InventoryID *int64     `gorm:"column:inventory_id"`
	IsKiosk     bool       `gorm:"column:is_kiosk;not null;default:false"`
	IsActive    bool       `gorm:"column:is_active;not null;default:true"`
	UsageCount  int64      `gorm:"column:usage_count;not null;default:0"`
	LastUsedAt  *time.Time `gorm:"column:last_used_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (APIKey) TableName() string { return "api_keys" }
