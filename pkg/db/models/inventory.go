package models

import "time"

// DefaultInventoryID is the distinguished bucket that always exists.
const DefaultInventoryID int64 = 1

// Inventory is a named stock bucket.
type Inventory struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"column:name;uniqueIndex;not null" json:"name"`
	Description string    `gorm:"column:description;not null;default:''" json:"description"`
	Active      bool      `gorm:"column:active;not null;default:true" json:"active"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Inventory) TableName() string { return "inventories" }
