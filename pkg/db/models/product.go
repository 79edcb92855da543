package models

import "time"

// Product is one sellable unit of opaque credential text.
type Product struct {
	ID          int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Content     string     `gorm:"column:content;not null" json:"content"`
	InventoryID int64      `gorm:"column:inventory_id;not null;default:1;index;index:idx_products_inventory_sold,priority:1" json:"inventory_id"`
	UploadedAt  time.Time  `gorm:"column:uploaded_at;not null;index" json:"uploaded_at"`
	Sold        bool       `gorm:"column:sold;not null;default:false;index;index:idx_products_inventory_sold,priority:2" json:"sold"`
	OrderID     *string    `gorm:"column:order_id" json:"order_id,omitempty"`
	SoldAt      *time.Time `gorm:"column:sold_at" json:"sold_at,omitempty"`
	MovedAt     *time.Time `gorm:"column:moved_at" json:"moved_at,omitempty"`
}

func (Product) TableName() string { return "products" }
