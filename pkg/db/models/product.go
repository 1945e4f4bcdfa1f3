package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the catalog row checkout reads prices and stock from.
type Product struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	SellerID   uuid.UUID  `gorm:"column:seller_id;type:uuid;not null;index"`
	ShopID     *uuid.UUID `gorm:"column:shop_id;type:uuid"`
	Title      string     `gorm:"column:title;not null"`
	CategoryID string     `gorm:"column:category_id;not null"`
	Price      int64      `gorm:"column:price;not null"`
	Stock      int64      `gorm:"column:stock;not null;default:0"`
	IsActive   bool       `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
