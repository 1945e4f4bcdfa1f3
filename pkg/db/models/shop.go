package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cartsplit-backend/pkg/types"
)

// Shop is a seller's registered pickup point and payout account.
type Shop struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	SellerID      uuid.UUID       `gorm:"column:seller_id;type:uuid;not null;index"`
	Name          string          `gorm:"column:name;not null"`
	Address       types.Address   `gorm:"column:address;type:jsonb;serializer:json;not null"`
	Location      *types.GeoPoint `gorm:"column:location;type:jsonb;serializer:json"`
	BankCode      *string         `gorm:"column:bank_code"`
	AccountNumber *string         `gorm:"column:account_number"`
	AccountName   *string         `gorm:"column:account_name"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
