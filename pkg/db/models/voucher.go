package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
)

// Voucher is a redeemable discount code.
type Voucher struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Code             string              `gorm:"column:code;not null;uniqueIndex"`
	Kind             enums.VoucherKind   `gorm:"column:kind;type:text;not null"`
	Value            decimal.Decimal     `gorm:"column:value;type:numeric(14,2);not null"`
	Cap              *int64              `gorm:"column:cap"`
	MinEligibleTotal int64               `gorm:"column:min_eligible_total;not null;default:0"`
	Scope            enums.VoucherScope  `gorm:"column:scope;type:text;not null;default:'global'"`
	SellerID         *uuid.UUID          `gorm:"column:seller_id;type:uuid"`
	ShopID           *uuid.UUID          `gorm:"column:shop_id;type:uuid"`
	Target           enums.VoucherTarget `gorm:"column:target;type:text;not null;default:'all'"`
	CategoryIDs      []string            `gorm:"column:category_ids;type:jsonb;serializer:json"`
	ProductIDs       []uuid.UUID         `gorm:"column:product_ids;type:jsonb;serializer:json"`
	UserID           *uuid.UUID          `gorm:"column:user_id;type:uuid"`
	UsageLimit       *int64              `gorm:"column:usage_limit"`
	UsedCount        int64               `gorm:"column:used_count;not null;default:0"`
	ExpiresAt        *time.Time          `gorm:"column:expires_at"`
	Active           bool                `gorm:"column:active;not null;default:true"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
