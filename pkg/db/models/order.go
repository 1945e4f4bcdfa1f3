package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	"github.com/angelmondragon/cartsplit-backend/pkg/types"
)

// Order is the per-seller unit of fulfillment produced by a checkout.
// Version is bumped by every shipment or payment write.
type Order struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber int64      `gorm:"column:order_number;not null;uniqueIndex"`
	CheckoutID  uuid.UUID  `gorm:"column:checkout_id;type:uuid;not null;index"`
	Version     int64      `gorm:"column:version;not null;default:1"`
	UserID      uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	SellerID    uuid.UUID  `gorm:"column:seller_id;type:uuid;not null;index"`
	ShopID      *uuid.UUID `gorm:"column:shop_id;type:uuid"`

	Subtotal       int64             `gorm:"column:subtotal;not null"`
	ShippingFee    int64             `gorm:"column:shipping_fee;not null;default:0"`
	DiscountCode   *string           `gorm:"column:discount_code"`
	DiscountAmount int64             `gorm:"column:discount_amount;not null;default:0"`
	TotalAmount    int64             `gorm:"column:total_amount;not null"`
	Status         enums.OrderStatus `gorm:"column:status;type:text;not null;default:'pending'"`

	PaymentMethod   enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	PaymentBucket   enums.PaymentBucket `gorm:"column:payment_bucket;type:text;not null;default:'pending'"`
	PaymentStatus   *string             `gorm:"column:payment_status"`
	PaymentDeadline *time.Time          `gorm:"column:payment_deadline"`
	PaymentExpired  bool                `gorm:"column:payment_expired;not null;default:false"`
	PaymentAttempts int                 `gorm:"column:payment_attempts;not null;default:0"`
	PaidAt          *time.Time          `gorm:"column:paid_at"`

	ShippingMethod       enums.ShippingMethod  `gorm:"column:shipping_method;type:text;not null"`
	ShippingScope        enums.ShippingScope   `gorm:"column:shipping_scope;type:text;not null"`
	ShippingDistanceKm   *float64              `gorm:"column:shipping_distance_km"`
	ShippingUsedFallback bool                  `gorm:"column:shipping_used_fallback;not null;default:false"`
	ShippingAddress      types.Address         `gorm:"column:shipping_address;type:jsonb;serializer:json;not null"`
	ShipperID            *uuid.UUID            `gorm:"column:shipper_id;type:uuid;index"`
	ShippingStatus       enums.ShippingStatus  `gorm:"column:shipping_status;type:text;not null;default:'unassigned'"`
	LastLocation         *types.LocationSample `gorm:"column:last_location;type:jsonb;serializer:json"`

	Items        []OrderLineItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Timeline     []ShippingTimelineEvent `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	PaymentLinks []PaymentLink           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
