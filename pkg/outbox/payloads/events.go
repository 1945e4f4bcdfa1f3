package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
)

// OrderCreatedEvent is emitted once per order committed by a checkout.
type OrderCreatedEvent struct {
	OrderID        uuid.UUID            `json:"order_id"`
	OrderNumber    int64                `json:"order_number"`
	CheckoutID     uuid.UUID            `json:"checkout_id"`
	BuyerID        uuid.UUID            `json:"buyer_id"`
	SellerID       uuid.UUID            `json:"seller_id"`
	Subtotal       int64                `json:"subtotal"`
	ShippingFee    int64                `json:"shipping_fee"`
	DiscountAmount int64                `json:"discount_amount"`
	TotalAmount    int64                `json:"total_amount"`
	PaymentMethod  enums.PaymentMethod  `json:"payment_method"`
	ShippingMethod enums.ShippingMethod `json:"shipping_method"`
	ShippingScope  enums.ShippingScope  `json:"shipping_scope"`
}

// ShipmentStatusChangedEvent is emitted for every applied status transition.
type ShipmentStatusChangedEvent struct {
	OrderID    uuid.UUID            `json:"order_id"`
	BuyerID    uuid.UUID            `json:"buyer_id"`
	SellerID   uuid.UUID            `json:"seller_id"`
	CourierID  uuid.UUID            `json:"courier_id"`
	From       enums.ShippingStatus `json:"from"`
	To         enums.ShippingStatus `json:"to"`
	Lifecycle  enums.OrderStatus    `json:"lifecycle"`
	Offline    bool                 `json:"offline"`
	OccurredAt time.Time            `json:"occurred_at"`
}

// PaymentConfirmedEvent is emitted the first time an order's payment lands in success.
type PaymentConfirmedEvent struct {
	OrderID       uuid.UUID            `json:"order_id"`
	BuyerID       uuid.UUID            `json:"buyer_id"`
	SellerID      uuid.UUID            `json:"seller_id"`
	Gateway       enums.PaymentGateway `json:"gateway"`
	GatewayStatus string               `json:"gateway_status"`
	Amount        int64                `json:"amount"`
	PaidAt        time.Time            `json:"paid_at"`
}

// PaymentFailedEvent is emitted when a payment moves into the failure bucket.
type PaymentFailedEvent struct {
	OrderID       uuid.UUID            `json:"order_id"`
	BuyerID       uuid.UUID            `json:"buyer_id"`
	SellerID      uuid.UUID            `json:"seller_id"`
	Gateway       enums.PaymentGateway `json:"gateway"`
	GatewayStatus string               `json:"gateway_status"`
	Attempts      int                  `json:"attempts"`
	RetryDeadline *time.Time           `json:"retry_deadline,omitempty"`
}

// OrderPaymentExpiredEvent is emitted when an unpaid order is cancelled after its deadline.
type OrderPaymentExpiredEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	SellerID    uuid.UUID `json:"seller_id"`
	Deadline    time.Time `json:"deadline"`
	ExpiredAt   time.Time `json:"expired_at"`
	Restocked   int64     `json:"restocked_units"`
	TotalAmount int64     `json:"total_amount"`
}

// CompensatedReservation is one released stock reservation.
type CompensatedReservation struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int64     `json:"quantity"`
}

// InventoryCompensatedEvent records that a failed checkout returned its reserved stock.
type InventoryCompensatedEvent struct {
	CheckoutID   uuid.UUID                `json:"checkout_id"`
	BuyerID      uuid.UUID                `json:"buyer_id"`
	Reason       string                   `json:"reason"`
	Reservations []CompensatedReservation `json:"reservations"`
}
