package router

import (
	"fmt"

	"github.com/angelmondragon/cartsplit-backend/internal/analytics/types"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox/payloads"
)

type rowBuilder func(row *types.FulfillmentEventRow, payload any) error

var rowBuilders = map[enums.OutboxEventType]rowBuilder{
	enums.EventOrderCreated:          orderCreatedRow,
	enums.EventShipmentStatusChanged: shipmentStatusRow,
	enums.EventPaymentConfirmed:      paymentConfirmedRow,
	enums.EventPaymentFailed:         paymentFailedRow,
	enums.EventOrderPaymentExpired:   paymentExpiredRow,
	enums.EventInventoryCompensated:  inventoryCompensatedRow,
}

func invalidPayload(eventType enums.OutboxEventType) error {
	return fmt.Errorf("invalid payload for %s", eventType)
}

func orderCreatedRow(row *types.FulfillmentEventRow, payload any) error {
	event, ok := payload.(*payloads.OrderCreatedEvent)
	if !ok {
		return invalidPayload(enums.EventOrderCreated)
	}
	row.OrderID = nullUUID(event.OrderID)
	row.CheckoutID = nullUUID(event.CheckoutID)
	row.SellerID = nullUUID(event.SellerID)
	row.BuyerID = nullUUID(event.BuyerID)
	row.Amount = nullInt(event.TotalAmount)
	row.Status = nullString(string(enums.OrderStatusPending))
	return nil
}

func shipmentStatusRow(row *types.FulfillmentEventRow, payload any) error {
	event, ok := payload.(*payloads.ShipmentStatusChangedEvent)
	if !ok {
		return invalidPayload(enums.EventShipmentStatusChanged)
	}
	row.OrderID = nullUUID(event.OrderID)
	row.SellerID = nullUUID(event.SellerID)
	row.BuyerID = nullUUID(event.BuyerID)
	row.Status = nullString(string(event.To))
	if !event.OccurredAt.IsZero() {
		// offline replays carry the courier's device time
		row.OccurredAt = event.OccurredAt.UTC()
	}
	return nil
}

func paymentConfirmedRow(row *types.FulfillmentEventRow, payload any) error {
	event, ok := payload.(*payloads.PaymentConfirmedEvent)
	if !ok {
		return invalidPayload(enums.EventPaymentConfirmed)
	}
	row.OrderID = nullUUID(event.OrderID)
	row.SellerID = nullUUID(event.SellerID)
	row.BuyerID = nullUUID(event.BuyerID)
	row.Amount = nullInt(event.Amount)
	row.Status = nullString(event.GatewayStatus)
	return nil
}

func paymentFailedRow(row *types.FulfillmentEventRow, payload any) error {
	event, ok := payload.(*payloads.PaymentFailedEvent)
	if !ok {
		return invalidPayload(enums.EventPaymentFailed)
	}
	row.OrderID = nullUUID(event.OrderID)
	row.SellerID = nullUUID(event.SellerID)
	row.BuyerID = nullUUID(event.BuyerID)
	row.Status = nullString(event.GatewayStatus)
	return nil
}

func paymentExpiredRow(row *types.FulfillmentEventRow, payload any) error {
	event, ok := payload.(*payloads.OrderPaymentExpiredEvent)
	if !ok {
		return invalidPayload(enums.EventOrderPaymentExpired)
	}
	row.OrderID = nullUUID(event.OrderID)
	row.SellerID = nullUUID(event.SellerID)
	row.BuyerID = nullUUID(event.BuyerID)
	row.Amount = nullInt(event.TotalAmount)
	row.Status = nullString(string(enums.OrderStatusCancelled))
	return nil
}

func inventoryCompensatedRow(row *types.FulfillmentEventRow, payload any) error {
	event, ok := payload.(*payloads.InventoryCompensatedEvent)
	if !ok {
		return invalidPayload(enums.EventInventoryCompensated)
	}
	var units int64
	for _, r := range event.Reservations {
		units += r.Quantity
	}
	row.CheckoutID = nullUUID(event.CheckoutID)
	row.BuyerID = nullUUID(event.BuyerID)
	row.Amount = nullInt(units)
	row.Status = nullString(event.Reason)
	return nil
}
