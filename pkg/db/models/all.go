package models

// All lists every persisted model, used by tests to build throwaway schemas.
func All() []any {
	return []any{
		&Product{},
		&Shop{},
		&CartItem{},
		&Voucher{},
		&Order{},
		&OrderLineItem{},
		&InventoryReservation{},
		&ShippingTimelineEvent{},
		&TrackingSample{},
		&PaymentLink{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
