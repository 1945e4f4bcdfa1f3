package enums

import "fmt"

// OutboxAggregateType is the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder    OutboxAggregateType = "order"
	AggregateCheckout OutboxAggregateType = "checkout"
)

// OutboxEventType is the event_type column of outbox_events and the
// event_type attribute on published messages.
type OutboxEventType string

const (
	EventOrderCreated          OutboxEventType = "order_created"
	EventShipmentStatusChanged OutboxEventType = "shipment_status_changed"
	EventPaymentConfirmed      OutboxEventType = "payment_confirmed"
	EventPaymentFailed         OutboxEventType = "payment_failed"
	EventOrderPaymentExpired   OutboxEventType = "order_payment_expired"
	EventInventoryCompensated  OutboxEventType = "inventory_compensated"
)

// OutboxDLQErrorReason records why a row was parked in outbox_dlq.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var (
	outboxAggregates = []OutboxAggregateType{AggregateOrder, AggregateCheckout}
	outboxEvents     = []OutboxEventType{
		EventOrderCreated,
		EventShipmentStatusChanged,
		EventPaymentConfirmed,
		EventPaymentFailed,
		EventOrderPaymentExpired,
		EventInventoryCompensated,
	}
	outboxDLQReasons = []OutboxDLQErrorReason{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable}
)

func (a OutboxAggregateType) IsValid() bool  { return member(a, outboxAggregates) }
func (e OutboxEventType) IsValid() bool      { return member(e, outboxEvents) }
func (r OutboxDLQErrorReason) IsValid() bool { return member(r, outboxDLQReasons) }

// OutboxEventTypes lists every event the outbox can carry.
func OutboxEventTypes() []OutboxEventType {
	return append([]OutboxEventType(nil), outboxEvents...)
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parseMember(value, outboxAggregates, "aggregate type")
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parseMember(value, outboxEvents, "event type")
}

func member[T ~string](v T, set []T) bool {
	for _, candidate := range set {
		if candidate == v {
			return true
		}
	}
	return false
}

func parseMember[T ~string](value string, set []T, kind string) (T, error) {
	if v := T(value); member(v, set) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, value)
}
