package enums

import "fmt"

// ShippingStatus tracks the courier-side delivery progress of an order.
type ShippingStatus string

const (
	ShippingStatusUnassigned    ShippingStatus = "unassigned"
	ShippingStatusAssigned      ShippingStatus = "assigned"
	ShippingStatusPickupPending ShippingStatus = "pickup_pending"
	ShippingStatusPickedUp      ShippingStatus = "picked_up"
	ShippingStatusDelivering    ShippingStatus = "delivering"
	ShippingStatusDelivered     ShippingStatus = "delivered"
	ShippingStatusFailed        ShippingStatus = "failed"
	ShippingStatusReturned      ShippingStatus = "returned"
)

var validShippingStatuses = []ShippingStatus{
	ShippingStatusUnassigned,
	ShippingStatusAssigned,
	ShippingStatusPickupPending,
	ShippingStatusPickedUp,
	ShippingStatusDelivering,
	ShippingStatusDelivered,
	ShippingStatusFailed,
	ShippingStatusReturned,
}

// ShippingStatuses returns every known status in declaration order.
func ShippingStatuses() []ShippingStatus {
	out := make([]ShippingStatus, len(validShippingStatuses))
	copy(out, validShippingStatuses)
	return out
}

// String implements fmt.Stringer.
func (s ShippingStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ShippingStatus.
func (s ShippingStatus) IsValid() bool {
	for _, candidate := range validShippingStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status accepts no further transitions.
func (s ShippingStatus) IsTerminal() bool {
	return s == ShippingStatusDelivered || s == ShippingStatusReturned
}

// ParseShippingStatus converts raw input into a ShippingStatus.
func ParseShippingStatus(value string) (ShippingStatus, error) {
	for _, candidate := range validShippingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid shipping status %q", value)
}
