package shipments

import (
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
)

// ReasonIllegalTransition is attached to rejected status changes.
const ReasonIllegalTransition = "illegal_transition"

var allowedTransitions = map[enums.ShippingStatus][]enums.ShippingStatus{
	enums.ShippingStatusUnassigned:    {enums.ShippingStatusAssigned},
	enums.ShippingStatusAssigned:      {enums.ShippingStatusPickupPending, enums.ShippingStatusPickedUp},
	enums.ShippingStatusPickupPending: {enums.ShippingStatusPickedUp},
	enums.ShippingStatusPickedUp:      {enums.ShippingStatusDelivering},
	enums.ShippingStatusDelivering:    {enums.ShippingStatusDelivered, enums.ShippingStatusFailed, enums.ShippingStatusReturned},
	enums.ShippingStatusFailed:        {enums.ShippingStatusPickupPending},
}

var labels = map[enums.ShippingStatus]string{
	enums.ShippingStatusUnassigned:    "Awaiting courier",
	enums.ShippingStatusAssigned:      "Courier assigned",
	enums.ShippingStatusPickupPending: "Waiting for pickup",
	enums.ShippingStatusPickedUp:      "Picked up from seller",
	enums.ShippingStatusDelivering:    "Out for delivery",
	enums.ShippingStatusDelivered:     "Delivered",
	enums.ShippingStatusFailed:        "Delivery attempt failed",
	enums.ShippingStatusReturned:      "Returned to seller",
}

// CanTransition reports whether the table allows from -> to. Re-applying the
// current status is handled by callers and is not a transition.
func CanTransition(from, to enums.ShippingStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns a state conflict unless to equals from or the
// table allows it.
func ValidateTransition(from, to enums.ShippingStatus) error {
	if !to.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown shipping status").
			With("reason", "invalid_status").
			With("to", to)
	}
	if from == to || CanTransition(from, to) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "shipping status transition not allowed").
		With("reason", ReasonIllegalTransition).
		With("from", from).
		With("to", to)
}

// DeriveLifecycle maps a new shipping status onto the order lifecycle.
// Statuses without a mapping leave current unchanged.
func DeriveLifecycle(to enums.ShippingStatus, current enums.OrderStatus) enums.OrderStatus {
	switch to {
	case enums.ShippingStatusPickedUp, enums.ShippingStatusDelivering:
		return enums.OrderStatusShipping
	case enums.ShippingStatusDelivered:
		return enums.OrderStatusCompleted
	case enums.ShippingStatusFailed:
		return enums.OrderStatusProcessing
	case enums.ShippingStatusReturned:
		return enums.OrderStatusCancelled
	default:
		return current
	}
}

// Label is the human readable timeline text for a status.
func Label(status enums.ShippingStatus) string {
	if label, ok := labels[status]; ok {
		return label
	}
	return string(status)
}
