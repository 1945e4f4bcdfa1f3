package shipments

import (
	"testing"

	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
)

func TestValidateTransitionCoversEveryPair(t *testing.T) {
	t.Parallel()
	legal := map[[2]enums.ShippingStatus]bool{
		{enums.ShippingStatusUnassigned, enums.ShippingStatusAssigned}:    true,
		{enums.ShippingStatusAssigned, enums.ShippingStatusPickupPending}: true,
		{enums.ShippingStatusAssigned, enums.ShippingStatusPickedUp}:      true,
		{enums.ShippingStatusPickupPending, enums.ShippingStatusPickedUp}: true,
		{enums.ShippingStatusPickedUp, enums.ShippingStatusDelivering}:    true,
		{enums.ShippingStatusDelivering, enums.ShippingStatusDelivered}:   true,
		{enums.ShippingStatusDelivering, enums.ShippingStatusFailed}:      true,
		{enums.ShippingStatusDelivering, enums.ShippingStatusReturned}:    true,
		{enums.ShippingStatusFailed, enums.ShippingStatusPickupPending}:   true,
	}
	for _, from := range enums.ShippingStatuses() {
		for _, to := range enums.ShippingStatuses() {
			err := ValidateTransition(from, to)
			allowed := from == to || legal[[2]enums.ShippingStatus{from, to}]
			if allowed && err != nil {
				t.Fatalf("%s -> %s rejected: %v", from, to, err)
			}
			if !allowed {
				if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
					t.Fatalf("%s -> %s expected state conflict, got %v", from, to, err)
				}
				if pkgerrors.ReasonOf(err) != ReasonIllegalTransition {
					t.Fatalf("%s -> %s missing reason", from, to)
				}
			}
		}
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	t.Parallel()
	for _, status := range enums.ShippingStatuses() {
		if status.IsTerminal() && len(allowedTransitions[status]) != 0 {
			t.Fatalf("terminal status %s has transitions", status)
		}
	}
	if enums.ShippingStatusFailed.IsTerminal() {
		t.Fatal("failed must stay retryable")
	}
}

func TestValidateTransitionRejectsUnknownStatus(t *testing.T) {
	t.Parallel()
	err := ValidateTransition(enums.ShippingStatusAssigned, "teleported")
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeriveLifecycle(t *testing.T) {
	t.Parallel()
	cases := []struct {
		to      enums.ShippingStatus
		current enums.OrderStatus
		want    enums.OrderStatus
	}{
		{enums.ShippingStatusAssigned, enums.OrderStatusProcessing, enums.OrderStatusProcessing},
		{enums.ShippingStatusPickupPending, enums.OrderStatusPending, enums.OrderStatusPending},
		{enums.ShippingStatusPickedUp, enums.OrderStatusProcessing, enums.OrderStatusShipping},
		{enums.ShippingStatusDelivering, enums.OrderStatusShipping, enums.OrderStatusShipping},
		{enums.ShippingStatusDelivered, enums.OrderStatusShipping, enums.OrderStatusCompleted},
		{enums.ShippingStatusFailed, enums.OrderStatusShipping, enums.OrderStatusProcessing},
		{enums.ShippingStatusReturned, enums.OrderStatusShipping, enums.OrderStatusCancelled},
	}
	for _, tc := range cases {
		if got := DeriveLifecycle(tc.to, tc.current); got != tc.want {
			t.Fatalf("DeriveLifecycle(%s, %s) = %s, want %s", tc.to, tc.current, got, tc.want)
		}
	}
}
