package payments

import (
	"time"

	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
)

// Decision is the order mutation implied by a gateway status.
type Decision struct {
	Previous  enums.PaymentBucket
	Next      enums.PaymentBucket
	Lifecycle enums.OrderStatus
	Deadline  *time.Time
	// Confirmed is true only on the first entry into success.
	Confirmed bool
	// Failed is true only on entry into failure.
	Failed  bool
	Updates map[string]any
}

// Changed reports whether the order row needs a write.
func (d Decision) Changed() bool {
	return len(d.Updates) > 0
}

// Decide applies the bucket rules to order without touching storage.
// Re-delivering the bucket an order is already in yields no updates.
func Decide(order *models.Order, next enums.PaymentBucket, gatewayStatus string, now time.Time, window time.Duration) Decision {
	prev := order.PaymentBucket
	d := Decision{
		Previous:  prev,
		Next:      next,
		Lifecycle: order.Status,
		Deadline:  order.PaymentDeadline,
		Updates:   map[string]any{},
	}
	// a paid order never leaves success
	if prev == enums.PaymentBucketSuccess && next != enums.PaymentBucketSuccess {
		d.Next = prev
		return d
	}
	if gatewayStatus != "" && (order.PaymentStatus == nil || *order.PaymentStatus != gatewayStatus) {
		d.Updates["payment_status"] = gatewayStatus
	}

	switch next {
	case enums.PaymentBucketSuccess:
		if prev == enums.PaymentBucketSuccess {
			return d
		}
		d.Confirmed = true
		d.Deadline = nil
		d.Updates["payment_bucket"] = next
		d.Updates["payment_deadline"] = nil
		d.Updates["paid_at"] = now
		if order.Status == enums.OrderStatusPending && !order.PaymentExpired {
			d.Lifecycle = enums.OrderStatusProcessing
			d.Updates["status"] = d.Lifecycle
		}

	case enums.PaymentBucketFailure:
		if prev == enums.PaymentBucketFailure {
			return d
		}
		d.Failed = true
		d.Updates["payment_bucket"] = next
		if !order.PaymentExpired {
			deadline := now.Add(window)
			d.Deadline = &deadline
			d.Updates["payment_deadline"] = deadline
		}
		switch order.Status {
		case enums.OrderStatusShipping, enums.OrderStatusCompleted, enums.OrderStatusCancelled, enums.OrderStatusPending:
		default:
			d.Lifecycle = enums.OrderStatusPending
			d.Updates["status"] = d.Lifecycle
		}

	default:
		if prev != enums.PaymentBucketPending {
			d.Updates["payment_bucket"] = enums.PaymentBucketPending
		}
		if !order.PaymentExpired && (order.PaymentDeadline == nil || !now.Before(*order.PaymentDeadline)) {
			deadline := now.Add(window)
			d.Deadline = &deadline
			d.Updates["payment_deadline"] = deadline
		}
	}
	return d
}
