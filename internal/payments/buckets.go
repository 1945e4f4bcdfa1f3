package payments

import (
	"strings"

	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
)

var payosBuckets = map[string]enums.PaymentBucket{
	"PAID":       enums.PaymentBucketSuccess,
	"PROCESSING": enums.PaymentBucketSuccess,
	"PENDING":    enums.PaymentBucketPending,
	"UNDERPAID":  enums.PaymentBucketPending,
	"CANCELLED":  enums.PaymentBucketFailure,
	"EXPIRED":    enums.PaymentBucketFailure,
	"FAILED":     enums.PaymentBucketFailure,
}

var squareBuckets = map[string]enums.PaymentBucket{
	"COMPLETED": enums.PaymentBucketSuccess,
	"APPROVED":  enums.PaymentBucketPending,
	"PENDING":   enums.PaymentBucketPending,
	"CANCELED":  enums.PaymentBucketFailure,
	"FAILED":    enums.PaymentBucketFailure,
}

// BucketFor maps a gateway status onto a payment bucket. Unknown statuses
// are treated as still pending; ok is false for them.
func BucketFor(gateway enums.PaymentGateway, status string) (enums.PaymentBucket, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(status))
	var table map[string]enums.PaymentBucket
	switch gateway {
	case enums.PaymentGatewayPayOS:
		table = payosBuckets
	case enums.PaymentGatewaySquare:
		table = squareBuckets
	default:
		return enums.PaymentBucketPending, false
	}
	bucket, ok := table[normalized]
	if !ok {
		return enums.PaymentBucketPending, false
	}
	return bucket, true
}
