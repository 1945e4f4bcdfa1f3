package enums

// PaymentBucket collapses gateway-specific statuses into the three outcomes
// the order lifecycle cares about.
type PaymentBucket string

const (
	PaymentBucketSuccess PaymentBucket = "success"
	PaymentBucketPending PaymentBucket = "pending"
	PaymentBucketFailure PaymentBucket = "failure"
)

var validPaymentBuckets = []PaymentBucket{
	PaymentBucketSuccess,
	PaymentBucketPending,
	PaymentBucketFailure,
}

func (b PaymentBucket) String() string {
	return string(b)
}

// IsValid reports whether the value is a known PaymentBucket.
func (b PaymentBucket) IsValid() bool {
	for _, candidate := range validPaymentBuckets {
		if candidate == b {
			return true
		}
	}
	return false
}
