package types

import "time"

// PaymentTransaction is a settlement reported by a gateway for a link.
type PaymentTransaction struct {
	Reference   string    `json:"reference"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
