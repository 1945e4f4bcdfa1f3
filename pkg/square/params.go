package square

import (
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
)

const defaultCurrency = "VND"

// PaymentCreateParams describe one card charge. Amount is in the currency's
// smallest unit, which for VND is whole dong.
type PaymentCreateParams struct {
	Amount         int64
	Currency       string
	LocationID     string
	SourceID       string
	IdempotencyKey string
	Note           string
	ReferenceID    string
}

func (p PaymentCreateParams) request(defaults paymentDefaults) *sq.CreatePaymentRequest {
	key := strings.TrimSpace(p.IdempotencyKey)
	if key == "" {
		key = "cs-" + uuid.NewString()
	}
	req := &sq.CreatePaymentRequest{
		IdempotencyKey: key,
		SourceID:       p.SourceID,
		LocationID:     optional(firstNonBlank(p.LocationID, defaults.locationID)),
		Note:           optional(p.Note),
		ReferenceID:    optional(p.ReferenceID),
	}
	if p.Amount > 0 {
		currency := sq.Currency(strings.ToUpper(firstNonBlank(p.Currency, defaults.currency, defaultCurrency)))
		amount := p.Amount
		req.AmountMoney = &sq.Money{Amount: &amount, Currency: &currency}
	}
	return req
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
