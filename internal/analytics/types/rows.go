package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// FulfillmentEventRow mirrors the fulfillment_events table; the schema is
// inferred from this struct. Amount is in the store currency's minor unit.
type FulfillmentEventRow struct {
	EventID    string               `bigquery:"event_id"`
	EventType  string               `bigquery:"event_type"`
	OccurredAt time.Time            `bigquery:"occurred_at"`
	OrderID    cbigquery.NullString `bigquery:"order_id"`
	CheckoutID cbigquery.NullString `bigquery:"checkout_id"`
	SellerID   cbigquery.NullString `bigquery:"seller_id"`
	BuyerID    cbigquery.NullString `bigquery:"buyer_id"`
	Amount     cbigquery.NullInt64  `bigquery:"amount"`
	Status     cbigquery.NullString `bigquery:"status"`
	Payload    cbigquery.NullJSON   `bigquery:"payload"`
}
