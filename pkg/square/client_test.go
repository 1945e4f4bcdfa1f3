package square

import (
	"context"
	"errors"
	"net/http"
	"testing"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/cartsplit-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
)

type fakePayments struct {
	created *sq.CreatePaymentRequest
	err     error
	status  string
}

func (f *fakePayments) Create(_ context.Context, req *sq.CreatePaymentRequest, _ ...sqoption.RequestOption) (*sq.CreatePaymentResponse, error) {
	f.created = req
	if f.err != nil {
		return nil, f.err
	}
	id, status := "pay-1", f.status
	return &sq.CreatePaymentResponse{Payment: &sq.Payment{ID: &id, Status: &status, AmountMoney: req.AmountMoney}}, nil
}

func (f *fakePayments) Get(_ context.Context, req *sq.GetPaymentsRequest, _ ...sqoption.RequestOption) (*sq.GetPaymentResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	status := f.status
	return &sq.GetPaymentResponse{Payment: &sq.Payment{ID: &req.PaymentID, Status: &status}}, nil
}

func newTestClient(api paymentsAPI) *Client {
	return newClient(api, paymentDefaults{locationID: "LOC-1", currency: "vnd"}, logger.Nop())
}

func TestCreatePaymentFillsDefaults(t *testing.T) {
	api := &fakePayments{status: "COMPLETED"}
	c := newTestClient(api)

	payment, err := c.CreatePayment(context.Background(), PaymentCreateParams{
		Amount:      150000,
		SourceID:    "cnon:card-ok",
		ReferenceID: "100001-1",
		Note:        "  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "pay-1", *payment.ID)

	req := api.created
	require.NotNil(t, req)
	assert.Equal(t, "LOC-1", *req.LocationID)
	assert.Equal(t, sq.Currency("VND"), *req.AmountMoney.Currency)
	assert.EqualValues(t, 150000, *req.AmountMoney.Amount)
	assert.Equal(t, "100001-1", *req.ReferenceID)
	assert.Nil(t, req.Note)
	assert.Regexp(t, `^cs-[0-9a-f-]{36}$`, req.IdempotencyKey)
}

func TestCreatePaymentKeepsCallerValues(t *testing.T) {
	req := PaymentCreateParams{
		Amount:         5000,
		Currency:       "usd",
		LocationID:     "LOC-2",
		IdempotencyKey: "order-100002",
	}.request(paymentDefaults{locationID: "LOC-1", currency: "VND"})

	assert.Equal(t, "order-100002", req.IdempotencyKey)
	assert.Equal(t, "LOC-2", *req.LocationID)
	assert.Equal(t, sq.Currency("USD"), *req.AmountMoney.Currency)

	zero := PaymentCreateParams{}.request(paymentDefaults{})
	assert.Nil(t, zero.AmountMoney)
	assert.Nil(t, zero.LocationID)
}

func TestGetPayment(t *testing.T) {
	c := newTestClient(&fakePayments{status: "APPROVED"})
	payment, err := c.GetPayment(context.Background(), "pay-9")
	require.NoError(t, err)
	assert.Equal(t, "pay-9", *payment.ID)
	assert.Equal(t, "APPROVED", *payment.Status)
}

func TestCallsMapSDKErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   pkgerrors.Code
		reason string
	}{
		{
			name: "authentication",
			err:  sqcore.NewAPIError(http.StatusUnauthorized, errors.New(`{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`)),
			code: pkgerrors.CodeUnauthorized,
		},
		{
			name: "idempotency reuse wins over status",
			err:  sqcore.NewAPIError(http.StatusBadRequest, errors.New(`{"errors":[{"category":"INVALID_REQUEST_ERROR","code":"IDEMPOTENCY_KEY_REUSED"}]}`)),
			code: pkgerrors.CodeIdempotency,
		},
		{
			name:   "declined card",
			err:    sqcore.NewAPIError(http.StatusPaymentRequired, errors.New(`{"errors":[{"category":"PAYMENT_METHOD_ERROR","code":"CARD_DECLINED"}]}`)),
			code:   pkgerrors.CodeValidation,
			reason: "card_declined",
		},
		{
			name: "status only",
			err:  sqcore.NewAPIError(http.StatusTooManyRequests, errors.New("not json")),
			code: pkgerrors.CodeRateLimit,
		},
		{
			name: "upstream outage",
			err:  sqcore.NewAPIError(http.StatusBadGateway, errors.New("bad gateway")),
			code: pkgerrors.CodeDependency,
		},
		{
			name: "transport",
			err:  errors.New("dial tcp: connection refused"),
			code: pkgerrors.CodeDependency,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(&fakePayments{err: tt.err})
			_, err := c.GetPayment(context.Background(), "pay-1")
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, tt.code), "got %v", err)
			assert.Equal(t, tt.reason, pkgerrors.ReasonOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestRedact(t *testing.T) {
	out := redact(map[string]any{"source_id": "cnon:abc", "payment_token": "t", "amount": 10})
	assert.Equal(t, "[REDACTED]", out["source_id"])
	assert.Equal(t, "[REDACTED]", out["payment_token"])
	assert.Equal(t, 10, out["amount"])
}

func TestVerifyWebhook(t *testing.T) {
	key := webhookKey{secret: "sig-key", notificationURL: "https://api.cartsplit.example/api/v1/webhooks/payments/square"}
	c := newTestClient(&fakePayments{})
	c.webhook = key
	body := []byte(`{"type":"payment.updated","event_id":"evt-1","data":{"type":"payment","id":"pay-1","object":{"payment":{"id":"pay-1","status":"COMPLETED","reference_id":"100001-2","amount_money":{"amount":150000,"currency":"VND"}}}}}`)

	event, err := c.VerifyWebhook(key.sign(body), body)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", event.EventID)
	require.NotNil(t, event.Data.Object.Payment)
	assert.Equal(t, "COMPLETED", event.Data.Object.Payment.Status)
	assert.EqualValues(t, 150000, event.Data.Object.Payment.AmountMoney.Amount)

	_, err = c.VerifyWebhook(key.sign(body), append(body, ' '))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	_, err = c.VerifyWebhook("", body)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	unconfigured := newTestClient(&fakePayments{})
	_, err = unconfigured.VerifyWebhook(key.sign(body), body)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
}

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	_, err := NewClient(ctx, config.SquareConfig{AccessToken: "t", LocationID: "L", Env: "staging"}, logger.Nop())
	assert.ErrorContains(t, err, "unknown environment")

	_, err = NewClient(ctx, config.SquareConfig{LocationID: "L"}, logger.Nop())
	assert.ErrorContains(t, err, "access token")

	_, err = NewClient(ctx, config.SquareConfig{AccessToken: "t"}, logger.Nop())
	assert.ErrorContains(t, err, "location id")

	c, err := NewClient(ctx, config.SquareConfig{AccessToken: "t", LocationID: "L", WebhookSignatureKey: "k", NotificationURL: "https://x"}, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, "k", c.webhook.secret)
}
