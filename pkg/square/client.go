package square

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/cartsplit-backend/pkg/config"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
)

var baseURLs = map[string]string{
	"sandbox":    "https://connect.squareupsandbox.com",
	"production": "https://connect.squareup.com",
}

// paymentsAPI is the slice of the SDK's payments client in use.
type paymentsAPI interface {
	Create(ctx context.Context, req *sq.CreatePaymentRequest, opts ...sqoption.RequestOption) (*sq.CreatePaymentResponse, error)
	Get(ctx context.Context, req *sq.GetPaymentsRequest, opts ...sqoption.RequestOption) (*sq.GetPaymentResponse, error)
}

// Client charges card sources and reads payment state back. Every call is
// logged with sensitive fields redacted and every failure is mapped onto a
// pkg/errors code.
type Client struct {
	payments paymentsAPI
	defaults paymentDefaults
	webhook  webhookKey
	logg     *logger.Logger
}

type paymentDefaults struct {
	locationID string
	currency   string
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("square: logger is required")
	}
	env := cfg.Environment()
	baseURL, ok := baseURLs[env]
	if !ok {
		return nil, fmt.Errorf("square: unknown environment %q", env)
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errors.New("square: access token is required")
	}
	location := strings.TrimSpace(cfg.LocationID)
	if location == "" {
		return nil, errors.New("square: location id is required")
	}

	sdk := sqclient.NewClient(sqoption.WithBaseURL(baseURL), sqoption.WithToken(token))
	c := newClient(sdk.Payments, paymentDefaults{locationID: location, currency: cfg.Currency}, logg)
	c.webhook = webhookKey{
		secret:          strings.TrimSpace(cfg.WebhookSignatureKey),
		notificationURL: strings.TrimSpace(cfg.NotificationURL),
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"environment": env, "location_id": location}), "square client ready")
	return c, nil
}

func newClient(api paymentsAPI, defaults paymentDefaults, logg *logger.Logger) *Client {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Client{payments: api, defaults: defaults, logg: logg}
}

// CreatePayment charges params.SourceID. Blank location and currency take the
// configured defaults and a blank idempotency key gets a generated one.
func (c *Client) CreatePayment(ctx context.Context, params PaymentCreateParams) (*sq.Payment, error) {
	req := params.request(c.defaults)
	ctx = c.logg.WithFields(ctx, redact(map[string]any{
		"reference_id": params.ReferenceID,
		"amount":       params.Amount,
		"source_id":    params.SourceID,
	}))

	var payment *sq.Payment
	err := c.call(ctx, "create payment", func() error {
		resp, err := c.payments.Create(ctx, req)
		if err != nil {
			return err
		}
		payment = resp.GetPayment()
		return nil
	})
	return payment, err
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error) {
	ctx = c.logg.WithField(ctx, "payment_id", paymentID)

	var payment *sq.Payment
	err := c.call(ctx, "get payment", func() error {
		resp, err := c.payments.Get(ctx, &sq.GetPaymentsRequest{PaymentID: paymentID})
		if err != nil {
			return err
		}
		payment = resp.GetPayment()
		return nil
	})
	return payment, err
}

// call times fn and maps its error. A successful call with no payment in the
// response is a dependency failure.
func (c *Client) call(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	ctx = c.logg.WithFields(ctx, map[string]any{"operation": op, "duration_ms": time.Since(start).Milliseconds()})
	if err != nil {
		mapped := mapError(err, op)
		c.logg.Error(ctx, "square call failed", mapped)
		return mapped
	}
	c.logg.Debug(ctx, "square call ok")
	return nil
}

var sensitiveKeys = []string{"card", "nonce", "token", "cvv", "cvc", "secret", "email", "phone", "source"}

// redact masks values whose key names card or contact data.
func redact(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
		lower := strings.ToLower(k)
		for _, s := range sensitiveKeys {
			if strings.Contains(lower, s) {
				out[k] = "[REDACTED]"
				break
			}
		}
	}
	return out
}
