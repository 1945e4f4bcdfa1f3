// Package payos talks to the PayOS bank-transfer payment-link API.
package payos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/cartsplit-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
)

const successCode = "00"

var (
	errClientIDRequired    = errors.New("payos client id is required")
	errAPIKeyRequired      = errors.New("payos api key is required")
	errChecksumKeyRequired = errors.New("payos checksum key is required")
)

// Client signs and sends payment-link requests.
type Client struct {
	http        *http.Client
	baseURL     string
	clientID    string
	apiKey      string
	checksumKey string
	logger      *logger.Logger
}

type Option func(*Client)

// WithHTTPClient swaps the transport, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithBaseURL(url string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(url), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

func NewClient(cfg config.PayOSConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errClientIDRequired
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errAPIKeyRequired
	}
	if strings.TrimSpace(cfg.ChecksumKey) == "" {
		return nil, errChecksumKeyRequired
	}
	if logg == nil {
		logg = logger.Nop()
	}
	c := &Client{
		http:        &http.Client{Timeout: 15 * time.Second},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		clientID:    cfg.ClientID,
		apiKey:      cfg.APIKey,
		checksumKey: cfg.ChecksumKey,
		logger:      logg,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateLinkParams describes a payment request. OrderCode must be unique per
// merchant across attempts.
type CreateLinkParams struct {
	OrderCode   int64
	Amount      int64
	Description string
	ReturnURL   string
	CancelURL   string
	ExpiresAt   time.Time
}

// PaymentLink is the created checkout page.
type PaymentLink struct {
	PaymentLinkID string `json:"paymentLinkId"`
	OrderCode     int64  `json:"orderCode"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
	CheckoutURL   string `json:"checkoutUrl"`
	QRCode        string `json:"qrCode"`
}

// PaymentInfo is the current state of a link.
type PaymentInfo struct {
	ID              string        `json:"id"`
	OrderCode       int64         `json:"orderCode"`
	Amount          int64         `json:"amount"`
	AmountPaid      int64         `json:"amountPaid"`
	AmountRemaining int64         `json:"amountRemaining"`
	Status          string        `json:"status"`
	Transactions    []Transaction `json:"transactions"`
}

type Transaction struct {
	Reference           string `json:"reference"`
	Amount              int64  `json:"amount"`
	Description         string `json:"description"`
	TransactionDateTime string `json:"transactionDateTime"`
}

type envelope struct {
	Code      string          `json:"code"`
	Desc      string          `json:"desc"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}

func (c *Client) CreatePaymentLink(ctx context.Context, params CreateLinkParams) (*PaymentLink, error) {
	if params.OrderCode <= 0 || params.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payos order code and amount must be positive")
	}
	body := map[string]any{
		"orderCode":   params.OrderCode,
		"amount":      params.Amount,
		"description": truncate(params.Description, 25),
		"returnUrl":   params.ReturnURL,
		"cancelUrl":   params.CancelURL,
	}
	if !params.ExpiresAt.IsZero() {
		body["expiredAt"] = params.ExpiresAt.Unix()
	}
	body["signature"] = Sign(c.checksumKey, map[string]any{
		"amount":      body["amount"],
		"cancelUrl":   body["cancelUrl"],
		"description": body["description"],
		"orderCode":   body["orderCode"],
		"returnUrl":   body["returnUrl"],
	})

	var link PaymentLink
	if err := c.do(ctx, http.MethodPost, "/v2/payment-requests", body, &link, "create_payment_link"); err != nil {
		return nil, err
	}
	return &link, nil
}

// GetPaymentLink accepts either the payment link id or the order code.
func (c *Client) GetPaymentLink(ctx context.Context, id string) (*PaymentInfo, error) {
	if strings.TrimSpace(id) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payos link id required")
	}
	var info PaymentInfo
	if err := c.do(ctx, http.MethodGet, "/v2/payment-requests/"+id, nil, &info, "get_payment_link"); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any, op string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode payos request")
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build payos request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-client-id", c.clientID)
	req.Header.Set("x-api-key", c.apiKey)

	logCtx := c.logger.WithFields(ctx, map[string]any{"operation": op, "path": path})
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error(logCtx, "payos request failed", err)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("payos %s failed", op))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read payos response")
	}
	if resp.StatusCode >= 300 {
		err := fmt.Errorf("payos http %d", resp.StatusCode)
		c.logger.Error(logCtx, "payos request rejected", err)
		return pkgerrors.Wrap(codeForStatus(resp.StatusCode), err, fmt.Sprintf("payos %s failed", op))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payos response")
	}
	if env.Code != successCode {
		err := fmt.Errorf("payos code %s: %s", env.Code, env.Desc)
		c.logger.Error(logCtx, "payos request rejected", err)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("payos %s failed", op)).
			WithDetails(map[string]any{"gateway_code": env.Code})
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return pkgerrors.New(pkgerrors.CodeDependency, "payos response missing data")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payos data")
	}
	c.logger.Info(logCtx, "payos response")
	return nil
}

func codeForStatus(status int) pkgerrors.Code {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return pkgerrors.CodeUnauthorized
	case status == http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case status == http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case status >= 400 && status < 500:
		return pkgerrors.CodeValidation
	default:
		return pkgerrors.CodeDependency
	}
}

func truncate(value string, max int) string {
	runes := []rune(strings.TrimSpace(value))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max])
}
