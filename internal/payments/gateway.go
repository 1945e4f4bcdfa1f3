package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
	"github.com/angelmondragon/cartsplit-backend/pkg/payos"
	"github.com/angelmondragon/cartsplit-backend/pkg/square"
	"github.com/angelmondragon/cartsplit-backend/pkg/types"
)

// Gateway is one external payment processor.
type Gateway interface {
	Name() enums.PaymentGateway
	CreateLink(ctx context.Context, req LinkRequest) (*CreatedLink, error)
	FetchStatus(ctx context.Context, link models.PaymentLink) (*StatusReport, error)
	ParseWebhook(headers http.Header, body []byte) (*WebhookNotice, error)
}

type LinkRequest struct {
	OrderID      string
	OrderNumber  int64
	Attempt      int
	ExternalCode string
	Amount       int64
	Description  string
	ReturnURL    string
	CancelURL    string
	ExpiresAt    time.Time
	SourceID     string
}

type CreatedLink struct {
	LinkID      string
	CheckoutURL string
	Status      string
	ExpiresAt   *time.Time
}

type StatusReport struct {
	Status       string
	Transactions []types.PaymentTransaction
}

// WebhookNotice is a verified gateway callback. Ignore marks notifications
// that carry no payment status.
type WebhookNotice struct {
	EventID      string
	LinkID       string
	ExternalCode string
	Report       StatusReport
	Ignore       bool
}

// ExternalCode derives the gateway order code for an attempt.
func ExternalCode(orderNumber int64, attempt int) string {
	return strconv.FormatInt(orderNumber*10+int64(attempt), 10)
}

type payosAPI interface {
	CreatePaymentLink(ctx context.Context, params payos.CreateLinkParams) (*payos.PaymentLink, error)
	GetPaymentLink(ctx context.Context, id string) (*payos.PaymentInfo, error)
	VerifyWebhook(body []byte) (*payos.Webhook, error)
}

// vietnam is where PayOS stamps transaction times.
var vietnam = time.FixedZone("ICT", 7*60*60)

type payosGateway struct {
	api payosAPI
}

func NewPayOSGateway(api payosAPI) Gateway {
	return &payosGateway{api: api}
}

func (g *payosGateway) Name() enums.PaymentGateway { return enums.PaymentGatewayPayOS }

func (g *payosGateway) CreateLink(ctx context.Context, req LinkRequest) (*CreatedLink, error) {
	code, err := strconv.ParseInt(req.ExternalCode, 10, 64)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "payos order code must be numeric")
	}
	link, err := g.api.CreatePaymentLink(ctx, payos.CreateLinkParams{
		OrderCode:   code,
		Amount:      req.Amount,
		Description: req.Description,
		ReturnURL:   req.ReturnURL,
		CancelURL:   req.CancelURL,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}
	status := link.Status
	if status == "" {
		status = "PENDING"
	}
	created := &CreatedLink{LinkID: link.PaymentLinkID, CheckoutURL: link.CheckoutURL, Status: status}
	if !req.ExpiresAt.IsZero() {
		expires := req.ExpiresAt
		created.ExpiresAt = &expires
	}
	return created, nil
}

func (g *payosGateway) FetchStatus(ctx context.Context, link models.PaymentLink) (*StatusReport, error) {
	id := link.LinkID
	if id == "" {
		id = link.ExternalOrderCode
	}
	info, err := g.api.GetPaymentLink(ctx, id)
	if err != nil {
		return nil, err
	}
	report := &StatusReport{Status: info.Status}
	for _, tx := range info.Transactions {
		report.Transactions = append(report.Transactions, types.PaymentTransaction{
			Reference:   tx.Reference,
			Amount:      tx.Amount,
			Description: tx.Description,
			OccurredAt:  parsePayOSTime(tx.TransactionDateTime),
		})
	}
	return report, nil
}

func (g *payosGateway) ParseWebhook(_ http.Header, body []byte) (*WebhookNotice, error) {
	hook, err := g.api.VerifyWebhook(body)
	if err != nil {
		return nil, err
	}
	data := hook.Data
	status := "PAID"
	if data.Code != "" && data.Code != "00" {
		status = "FAILED"
	}
	return &WebhookNotice{
		EventID:      fmt.Sprintf("%d:%s", data.OrderCode, data.Reference),
		LinkID:       data.PaymentLinkID,
		ExternalCode: strconv.FormatInt(data.OrderCode, 10),
		Report: StatusReport{
			Status: status,
			Transactions: []types.PaymentTransaction{{
				Reference:   data.Reference,
				Amount:      data.Amount,
				Description: data.Description,
				OccurredAt:  parsePayOSTime(data.TransactionDateTime),
			}},
		},
	}, nil
}

func parsePayOSTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", raw, vietnam); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

type squareAPI interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
	VerifyWebhook(signature string, body []byte) (*square.WebhookEvent, error)
}

type squareGateway struct {
	api squareAPI
}

func NewSquareGateway(api squareAPI) Gateway {
	return &squareGateway{api: api}
}

func (g *squareGateway) Name() enums.PaymentGateway { return enums.PaymentGatewaySquare }

// CreateLink charges the supplied card source. The returned checkout URL
// points back at the storefront's order page.
func (g *squareGateway) CreateLink(ctx context.Context, req LinkRequest) (*CreatedLink, error) {
	if strings.TrimSpace(req.SourceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card source required").
			WithDetails(map[string]any{"reason": "source_required"})
	}
	payment, err := g.api.CreatePayment(ctx, square.PaymentCreateParams{
		Amount:         req.Amount,
		SourceID:       req.SourceID,
		IdempotencyKey: "order-" + req.ExternalCode,
		Note:           req.Description,
		ReferenceID:    req.ExternalCode,
	})
	if err != nil {
		return nil, err
	}
	return &CreatedLink{
		LinkID:      deref(payment.GetID()),
		CheckoutURL: orderPageURL(req.ReturnURL, req.ExternalCode),
		Status:      deref(payment.GetStatus()),
	}, nil
}

func (g *squareGateway) FetchStatus(ctx context.Context, link models.PaymentLink) (*StatusReport, error) {
	payment, err := g.api.GetPayment(ctx, link.LinkID)
	if err != nil {
		return nil, err
	}
	return squareReport(deref(payment.GetID()), deref(payment.GetStatus()), moneyAmount(payment.AmountMoney), deref(payment.GetUpdatedAt())), nil
}

func (g *squareGateway) ParseWebhook(headers http.Header, body []byte) (*WebhookNotice, error) {
	event, err := g.api.VerifyWebhook(headers.Get(square.SignatureHeader), body)
	if err != nil {
		return nil, err
	}
	payment := event.Data.Object.Payment
	if !strings.HasPrefix(event.Type, "payment.") || payment == nil {
		return &WebhookNotice{EventID: event.EventID, Ignore: true}, nil
	}
	return &WebhookNotice{
		EventID:      event.EventID,
		LinkID:       payment.ID,
		ExternalCode: payment.ReferenceID,
		Report:       *squareReport(payment.ID, payment.Status, payment.AmountMoney.Amount, payment.UpdatedAt),
	}, nil
}

func squareReport(paymentID, status string, amount int64, updatedAt string) *StatusReport {
	report := &StatusReport{Status: status}
	if strings.EqualFold(status, "COMPLETED") {
		at, _ := time.Parse(time.RFC3339, updatedAt)
		report.Transactions = []types.PaymentTransaction{{Reference: paymentID, Amount: amount, OccurredAt: at.UTC()}}
	}
	return report
}

func moneyAmount(m *sq.Money) int64 {
	if m == nil || m.Amount == nil {
		return 0
	}
	return *m.Amount
}

func orderPageURL(base, code string) string {
	if strings.TrimSpace(base) == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("order_code", code)
	u.RawQuery = q.Encode()
	return u.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// transactionsJSON encodes settlements for a map update, which bypasses the
// column serializer.
func transactionsJSON(txs []types.PaymentTransaction) string {
	raw, err := json.Marshal(txs)
	if err != nil {
		return "[]"
	}
	return string(raw)
}
