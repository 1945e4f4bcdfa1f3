package webhooks

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/cartsplit-backend/internal/payments"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
)

type recordingHandler struct {
	gateway enums.PaymentGateway
	body    string
	err     error
}

func (h *recordingHandler) HandleWebhook(_ context.Context, gateway enums.PaymentGateway, _ http.Header, body []byte) (*payments.WebhookAck, error) {
	h.gateway = gateway
	h.body = string(body)
	if h.err != nil {
		return nil, h.err
	}
	return &payments.WebhookAck{EventID: "evt-1"}, nil
}

func webhookRequest(gateway, body string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("gateway", gateway)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments/"+gateway, strings.NewReader(body))
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestPaymentWebhookForwardsRawBody(t *testing.T) {
	h := &recordingHandler{}
	resp := httptest.NewRecorder()

	PaymentWebhook(h, logger.Nop()).ServeHTTP(resp, webhookRequest("square", `{"type":"payment.updated"}`))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, enums.PaymentGatewaySquare, h.gateway)
	assert.Equal(t, `{"type":"payment.updated"}`, h.body)
	assert.Contains(t, resp.Body.String(), "evt-1")
}

func TestPaymentWebhookUnknownGateway(t *testing.T) {
	h := &recordingHandler{}
	resp := httptest.NewRecorder()

	PaymentWebhook(h, logger.Nop()).ServeHTTP(resp, webhookRequest("paypal", `{}`))

	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Empty(t, h.body)
}

func TestPaymentWebhookRejectsBadSignature(t *testing.T) {
	h := &recordingHandler{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")}
	resp := httptest.NewRecorder()

	PaymentWebhook(h, logger.Nop()).ServeHTTP(resp, webhookRequest("payos", `{}`))

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestPaymentWebhookMasksInternalFailures(t *testing.T) {
	h := &recordingHandler{err: errors.New("db down")}
	resp := httptest.NewRecorder()

	PaymentWebhook(h, logger.Nop()).ServeHTTP(resp, webhookRequest("payos", `{}`))

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.NotContains(t, resp.Body.String(), "db down")
}
