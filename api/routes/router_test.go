package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	checkoutsvc "github.com/angelmondragon/cartsplit-backend/internal/checkout"
	"github.com/angelmondragon/cartsplit-backend/internal/checkout/helpers"
	"github.com/angelmondragon/cartsplit-backend/internal/payments"
	"github.com/angelmondragon/cartsplit-backend/internal/shipments"
	pkgAuth "github.com/angelmondragon/cartsplit-backend/pkg/auth"
	"github.com/angelmondragon/cartsplit-backend/pkg/config"
	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", CORSAllowedOrigins: []string{"http://localhost:3000"}, WebhookRateLimit: 10},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "cartsplit", ExpirationMinutes: 60},
	}
}

func buildToken(t *testing.T, cfg *config.Config, role enums.Role) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

type memStore struct {
	data map[string]string
}

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

type stubCheckout struct {
	calls int
}

func (s *stubCheckout) Execute(_ context.Context, input checkoutsvc.Input) (*checkoutsvc.Result, error) {
	s.calls++
	return &checkoutsvc.Result{CheckoutID: uuid.New(), Orders: []models.Order{{ID: uuid.New(), UserID: input.BuyerID}}}, nil
}

func (s *stubCheckout) PreviewDiscount(context.Context, uuid.UUID, []helpers.Line, string) (*checkoutsvc.DiscountSummary, error) {
	return &checkoutsvc.DiscountSummary{Code: "SALE"}, nil
}

type stubShipments struct {
	courier uuid.UUID
}

func (s *stubShipments) UpdateStatus(_ context.Context, courierID, orderID uuid.UUID, input shipments.StatusInput) (*shipments.Outcome, error) {
	s.courier = courierID
	return &shipments.Outcome{Order: &models.Order{ID: orderID, ShippingStatus: input.Status}}, nil
}

func (s *stubShipments) AddCheckpoint(_ context.Context, _, orderID uuid.UUID, _ shipments.CheckpointInput) (*shipments.Outcome, error) {
	return &shipments.Outcome{Order: &models.Order{ID: orderID}}, nil
}

func (s *stubShipments) SyncOfflineUpdates(_ context.Context, _ uuid.UUID, updates []shipments.OfflineUpdate) []shipments.SyncResult {
	out := make([]shipments.SyncResult, len(updates))
	for i, u := range updates {
		out[i] = shipments.SyncResult{Index: i, OrderID: u.OrderID, Success: i == 0}
	}
	return out
}

type stubPayments struct {
	payments.Service
	webhooks int
}

func (s *stubPayments) HandleWebhook(_ context.Context, gateway enums.PaymentGateway, _ http.Header, _ []byte) (*payments.WebhookAck, error) {
	s.webhooks++
	return &payments.WebhookAck{EventID: string(gateway) + ":1"}, nil
}

func newTestRouter(p Params) http.Handler {
	if p.Config == nil {
		p.Config = testConfig()
	}
	p.Logger = logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	return NewRouter(p)
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(Params{})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp.Header().Get("X-CartSplit-Env") != "test" {
		t.Fatalf("expected env header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(Params{Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "# metrics") {
		t.Fatalf("unexpected metrics response %d %q", resp.Code, resp.Body.String())
	}
}

func TestPrivateRoutesRejectMissingJWT(t *testing.T) {
	router := newTestRouter(Params{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+uuid.NewString(), nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestCourierRoutesRequireCourierRole(t *testing.T) {
	cfg := testConfig()
	svc := &stubShipments{}
	router := newTestRouter(Params{Config: cfg, Shipments: svc})
	path := "/api/v1/courier/orders/" + uuid.NewString() + "/status"
	body := `{"status":"picked_up"}`

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.RoleBuyer))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for buyer got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.RoleCourier))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for courier got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.courier == uuid.Nil {
		t.Fatalf("expected courier id forwarded")
	}
}

func TestCourierStatusRejectsUnknownStatus(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(Params{Config: cfg, Shipments: &stubShipments{}})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/courier/orders/"+uuid.NewString()+"/status", strings.NewReader(`{"status":"teleported"}`))
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.RoleCourier))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCourierSyncReportsPerItem(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(Params{Config: cfg, Shipments: &stubShipments{}})
	body := fmt.Sprintf(`{"updates":[
		{"order_id":%q,"kind":"status","status":"picked_up","occurred_at":"2026-05-02T07:00:00Z"},
		{"order_id":%q,"kind":"checkpoint","occurred_at":"2026-05-02T07:05:00Z"}
	]}`, uuid.NewString(), uuid.NewString())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/courier/sync", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.RoleCourier))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	var payload struct {
		Data struct {
			Succeeded int `json:"succeeded"`
			Failed    int `json:"failed"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Data.Succeeded != 1 || payload.Data.Failed != 1 {
		t.Fatalf("unexpected summary %+v", payload.Data)
	}
}

func TestCheckoutRequiresIdempotencyKeyAndReplays(t *testing.T) {
	cfg := testConfig()
	svc := &stubCheckout{}
	router := newTestRouter(Params{Config: cfg, Checkout: svc, Idempotency: &memStore{data: map[string]string{}}})
	token := buildToken(t, cfg, enums.RoleBuyer)
	body := fmt.Sprintf(`{"lines":[{"product_id":%q,"quantity":2}],"payment_method":"cod","shipping_method":"standard",
		"address":{"province":"Hà Nội","district":"Ba Đình","ward":"Kim Mã","detail":"12 Kim Mã"}}`, uuid.NewString())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without Idempotency-Key got %d", resp.Code)
	}

	for i := 0; i < 2; i++ {
		req = httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", "chk-1")
		resp = httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201 got %d: %s", i, resp.Code, resp.Body.String())
		}
	}
	if svc.calls != 1 {
		t.Fatalf("expected checkout executed once, got %d", svc.calls)
	}
}

func TestPaymentWebhookIsPublic(t *testing.T) {
	svc := &stubPayments{}
	router := newTestRouter(Params{Payments: svc})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments/payos", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments/stripe", strings.NewReader(`{}`))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown gateway got %d", resp.Code)
	}
	if svc.webhooks != 1 {
		t.Fatalf("expected one webhook delivered, got %d", svc.webhooks)
	}
}
