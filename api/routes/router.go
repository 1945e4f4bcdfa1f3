package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/cartsplit-backend/api/controllers"
	"github.com/angelmondragon/cartsplit-backend/api/controllers/courier"
	ordercontrollers "github.com/angelmondragon/cartsplit-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/cartsplit-backend/api/controllers/webhooks"
	"github.com/angelmondragon/cartsplit-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/cartsplit-backend/internal/checkout"
	"github.com/angelmondragon/cartsplit-backend/internal/orders"
	"github.com/angelmondragon/cartsplit-backend/internal/payments"
	"github.com/angelmondragon/cartsplit-backend/internal/shipments"
	"github.com/angelmondragon/cartsplit-backend/pkg/config"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/cartsplit-backend/pkg/redis"
)

// Params carries the collaborators mounted by the router. Nil services make
// their routes answer with an internal error.
type Params struct {
	Config      *config.Config
	Logger      *logger.Logger
	Readiness   map[string]controllers.Pinger
	Idempotency pkgredis.IdempotencyStore
	RateLimits  middleware.RateLimitStore
	// Metrics defaults to the process-wide prometheus handler.
	Metrics http.Handler

	Checkout  checkoutsvc.Service
	Orders    orders.Service
	Payments  payments.Service
	Shipments shipments.Service
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	metricsHandler := p.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Readiness))
	})

	webhookLimiter := middleware.RateLimit(middleware.RateLimitPolicy{
		Name:   "payment-webhooks",
		Window: time.Minute,
		Limit:  cfg.App.WebhookRateLimit,
	}, p.RateLimits, logg)

	r.Route("/api/v1", func(r chi.Router) {
		// gateways authenticate with signatures, not JWTs
		r.With(webhookLimiter).Post("/webhooks/payments/{gateway}", webhookcontrollers.PaymentWebhook(p.Payments, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(p.Idempotency, logg))
			mountPrivate(r, p)
		})
	})

	return r
}

func mountPrivate(r chi.Router, p Params) {
	logg := p.Logger
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(logg, enums.RoleBuyer))
		r.Post("/checkout", controllers.Checkout(p.Checkout, logg))
		r.Post("/vouchers/preview", controllers.VoucherPreview(p.Checkout, logg))
		r.Post("/orders/{orderId}/payment-link", ordercontrollers.PaymentLink(p.Payments, logg))
		r.Post("/orders/{orderId}/payment-sync", ordercontrollers.PaymentSync(p.Payments, logg))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(logg, enums.RoleBuyer, enums.RoleSeller, enums.RoleCourier, enums.RoleAdmin))
		r.Get("/orders", ordercontrollers.List(p.Orders, logg))
		r.Get("/orders/{orderId}", ordercontrollers.Detail(p.Orders, logg))
	})

	r.Route("/courier", func(r chi.Router) {
		r.Use(middleware.RequireRole(logg, enums.RoleCourier))
		r.Post("/orders/{orderId}/status", courier.UpdateStatus(p.Shipments, logg))
		r.Post("/orders/{orderId}/checkpoints", courier.AddCheckpoint(p.Shipments, logg))
		r.Post("/sync", courier.Sync(p.Shipments, logg))
	})
}
