package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/cartsplit-backend/api/controllers"
	"github.com/angelmondragon/cartsplit-backend/api/routes"
	"github.com/angelmondragon/cartsplit-backend/internal/cart"
	"github.com/angelmondragon/cartsplit-backend/internal/checkout"
	"github.com/angelmondragon/cartsplit-backend/internal/checkout/reservation"
	"github.com/angelmondragon/cartsplit-backend/internal/discounts"
	"github.com/angelmondragon/cartsplit-backend/internal/orders"
	"github.com/angelmondragon/cartsplit-backend/internal/payments"
	"github.com/angelmondragon/cartsplit-backend/internal/products"
	"github.com/angelmondragon/cartsplit-backend/internal/realtime"
	"github.com/angelmondragon/cartsplit-backend/internal/shipments"
	"github.com/angelmondragon/cartsplit-backend/internal/shipping"
	"github.com/angelmondragon/cartsplit-backend/internal/shops"
	"github.com/angelmondragon/cartsplit-backend/pkg/config"
	"github.com/angelmondragon/cartsplit-backend/pkg/db"
	"github.com/angelmondragon/cartsplit-backend/pkg/instance"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
	"github.com/angelmondragon/cartsplit-backend/pkg/metrics"
	"github.com/angelmondragon/cartsplit-backend/pkg/migrate"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox"
	"github.com/angelmondragon/cartsplit-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Instance:    instance.GetID(),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.AutoApply(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	fulfillmentMetrics := metrics.NewFulfillmentMetrics(prometheus.DefaultRegisterer)
	conn := dbClient.DB()

	productsRepo := products.NewRepository(conn)
	cartRepo := cart.NewRepository(conn)
	vouchersRepo := discounts.NewRepository(conn)
	ordersRepo := orders.NewRepository(conn)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)
	publisher := realtime.NewPublisher(redisClient, logg)

	inventory, err := reservation.NewService(reservation.ServiceParams{
		DB:     dbClient,
		Stock:  func(tx *gorm.DB) reservation.StockStore { return productsRepo.WithTx(tx) },
		Repo:   reservation.NewRepository(conn),
		Outbox: outboxSvc,
	})
	if err != nil {
		logg.Error(ctx, "failed to create inventory reservations", err)
		os.Exit(1)
	}

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		DB:          dbClient,
		Products:    productsRepo,
		Cart:        func(tx *gorm.DB) checkout.CartStore { return cartRepo.WithTx(tx) },
		Vouchers:    func(tx *gorm.DB) checkout.VoucherStore { return vouchersRepo.WithTx(tx) },
		Shops:       shops.NewRepository(conn),
		Shipping:    shipping.NewCalculator(cfg.Shipping),
		Inventory:   inventory,
		Orders:      ordersRepo,
		Outbox:      outboxSvc,
		Metrics:     fulfillmentMetrics,
		Logger:      logg,
		PaymentTerm: cfg.Checkout.PaymentDeadline,
	})
	if err != nil {
		logg.Error(ctx, "failed to create checkout service", err)
		os.Exit(1)
	}

	ordersSvc, err := orders.NewService(ordersRepo)
	if err != nil {
		logg.Error(ctx, "failed to create orders service", err)
		os.Exit(1)
	}

	gateways, err := payments.BuildGateways(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to build payment gateways", err)
		os.Exit(1)
	}
	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		DB:         dbClient,
		Orders:     ordersRepo,
		Outbox:     outboxSvc,
		Gateways:   gateways,
		Guard:      redisClient,
		Realtime:   publisher,
		Metrics:    fulfillmentMetrics,
		Logger:     logg,
		Config:     cfg.Payments,
		WebhookTTL: cfg.Eventing.WebhookIdempotencyTTL,
	})
	if err != nil {
		logg.Error(ctx, "failed to create payments service", err)
		os.Exit(1)
	}

	shipmentsSvc, err := shipments.NewService(shipments.ServiceParams{
		DB:       dbClient,
		Orders:   ordersRepo,
		Outbox:   outboxSvc,
		Realtime: publisher,
		Metrics:  fulfillmentMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create shipments service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Params{
			Config: cfg,
			Logger: logg,
			Readiness: map[string]controllers.Pinger{
				"db":    dbClient,
				"redis": redisClient,
			},
			Idempotency: redisClient,
			RateLimits:  redisClient,
			Checkout:    checkoutSvc,
			Orders:      ordersSvc,
			Payments:    paymentsSvc,
			Shipments:   shipmentsSvc,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}
