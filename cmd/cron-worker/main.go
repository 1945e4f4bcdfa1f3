package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/cartsplit-backend/internal/cron"
	"github.com/angelmondragon/cartsplit-backend/internal/orders"
	"github.com/angelmondragon/cartsplit-backend/internal/payments"
	"github.com/angelmondragon/cartsplit-backend/internal/products"
	"github.com/angelmondragon/cartsplit-backend/internal/realtime"
	"github.com/angelmondragon/cartsplit-backend/pkg/config"
	"github.com/angelmondragon/cartsplit-backend/pkg/db"
	"github.com/angelmondragon/cartsplit-backend/pkg/instance"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
	"github.com/angelmondragon/cartsplit-backend/pkg/metrics"
	"github.com/angelmondragon/cartsplit-backend/pkg/migrate"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox"
	"github.com/angelmondragon/cartsplit-backend/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	bootLog := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(context.Background(), ".env not loaded, using process environment")
	}
	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(context.Background(), "load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Instance:    instance.GetID(),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceKind})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker stopped cleanly")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer closeWith(ctx, logg, "database", dbClient.Close)

	if err := migrate.AutoApply(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer closeWith(ctx, logg, "redis", redisClient.Close)

	conn := dbClient.DB()
	ordersRepo := orders.NewRepository(conn)
	productsRepo := products.NewRepository(conn)
	outboxRepo := outbox.NewRepository(conn)
	outboxSvc := outbox.NewService(outboxRepo, logg)

	gateways, err := payments.BuildGateways(ctx, cfg, logg)
	if err != nil {
		return fmt.Errorf("payment gateways: %w", err)
	}
	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		DB:         dbClient,
		Orders:     ordersRepo,
		Outbox:     outboxSvc,
		Gateways:   gateways,
		Guard:      redisClient,
		Realtime:   realtime.NewPublisher(redisClient, logg),
		Metrics:    metrics.NewFulfillmentMetrics(prometheus.DefaultRegisterer),
		Logger:     logg,
		Config:     cfg.Payments,
		WebhookTTL: cfg.Eventing.WebhookIdempotencyTTL,
	})
	if err != nil {
		return fmt.Errorf("payments service: %w", err)
	}

	syncJob, err := cron.NewPaymentSyncJob(cron.PaymentSyncJobParams{Logger: logg, Payments: paymentsSvc})
	if err != nil {
		return err
	}
	deadlineJob, err := cron.NewPaymentDeadlineJob(cron.PaymentDeadlineJobParams{
		Logger: logg,
		DB:     dbClient,
		Orders: ordersRepo,
		Stock:  func(tx *gorm.DB) cron.StockRestorer { return productsRepo.WithTx(tx) },
		Outbox: outboxSvc,
	})
	if err != nil {
		return err
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:       logg,
		DB:           dbClient,
		Outbox:       outboxRepo,
		DLQ:          outbox.NewDLQRepository(conn),
		Retention:    cfg.Outbox.Retention,
		DLQRetention: cfg.Outbox.DLQRetention,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return err
	}

	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger: logg,
		// sync first so a payment that landed just before its deadline is kept
		Jobs:       []cron.Job{syncJob, deadlineJob, retentionJob},
		Locker:     redisClient,
		LockKey:    redisClient.LockKey(serviceKind + ":" + env),
		LockTTL:    cfg.Cron.LockTTL,
		Metrics:    metrics.NewSchedulerMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		return err
	}

	logg.Info(ctx, "cron worker running")
	return service.Run(ctx)
}

func closeWith(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", what), "close failed", err)
	}
}
