package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/cartsplit-backend/internal/analytics/router"
	"github.com/angelmondragon/cartsplit-backend/internal/analytics/types"
	"github.com/angelmondragon/cartsplit-backend/internal/analytics/worker"
	"github.com/angelmondragon/cartsplit-backend/internal/analytics/writer"
	"github.com/angelmondragon/cartsplit-backend/pkg/bigquery"
	"github.com/angelmondragon/cartsplit-backend/pkg/config"
	"github.com/angelmondragon/cartsplit-backend/pkg/instance"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox/registry"
	"github.com/angelmondragon/cartsplit-backend/pkg/pubsub"
	"github.com/angelmondragon/cartsplit-backend/pkg/redis"
)

const serviceKind = "analytics-worker"

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
		logg.Error(ctx, "analytics worker stopped", err)
		os.Exit(1)
	}
	logg.Info(ctx, "analytics worker stopped cleanly")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer closeWith(ctx, logg, "redis", redisClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	defer closeWith(ctx, logg, "pubsub", pubsubClient.Close)

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		return errors.New("analytics subscription not configured")
	}

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return fmt.Errorf("bigquery: %w", err)
	}
	defer closeWith(ctx, logg, "bigquery", bqClient.Close)

	table := cfg.BigQuery.FulfillmentEventsTable
	if err := bqClient.EnsureTable(ctx, table, types.FulfillmentEventRow{}, "occurred_at"); err != nil {
		return fmt.Errorf("ensure table %s: %w", table, err)
	}
	rowWriter, err := writer.New(bqClient, writer.Config{FulfillmentTable: table})
	if err != nil {
		return err
	}
	eventRouter, err := router.NewRouter(registry.Default(), rowWriter, logg)
	if err != nil {
		return err
	}

	ledger, err := idempotency.NewLedger(redisClient, worker.ConsumerName, cfg.Eventing.ConsumerLease, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return fmt.Errorf("idempotency ledger: %w", err)
	}
	service, err := worker.NewService(subscription, eventRouter, ledger, logg)
	if err != nil {
		return err
	}

	logg.Info(logg.WithField(ctx, "table", table), "analytics worker running")
	return service.Run(ctx)
}

func closeWith(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", what), "close failed", err)
	}
}
