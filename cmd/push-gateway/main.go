package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/angelmondragon/cartsplit-backend/api/controllers"
	"github.com/angelmondragon/cartsplit-backend/api/middleware"
	"github.com/angelmondragon/cartsplit-backend/internal/realtime"
	"github.com/angelmondragon/cartsplit-backend/pkg/config"
	"github.com/angelmondragon/cartsplit-backend/pkg/instance"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
	"github.com/angelmondragon/cartsplit-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "push-gateway"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "push-gateway"

	logg = logger.New(logger.Options{
		ServiceName: "push-gateway",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Instance:    instance.GetID(),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	gateway, err := realtime.NewGateway(realtime.GatewayParams{
		JWT:            cfg.JWT,
		Rooms:          realtime.NewRedisRooms(redisClient),
		AllowedOrigins: cfg.PushGateway.AllowedOrigins,
		Logger:         logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create push gateway", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer(logg), middleware.RequestID(logg))
	r.Get("/health/live", controllers.HealthLive(cfg))
	r.Get("/health/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{"redis": redisClient}))
	r.Handle("/ws", gateway)

	addr := ":" + cfg.PushGateway.Port
	server := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "addr": addr})
	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting push gateway")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "push gateway stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// hijacked websocket connections are not tracked by Shutdown; their
		// pumps end when the process exits
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "push gateway shutdown failed", err)
		}
		logg.Info(ctx, "push gateway shut down")
	}
}
