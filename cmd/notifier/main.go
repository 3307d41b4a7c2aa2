package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/avertine/storefront-backend/internal/notify"
	"github.com/avertine/storefront-backend/internal/orders"
	"github.com/avertine/storefront-backend/internal/stores"
	"github.com/avertine/storefront-backend/pkg/config"
	"github.com/avertine/storefront-backend/pkg/db"
	"github.com/avertine/storefront-backend/pkg/logger"
	"github.com/avertine/storefront-backend/pkg/mailer"
	"github.com/avertine/storefront-backend/pkg/metrics"
	"github.com/avertine/storefront-backend/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "notifier"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "notifier"

	logg = logger.New(logger.Options{
		ServiceName: "notifier",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	mailClient, err := mailer.NewClient(cfg.Sendgrid, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap sendgrid client", err)
		os.Exit(1)
	}

	notifyRepo := notify.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())
	storesRepo := stores.NewRepository(dbClient.DB())

	enqueuer, err := notify.NewEnqueuer(notifyRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification enqueuer", err)
		os.Exit(1)
	}

	dispatcher, err := notify.NewDispatcher(notify.DispatcherParams{
		Config:   cfg.Notify,
		Logger:   logg,
		Repo:     notifyRepo,
		Enqueuer: enqueuer,
		Orders:   ordersRepo,
		Stores:   storesRepo,
		Mailer:   mailClient,
		Metrics:  metrics.NewEmailMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatcher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting notifier")

	if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "notifier stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "notifier shutting down gracefully")
}
