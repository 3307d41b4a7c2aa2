package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/avertine/storefront-backend/api/routes"
	"github.com/avertine/storefront-backend/internal/checkout"
	"github.com/avertine/storefront-backend/internal/credits"
	"github.com/avertine/storefront-backend/internal/customers"
	"github.com/avertine/storefront-backend/internal/notify"
	"github.com/avertine/storefront-backend/internal/orders"
	"github.com/avertine/storefront-backend/internal/paymentmethods"
	"github.com/avertine/storefront-backend/internal/stores"
	stripewebhook "github.com/avertine/storefront-backend/internal/webhooks/stripe"
	"github.com/avertine/storefront-backend/pkg/config"
	"github.com/avertine/storefront-backend/pkg/db"
	"github.com/avertine/storefront-backend/pkg/logger"
	"github.com/avertine/storefront-backend/pkg/migrate"
	"github.com/avertine/storefront-backend/pkg/redis"
	"github.com/avertine/storefront-backend/pkg/stripe"
)

const (
	webhookEventTTL = 24 * time.Hour
	shutdownTimeout = 15 * time.Second
)

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

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe client", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	customersRepo := customers.NewRepository(dbClient.DB())
	storesRepo := stores.NewRepository(dbClient.DB())
	methodsRepo := paymentmethods.NewRepository(dbClient.DB())
	creditsRepo := credits.NewRepository(dbClient.DB())
	notifyRepo := notify.NewRepository(dbClient.DB())

	enqueuer, err := notify.NewEnqueuer(notifyRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification enqueuer", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:     ordersRepo,
		Enqueuer: enqueuer,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	creditsService, err := credits.NewService(credits.ServiceParams{
		Repo:      creditsRepo,
		Customers: customersRepo,
		Enqueuer:  enqueuer,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create credits service", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Tx:        dbClient,
		Orders:    ordersRepo,
		Customers: customersRepo,
		Stores:    storesRepo,
		Methods:   methodsRepo,
		Gateway:   stripeClient,
		Enqueuer:  enqueuer,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Tx:        dbClient,
		Orders:    ordersRepo,
		OrdersSvc: ordersService,
		Credits:   creditsService,
		Customers: customersRepo,
		Gateway:   stripeClient,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, webhookEventTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			checkoutService,
			stripeClient,
			webhookService,
			webhookGuard,
		),
	}

	errc := make(chan error, 1)
	go func() {
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}
