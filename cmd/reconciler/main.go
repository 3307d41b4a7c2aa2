package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/avertine/storefront-backend/internal/cron"
	"github.com/avertine/storefront-backend/internal/notify"
	"github.com/avertine/storefront-backend/internal/orders"
	"github.com/avertine/storefront-backend/internal/reconcile"
	"github.com/avertine/storefront-backend/pkg/config"
	"github.com/avertine/storefront-backend/pkg/db"
	"github.com/avertine/storefront-backend/pkg/enums"
	"github.com/avertine/storefront-backend/pkg/logger"
	"github.com/avertine/storefront-backend/pkg/metrics"
	"github.com/avertine/storefront-backend/pkg/migrate"
	"github.com/avertine/storefront-backend/pkg/redis"
	"github.com/avertine/storefront-backend/pkg/square"
	"github.com/avertine/storefront-backend/pkg/stripe"
)

const lockKeyFormat = "sf:reconciler:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "reconciler"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "reconciler"

	logg = logger.New(logger.Options{
		ServiceName: "reconciler",
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

	squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap square client", err)
		os.Exit(1)
	}

	stripeVerifier, err := reconcile.NewStripeVerifier(stripeClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe verifier", err)
		os.Exit(1)
	}
	squareVerifier, err := reconcile.NewSquareVerifier(squareClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create square verifier", err)
		os.Exit(1)
	}
	verifiers := reconcile.VerifierSet{
		enums.PaymentProviderStripe: stripeVerifier,
		enums.PaymentProviderSquare: squareVerifier,
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
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

	reconcileJob, err := cron.NewReconcileJob(cron.ReconcileJobParams{
		Logger:        logg,
		Orders:        ordersRepo,
		OrdersSvc:     ordersService,
		Verifiers:     verifiers,
		Limit:         cfg.Reconcile.BatchSize,
		GraceWindow:   cfg.Reconcile.GraceWindow,
		VerifyTimeout: cfg.Reconcile.VerifyTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile job", err)
		os.Exit(1)
	}

	retentionJob, err := cron.NewEmailRetentionJob(cron.EmailRetentionJobParams{
		Logger:     logg,
		Repository: notifyRepo,
		Retention:  cfg.Notify.RetentionTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create email retention job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciler lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(reconcileJob, retentionJob),
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Reconcile.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting reconciler")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "reconciler stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "reconciler shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
