package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/avertine/storefront-backend/api/controllers"
	webhookcontrollers "github.com/avertine/storefront-backend/api/controllers/webhooks"
	"github.com/avertine/storefront-backend/api/middleware"
	checkoutsvc "github.com/avertine/storefront-backend/internal/checkout"
	stripewebhook "github.com/avertine/storefront-backend/internal/webhooks/stripe"
	"github.com/avertine/storefront-backend/pkg/config"
	"github.com/avertine/storefront-backend/pkg/db"
	"github.com/avertine/storefront-backend/pkg/logger"
	"github.com/avertine/storefront-backend/pkg/redis"
	"github.com/avertine/storefront-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	checkoutService checkoutsvc.Service,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/checkout", controllers.Checkout(checkoutService, logg))
	})

	return r
}
