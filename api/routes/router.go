package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/groupescapehouses/escape-backend/api/controllers"
	webhookcontrollers "github.com/groupescapehouses/escape-backend/api/controllers/webhooks"
	"github.com/groupescapehouses/escape-backend/api/middleware"
	"github.com/groupescapehouses/escape-backend/internal/plans"
	"github.com/groupescapehouses/escape-backend/pkg/config"
	"github.com/groupescapehouses/escape-backend/pkg/logger"
	"github.com/groupescapehouses/escape-backend/pkg/redis"
)

// PlanPurchaseService is the owner and operator read surface over plan purchases.
type PlanPurchaseService interface {
	controllers.UnusedPlansService
	controllers.PurchaseLister
}

type signingClient interface {
	SigningSecret() string
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	catalog *plans.Catalog,
	purchases PlanPurchaseService,
	entitlementService controllers.EntitlementConsumer,
	checkout controllers.PlanCheckoutStarter,
	reconciler controllers.SessionReconciler,
	stripeClient signingClient,
	stripeWebhookService webhookcontrollers.StripeWebhookService,
	stripeWebhookGuard webhookcontrollers.StripeWebhookGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	deps := map[string]controllers.Pinger{"db": dbP}
	var idempotencyStore redis.IdempotencyStore
	if redisClient != nil {
		deps["redis"] = redisClient
		idempotencyStore = redisClient
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/api/v1/plans", controllers.PlansCatalog(catalog, logg))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
	})

	idempotent := middleware.Idempotency(idempotencyStore, logg)

	r.Route("/api/v1/owner", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Get("/plans/unused", controllers.OwnerUnusedPlans(purchases, logg, nil))
		r.Post("/plans/checkout", controllers.OwnerStartPlanCheckout(checkout, logg))
		r.With(idempotent).Post("/plans/consume", controllers.OwnerConsumePlan(entitlementService, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, cfg.JWT.AdminRole))
		r.Route("/plan-purchases", func(r chi.Router) {
			r.Get("/", controllers.AdminListPlanPurchases(purchases, logg, nil))
			r.With(idempotent).Post("/reconcile", controllers.AdminReconcileSessions(reconciler, logg))
			r.With(idempotent).Post("/sweep", controllers.AdminSweepRecent(reconciler, cfg.Reconcile.SweepLimit, logg))
		})
	})

	return r
}
