package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/groupescapehouses/escape-backend/api/routes"
	"github.com/groupescapehouses/escape-backend/internal/entitlements"
	"github.com/groupescapehouses/escape-backend/internal/planpurchases"
	"github.com/groupescapehouses/escape-backend/internal/plans"
	"github.com/groupescapehouses/escape-backend/internal/properties"
	"github.com/groupescapehouses/escape-backend/internal/reconcile"
	stripewebhook "github.com/groupescapehouses/escape-backend/internal/webhooks/stripe"
	"github.com/groupescapehouses/escape-backend/pkg/config"
	"github.com/groupescapehouses/escape-backend/pkg/db"
	"github.com/groupescapehouses/escape-backend/pkg/logger"
	"github.com/groupescapehouses/escape-backend/pkg/metrics"
	"github.com/groupescapehouses/escape-backend/pkg/migrate"
	"github.com/groupescapehouses/escape-backend/pkg/redis"
	"github.com/groupescapehouses/escape-backend/pkg/stripe"
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
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	catalog, err := plans.FromConfig(cfg.Plans)
	if err != nil {
		logg.Error(context.Background(), "invalid plan catalog", err)
		os.Exit(1)
	}

	checkoutService, err := plans.NewCheckoutService(plans.CheckoutServiceParams{
		Catalog:   catalog,
		Sessions:  stripeClient,
		PublicURL: cfg.App.PublicURL,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	purchaseMetrics := metrics.NewPlanPurchaseMetrics(prometheus.DefaultRegisterer)
	purchaseRepo := planpurchases.NewRepository(dbClient.DB())

	purchaseService, err := planpurchases.NewService(planpurchases.ServiceParams{Repo: purchaseRepo})
	if err != nil {
		logg.Error(context.Background(), "failed to create plan purchase service", err)
		os.Exit(1)
	}

	entitlementService, err := entitlements.NewService(entitlements.ServiceParams{
		Repo:    purchaseRepo,
		Catalog: catalog,
		Logger:  logg,
		Metrics: purchaseMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create entitlement service", err)
		os.Exit(1)
	}

	propertyService, err := properties.NewService(properties.ServiceParams{
		Repo:    properties.NewRepository(dbClient.DB()),
		Catalog: catalog,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create property service", err)
		os.Exit(1)
	}

	reconcileService, err := reconcile.NewService(reconcile.ServiceParams{
		Repo:       purchaseRepo,
		Catalog:    catalog,
		Properties: propertyService,
		Logger:     logg,
		Metrics:    purchaseMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile service", err)
		os.Exit(1)
	}

	sweeper, err := reconcile.NewSweeper(reconcile.SweeperParams{
		Source:       reconcile.NewStripeSource(stripeClient),
		Reconciler:   reconcileService,
		Logger:       logg,
		EventTimeout: cfg.Reconcile.EventTimeout,
		MaxLimit:     cfg.Reconcile.MaxLimit,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweeper", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Reconciler: reconcileService,
		Properties: propertyService,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewEventGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "stripe_webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"instance":   id,
		"stripe_env": stripeClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			catalog,
			purchaseService,
			entitlementService,
			checkoutService,
			sweeper,
			stripeClient,
			webhookService,
			webhookGuard,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
