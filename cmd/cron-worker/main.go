package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/groupescapehouses/escape-backend/internal/cron"
	"github.com/groupescapehouses/escape-backend/internal/planpurchases"
	"github.com/groupescapehouses/escape-backend/internal/plans"
	"github.com/groupescapehouses/escape-backend/internal/properties"
	"github.com/groupescapehouses/escape-backend/internal/reconcile"
	"github.com/groupescapehouses/escape-backend/pkg/config"
	"github.com/groupescapehouses/escape-backend/pkg/db"
	"github.com/groupescapehouses/escape-backend/pkg/logger"
	"github.com/groupescapehouses/escape-backend/pkg/metrics"
	"github.com/groupescapehouses/escape-backend/pkg/migrate"
	"github.com/groupescapehouses/escape-backend/pkg/redis"
	"github.com/groupescapehouses/escape-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if !cfg.FeatureFlags.CronEnabled {
		logg.Warn(context.Background(), "cron disabled by GEH_CRON_ENABLED, exiting")
		return
	}

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

	purchaseMetrics := metrics.NewPlanPurchaseMetrics(prometheus.DefaultRegisterer)
	purchaseRepo := planpurchases.NewRepository(dbClient.DB())

	purchaseService, err := planpurchases.NewService(planpurchases.ServiceParams{Repo: purchaseRepo})
	if err != nil {
		logg.Error(context.Background(), "failed to create plan purchase service", err)
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

	sweepJob, err := cron.NewPlanPurchaseSweepJob(cron.PlanPurchaseSweepJobParams{
		Logger:  logg,
		Sweeper: sweeper,
		Limit:   cfg.Reconcile.SweepLimit,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep job", err)
		os.Exit(1)
	}

	inventoryJob, err := cron.NewPlanPurchaseInventoryJob(cron.PlanPurchaseInventoryJobParams{
		Logger:     logg,
		Summarizer: purchaseService,
		Metrics:    purchaseMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker:"+lockEnv(cfg.App.Env)), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry, err := cron.NewRegistry(sweepJob, inventoryJob)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Reconcile.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"stripe_env": stripeClient.Environment(),
		"interval":   cfg.Reconcile.Interval.String(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockEnv(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
