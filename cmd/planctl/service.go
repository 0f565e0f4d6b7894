package main

import (
	"context"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/groupescapehouses/escape-backend/internal/planpurchases"
	"github.com/groupescapehouses/escape-backend/internal/plans"
	"github.com/groupescapehouses/escape-backend/internal/properties"
	"github.com/groupescapehouses/escape-backend/internal/reconcile"
	"github.com/groupescapehouses/escape-backend/pkg/config"
	"github.com/groupescapehouses/escape-backend/pkg/db"
	"github.com/groupescapehouses/escape-backend/pkg/db/models"
	"github.com/groupescapehouses/escape-backend/pkg/logger"
	"github.com/groupescapehouses/escape-backend/pkg/metrics"
	"github.com/groupescapehouses/escape-backend/pkg/stripe"
)

// planOps is everything the CLI drives.
type planOps interface {
	ReconcileSessions(ctx context.Context, sessionIDs []string) *reconcile.BatchReport
	SweepRecent(ctx context.Context, limit int) (*reconcile.BatchReport, error)
	ListUnusedEntitlements(ctx context.Context, userID string) ([]models.PlanPurchase, error)
	Summarize(ctx context.Context) (planpurchases.Summary, error)
	Now() time.Time
}

type service struct {
	*reconcile.Sweeper
	*planpurchases.Service
	closeDB func() error
}

func (s *service) Now() time.Time { return time.Now() }

func (s *service) Close() error {
	if s.closeDB == nil {
		return nil
	}
	return s.closeDB()
}

// openService connects to postgres and Stripe and assembles the reconciliation stack.
func openService(ctx context.Context, logLevel string) (*service, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := cfg.App.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logg := logger.New(logger.Options{
		ServiceName: "planctl",
		Level:       logger.ParseLevel(level),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, err
	}
	svc, err := buildService(ctx, cfg, logg, dbClient)
	if err != nil {
		return nil, multierr.Append(err, dbClient.Close())
	}
	return svc, nil
}

func buildService(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*service, error) {
	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return nil, err
	}
	catalog, err := plans.FromConfig(cfg.Plans)
	if err != nil {
		return nil, err
	}

	purchaseRepo := planpurchases.NewRepository(dbClient.DB())
	purchaseService, err := planpurchases.NewService(planpurchases.ServiceParams{Repo: purchaseRepo})
	if err != nil {
		return nil, err
	}
	propertyService, err := properties.NewService(properties.ServiceParams{
		Repo:    properties.NewRepository(dbClient.DB()),
		Catalog: catalog,
		Logger:  logg,
	})
	if err != nil {
		return nil, err
	}
	reconcileService, err := reconcile.NewService(reconcile.ServiceParams{
		Repo:       purchaseRepo,
		Catalog:    catalog,
		Properties: propertyService,
		Logger:     logg,
		Metrics:    metrics.NewPlanPurchaseMetrics(prometheus.NewRegistry()),
	})
	if err != nil {
		return nil, err
	}
	sweeper, err := reconcile.NewSweeper(reconcile.SweeperParams{
		Source:       reconcile.NewStripeSource(stripeClient),
		Reconciler:   reconcileService,
		Logger:       logg,
		EventTimeout: cfg.Reconcile.EventTimeout,
		MaxLimit:     cfg.Reconcile.MaxLimit,
	})
	if err != nil {
		return nil, err
	}

	return &service{
		Sweeper: sweeper,
		Service: purchaseService,
		closeDB: dbClient.Close,
	}, nil
}
