package cron

import (
	"context"
	"fmt"

	"github.com/groupescapehouses/escape-backend/internal/reconcile"
	"github.com/groupescapehouses/escape-backend/pkg/logger"
	"go.uber.org/multierr"
)

const (
	planPurchaseSweepJobName = "plan-purchase-sweep"
	defaultSweepLimit        = 50
)

type recentSweeper interface {
	SweepRecent(ctx context.Context, limit int) (*reconcile.BatchReport, error)
}

// PlanPurchaseSweepJobParams configures the recovery sweep over recent checkout sessions.
type PlanPurchaseSweepJobParams struct {
	Logger  *logger.Logger
	Sweeper recentSweeper
	Limit   int
}

// NewPlanPurchaseSweepJob builds the job that re-reconciles recent Stripe checkouts
// so purchases missed by the webhook are still recorded.
func NewPlanPurchaseSweepJob(params PlanPurchaseSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("sweeper required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	return &planPurchaseSweepJob{logg: params.Logger, sweeper: params.Sweeper, limit: limit}, nil
}

type planPurchaseSweepJob struct {
	logg    *logger.Logger
	sweeper recentSweeper
	limit   int
}

func (j *planPurchaseSweepJob) Name() string { return planPurchaseSweepJobName }

func (j *planPurchaseSweepJob) Run(ctx context.Context) error {
	report, err := j.sweeper.SweepRecent(ctx, j.limit)
	if err != nil {
		return fmt.Errorf("sweep recent checkout sessions: %w", err)
	}
	if len(report.Created) > 0 {
		j.logg.Warn(j.logg.WithField(ctx, "created", report.Created), "sweep recovered plan purchases missed by the webhook")
	}
	var errs error
	if report.Failed > 0 {
		errs = multierr.Append(errs, fmt.Errorf("%d of %d sessions failed", report.Failed, report.Scanned))
		errs = multierr.Append(errs, report.Err())
	}
	return errs
}
