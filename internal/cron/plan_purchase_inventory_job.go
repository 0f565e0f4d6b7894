package cron

import (
	"context"
	"fmt"

	"github.com/groupescapehouses/escape-backend/internal/planpurchases"
	"github.com/groupescapehouses/escape-backend/pkg/logger"
	"github.com/groupescapehouses/escape-backend/pkg/metrics"
)

const planPurchaseInventoryJobName = "plan-purchase-inventory"

type purchaseSummarizer interface {
	Summarize(ctx context.Context) (planpurchases.Summary, error)
}

type PlanPurchaseInventoryJobParams struct {
	Logger     *logger.Logger
	Summarizer purchaseSummarizer
	Metrics    *metrics.PlanPurchaseMetrics
}

// NewPlanPurchaseInventoryJob publishes the used/available/expired split of plan purchases.
func NewPlanPurchaseInventoryJob(params PlanPurchaseInventoryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Summarizer == nil {
		return nil, fmt.Errorf("summarizer required")
	}
	return &planPurchaseInventoryJob{
		logg:       params.Logger,
		summarizer: params.Summarizer,
		metrics:    params.Metrics,
	}, nil
}

type planPurchaseInventoryJob struct {
	logg       *logger.Logger
	summarizer purchaseSummarizer
	metrics    *metrics.PlanPurchaseMetrics
}

func (j *planPurchaseInventoryJob) Name() string { return planPurchaseInventoryJobName }

func (j *planPurchaseInventoryJob) Run(ctx context.Context) error {
	summary, err := j.summarizer.Summarize(ctx)
	if err != nil {
		return fmt.Errorf("summarize plan purchases: %w", err)
	}
	j.metrics.SetInventory(summary.Used, summary.Available, summary.Expired)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"total":     summary.Total,
		"used":      summary.Used,
		"available": summary.Available,
		"expired":   summary.Expired,
	}), "plan purchase inventory")
	return nil
}
