package entitlements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/groupescapehouses/escape-backend/internal/planpurchases"
	"github.com/groupescapehouses/escape-backend/internal/plans"
	"github.com/groupescapehouses/escape-backend/pkg/enums"
	pkgerrors "github.com/groupescapehouses/escape-backend/pkg/errors"
	"github.com/groupescapehouses/escape-backend/pkg/logger"
	"github.com/groupescapehouses/escape-backend/pkg/metrics"
)

const (
	resultConsumed        = "consumed"
	resultNotFound        = "not_found"
	resultNoEligible      = "no_eligible_entitlement"
	resultAlreadyConsumed = "already_consumed"
	resultError           = "error"
)

// ConsumeInput selects which of the owner's plans to attach to a property.
// Without PlanPurchaseID or PlanID the oldest live plan is used.
type ConsumeInput struct {
	UserID         string
	PropertyID     int64
	PlanPurchaseID *int64
	PlanID         string
}

type ConsumeResult struct {
	PlanPurchaseID int64          `json:"plan_purchase_id"`
	PlanID         enums.PlanTier `json:"plan_id"`
	PropertyID     int64          `json:"property_id"`
	UsedAt         time.Time      `json:"used_at"`
}

type ServiceParams struct {
	Repo    planpurchases.Repository
	Catalog *plans.Catalog
	Logger  *logger.Logger
	Metrics *metrics.PlanPurchaseMetrics
	Now     func() time.Time
}

// Service marks plan purchases as used against properties.
type Service struct {
	repo    planpurchases.Repository
	catalog *plans.Catalog
	logg    *logger.Logger
	metrics *metrics.PlanPurchaseMetrics
	now     func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:    params.Repo,
		catalog: params.Catalog,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

// ConsumeEntitlement attaches one live plan to the property. The write is a
// compare-and-set on used=false, so of two racing calls exactly one succeeds;
// the loser gets CodeAlreadyConsumed and is not retried here.
func (s *Service) ConsumeEntitlement(ctx context.Context, input ConsumeInput) (*ConsumeResult, error) {
	filter, err := s.validate(&input)
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"user_id":     input.UserID,
		"property_id": input.PropertyID,
	})

	if input.PlanPurchaseID != nil {
		ctx = s.logg.WithField(ctx, "plan_purchase_id", *input.PlanPurchaseID)
		purchase, err := s.repo.FindByID(ctx, *input.PlanPurchaseID)
		if err != nil {
			return nil, s.fail(ctx, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan purchase"))
		}
		if purchase == nil || purchase.UserID != input.UserID {
			s.record(ctx, resultNotFound)
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan purchase not found")
		}
	}

	candidates, err := s.repo.ListUnusedByUser(ctx, input.UserID, filter)
	if err != nil {
		return nil, s.fail(ctx, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unused plan purchases"))
	}

	now := s.now().UTC()
	live := planpurchases.FilterAvailable(candidates, now)
	if len(live) == 0 {
		s.record(ctx, resultNoEligible)
		return nil, pkgerrors.New(pkgerrors.CodeNoEligibleEntitlement, "no unused plan available").
			WithDetails(map[string]any{"plan_id": input.PlanID})
	}

	// candidates arrive oldest purchase first, ties broken by id
	chosen := live[0]
	ctx = s.logg.WithFields(ctx, map[string]any{"plan_purchase_id": chosen.ID, "plan_id": chosen.PlanID})

	ok, err := s.repo.MarkUsed(ctx, planpurchases.MarkUsedParams{
		ID:         chosen.ID,
		UserID:     input.UserID,
		PropertyID: input.PropertyID,
		UsedAt:     now,
	})
	if err != nil {
		return nil, s.fail(ctx, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark plan purchase used"))
	}
	if !ok {
		s.record(ctx, resultAlreadyConsumed)
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyConsumed, "plan already used").
			WithDetails(map[string]any{"plan_purchase_id": chosen.ID})
	}

	s.record(ctx, resultConsumed)
	return &ConsumeResult{
		PlanPurchaseID: chosen.ID,
		PlanID:         chosen.PlanID,
		PropertyID:     input.PropertyID,
		UsedAt:         now,
	}, nil
}

func (s *Service) validate(input *ConsumeInput) (planpurchases.UnusedFilter, error) {
	input.UserID = strings.TrimSpace(input.UserID)
	if input.UserID == "" {
		return planpurchases.UnusedFilter{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.PropertyID <= 0 {
		return planpurchases.UnusedFilter{}, pkgerrors.New(pkgerrors.CodeValidation, "property id must be positive")
	}

	filter := planpurchases.UnusedFilter{PlanPurchaseID: input.PlanPurchaseID}
	if input.PlanPurchaseID != nil && *input.PlanPurchaseID <= 0 {
		return filter, pkgerrors.New(pkgerrors.CodeValidation, "plan purchase id must be positive")
	}
	if raw := strings.TrimSpace(input.PlanID); raw != "" {
		plan, ok := s.catalog.Lookup(raw)
		if !ok {
			return filter, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown plan id %q", raw))
		}
		filter.PlanID = &plan.ID
		input.PlanID = plan.ID.String()
	}
	return filter, nil
}

func (s *Service) record(ctx context.Context, result string) {
	s.metrics.ObserveConsume(result)
	s.logg.Info(s.logg.WithField(ctx, "result", result), "entitlement consumption")
}

func (s *Service) fail(ctx context.Context, err error) error {
	s.metrics.ObserveConsume(resultError)
	s.logg.Error(ctx, "entitlement consumption failed", err)
	return err
}
