package properties

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/groupescapehouses/escape-backend/internal/planpurchases"
	"github.com/groupescapehouses/escape-backend/internal/plans"
	pkgerrors "github.com/groupescapehouses/escape-backend/pkg/errors"
	"github.com/groupescapehouses/escape-backend/pkg/logger"
)

type ServiceParams struct {
	Repo    Repository
	Catalog *plans.Catalog
	Logger  *logger.Logger
}

// Service applies checkout results to listings bought with a property-scoped plan.
type Service struct {
	repo    Repository
	catalog *plans.Catalog
	logg    *logger.Logger
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
	return &Service{repo: params.Repo, catalog: params.Catalog, logg: params.Logger}, nil
}

type ActivatePlanInput struct {
	PropertyID      int64
	PlanID          string
	PaymentIntentID string
	SubscriptionID  string
	PurchasedAt     time.Time
}

// ActivatePlan marks the listing paid on the given tier for one year from purchase.
func (s *Service) ActivatePlan(ctx context.Context, input ActivatePlanInput) error {
	if input.PropertyID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "property id must be positive")
	}
	plan, ok := s.catalog.Lookup(input.PlanID)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown plan").
			WithDetails(map[string]any{"plan_id": input.PlanID})
	}
	if input.PurchasedAt.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "purchase time is required")
	}

	updated, err := s.repo.ApplyPlan(ctx, ApplyPlanParams{
		PropertyID:      input.PropertyID,
		PlanID:          plan.ID,
		PaymentIntentID: optional(input.PaymentIntentID),
		SubscriptionID:  optional(input.SubscriptionID),
		PurchasedAt:     input.PurchasedAt,
		ExpiresAt:       planpurchases.ExpiresAt(input.PurchasedAt),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply property plan")
	}
	if !updated {
		return pkgerrors.New(pkgerrors.CodeNotFound, "property not found")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"property_id": input.PropertyID,
		"plan_id":     plan.ID.String(),
	}), "property plan activated")
	return nil
}

// MarkPaymentFailed records a failed checkout for a listing that is not already paid.
func (s *Service) MarkPaymentFailed(ctx context.Context, propertyID int64) error {
	if propertyID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "property id must be positive")
	}
	changed, err := s.repo.MarkPaymentFailed(ctx, propertyID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark property payment failed")
	}
	ctx = s.logg.WithField(ctx, "property_id", propertyID)
	if !changed {
		s.logg.Info(ctx, "property payment failure ignored")
		return nil
	}
	s.logg.Warn(ctx, "property payment failed")
	return nil
}

// HasPlanPayment reports whether the listing was paid by the given payment
// intent or subscription.
func (s *Service) HasPlanPayment(ctx context.Context, propertyID int64, paymentIntentID, subscriptionID string) (bool, error) {
	return s.repo.HasPlanPayment(ctx, propertyID, strings.TrimSpace(paymentIntentID), strings.TrimSpace(subscriptionID))
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
