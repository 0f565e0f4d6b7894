package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/groupescapehouses/escape-backend/internal/planpurchases"
	"github.com/groupescapehouses/escape-backend/internal/plans"
	"github.com/groupescapehouses/escape-backend/pkg/db"
	"github.com/groupescapehouses/escape-backend/pkg/db/models"
	"github.com/groupescapehouses/escape-backend/pkg/enums"
	pkgerrors "github.com/groupescapehouses/escape-backend/pkg/errors"
	"github.com/groupescapehouses/escape-backend/pkg/logger"
	"github.com/groupescapehouses/escape-backend/pkg/metrics"
)

// PropertyLedger confirms that a property-scoped checkout was applied to its listing.
type PropertyLedger interface {
	HasPlanPayment(ctx context.Context, propertyID int64, paymentIntentID, subscriptionID string) (bool, error)
}

// Outcome describes what reconciling one event did. PlanPurchaseID is set for
// created and already-recorded outcomes.
type Outcome struct {
	Kind                    enums.ReconcileOutcome `json:"outcome"`
	PlanPurchaseID          int64                  `json:"plan_purchase_id,omitempty"`
	PropertyID              *int64                 `json:"property_id,omitempty"`
	PropertyPaymentVerified *bool                  `json:"property_payment_verified,omitempty"`
}

type ServiceParams struct {
	Repo       planpurchases.Repository
	Catalog    *plans.Catalog
	Properties PropertyLedger
	Logger     *logger.Logger
	Metrics    *metrics.PlanPurchaseMetrics
	Now        func() time.Time
}

// Service turns payment events into plan purchases, at most one per payment.
type Service struct {
	repo       planpurchases.Repository
	catalog    *plans.Catalog
	properties PropertyLedger
	logg       *logger.Logger
	metrics    *metrics.PlanPurchaseMetrics
	now        func() time.Time
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
		repo:       params.Repo,
		catalog:    params.Catalog,
		properties: params.Properties,
		logg:       params.Logger,
		metrics:    params.Metrics,
		now:        now,
	}, nil
}

// ReconcilePaymentEvent records a plan purchase for a paid, well-formed event
// unless one already exists for its payment intent or subscription. Skips are
// outcomes, not errors; only store failures return an error.
func (s *Service) ReconcilePaymentEvent(ctx context.Context, event PaymentEvent) (Outcome, error) {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"session_id": event.SessionID,
		"user_id":    event.Metadata.UserID,
		"plan_id":    event.Metadata.PlanID,
		"source":     event.Source,
	})

	if !event.IsPaid() {
		return s.done(ctx, event, Outcome{Kind: enums.ReconcileOutcomeSkippedNotPaid}), nil
	}

	plan, ok := s.catalog.Lookup(event.Metadata.PlanID)
	if event.Metadata.UserID == "" || !ok || (event.PaymentIntentID == "" && event.SubscriptionID == "") {
		return s.done(ctx, event, Outcome{Kind: enums.ReconcileOutcomeSkippedMissingMetadata}), nil
	}

	propertyID := ParsePropertyID(event.Metadata.PropertyID)

	existing, err := s.findExisting(ctx, event)
	if err != nil {
		return Outcome{}, s.fail(ctx, event, err)
	}
	if existing != nil {
		return s.done(ctx, event, Outcome{
			Kind:           enums.ReconcileOutcomeSkippedAlreadyRecorded,
			PlanPurchaseID: existing.ID,
		}), nil
	}

	if propertyID != nil {
		out := Outcome{Kind: enums.ReconcileOutcomeSkippedPropertyAssigned, PropertyID: propertyID}
		out.PropertyPaymentVerified = s.verifyPropertyPayment(ctx, *propertyID, event)
		return s.done(ctx, event, out), nil
	}

	purchasedAt := s.purchasedAt(event)
	purchase := &models.PlanPurchase{
		UserID:                event.Metadata.UserID,
		PlanID:                plan.ID,
		StripePaymentIntentID: optional(event.PaymentIntentID),
		StripeSubscriptionID:  optional(event.SubscriptionID),
		StripeCustomerID:      optional(event.CustomerID),
		Amount:                max(event.AmountTotal, 0),
		PurchasedAt:           purchasedAt,
		ExpiresAt:             planpurchases.ExpiresAt(purchasedAt),
		CreatedAt:             s.now().UTC(),
	}

	created, err := s.repo.CreateIfAbsent(ctx, purchase)
	if err != nil && !db.IsUniqueViolation(err, "") {
		return Outcome{}, s.fail(ctx, event, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert plan purchase"))
	}
	if !created {
		// a concurrent reconciler won the insert
		winner, err := s.findExisting(ctx, event)
		if err != nil {
			return Outcome{}, s.fail(ctx, event, err)
		}
		out := Outcome{Kind: enums.ReconcileOutcomeSkippedAlreadyRecorded}
		if winner != nil {
			out.PlanPurchaseID = winner.ID
		}
		return s.done(ctx, event, out), nil
	}

	return s.done(ctx, event, Outcome{Kind: enums.ReconcileOutcomeCreated, PlanPurchaseID: purchase.ID}), nil
}

func (s *Service) findExisting(ctx context.Context, event PaymentEvent) (*models.PlanPurchase, error) {
	if event.PaymentIntentID != "" {
		p, err := s.repo.FindByPaymentIntentID(ctx, event.PaymentIntentID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup plan purchase by payment intent")
		}
		if p != nil {
			return p, nil
		}
	}
	if event.SubscriptionID != "" {
		p, err := s.repo.FindBySubscriptionID(ctx, event.SubscriptionID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup plan purchase by subscription")
		}
		return p, nil
	}
	return nil, nil
}

// verifyPropertyPayment returns nil when the check could not be made.
func (s *Service) verifyPropertyPayment(ctx context.Context, propertyID int64, event PaymentEvent) *bool {
	if s.properties == nil || (event.PaymentIntentID == "" && event.SubscriptionID == "") {
		return nil
	}
	ok, err := s.properties.HasPlanPayment(ctx, propertyID, event.PaymentIntentID, event.SubscriptionID)
	if err != nil {
		s.logg.Error(ctx, "property payment lookup failed", err)
		return nil
	}
	if !ok {
		s.logg.Warn(s.logg.WithField(ctx, "property_id", propertyID), "property checkout has no matching property payment")
	}
	return &ok
}

func (s *Service) purchasedAt(event PaymentEvent) time.Time {
	if event.CreatedAtEpochSeconds <= 0 {
		return s.now().UTC()
	}
	return time.Unix(event.CreatedAtEpochSeconds, 0).UTC()
}

func (s *Service) done(ctx context.Context, event PaymentEvent, out Outcome) Outcome {
	s.metrics.ObserveReconcile(out.Kind.String(), event.Source)
	fields := map[string]any{"outcome": out.Kind.String()}
	if out.PlanPurchaseID != 0 {
		fields["plan_purchase_id"] = out.PlanPurchaseID
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "payment event reconciled")
	return out
}

func (s *Service) fail(ctx context.Context, event PaymentEvent, err error) error {
	s.metrics.ObserveReconcile("error", event.Source)
	s.logg.Error(ctx, "payment event reconciliation failed", err)
	return err
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
