package stripewebhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/groupescapehouses/escape-backend/internal/properties"
	"github.com/groupescapehouses/escape-backend/internal/reconcile"
	pkgerrors "github.com/groupescapehouses/escape-backend/pkg/errors"
	"github.com/groupescapehouses/escape-backend/pkg/logger"
	"github.com/stripe/stripe-go/v84"
)

type propertyPlans interface {
	ActivatePlan(ctx context.Context, input properties.ActivatePlanInput) error
	MarkPaymentFailed(ctx context.Context, propertyID int64) error
}

type ServiceParams struct {
	Reconciler reconcile.Reconciler
	Properties propertyPlans
	Logger     *logger.Logger
	Now        func() time.Time
}

// Service routes verified Stripe events to plan reconciliation and property activation.
type Service struct {
	reconciler reconcile.Reconciler
	properties propertyPlans
	logg       *logger.Logger
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	if params.Properties == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "property service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		reconciler: params.Reconciler,
		properties: params.Properties,
		logg:       params.Logger,
		now:        now,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"stripe_event_id":   event.ID,
		"stripe_event_type": string(event.Type),
	})

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		cs, err := decodeCheckoutSession(event)
		if err != nil {
			return err
		}
		return s.handleCheckoutCompleted(ctx, cs)
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		cs, err := decodeCheckoutSession(event)
		if err != nil {
			return err
		}
		return s.handleCheckoutFailed(ctx, cs)
	case stripe.EventTypePaymentIntentPaymentFailed:
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"payment_intent_id": event.GetObjectValue("id"),
			"user_id":           event.GetObjectValue("metadata", "userId"),
			"plan_id":           event.GetObjectValue("metadata", "planId"),
		}), "plan payment failed")
		return nil
	default:
		s.logg.Debug(ctx, "stripe event ignored")
		return nil
	}
}

func decodeCheckoutSession(event *stripe.Event) (*stripe.CheckoutSession, error) {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session event")
	}
	return &cs, nil
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, cs *stripe.CheckoutSession) error {
	ev := reconcile.EventFromCheckoutSession(cs, reconcile.SourceWebhook)
	ctx = s.logg.WithSessionID(ctx, ev.SessionID)

	if propertyID := reconcile.ParsePropertyID(ev.Metadata.PropertyID); propertyID != nil && ev.IsPaid() {
		if err := s.activateProperty(ctx, *propertyID, ev); err != nil {
			return err
		}
	}

	if _, err := s.reconciler.ReconcilePaymentEvent(ctx, ev); err != nil {
		return err
	}
	return nil
}

// activateProperty tolerates listings that no longer exist or plans it cannot
// read so the event is not retried forever.
func (s *Service) activateProperty(ctx context.Context, propertyID int64, ev reconcile.PaymentEvent) error {
	purchasedAt := s.now().UTC()
	if ev.CreatedAtEpochSeconds > 0 {
		purchasedAt = time.Unix(ev.CreatedAtEpochSeconds, 0).UTC()
	}
	err := s.properties.ActivatePlan(ctx, properties.ActivatePlanInput{
		PropertyID:      propertyID,
		PlanID:          ev.Metadata.PlanID,
		PaymentIntentID: ev.PaymentIntentID,
		SubscriptionID:  ev.SubscriptionID,
		PurchasedAt:     purchasedAt,
	})
	if err == nil {
		return nil
	}
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) || pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		s.logg.Warn(s.logg.WithField(ctx, "property_id", propertyID), "property plan not activated: "+err.Error())
		return nil
	}
	return err
}

func (s *Service) handleCheckoutFailed(ctx context.Context, cs *stripe.CheckoutSession) error {
	ev := reconcile.EventFromCheckoutSession(cs, reconcile.SourceWebhook)
	ctx = s.logg.WithFields(s.logg.WithSessionID(ctx, ev.SessionID), map[string]any{
		"user_id": ev.Metadata.UserID,
		"plan_id": ev.Metadata.PlanID,
	})
	propertyID := reconcile.ParsePropertyID(ev.Metadata.PropertyID)
	if propertyID == nil {
		s.logg.Warn(ctx, "checkout payment failed")
		return nil
	}
	return s.properties.MarkPaymentFailed(ctx, *propertyID)
}
