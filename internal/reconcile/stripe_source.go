package reconcile

import (
	"context"
	"errors"

	pkgerrors "github.com/groupescapehouses/escape-backend/pkg/errors"
	pkgstripe "github.com/groupescapehouses/escape-backend/pkg/stripe"
	"github.com/stripe/stripe-go/v84"
)

// CheckoutSessionClient is the Stripe surface the source needs.
type CheckoutSessionClient interface {
	RetrieveCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
	ListCheckoutSessions(ctx context.Context, limit int) ([]*stripe.CheckoutSession, error)
}

// StripeSource adapts Stripe checkout sessions to PaymentEvents.
type StripeSource struct {
	client CheckoutSessionClient
}

func NewStripeSource(client CheckoutSessionClient) *StripeSource {
	return &StripeSource{client: client}
}

func (s *StripeSource) RetrieveCheckoutSession(ctx context.Context, sessionID string) (PaymentEvent, error) {
	cs, err := s.client.RetrieveCheckoutSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pkgstripe.ErrSessionNotFound) {
			return PaymentEvent{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "checkout session not found")
		}
		return PaymentEvent{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retrieve checkout session")
	}
	return EventFromCheckoutSession(cs, SourceManual), nil
}

func (s *StripeSource) ListRecentCheckoutSessions(ctx context.Context, limit int) ([]PaymentEvent, error) {
	sessions, err := s.client.ListCheckoutSessions(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list checkout sessions")
	}
	events := make([]PaymentEvent, 0, len(sessions))
	for _, cs := range sessions {
		events = append(events, EventFromCheckoutSession(cs, SourceSweep))
	}
	return events, nil
}
