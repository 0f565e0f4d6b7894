package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"

	pkgerrors "github.com/groupescapehouses/escape-backend/pkg/errors"
	pkgstripe "github.com/groupescapehouses/escape-backend/pkg/stripe"
	"github.com/stripe/stripe-go/v84"
)

type stubCheckoutClient struct {
	session  *stripe.CheckoutSession
	sessions []*stripe.CheckoutSession
	err      error
}

func (s *stubCheckoutClient) RetrieveCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	return s.session, s.err
}

func (s *stubCheckoutClient) ListCheckoutSessions(ctx context.Context, limit int) ([]*stripe.CheckoutSession, error) {
	return s.sessions, s.err
}

func TestStripeSourceMapsErrors(t *testing.T) {
	src := NewStripeSource(&stubCheckoutClient{err: fmt.Errorf("%w: cs_x", pkgstripe.ErrSessionNotFound)})
	if _, err := src.RetrieveCheckoutSession(context.Background(), "cs_x"); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	src = NewStripeSource(&stubCheckoutClient{err: errors.New("timeout")})
	if _, err := src.RetrieveCheckoutSession(context.Background(), "cs_x"); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if _, err := src.ListRecentCheckoutSessions(context.Background(), 5); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestStripeSourceListsEvents(t *testing.T) {
	src := NewStripeSource(&stubCheckoutClient{sessions: []*stripe.CheckoutSession{
		{ID: "cs_1", PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid},
		{ID: "cs_2", PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid},
	}})
	events, err := src.ListRecentCheckoutSessions(context.Background(), 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 || events[0].SessionID != "cs_1" || events[1].IsPaid() {
		t.Fatalf("unexpected events %+v", events)
	}
}
