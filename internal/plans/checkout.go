package plans

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/groupescapehouses/escape-backend/pkg/enums"
	pkgerrors "github.com/groupescapehouses/escape-backend/pkg/errors"
	"github.com/groupescapehouses/escape-backend/pkg/logger"
	pkgstripe "github.com/groupescapehouses/escape-backend/pkg/stripe"
)

// checkoutPurpose tags sessions opened here so dashboards can tell them apart.
const checkoutPurpose = "property_plan"

// SessionCreator opens hosted checkout pages.
type SessionCreator interface {
	CreateCheckoutSession(ctx context.Context, in pkgstripe.CheckoutSessionInput) (*stripe.CheckoutSession, error)
}

type CheckoutServiceParams struct {
	Catalog   *Catalog
	Sessions  SessionCreator
	PublicURL string
	Logger    *logger.Logger
}

// CheckoutService starts plan purchases. The metadata it writes is what
// reconciliation later reads back off the completed session.
type CheckoutService struct {
	catalog   *Catalog
	sessions  SessionCreator
	publicURL string
	logg      *logger.Logger
}

func NewCheckoutService(params CheckoutServiceParams) (*CheckoutService, error) {
	if params.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if params.Sessions == nil {
		return nil, errors.New("session creator is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	base := strings.TrimRight(strings.TrimSpace(params.PublicURL), "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New("public url must be an absolute url")
	}
	return &CheckoutService{
		catalog:   params.Catalog,
		sessions:  params.Sessions,
		publicURL: base,
		logg:      params.Logger,
	}, nil
}

type CheckoutInput struct {
	UserID     string
	Email      string
	PlanID     string
	PropertyID *int64
	Interval   string
}

type CheckoutSession struct {
	SessionID string                `json:"session_id"`
	URL       string                `json:"url"`
	PlanID    enums.PlanTier        `json:"plan_id"`
	Interval  enums.BillingInterval `json:"interval"`
}

// StartCheckout resolves the plan's Stripe price and opens a checkout session.
// Interval defaults to yearly.
func (s *CheckoutService) StartCheckout(ctx context.Context, input CheckoutInput) (*CheckoutSession, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id is required")
	}
	plan, ok := s.catalog.Lookup(input.PlanID)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid plan").
			WithDetails(map[string]string{"plan_id": "must be one of bronze, silver, gold"})
	}
	interval := enums.BillingIntervalYearly
	if raw := strings.ToLower(strings.TrimSpace(input.Interval)); raw != "" {
		parsed, err := enums.ParseBillingInterval(raw)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid billing interval").
				WithDetails(map[string]string{"interval": "must be yearly or monthly"})
		}
		interval = parsed
	}
	if input.PropertyID != nil && *input.PropertyID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "property id must be positive")
	}

	priceID := plan.PriceID(interval)
	if priceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan is not sold at this interval").
			WithDetails(map[string]string{"plan_id": plan.ID.String(), "interval": interval.String()})
	}

	metadata := map[string]string{
		"userId":   userID,
		"planId":   plan.ID.String(),
		"interval": interval.String(),
		"type":     checkoutPurpose,
	}
	if input.PropertyID != nil {
		metadata["propertyId"] = strconv.FormatInt(*input.PropertyID, 10)
	}
	success, cancel := s.redirectURLs(plan.ID, input.PropertyID)

	ctx = s.logg.WithFields(s.logg.WithUserID(ctx, userID), map[string]any{
		"plan_id":  plan.ID.String(),
		"interval": interval.String(),
	})
	cs, err := s.sessions.CreateCheckoutSession(ctx, pkgstripe.CheckoutSessionInput{
		PriceID:           priceID,
		CustomerEmail:     input.Email,
		ClientReferenceID: userID,
		SuccessURL:        success,
		CancelURL:         cancel,
		Metadata:          metadata,
	})
	if err != nil {
		s.logg.Error(ctx, "create plan checkout failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	s.logg.Info(s.logg.WithSessionID(ctx, cs.ID), "plan checkout created")

	return &CheckoutSession{SessionID: cs.ID, URL: cs.URL, PlanID: plan.ID, Interval: interval}, nil
}

// redirectURLs mirrors the web app's flow: an existing listing returns to the
// dashboard, a new one continues listing creation with the session id.
func (s *CheckoutService) redirectURLs(planID enums.PlanTier, propertyID *int64) (string, string) {
	if propertyID != nil {
		id := strconv.FormatInt(*propertyID, 10)
		return s.publicURL + "/owner-dashboard?payment=success&propertyId=" + id,
			s.publicURL + "/choose-plan?propertyId=" + id + "&canceled=true"
	}
	// Stripe substitutes {CHECKOUT_SESSION_ID}; it must stay unescaped.
	return s.publicURL + "/owner/properties/new?payment=success&planId=" + url.QueryEscape(planID.String()) +
			"&session_id={CHECKOUT_SESSION_ID}",
		s.publicURL + "/choose-plan?canceled=true"
}
