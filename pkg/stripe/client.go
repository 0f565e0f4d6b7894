// Package stripe is the narrow Stripe surface the plan flows need: creating
// plan checkouts, then reading sessions back by id or as the most recent page.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/groupescapehouses/escape-backend/pkg/config"
	"github.com/groupescapehouses/escape-backend/pkg/logger"
)

// MaxListLimit is the largest page Stripe serves for list endpoints.
const MaxListLimit = 100

// ErrSessionNotFound is returned when Stripe has no checkout session with the id.
var ErrSessionNotFound = errors.New("stripe checkout session not found")

var keyPrefixes = map[string][]string{
	"test": {"sk_test_", "rk_test_"},
	"live": {"sk_live_", "rk_live_"},
}

type retrieveFunc func(ctx context.Context, id string) (*stripe.CheckoutSession, error)
type listFunc func(ctx context.Context, limit int64) ([]*stripe.CheckoutSession, error)
type createFunc func(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)

// CheckoutSessionInput describes a single-price subscription checkout.
type CheckoutSessionInput struct {
	PriceID           string
	CustomerEmail     string
	ClientReferenceID string
	SuccessURL        string
	CancelURL         string
	Metadata          map[string]string
}

// Client binds one Stripe API key to its webhook signing secret.
type Client struct {
	environment   string
	signingSecret string
	retrieve      retrieveFunc
	list          listFunc
	create        createFunc
}

// NewClient checks that the key matches the configured environment and
// builds a per-instance Stripe client; the package-level stripe.Key is left alone.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env := cfg.Environment()
	allowed, ok := keyPrefixes[env]
	if !ok {
		return nil, fmt.Errorf("stripe environment must be test or live, got %q", env)
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("stripe api key is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("stripe webhook secret is required")
	}
	if !hasAnyPrefix(apiKey, allowed) {
		return nil, fmt.Errorf("stripe %s environment needs a key starting with %s", env, strings.Join(allowed, " or "))
	}

	api := stripe.NewClient(apiKey)
	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_env", env), "stripe client initialized")
	}
	return &Client{
		environment:   env,
		signingSecret: secret,
		retrieve: func(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
			return api.V1CheckoutSessions.Retrieve(ctx, id, &stripe.CheckoutSessionRetrieveParams{})
		},
		list: func(ctx context.Context, limit int64) ([]*stripe.CheckoutSession, error) {
			params := &stripe.CheckoutSessionListParams{}
			params.Limit = stripe.Int64(limit)
			out := make([]*stripe.CheckoutSession, 0, limit)
			for cs, err := range api.V1CheckoutSessions.List(ctx, params) {
				if err != nil {
					return nil, err
				}
				out = append(out, cs)
				if int64(len(out)) >= limit {
					break
				}
			}
			return out, nil
		},
		create: func(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error) {
			return api.V1CheckoutSessions.Create(ctx, params)
		},
	}, nil
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// RetrieveCheckoutSession fetches one checkout session by id.
func (c *Client) RetrieveCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("checkout session id is required")
	}
	cs, err := c.retrieve(ctx, id)
	switch {
	case isNotFound(err):
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	case err != nil:
		return nil, fmt.Errorf("retrieve checkout session %s: %w", id, err)
	}
	return cs, nil
}

// ListCheckoutSessions returns up to limit of the most recent checkout
// sessions, newest first. limit is capped at MaxListLimit.
func (c *Client) ListCheckoutSessions(ctx context.Context, limit int) ([]*stripe.CheckoutSession, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	sessions, err := c.list(ctx, int64(min(limit, MaxListLimit)))
	if err != nil {
		return nil, fmt.Errorf("list checkout sessions: %w", err)
	}
	return sessions, nil
}

// CreateCheckoutSession opens a subscription checkout for one price. Metadata is
// copied onto the subscription too so later invoices carry the same ids.
func (c *Client) CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*stripe.CheckoutSession, error) {
	priceID := strings.TrimSpace(in.PriceID)
	if priceID == "" {
		return nil, errors.New("price id is required")
	}
	if in.SuccessURL == "" || in.CancelURL == "" {
		return nil, errors.New("success and cancel urls are required")
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
		SubscriptionData: &stripe.CheckoutSessionCreateSubscriptionDataParams{
			Metadata: in.Metadata,
		},
	}
	params.Metadata = in.Metadata
	if email := strings.TrimSpace(in.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	if ref := strings.TrimSpace(in.ClientReferenceID); ref != "" {
		params.ClientReferenceID = stripe.String(ref)
	}

	cs, err := c.create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return cs, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	return stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing
}
