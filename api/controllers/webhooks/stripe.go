package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/groupescapehouses/escape-backend/api/responses"
	stripewebhook "github.com/groupescapehouses/escape-backend/internal/webhooks/stripe"
	pkgerrors "github.com/groupescapehouses/escape-backend/pkg/errors"
	"github.com/groupescapehouses/escape-backend/pkg/logger"
)

const maxWebhookPayload = 1 << 20

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

// StripeWebhookGuard deduplicates Stripe deliveries by event id.
type StripeWebhookGuard interface {
	Claim(ctx context.Context, eventID string) (stripewebhook.Delivery, error)
	Complete(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

type signingClient interface {
	SigningSecret() string
}

// StripeWebhook verifies the Stripe-Signature header and hands each event to
// svc exactly once. Failed events are released so Stripe redelivers them.
func StripeWebhook(svc StripeWebhookService, client signingClient, guard StripeWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || client == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhook not configured"))
			return
		}

		event, err := verifiedEvent(w, r, client.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"stripe_event_id": event.ID, "stripe_event_type": string(event.Type)})
		}

		delivery, err := guard.Claim(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim stripe event"))
			return
		}
		switch delivery {
		case stripewebhook.DeliveryDone:
			if logg != nil {
				logg.Debug(ctx, "stripe.event.duplicate")
			}
			responses.WriteSuccess(w, map[string]bool{"received": true})
			return
		case stripewebhook.DeliveryInFlight:
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "event is already being processed"))
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if relErr := guard.Release(context.WithoutCancel(ctx), event.ID); relErr != nil && logg != nil {
				logg.Error(ctx, "stripe.event.release_failed", relErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := guard.Complete(ctx, event.ID); err != nil && logg != nil {
			logg.Error(ctx, "stripe.event.complete_failed", err)
		}
		if logg != nil {
			logg.Info(ctx, "stripe.event.processed")
		}
		responses.WriteSuccess(w, map[string]bool{"received": true})
	}
}

func verifiedEvent(w http.ResponseWriter, r *http.Request, secret string) (stripe.Event, error) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookPayload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return stripe.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload too large")
		}
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read webhook body")
	}
	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		return stripe.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing")
	}
	event, err := webhook.ConstructEvent(payload, sig, secret)
	if err != nil {
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "stripe signature invalid")
	}
	return event, nil
}
