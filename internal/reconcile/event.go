package reconcile

import (
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v84"
)

const (
	SourceWebhook = "webhook"
	SourceSweep   = "sweep"
	SourceManual  = "manual"

	paymentStatusPaid = "paid"
)

// Metadata is the buyer context attached to a checkout session at creation.
type Metadata struct {
	UserID     string `json:"userId,omitempty"`
	PlanID     string `json:"planId,omitempty"`
	PropertyID string `json:"propertyId,omitempty"`
}

// PaymentEvent is a completed or attempted checkout, independent of where it was observed.
type PaymentEvent struct {
	SessionID             string
	PaymentStatus         string
	PaymentIntentID       string
	SubscriptionID        string
	CustomerID            string
	Metadata              Metadata
	AmountTotal           int64
	CreatedAtEpochSeconds int64
	Source                string
}

// EventFromCheckoutSession flattens a Stripe checkout session into a PaymentEvent.
func EventFromCheckoutSession(cs *stripe.CheckoutSession, source string) PaymentEvent {
	if cs == nil {
		return PaymentEvent{Source: source}
	}
	ev := PaymentEvent{
		SessionID:             cs.ID,
		PaymentStatus:         string(cs.PaymentStatus),
		AmountTotal:           cs.AmountTotal,
		CreatedAtEpochSeconds: cs.Created,
		Source:                source,
		Metadata: Metadata{
			UserID:     metadataValue(cs.Metadata, "userId", "user_id"),
			PlanID:     metadataValue(cs.Metadata, "planId", "plan_id"),
			PropertyID: metadataValue(cs.Metadata, "propertyId", "property_id"),
		},
	}
	if cs.PaymentIntent != nil {
		ev.PaymentIntentID = cs.PaymentIntent.ID
	}
	if cs.Subscription != nil {
		ev.SubscriptionID = cs.Subscription.ID
	}
	if cs.Customer != nil {
		ev.CustomerID = cs.Customer.ID
	}
	return ev
}

func metadataValue(md map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(md[k]); v != "" {
			return v
		}
	}
	return ""
}

// ParsePropertyID reads the optional property id from metadata. Anything that
// is not a positive integer counts as absent.
func ParsePropertyID(raw string) *int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

// IsPaid reports whether Stripe considers the session settled.
func (e PaymentEvent) IsPaid() bool {
	return e.PaymentStatus == paymentStatusPaid
}
