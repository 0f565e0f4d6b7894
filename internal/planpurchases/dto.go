package planpurchases

import (
	"time"

	"github.com/groupescapehouses/escape-backend/pkg/db/models"
	"github.com/groupescapehouses/escape-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// PurchaseDTO is the JSON view of a plan purchase.
type PurchaseDTO struct {
	ID                    int64          `json:"id"`
	UserID                string         `json:"user_id"`
	PlanID                enums.PlanTier `json:"plan_id"`
	StripePaymentIntentID *string        `json:"stripe_payment_intent_id,omitempty"`
	StripeSubscriptionID  *string        `json:"stripe_subscription_id,omitempty"`
	StripeCustomerID      *string        `json:"stripe_customer_id,omitempty"`
	Amount                int64          `json:"amount"`
	AmountDisplay         string         `json:"amount_display"`
	PurchasedAt           time.Time      `json:"purchased_at"`
	ExpiresAt             time.Time      `json:"expires_at"`
	Expired               bool           `json:"expired"`
	Used                  bool           `json:"used"`
	PropertyID            *int64         `json:"property_id,omitempty"`
	UsedAt                *time.Time     `json:"used_at,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
}

// FormatAmount renders minor units as a two-decimal major-unit string.
func FormatAmount(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

func ToDTO(p models.PlanPurchase, now time.Time) PurchaseDTO {
	return PurchaseDTO{
		ID:                    p.ID,
		UserID:                p.UserID,
		PlanID:                p.PlanID,
		StripePaymentIntentID: p.StripePaymentIntentID,
		StripeSubscriptionID:  p.StripeSubscriptionID,
		StripeCustomerID:      p.StripeCustomerID,
		Amount:                p.Amount,
		AmountDisplay:         FormatAmount(p.Amount),
		PurchasedAt:           p.PurchasedAt.UTC(),
		ExpiresAt:             p.ExpiresAt.UTC(),
		Expired:               IsExpired(p.PurchasedAt, now),
		Used:                  p.Used,
		PropertyID:            p.PropertyID,
		UsedAt:                p.UsedAt,
		CreatedAt:             p.CreatedAt.UTC(),
	}
}

func ToDTOs(purchases []models.PlanPurchase, now time.Time) []PurchaseDTO {
	out := make([]PurchaseDTO, 0, len(purchases))
	for _, p := range purchases {
		out = append(out, ToDTO(p, now))
	}
	return out
}
