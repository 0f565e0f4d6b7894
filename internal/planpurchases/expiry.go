package planpurchases

import (
	"time"

	"github.com/groupescapehouses/escape-backend/pkg/db/models"
)

// ExpiresAt returns the end of the entitlement window: one calendar year after
// purchase, in UTC. Feb 29 rolls forward to Mar 1 in non-leap years.
func ExpiresAt(purchasedAt time.Time) time.Time {
	return purchasedAt.UTC().AddDate(1, 0, 0)
}

// IsExpired reports whether now is strictly past the entitlement window.
func IsExpired(purchasedAt, now time.Time) bool {
	return now.After(ExpiresAt(purchasedAt))
}

// IsAvailable reports whether the purchase can still be consumed at now.
func IsAvailable(p models.PlanPurchase, now time.Time) bool {
	return !p.Used && !IsExpired(p.PurchasedAt, now)
}

// FilterAvailable keeps the purchases that are unused and unexpired, preserving order.
func FilterAvailable(purchases []models.PlanPurchase, now time.Time) []models.PlanPurchase {
	out := make([]models.PlanPurchase, 0, len(purchases))
	for _, p := range purchases {
		if IsAvailable(p, now) {
			out = append(out, p)
		}
	}
	return out
}
