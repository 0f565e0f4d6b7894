package plans

import (
	"fmt"
	"strings"

	"github.com/groupescapehouses/escape-backend/pkg/config"
	"github.com/groupescapehouses/escape-backend/pkg/enums"
)

// Plan describes one purchasable listing tier. Amounts are minor units.
type Plan struct {
	ID             enums.PlanTier
	Name           string
	YearlyPriceID  string
	MonthlyPriceID string
	YearlyAmount   int64
	MonthlyAmount  int64
	Currency       string
	Features       []string
}

// PriceID returns the Stripe price for the given interval.
func (p Plan) PriceID(interval enums.BillingInterval) string {
	if interval == enums.BillingIntervalMonthly {
		return p.MonthlyPriceID
	}
	return p.YearlyPriceID
}

// Catalog is the immutable set of tiers the marketplace sells.
type Catalog struct {
	order []enums.PlanTier
	byID  map[enums.PlanTier]Plan
}

// NewCatalog validates the plans and indexes them by tier. A Stripe price may
// belong to only one tier.
func NewCatalog(plans ...Plan) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("catalog requires at least one plan")
	}
	c := &Catalog{byID: make(map[enums.PlanTier]Plan, len(plans))}
	priceOwner := make(map[string]enums.PlanTier, len(plans)*2)
	for _, p := range plans {
		if !p.ID.IsValid() {
			return nil, fmt.Errorf("unknown plan tier %q", p.ID)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate plan tier %q", p.ID)
		}
		if p.YearlyAmount < 0 || p.MonthlyAmount < 0 {
			return nil, fmt.Errorf("plan %q has a negative amount", p.ID)
		}
		for _, price := range []string{p.YearlyPriceID, p.MonthlyPriceID} {
			if price == "" {
				continue
			}
			if owner, dup := priceOwner[price]; dup {
				return nil, fmt.Errorf("price %q assigned to both %q and %q", price, owner, p.ID)
			}
			priceOwner[price] = p.ID
		}
		c.byID[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	return c, nil
}

// FromConfig builds the catalog from environment-provided plan settings.
func FromConfig(cfg config.PlansConfig) (*Catalog, error) {
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	return NewCatalog(
		Plan{
			ID:             enums.PlanTierBronze,
			Name:           cfg.BronzeName,
			YearlyPriceID:  cfg.BronzeYearlyPriceID,
			MonthlyPriceID: cfg.BronzeMonthlyPriceID,
			YearlyAmount:   cfg.BronzeYearlyAmount,
			MonthlyAmount:  cfg.BronzeMonthlyAmount,
			Currency:       currency,
			Features:       bronzeFeatures,
		},
		Plan{
			ID:             enums.PlanTierSilver,
			Name:           cfg.SilverName,
			YearlyPriceID:  cfg.SilverYearlyPriceID,
			MonthlyPriceID: cfg.SilverMonthlyPriceID,
			YearlyAmount:   cfg.SilverYearlyAmount,
			MonthlyAmount:  cfg.SilverMonthlyAmount,
			Currency:       currency,
			Features:       silverFeatures,
		},
		Plan{
			ID:             enums.PlanTierGold,
			Name:           cfg.GoldName,
			YearlyPriceID:  cfg.GoldYearlyPriceID,
			MonthlyPriceID: cfg.GoldMonthlyPriceID,
			YearlyAmount:   cfg.GoldYearlyAmount,
			MonthlyAmount:  cfg.GoldMonthlyAmount,
			Currency:       currency,
			Features:       goldFeatures,
		},
	)
}

// Lookup resolves a raw plan id, as found in checkout metadata, to a plan.
func (c *Catalog) Lookup(raw string) (Plan, bool) {
	tier, err := enums.ParsePlanTier(raw)
	if err != nil {
		return Plan{}, false
	}
	p, ok := c.byID[tier]
	return p, ok
}

// Contains reports whether the tier is sold by this catalog.
func (c *Catalog) Contains(tier enums.PlanTier) bool {
	_, ok := c.byID[tier]
	return ok
}

// Plans returns the plans in catalog order.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

var (
	bronzeFeatures = []string{
		"Property listing for 1 year",
		"Up to 10 photos",
		"Basic property description",
		"Contact form enquiries",
	}
	silverFeatures = []string{
		"Everything in Bronze",
		"Up to 25 photos",
		"Featured placement in search",
		"Availability calendar",
		"Priority support",
	}
	goldFeatures = []string{
		"Everything in Silver",
		"Unlimited photos",
		"Homepage spotlight",
		"Social media promotion",
		"Dedicated account manager",
	}
)
