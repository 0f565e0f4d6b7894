package enums

import (
	"fmt"
	"strings"
)

// PlanTier identifies a listing plan sold through checkout.
type PlanTier string

const (
	PlanTierBronze PlanTier = "bronze"
	PlanTierSilver PlanTier = "silver"
	PlanTierGold   PlanTier = "gold"
)

var validPlanTiers = []PlanTier{
	PlanTierBronze,
	PlanTierSilver,
	PlanTierGold,
}

// PlanTiers returns every known tier, cheapest first.
func PlanTiers() []PlanTier {
	out := make([]PlanTier, len(validPlanTiers))
	copy(out, validPlanTiers)
	return out
}

func (p PlanTier) String() string {
	return string(p)
}

func (p PlanTier) IsValid() bool {
	for _, candidate := range validPlanTiers {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePlanTier accepts tier ids case-insensitively and with surrounding whitespace.
func ParsePlanTier(value string) (PlanTier, error) {
	tier := PlanTier(strings.ToLower(strings.TrimSpace(value)))
	if !tier.IsValid() {
		return "", fmt.Errorf("invalid plan tier %q", value)
	}
	return tier, nil
}
