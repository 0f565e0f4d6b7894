package enums

import "fmt"

// BillingInterval is the checkout cadence a plan price is sold at.
type BillingInterval string

const (
	BillingIntervalYearly  BillingInterval = "yearly"
	BillingIntervalMonthly BillingInterval = "monthly"
)

func (b BillingInterval) String() string {
	return string(b)
}

func (b BillingInterval) IsValid() bool {
	switch b {
	case BillingIntervalYearly, BillingIntervalMonthly:
		return true
	}
	return false
}

// ParseBillingInterval converts raw input into a BillingInterval.
func ParseBillingInterval(value string) (BillingInterval, error) {
	b := BillingInterval(value)
	if !b.IsValid() {
		return "", fmt.Errorf("invalid billing interval %q", value)
	}
	return b, nil
}
