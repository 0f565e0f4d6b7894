package enums

import "fmt"

// PropertyPaymentStatus tracks whether a listing's plan has been paid for.
type PropertyPaymentStatus string

const (
	PropertyPaymentStatusPending PropertyPaymentStatus = "pending"
	PropertyPaymentStatusPaid    PropertyPaymentStatus = "paid"
	PropertyPaymentStatusFailed  PropertyPaymentStatus = "failed"
)

func (p PropertyPaymentStatus) String() string {
	return string(p)
}

func (p PropertyPaymentStatus) IsValid() bool {
	switch p {
	case PropertyPaymentStatusPending, PropertyPaymentStatusPaid, PropertyPaymentStatusFailed:
		return true
	}
	return false
}

func ParsePropertyPaymentStatus(value string) (PropertyPaymentStatus, error) {
	p := PropertyPaymentStatus(value)
	if !p.IsValid() {
		return "", fmt.Errorf("invalid property payment status %q", value)
	}
	return p, nil
}
