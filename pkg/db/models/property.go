package models

import (
	"time"

	"github.com/groupescapehouses/escape-backend/pkg/enums"
)

// Property is the slice of a holiday-house listing that tracks its paid plan.
type Property struct {
	ID                    int64                       `gorm:"column:id;primaryKey;autoIncrement"`
	OwnerID               string                      `gorm:"column:owner_id;not null;index"`
	Title                 string                      `gorm:"column:title;not null"`
	PlanID                *enums.PlanTier             `gorm:"column:plan_id"`
	PaymentStatus         enums.PropertyPaymentStatus `gorm:"column:payment_status;not null"`
	StripePaymentIntentID *string                     `gorm:"column:stripe_payment_intent_id"`
	StripeSubscriptionID  *string                     `gorm:"column:stripe_subscription_id"`
	PlanPurchasedAt       *time.Time                  `gorm:"column:plan_purchased_at"`
	PlanExpiresAt         *time.Time                  `gorm:"column:plan_expires_at"`
	CreatedAt             time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

func (Property) TableName() string { return "properties" }
