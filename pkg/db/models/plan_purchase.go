package models

import (
	"time"

	"github.com/groupescapehouses/escape-backend/pkg/enums"
)

// PlanPurchase is one paid listing entitlement. Used, PropertyID and UsedAt
// move together: all unset while available, all set once consumed.
type PlanPurchase struct {
	ID                    int64          `gorm:"column:id;primaryKey;autoIncrement"`
	UserID                string         `gorm:"column:user_id;not null;index:idx_plan_purchases_user_id"`
	PlanID                enums.PlanTier `gorm:"column:plan_id;not null"`
	StripePaymentIntentID *string        `gorm:"column:stripe_payment_intent_id;uniqueIndex:idx_plan_purchases_payment_intent"`
	StripeSubscriptionID  *string        `gorm:"column:stripe_subscription_id;uniqueIndex:idx_plan_purchases_subscription"`
	StripeCustomerID      *string        `gorm:"column:stripe_customer_id"`
	Amount                int64          `gorm:"column:amount;not null;check:chk_plan_purchases_amount,amount >= 0"`
	PurchasedAt           time.Time      `gorm:"column:purchased_at;not null"`
	ExpiresAt             time.Time      `gorm:"column:expires_at;not null"`
	Used                  bool           `gorm:"column:used;not null;index:idx_plan_purchases_used;check:chk_plan_purchases_usage,(used = false AND property_id IS NULL AND used_at IS NULL) OR (used = true AND property_id IS NOT NULL AND used_at IS NOT NULL)"`
	PropertyID            *int64         `gorm:"column:property_id"`
	UsedAt                *time.Time     `gorm:"column:used_at"`
	CreatedAt             time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (PlanPurchase) TableName() string { return "plan_purchases" }
