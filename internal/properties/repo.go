package properties

import (
	"context"
	"errors"
	"time"

	"github.com/groupescapehouses/escape-backend/pkg/db/models"
	"github.com/groupescapehouses/escape-backend/pkg/enums"
	"gorm.io/gorm"
)

// Repository reads and updates the plan columns of listings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id int64) (*models.Property, error)
	ApplyPlan(ctx context.Context, params ApplyPlanParams) (bool, error)
	MarkPaymentFailed(ctx context.Context, id int64) (bool, error)
	HasPlanPayment(ctx context.Context, propertyID int64, paymentIntentID, subscriptionID string) (bool, error)
}

// ApplyPlanParams sets a listing's paid plan.
type ApplyPlanParams struct {
	PropertyID      int64
	PlanID          enums.PlanTier
	PaymentIntentID *string
	SubscriptionID  *string
	PurchasedAt     time.Time
	ExpiresAt       time.Time
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.Property, error) {
	var property models.Property
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&property).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &property, nil
}

// ApplyPlan reports false when the property does not exist.
func (r *repository) ApplyPlan(ctx context.Context, params ApplyPlanParams) (bool, error) {
	planID := params.PlanID
	purchasedAt := params.PurchasedAt.UTC()
	expiresAt := params.ExpiresAt.UTC()
	res := r.db.WithContext(ctx).
		Model(&models.Property{}).
		Where("id = ?", params.PropertyID).
		Updates(map[string]any{
			"plan_id":                  &planID,
			"payment_status":           enums.PropertyPaymentStatusPaid,
			"stripe_payment_intent_id": params.PaymentIntentID,
			"stripe_subscription_id":   params.SubscriptionID,
			"plan_purchased_at":        &purchasedAt,
			"plan_expires_at":          &expiresAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkPaymentFailed flags a pending listing. Paid listings are left alone.
func (r *repository) MarkPaymentFailed(ctx context.Context, id int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Property{}).
		Where("id = ? AND payment_status <> ?", id, enums.PropertyPaymentStatusPaid).
		Update("payment_status", enums.PropertyPaymentStatusFailed)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// HasPlanPayment matches a paid listing on either Stripe reference. Empty
// references never match.
func (r *repository) HasPlanPayment(ctx context.Context, propertyID int64, paymentIntentID, subscriptionID string) (bool, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Property{}).
		Where("id = ? AND payment_status = ?", propertyID, enums.PropertyPaymentStatusPaid)
	switch {
	case paymentIntentID != "" && subscriptionID != "":
		q = q.Where("(stripe_payment_intent_id = ? OR stripe_subscription_id = ?)", paymentIntentID, subscriptionID)
	case paymentIntentID != "":
		q = q.Where("stripe_payment_intent_id = ?", paymentIntentID)
	case subscriptionID != "":
		q = q.Where("stripe_subscription_id = ?", subscriptionID)
	default:
		return false, nil
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
