package planpurchases

import (
	"context"
	"errors"
	"time"

	"github.com/groupescapehouses/escape-backend/pkg/db/models"
	"github.com/groupescapehouses/escape-backend/pkg/enums"
	"github.com/groupescapehouses/escape-backend/pkg/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists plan purchases.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateIfAbsent(ctx context.Context, purchase *models.PlanPurchase) (bool, error)
	FindByID(ctx context.Context, id int64) (*models.PlanPurchase, error)
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.PlanPurchase, error)
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*models.PlanPurchase, error)
	ListUnusedByUser(ctx context.Context, userID string, filter UnusedFilter) ([]models.PlanPurchase, error)
	ListUnused(ctx context.Context) ([]models.PlanPurchase, error)
	MarkUsed(ctx context.Context, params MarkUsedParams) (bool, error)
	List(ctx context.Context, query ListQuery) ([]models.PlanPurchase, *pagination.Cursor, error)
	CountByUsage(ctx context.Context) (UsageCounts, error)
}

// UnusedFilter narrows a user's unused purchases.
type UnusedFilter struct {
	PlanID         *enums.PlanTier
	PlanPurchaseID *int64
	NewestFirst    bool
}

// MarkUsedParams is the compare-and-set input for consuming one purchase.
type MarkUsedParams struct {
	ID         int64
	UserID     string
	PropertyID int64
	UsedAt     time.Time
}

// ListQuery configures the admin listing.
type ListQuery struct {
	UserID string
	PlanID *enums.PlanTier
	Used   *bool
	Limit  int
	Cursor *pagination.Cursor
}

type UsageCounts struct {
	Used   int64
	Unused int64
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

// CreateIfAbsent inserts the purchase unless a row with the same payment intent
// or subscription already exists. It reports whether a row was written.
func (r *repository) CreateIfAbsent(ctx context.Context, purchase *models.PlanPurchase) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(purchase)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.PlanPurchase, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *repository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.PlanPurchase, error) {
	return r.first(ctx, "stripe_payment_intent_id = ?", paymentIntentID)
}

func (r *repository) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*models.PlanPurchase, error) {
	return r.first(ctx, "stripe_subscription_id = ?", subscriptionID)
}

func (r *repository) first(ctx context.Context, where string, arg any) (*models.PlanPurchase, error) {
	var purchase models.PlanPurchase
	err := r.db.WithContext(ctx).Where(where, arg).Take(&purchase).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

func (r *repository) ListUnusedByUser(ctx context.Context, userID string, filter UnusedFilter) ([]models.PlanPurchase, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ? AND used = ?", userID, false)
	if filter.PlanID != nil {
		query = query.Where("plan_id = ?", *filter.PlanID)
	}
	if filter.PlanPurchaseID != nil {
		query = query.Where("id = ?", *filter.PlanPurchaseID)
	}
	if filter.NewestFirst {
		query = query.Order("purchased_at DESC, id DESC")
	} else {
		query = query.Order("purchased_at ASC, id ASC")
	}

	var purchases []models.PlanPurchase
	if err := query.Find(&purchases).Error; err != nil {
		return nil, err
	}
	return purchases, nil
}

func (r *repository) ListUnused(ctx context.Context) ([]models.PlanPurchase, error) {
	var purchases []models.PlanPurchase
	if err := r.db.WithContext(ctx).
		Where("used = ?", false).
		Order("purchased_at ASC, id ASC").
		Find(&purchases).Error; err != nil {
		return nil, err
	}
	return purchases, nil
}

// MarkUsed flips used only when the row is still unused and owned by the user.
// A false result means another request got there first.
func (r *repository) MarkUsed(ctx context.Context, params MarkUsedParams) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PlanPurchase{}).
		Where("id = ? AND user_id = ? AND used = ?", params.ID, params.UserID, false).
		Updates(map[string]any{
			"used":        true,
			"property_id": params.PropertyID,
			"used_at":     params.UsedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) List(ctx context.Context, params ListQuery) ([]models.PlanPurchase, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.PlanPurchase{})
	if params.UserID != "" {
		query = query.Where("user_id = ?", params.UserID)
	}
	if params.PlanID != nil {
		query = query.Where("plan_id = ?", *params.PlanID)
	}
	if params.Used != nil {
		query = query.Where("used = ?", *params.Used)
	}
	if params.Cursor != nil {
		query = query.Where("purchased_at < ? OR (purchased_at = ? AND id < ?)",
			params.Cursor.SortAt, params.Cursor.SortAt, params.Cursor.ID)
	}

	var purchases []models.PlanPurchase
	if err := query.Order("purchased_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&purchases).Error; err != nil {
		return nil, nil, err
	}

	var next *pagination.Cursor
	if len(purchases) > limit {
		last := purchases[limit-1]
		next = &pagination.Cursor{SortAt: last.PurchasedAt, ID: last.ID}
		purchases = purchases[:limit]
	}
	return purchases, next, nil
}

func (r *repository) CountByUsage(ctx context.Context) (UsageCounts, error) {
	var rows []struct {
		Used  bool
		Total int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.PlanPurchase{}).
		Select("used, COUNT(*) AS total").
		Group("used").
		Scan(&rows).Error; err != nil {
		return UsageCounts{}, err
	}

	var counts UsageCounts
	for _, row := range rows {
		if row.Used {
			counts.Used = row.Total
		} else {
			counts.Unused = row.Total
		}
	}
	return counts, nil
}
