package planpurchases

import (
	"context"
	"testing"
	"time"

	"github.com/groupescapehouses/escape-backend/pkg/db/dbtest"
	"github.com/groupescapehouses/escape-backend/pkg/db/models"
	"github.com/groupescapehouses/escape-backend/pkg/enums"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(v string) *string { return &v }

func newPurchase(userID string, tier enums.PlanTier, pi string, purchasedAt time.Time) *models.PlanPurchase {
	p := &models.PlanPurchase{
		UserID:      userID,
		PlanID:      tier,
		Amount:      14999,
		PurchasedAt: purchasedAt.UTC(),
		ExpiresAt:   ExpiresAt(purchasedAt),
		CreatedAt:   purchasedAt.UTC(),
	}
	if pi != "" {
		p.StripePaymentIntentID = strPtr(pi)
	}
	return p
}

func TestRepositoryCreateIfAbsentIgnoresDuplicatePaymentIntent(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	ctx := context.Background()
	at := time.Unix(1700000000, 0)

	created, err := repo.CreateIfAbsent(ctx, newPurchase("u1", enums.PlanTierSilver, "pi_1", at))
	require.NoError(t, err)
	require.True(t, created)

	dup := newPurchase("u1", enums.PlanTierSilver, "pi_1", at)
	created, err = repo.CreateIfAbsent(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)

	found, err := repo.FindByPaymentIntentID(ctx, "pi_1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "u1", found.UserID)

	counts, err := repo.CountByUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Unused)
}

func TestRepositoryCreateIfAbsentIgnoresDuplicateSubscription(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	ctx := context.Background()
	at := time.Unix(1700000000, 0)

	first := newPurchase("u1", enums.PlanTierGold, "", at)
	first.StripeSubscriptionID = strPtr("sub_1")
	created, err := repo.CreateIfAbsent(ctx, first)
	require.NoError(t, err)
	require.True(t, created)

	second := newPurchase("u2", enums.PlanTierGold, "", at)
	second.StripeSubscriptionID = strPtr("sub_1")
	created, err = repo.CreateIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)

	found, err := repo.FindBySubscriptionID(ctx, "sub_1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "u1", found.UserID)
}

func TestRepositoryAllowsManyRowsWithoutStripeIDs(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	ctx := context.Background()
	at := time.Unix(1700000000, 0)

	for _, sub := range []string{"sub_a", "sub_b"} {
		p := newPurchase("u1", enums.PlanTierBronze, "", at)
		p.StripeSubscriptionID = strPtr(sub)
		created, err := repo.CreateIfAbsent(ctx, p)
		require.NoError(t, err)
		require.True(t, created, "null payment intents must not collide")
	}
}

func TestRepositoryFindReturnsNilWhenMissing(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	ctx := context.Background()

	p, err := repo.FindByID(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = repo.FindByPaymentIntentID(ctx, "pi_missing")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestRepositoryMarkUsedIsCompareAndSet(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	ctx := context.Background()
	p := newPurchase("u1", enums.PlanTierSilver, "pi_1", time.Now().AddDate(0, -1, 0))
	_, err := repo.CreateIfAbsent(ctx, p)
	require.NoError(t, err)

	usedAt := time.Now().UTC().Truncate(time.Second)

	ok, err := repo.MarkUsed(ctx, MarkUsedParams{ID: p.ID, UserID: "intruder", PropertyID: 5, UsedAt: usedAt})
	require.NoError(t, err)
	assert.False(t, ok, "other users cannot consume the row")

	ok, err = repo.MarkUsed(ctx, MarkUsedParams{ID: p.ID, UserID: "u1", PropertyID: 99, UsedAt: usedAt})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkUsed(ctx, MarkUsedParams{ID: p.ID, UserID: "u1", PropertyID: 100, UsedAt: usedAt})
	require.NoError(t, err)
	assert.False(t, ok, "second consume must lose")

	stored, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PropertyID)
	require.NotNil(t, stored.UsedAt)
	assert.True(t, stored.Used)
	assert.Equal(t, int64(99), *stored.PropertyID)
}

func TestRepositoryUsageCheckRejectsPartialConsumption(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	p := newPurchase("u1", enums.PlanTierSilver, "pi_1", time.Now())
	_, err := repo.CreateIfAbsent(ctx, p)
	require.NoError(t, err)

	err = client.DB().Model(&models.PlanPurchase{}).Where("id = ?", p.ID).Update("used", true).Error
	assert.Error(t, err, "used without property must violate the usage check")
}

func TestRepositoryListUnusedByUserOrdersAndFilters(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	older := newPurchase("u1", enums.PlanTierSilver, "pi_old", base)
	newer := newPurchase("u1", enums.PlanTierGold, "pi_new", base.Add(48*time.Hour))
	other := newPurchase("u2", enums.PlanTierGold, "pi_other", base)
	for _, p := range []*models.PlanPurchase{older, newer, other} {
		_, err := repo.CreateIfAbsent(ctx, p)
		require.NoError(t, err)
	}

	asc, err := repo.ListUnusedByUser(ctx, "u1", UnusedFilter{})
	require.NoError(t, err)
	require.Len(t, asc, 2)
	assert.Equal(t, older.ID, asc[0].ID)

	desc, err := repo.ListUnusedByUser(ctx, "u1", UnusedFilter{NewestFirst: true})
	require.NoError(t, err)
	require.Len(t, desc, 2)
	assert.Equal(t, newer.ID, desc[0].ID)

	gold := enums.PlanTierGold
	byTier, err := repo.ListUnusedByUser(ctx, "u1", UnusedFilter{PlanID: &gold})
	require.NoError(t, err)
	require.Len(t, byTier, 1)
	assert.Equal(t, newer.ID, byTier[0].ID)

	byID, err := repo.ListUnusedByUser(ctx, "u1", UnusedFilter{PlanPurchaseID: &other.ID})
	require.NoError(t, err)
	assert.Empty(t, byID, "id filter must stay scoped to the user")
}

func TestRepositoryListPaginatesNewestFirst(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []int64
	for i := 0; i < 5; i++ {
		p := newPurchase("u1", enums.PlanTierBronze, "pi_"+string(rune('a'+i)), base.Add(time.Duration(i)*time.Hour))
		_, err := repo.CreateIfAbsent(ctx, p)
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	page1, cursor, err := repo.List(ctx, ListQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.NotNil(t, cursor)
	assert.Equal(t, ids[4], page1[0].ID)
	assert.Equal(t, ids[3], page1[1].ID)

	page2, cursor, err := repo.List(ctx, ListQuery{Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, ids[2], page2[0].ID)

	page3, cursor, err := repo.List(ctx, ListQuery{Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Nil(t, cursor)
	assert.Equal(t, ids[0], page3[0].ID)
}
