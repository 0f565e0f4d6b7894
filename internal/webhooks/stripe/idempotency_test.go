package stripewebhook

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgredis "github.com/groupescapehouses/escape-backend/pkg/redis"
)

func newTestGuard(t *testing.T, retention time.Duration) (*EventGuard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := pkgredis.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	guard, err := NewEventGuard(client, retention, "stripe_webhook")
	require.NoError(t, err)
	return guard, mr
}

func TestEventGuardLifecycle(t *testing.T) {
	guard, mr := newTestGuard(t, 24*time.Hour)
	ctx := context.Background()
	key := "geh:idempotency:stripe_webhook:evt_1"

	d, err := guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, DeliveryNew, d)
	assert.Equal(t, defaultProcessingTTL, mr.TTL(key))

	d, err = guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, DeliveryInFlight, d)

	require.NoError(t, guard.Complete(ctx, "evt_1"))
	assert.Equal(t, 24*time.Hour, mr.TTL(key))

	d, err = guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, DeliveryDone, d)
}

func TestEventGuardReleaseAllowsRetry(t *testing.T) {
	guard, _ := newTestGuard(t, time.Hour)
	ctx := context.Background()

	_, err := guard.Claim(ctx, "evt_2")
	require.NoError(t, err)
	require.NoError(t, guard.Release(ctx, "evt_2"))

	d, err := guard.Claim(ctx, "evt_2")
	require.NoError(t, err)
	assert.Equal(t, DeliveryNew, d)
}

func TestEventGuardExpiredClaimIsReclaimable(t *testing.T) {
	guard, mr := newTestGuard(t, time.Hour)
	ctx := context.Background()

	_, err := guard.Claim(ctx, "evt_3")
	require.NoError(t, err)
	mr.FastForward(defaultProcessingTTL + time.Second)

	d, err := guard.Claim(ctx, "evt_3")
	require.NoError(t, err)
	assert.Equal(t, DeliveryNew, d)
}

func TestEventGuardShortRetentionCapsProcessingWindow(t *testing.T) {
	guard, mr := newTestGuard(t, time.Minute)
	_, err := guard.Claim(context.Background(), "evt_4")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL("geh:idempotency:stripe_webhook:evt_4"))
}

func TestEventGuardRejectsEmptyID(t *testing.T) {
	guard, _ := newTestGuard(t, time.Hour)
	_, err := guard.Claim(context.Background(), "")
	assert.Error(t, err)
	assert.Error(t, guard.Complete(context.Background(), ""))
	assert.Error(t, guard.Release(context.Background(), ""))
}

func TestNewEventGuardValidates(t *testing.T) {
	_, err := NewEventGuard(nil, time.Hour, "scope")
	assert.Error(t, err)
	_, err = NewEventGuard(&pkgredis.Client{}, time.Hour, "")
	assert.Error(t, err)
	_, err = NewEventGuard(&pkgredis.Client{}, 0, "scope")
	assert.Error(t, err)
}
