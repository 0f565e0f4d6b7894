package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/groupescapehouses/escape-backend/pkg/redis"
)

// Delivery classifies a Stripe event id against earlier deliveries.
type Delivery int

const (
	// DeliveryNew means the caller now owns processing of the event.
	DeliveryNew Delivery = iota
	// DeliveryInFlight means another delivery of the same event is being processed.
	DeliveryInFlight
	// DeliveryDone means the event was already applied.
	DeliveryDone
)

const (
	markerProcessing = "processing"
	markerDone       = "done"

	defaultProcessingTTL = 10 * time.Minute
)

// EventGuard tracks Stripe event ids in Redis. A claim lives for the
// processing window only, so a crashed worker does not swallow the event;
// Complete keeps the id for the full retention TTL.
type EventGuard struct {
	store         redis.IdempotencyStore
	scope         string
	retention     time.Duration
	processingTTL time.Duration
}

func NewEventGuard(store redis.IdempotencyStore, retention time.Duration, scope string) (*EventGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if retention <= 0 {
		return nil, errors.New("retention must be positive")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	processing := defaultProcessingTTL
	if retention < processing {
		processing = retention
	}
	return &EventGuard{store: store, scope: scope, retention: retention, processingTTL: processing}, nil
}

// Claim records the event as processing unless an earlier delivery holds it.
func (g *EventGuard) Claim(ctx context.Context, eventID string) (Delivery, error) {
	key, err := g.key(eventID)
	if err != nil {
		return DeliveryNew, err
	}
	claimed, err := g.store.SetNX(ctx, key, markerProcessing, g.processingTTL)
	if err != nil {
		return DeliveryNew, fmt.Errorf("claim event %s: %w", eventID, err)
	}
	if claimed {
		return DeliveryNew, nil
	}
	marker, err := g.store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		// Expired between SetNX and Get; the next delivery will claim it.
		return DeliveryInFlight, nil
	case err != nil:
		return DeliveryNew, fmt.Errorf("read event marker %s: %w", eventID, err)
	case marker == markerDone:
		return DeliveryDone, nil
	default:
		return DeliveryInFlight, nil
	}
}

// Complete marks the event applied for the retention window.
func (g *EventGuard) Complete(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Set(ctx, key, markerDone, g.retention)
}

// Release drops the claim so Stripe's retry is processed.
func (g *EventGuard) Release(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *EventGuard) key(eventID string) (string, error) {
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey(g.scope, eventID), nil
}
