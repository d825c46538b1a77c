package gatewaywebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/novamart/novamart-backend/pkg/redis"
)

// IdempotencyGuard deduplicates gateway callbacks across replicas. A callback
// id is marked before processing and unmarked if processing fails, so a
// failed delivery can be retried.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// CheckAndMark reports whether the callback was already processed, marking it
// as seen otherwise.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, callbackID string) (bool, error) {
	if callbackID == "" {
		return false, errors.New("callback id is required")
	}
	key := g.store.IdempotencyKey(g.scope, callbackID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete unmarks a callback so a retry can process it.
func (g *IdempotencyGuard) Delete(ctx context.Context, callbackID string) error {
	if callbackID == "" {
		return errors.New("callback id is required")
	}
	key := g.store.IdempotencyKey(g.scope, callbackID)
	return g.store.Del(ctx, key)
}
