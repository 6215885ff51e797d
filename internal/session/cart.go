package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"tester-box/internal/adapter"
	"tester-box/internal/model"
	"tester-box/internal/persist"
)

// CartState is the last known snapshot of a shopper's remote cart. The cart
// id is persisted under model.CartIDKey; the snapshot itself is not.
type CartState struct {
	mu     sync.RWMutex
	store  persist.Store
	logger *slog.Logger
	cart   *model.Cart
}

// loadCart restores the stored cart. A stored id the platform no longer
// resolves, or any fetch failure, clears the id and leaves the cart empty.
func loadCart(ctx context.Context, store persist.Store, a adapter.Adapter, logger *slog.Logger) *CartState {
	c := &CartState{store: store, logger: logger}

	id, ok, err := store.Get(ctx, model.CartIDKey)
	if err != nil {
		logger.WarnContext(ctx, "cart id unavailable", slog.String("error", err.Error()))
		return c
	}
	if !ok || id == "" {
		return c
	}

	cart, err := a.FetchCart(ctx, id)
	if err != nil || cart == nil {
		attrs := []any{slog.String("cart_id", id)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		logger.WarnContext(ctx, "discarding stored cart", attrs...)
		if err := store.Clear(ctx, model.CartIDKey); err != nil {
			logger.WarnContext(ctx, "clearing cart id failed", slog.String("error", err.Error()))
		}
		return c
	}

	c.cart = cart
	return c
}

// Replace swaps in a fresh snapshot and persists its id.
func (c *CartState) Replace(ctx context.Context, cart *model.Cart) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cart = cart
	if cart == nil || cart.ID == "" {
		return c.store.Clear(ctx, model.CartIDKey)
	}
	if err := c.store.Set(ctx, model.CartIDKey, cart.ID); err != nil {
		return fmt.Errorf("saving cart id: %w", err)
	}
	return nil
}

// forget drops the snapshot and the stored id.
func (c *CartState) forget(ctx context.Context) error {
	return c.Replace(ctx, nil)
}

// Cart returns the current snapshot, or nil when there is no cart.
func (c *CartState) Cart() *model.Cart {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cart
}

// ID returns the cart id, or "" when there is no cart.
func (c *CartState) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cart == nil {
		return ""
	}
	return c.cart.ID
}

// Count is the total quantity across lines.
func (c *CartState) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cart.Count()
}
