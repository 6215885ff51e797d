package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"tester-box/internal/model"
	"tester-box/internal/persist"
)

// Wishlist is a shopper's saved product ids, persisted as a JSON array
// under model.WishlistKey.
type Wishlist struct {
	mu    sync.RWMutex
	store persist.Store
	ids   []string
}

// loadWishlist rehydrates from storage. Absent or malformed data yields an
// empty wishlist.
func loadWishlist(ctx context.Context, store persist.Store, logger *slog.Logger) *Wishlist {
	w := &Wishlist{store: store, ids: []string{}}

	raw, ok, err := store.Get(ctx, model.WishlistKey)
	if err != nil {
		logger.WarnContext(ctx, "wishlist unavailable", slog.String("error", err.Error()))
		return w
	}
	if !ok {
		return w
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		logger.DebugContext(ctx, "ignoring malformed wishlist", slog.String("error", err.Error()))
		return w
	}
	for _, id := range ids {
		if id != "" && !slices.Contains(w.ids, id) {
			w.ids = append(w.ids, id)
		}
	}
	return w
}

// Toggle adds id if absent, removes it if present, and reports whether id
// is now in the wishlist. A failed write leaves the wishlist unchanged.
func (w *Wishlist) Toggle(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, model.NewValidationError("product_id", "must not be empty")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	prev := w.ids
	var added bool
	if i := slices.Index(w.ids, id); i >= 0 {
		w.ids = slices.Delete(slices.Clone(w.ids), i, i+1)
	} else {
		w.ids = append(slices.Clone(w.ids), id)
		added = true
	}

	if err := w.persistLocked(ctx); err != nil {
		w.ids = prev
		return !added, err
	}
	return added, nil
}

func (w *Wishlist) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(w.ids)
	if err != nil {
		return model.NewInternalError(err)
	}
	if err := w.store.Set(ctx, model.WishlistKey, string(data)); err != nil {
		return model.NewInternalError(fmt.Errorf("saving wishlist: %w", err))
	}
	return nil
}

// Contains reports whether id is saved.
func (w *Wishlist) Contains(id string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Contains(w.ids, id)
}

// IDs returns the saved ids in insertion order.
func (w *Wishlist) IDs() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.ids)
}

func (w *Wishlist) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.ids)
}
