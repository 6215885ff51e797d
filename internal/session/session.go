// Package session holds per-shopper storefront state: the wishlist, the
// remote cart snapshot, and the in-progress tester box.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"tester-box/internal/adapter"
	"tester-box/internal/bundle"
	"tester-box/internal/metrics"
	"tester-box/internal/model"
	"tester-box/internal/persist"
	"tester-box/internal/reconcile"
)

// Session is one shopper's live state.
type Session struct {
	ID       string
	Wishlist *Wishlist
	Cart     *CartState

	adapter adapter.Adapter
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	builder  *bundle.Builder
	lastSeen time.Time
}

// Builder returns the session's tester box builder, loading the catalog on
// first use.
func (s *Session) Builder(ctx context.Context) (*bundle.Builder, error) {
	s.mu.Lock()
	b := s.builder
	s.mu.Unlock()
	if b != nil {
		return b, nil
	}

	catalog, err := s.adapter.FetchTesterCatalog(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.builder == nil {
		s.builder = bundle.New(catalog)
	}
	return s.builder, nil
}

// SubmitBundle sends the selected tester box to the cart. The selection is
// cleared only when the platform accepted the line.
func (s *Session) SubmitBundle(ctx context.Context) (*model.Cart, error) {
	b, err := s.Builder(ctx)
	if err != nil {
		return nil, err
	}

	before := s.Cart.Cart()
	cart, err := b.Submit(ctx, func(ctx context.Context, items []model.Product) (*model.Cart, error) {
		return s.addBundle(ctx, b.BundleVariantID(), items)
	})
	if err != nil {
		s.metrics.BundleSubmitted(model.KindOf(err).String())
		return nil, err
	}
	s.metrics.BundleSubmitted("ok")

	diff := reconcile.DiffLines(before, cart)
	if _, ok := diff.SingleAdd(); !ok {
		s.logger.WarnContext(ctx, "bundle did not land as a new cart line",
			slog.String("cart_id", cart.ID),
			slog.Int("added", len(diff.Added)),
			slog.Int("changed", len(diff.Changed)),
			slog.Int("removed", len(diff.Removed)),
		)
	}

	if err := s.Cart.Replace(ctx, cart); err != nil {
		s.logger.WarnContext(ctx, "cart id not persisted", slog.String("error", err.Error()))
	}
	s.logger.InfoContext(ctx, "bundle added to cart",
		slog.String("cart_id", cart.ID),
		slog.Int("cart_count", cart.Count()),
	)
	return cart, nil
}

// addBundle adds to the known cart, falling back to a new cart once when the
// platform no longer recognizes the stored id.
func (s *Session) addBundle(ctx context.Context, variantID string, items []model.Product) (*model.Cart, error) {
	cartID := s.Cart.ID()
	cart, err := s.adapter.AddBundleToCart(ctx, cartID, variantID, items)
	if err == nil || cartID == "" || model.KindOf(err) != model.KindNotFound {
		return cart, err
	}

	s.logger.WarnContext(ctx, "stored cart rejected, creating a new one", slog.String("cart_id", cartID))
	if err := s.Cart.forget(ctx); err != nil {
		s.logger.WarnContext(ctx, "clearing cart id failed", slog.String("error", err.Error()))
	}
	return s.adapter.AddBundleToCart(ctx, "", variantID, items)
}

// RemoveLine removes one line from the cart.
func (s *Session) RemoveLine(ctx context.Context, lineID string) (*model.Cart, error) {
	cartID := s.Cart.ID()
	if cartID == "" {
		return nil, model.NewNotFoundError("cart")
	}

	cart, err := s.adapter.RemoveCartLine(ctx, cartID, lineID)
	if err != nil {
		return nil, err
	}
	if err := s.Cart.Replace(ctx, cart); err != nil {
		s.logger.WarnContext(ctx, "cart id not persisted", slog.String("error", err.Error()))
	}
	return cart, nil
}

// RefreshCart re-reads the cart from the platform. A cart that no longer
// resolves is forgotten.
func (s *Session) RefreshCart(ctx context.Context) (*model.Cart, error) {
	cartID := s.Cart.ID()
	if cartID == "" {
		return nil, nil
	}

	cart, err := s.adapter.FetchCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if err := s.Cart.Replace(ctx, cart); err != nil {
		s.logger.WarnContext(ctx, "cart id not persisted", slog.String("error", err.Error()))
	}
	return cart, nil
}

// WishlistProducts resolves the saved ids to products, dropping any the
// catalog no longer has.
func (s *Session) WishlistProducts(ctx context.Context) ([]model.Product, error) {
	return s.adapter.FetchProductsByIDs(ctx, s.Wishlist.IDs())
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// =============================================================================
// MANAGER
// =============================================================================

// ManagerConfig wires a Manager.
type ManagerConfig struct {
	Store   persist.Store
	Adapter adapter.Adapter
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Manager owns the live sessions of this process.
type Manager struct {
	store   persist.Store
	adapter adapter.Adapter
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	loads    singleflight.Group
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    cfg.Store,
		adapter:  cfg.Adapter,
		logger:   logger,
		metrics:  cfg.Metrics,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Get returns the live session for id, rehydrating persisted state on first
// access.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, model.NewValidationError("session", "must not be empty")
	}

	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		s.touch(m.now())
		return s, nil
	}

	// Concurrent first requests share one load. It runs detached from the
	// caller so a cancelled request cannot clear a stored cart id.
	v, _, _ := m.loads.Do(id, func() (any, error) {
		m.mu.Lock()
		existing, ok := m.sessions[id]
		m.mu.Unlock()
		if ok {
			return existing, nil
		}

		loaded := m.load(context.WithoutCancel(ctx), id)

		m.mu.Lock()
		m.sessions[id] = loaded
		m.mu.Unlock()
		return loaded, nil
	})
	s = v.(*Session)
	s.touch(m.now())
	return s, nil
}

func (m *Manager) load(ctx context.Context, id string) *Session {
	logger := m.logger.With(slog.String("session", id))
	store := persist.Scoped(m.store, persist.SessionPrefix(id))

	s := &Session{
		ID:       id,
		Wishlist: loadWishlist(ctx, store, logger),
		Cart:     loadCart(ctx, store, m.adapter, logger),
		adapter:  m.adapter,
		logger:   logger,
		metrics:  m.metrics,
		lastSeen: m.now(),
	}
	logger.DebugContext(ctx, "session loaded",
		slog.Int("wishlist", s.Wishlist.Len()),
		slog.Int("cart_count", s.Cart.Count()),
	)
	return s
}

// Sweep drops sessions idle for longer than idle and returns how many were
// dropped. Persisted state is kept.
func (m *Manager) Sweep(idle time.Duration) int {
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := 0
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			delete(m.sessions, id)
			dropped++
		}
	}
	return dropped
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
