package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tester-box/internal/adapter"
	"tester-box/internal/model"
	"tester-box/internal/persist"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// failingStore wraps a store and fails writes on demand.
type failingStore struct {
	persist.Store
	failSet bool
	failGet bool
}

func (f *failingStore) Set(ctx context.Context, key, value string) error {
	if f.failSet {
		return errors.New("disk full")
	}
	return f.Store.Set(ctx, key, value)
}

func (f *failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	if f.failGet {
		return "", false, errors.New("connection refused")
	}
	return f.Store.Get(ctx, key)
}

func testCatalog() *model.TesterCatalog {
	products := make([]model.Product, 12)
	for i := range products {
		products[i] = model.Product{ID: fmt.Sprintf("p%d", i+1), Title: fmt.Sprintf("Perfume %d", i+1)}
	}
	return &model.TesterCatalog{
		Products:        products,
		Filters:         model.DeriveFilters(products),
		BundleVariantID: "gid://shopify/ProductVariant/99",
	}
}

func cartWith(id string, lineIDs ...string) *model.Cart {
	c := &model.Cart{ID: id}
	for _, l := range lineIDs {
		c.Lines = append(c.Lines, model.CartLine{ID: l, Quantity: 1})
	}
	return c
}

// addCall records one AddBundleToCart invocation.
type addCall struct {
	cartID    string
	variantID string
	items     []model.Product
}

type recorder struct {
	mu    sync.Mutex
	calls []addCall
}

func (r *recorder) add(c addCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func newManager(mock *adapter.Mock, store persist.Store) *Manager {
	if store == nil {
		store = persist.NewMemory()
	}
	return NewManager(ManagerConfig{Store: store, Adapter: mock, Logger: discardLogger()})
}

func fillBuilder(t *testing.T, s *Session) {
	t.Helper()
	b, err := s.Builder(context.Background())
	if err != nil {
		t.Fatalf("Builder: %v", err)
	}
	for i := 1; i <= model.BundleSize; i++ {
		if ok, err := b.SelectID(fmt.Sprintf("p%d", i)); !ok || err != nil {
			t.Fatalf("SelectID(p%d) = %v, %v", i, ok, err)
		}
	}
}

func TestWishlistToggleInvolution(t *testing.T) {
	ctx := context.Background()
	store := persist.NewMemory()
	w := loadWishlist(ctx, store, discardLogger())

	added, err := w.Toggle(ctx, "p1")
	if err != nil || !added {
		t.Fatalf("Toggle add = %v, %v", added, err)
	}
	if !w.Contains("p1") || w.Len() != 1 {
		t.Errorf("after add: contains=%v len=%d", w.Contains("p1"), w.Len())
	}
	if raw, _, _ := store.Get(ctx, model.WishlistKey); raw != `["p1"]` {
		t.Errorf("stored = %s", raw)
	}

	added, err = w.Toggle(ctx, "p1")
	if err != nil || added {
		t.Fatalf("Toggle remove = %v, %v", added, err)
	}
	if w.Contains("p1") || w.Len() != 0 {
		t.Error("toggle twice should restore the original set")
	}
	if raw, _, _ := store.Get(ctx, model.WishlistKey); raw != `[]` {
		t.Errorf("stored = %s, want []", raw)
	}
}

func TestWishlistInsertionOrder(t *testing.T) {
	ctx := context.Background()
	w := loadWishlist(ctx, persist.NewMemory(), discardLogger())
	for _, id := range []string{"c", "a", "b"} {
		w.Toggle(ctx, id)
	}
	w.Toggle(ctx, "a")

	ids := w.IDs()
	if len(ids) != 2 || ids[0] != "c" || ids[1] != "b" {
		t.Errorf("IDs = %v, want [c b]", ids)
	}
}

func TestWishlistPersistFailureReverts(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Store: persist.NewMemory()}
	w := loadWishlist(ctx, store, discardLogger())
	w.Toggle(ctx, "p1")

	store.failSet = true
	if _, err := w.Toggle(ctx, "p2"); err == nil {
		t.Fatal("expected error")
	}
	if w.Contains("p2") {
		t.Error("failed add must be reverted")
	}
	if _, err := w.Toggle(ctx, "p1"); err == nil {
		t.Fatal("expected error")
	}
	if !w.Contains("p1") {
		t.Error("failed remove must be reverted")
	}
}

func TestWishlistRehydrate(t *testing.T) {
	tests := []struct {
		name   string
		stored *string
		want   []string
	}{
		{"absent", nil, []string{}},
		{"valid", strPtr(`["p2","p1"]`), []string{"p2", "p1"}},
		{"malformed", strPtr(`{not json`), []string{}},
		{"wrong shape", strPtr(`{"p1":true}`), []string{}},
		{"duplicates and blanks", strPtr(`["p1","","p1"]`), []string{"p1"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			store := persist.NewMemory()
			if tc.stored != nil {
				store.Set(ctx, model.WishlistKey, *tc.stored)
			}

			got := loadWishlist(ctx, store, discardLogger()).IDs()
			if len(got) != len(tc.want) {
				t.Fatalf("IDs = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("IDs[%d] = %s, want %s", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func strPtr(s string) *string { return &s }

func TestCartInitClearsStaleID(t *testing.T) {
	tests := []struct {
		name  string
		fetch func(ctx context.Context, id string) (*model.Cart, error)
	}{
		{
			name:  "cart gone",
			fetch: func(ctx context.Context, id string) (*model.Cart, error) { return nil, nil },
		},
		{
			name: "fetch error",
			fetch: func(ctx context.Context, id string) (*model.Cart, error) {
				return nil, model.NewTransportError(errors.New("timeout"))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			store := persist.NewMemory()
			store.Set(ctx, model.CartIDKey, "gid://shopify/Cart/stale")

			c := loadCart(ctx, store, &adapter.Mock{FetchCartFunc: tc.fetch}, discardLogger())

			if c.Cart() != nil || c.Count() != 0 {
				t.Error("cart should be empty")
			}
			if _, ok, _ := store.Get(ctx, model.CartIDKey); ok {
				t.Error("stale cart id should be cleared")
			}
		})
	}
}

func TestCartInitRestores(t *testing.T) {
	ctx := context.Background()
	store := persist.NewMemory()
	store.Set(ctx, model.CartIDKey, "gid://shopify/Cart/1")

	var fetched string
	mock := &adapter.Mock{FetchCartFunc: func(ctx context.Context, id string) (*model.Cart, error) {
		fetched = id
		return &model.Cart{ID: id, Lines: []model.CartLine{{ID: "l1", Quantity: 2}, {ID: "l2", Quantity: 1}}}, nil
	}}

	c := loadCart(ctx, store, mock, discardLogger())

	if fetched != "gid://shopify/Cart/1" {
		t.Errorf("fetched %q", fetched)
	}
	if c.Count() != 3 {
		t.Errorf("Count = %d, want 3", c.Count())
	}
	if c.ID() != "gid://shopify/Cart/1" {
		t.Errorf("ID = %q", c.ID())
	}
}

func TestCartInitNoStoredID(t *testing.T) {
	called := false
	mock := &adapter.Mock{FetchCartFunc: func(ctx context.Context, id string) (*model.Cart, error) {
		called = true
		return nil, nil
	}}
	c := loadCart(context.Background(), persist.NewMemory(), mock, discardLogger())
	if called {
		t.Error("no stored id should mean no fetch")
	}
	if c.Cart() != nil {
		t.Error("cart should be nil")
	}
}

func TestSubmitBundleCreatePath(t *testing.T) {
	rec := &recorder{}
	mock := &adapter.Mock{
		FetchTesterCatalogFunc: func(ctx context.Context) (*model.TesterCatalog, error) { return testCatalog(), nil },
		AddBundleToCartFunc: func(ctx context.Context, cartID, variantID string, items []model.Product) (*model.Cart, error) {
			rec.add(addCall{cartID, variantID, items})
			return cartWith("gid://shopify/Cart/new", "l1"), nil
		},
	}
	store := persist.NewMemory()
	m := newManager(mock, store)
	ctx := context.Background()

	s, err := m.Get(ctx, "shopper-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	fillBuilder(t, s)

	cart, err := s.SubmitBundle(ctx)
	if err != nil {
		t.Fatalf("SubmitBundle: %v", err)
	}
	if cart.ID != "gid://shopify/Cart/new" {
		t.Errorf("cart = %s", cart.ID)
	}

	if len(rec.calls) != 1 {
		t.Fatalf("AddBundleToCart calls = %d, want 1", len(rec.calls))
	}
	call := rec.calls[0]
	if call.cartID != "" {
		t.Errorf("cartID = %q, want create path", call.cartID)
	}
	if call.variantID != "gid://shopify/ProductVariant/99" || len(call.items) != model.BundleSize {
		t.Errorf("call = %+v", call)
	}

	if v, _, _ := store.Get(ctx, persist.SessionPrefix("shopper-1")+model.CartIDKey); v != "gid://shopify/Cart/new" {
		t.Errorf("persisted cart id = %q", v)
	}
	if s.Cart.Count() != 1 {
		t.Errorf("Count = %d, want 1", s.Cart.Count())
	}

	b, _ := s.Builder(ctx)
	if len(b.Selection()) != 0 {
		t.Error("selection should be cleared")
	}
}

func TestSubmitBundleAddPath(t *testing.T) {
	rec := &recorder{}
	mock := &adapter.Mock{
		FetchTesterCatalogFunc: func(ctx context.Context) (*model.TesterCatalog, error) { return testCatalog(), nil },
		FetchCartFunc: func(ctx context.Context, id string) (*model.Cart, error) {
			return cartWith(id, "l1"), nil
		},
		AddBundleToCartFunc: func(ctx context.Context, cartID, variantID string, items []model.Product) (*model.Cart, error) {
			rec.add(addCall{cartID, variantID, items})
			return cartWith(cartID, "l1", "l2"), nil
		},
	}
	store := persist.NewMemory()
	ctx := context.Background()
	store.Set(ctx, persist.SessionPrefix("s")+model.CartIDKey, "gid://shopify/Cart/1")

	s, _ := newManager(mock, store).Get(ctx, "s")
	fillBuilder(t, s)

	if _, err := s.SubmitBundle(ctx); err != nil {
		t.Fatalf("SubmitBundle: %v", err)
	}
	if len(rec.calls) != 1 || rec.calls[0].cartID != "gid://shopify/Cart/1" {
		t.Errorf("calls = %+v, want one add to the stored cart", rec.calls)
	}
	if s.Cart.Count() != 2 {
		t.Errorf("Count = %d, want 2", s.Cart.Count())
	}
}

func TestSubmitBundleRejectedCartFallsBackToCreate(t *testing.T) {
	rec := &recorder{}
	mock := &adapter.Mock{
		FetchTesterCatalogFunc: func(ctx context.Context) (*model.TesterCatalog, error) { return testCatalog(), nil },
		FetchCartFunc: func(ctx context.Context, id string) (*model.Cart, error) {
			return cartWith(id, "l1"), nil
		},
		AddBundleToCartFunc: func(ctx context.Context, cartID, variantID string, items []model.Product) (*model.Cart, error) {
			rec.add(addCall{cartID, variantID, items})
			if cartID != "" {
				return nil, model.NewNotFoundError("cart")
			}
			return cartWith("gid://shopify/Cart/fresh", "l9"), nil
		},
	}
	ctx := context.Background()
	store := persist.NewMemory()
	store.Set(ctx, persist.SessionPrefix("s")+model.CartIDKey, "gid://shopify/Cart/expired")

	s, _ := newManager(mock, store).Get(ctx, "s")
	fillBuilder(t, s)

	cart, err := s.SubmitBundle(ctx)
	if err != nil {
		t.Fatalf("SubmitBundle: %v", err)
	}
	if cart.ID != "gid://shopify/Cart/fresh" {
		t.Errorf("cart = %s", cart.ID)
	}
	if len(rec.calls) != 2 || rec.calls[0].cartID == "" || rec.calls[1].cartID != "" {
		t.Errorf("calls = %+v, want add then create", rec.calls)
	}
	if v, _, _ := store.Get(ctx, persist.SessionPrefix("s")+model.CartIDKey); v != "gid://shopify/Cart/fresh" {
		t.Errorf("persisted id = %q", v)
	}
}

func TestSubmitBundleUserErrorLeavesStateIntact(t *testing.T) {
	mock := &adapter.Mock{
		FetchTesterCatalogFunc: func(ctx context.Context) (*model.TesterCatalog, error) { return testCatalog(), nil },
		FetchCartFunc: func(ctx context.Context, id string) (*model.Cart, error) {
			return cartWith(id, "l1"), nil
		},
		AddBundleToCartFunc: func(ctx context.Context, cartID, variantID string, items []model.Product) (*model.Cart, error) {
			return nil, model.NewUserError("Merchandise is sold out", []string{"lines"})
		},
	}
	ctx := context.Background()
	store := persist.NewMemory()
	store.Set(ctx, persist.SessionPrefix("s")+model.CartIDKey, "gid://shopify/Cart/1")

	s, _ := newManager(mock, store).Get(ctx, "s")
	fillBuilder(t, s)
	before := s.Cart.Cart()

	_, err := s.SubmitBundle(ctx)
	if model.KindOf(err) != model.KindUserErrors {
		t.Fatalf("kind = %v, want user_errors", model.KindOf(err))
	}

	b, _ := s.Builder(ctx)
	if len(b.Selection()) != model.BundleSize {
		t.Errorf("selection = %d, want intact", len(b.Selection()))
	}
	if s.Cart.Cart() != before {
		t.Error("cart snapshot should be untouched")
	}
	if v, _, _ := store.Get(ctx, persist.SessionPrefix("s")+model.CartIDKey); v != "gid://shopify/Cart/1" {
		t.Errorf("persisted id = %q, want untouched", v)
	}
}

func TestRemoveLine(t *testing.T) {
	var removed []string
	mock := &adapter.Mock{
		FetchCartFunc: func(ctx context.Context, id string) (*model.Cart, error) {
			return cartWith(id, "l1", "l2"), nil
		},
		RemoveCartLineFunc: func(ctx context.Context, cartID, lineID string) (*model.Cart, error) {
			removed = append(removed, cartID+"/"+lineID)
			return cartWith(cartID, "l2"), nil
		},
	}
	ctx := context.Background()
	store := persist.NewMemory()
	store.Set(ctx, persist.SessionPrefix("s")+model.CartIDKey, "c1")

	s, _ := newManager(mock, store).Get(ctx, "s")
	if _, err := s.RemoveLine(ctx, "l1"); err != nil {
		t.Fatalf("RemoveLine: %v", err)
	}
	if len(removed) != 1 || removed[0] != "c1/l1" {
		t.Errorf("removed = %v", removed)
	}
	if s.Cart.Count() != 1 {
		t.Errorf("Count = %d, want 1", s.Cart.Count())
	}
}

func TestRemoveLineWithoutCart(t *testing.T) {
	s, _ := newManager(&adapter.Mock{}, nil).Get(context.Background(), "s")
	if _, err := s.RemoveLine(context.Background(), "l1"); model.KindOf(err) != model.KindNotFound {
		t.Errorf("kind = %v, want not_found", model.KindOf(err))
	}
}

func TestBuilderLoadFailure(t *testing.T) {
	calls := 0
	mock := &adapter.Mock{FetchTesterCatalogFunc: func(ctx context.Context) (*model.TesterCatalog, error) {
		calls++
		if calls == 1 {
			return nil, model.NewServiceReportedError("Throttled")
		}
		return testCatalog(), nil
	}}
	s, _ := newManager(mock, nil).Get(context.Background(), "s")

	if _, err := s.Builder(context.Background()); model.KindOf(err) != model.KindServiceReported {
		t.Fatalf("first Builder kind = %v", model.KindOf(err))
	}
	b1, err := s.Builder(context.Background())
	if err != nil {
		t.Fatalf("second Builder: %v", err)
	}
	b2, _ := s.Builder(context.Background())
	if b1 != b2 {
		t.Error("builder should be created once")
	}
	if calls != 2 {
		t.Errorf("catalog loads = %d, want 2", calls)
	}
}

func TestWishlistProducts(t *testing.T) {
	var asked []string
	mock := &adapter.Mock{FetchProductsByIDsFunc: func(ctx context.Context, ids []string) ([]model.Product, error) {
		asked = ids
		return []model.Product{{ID: "p2"}}, nil
	}}
	ctx := context.Background()
	s, _ := newManager(mock, nil).Get(ctx, "s")
	s.Wishlist.Toggle(ctx, "p2")
	s.Wishlist.Toggle(ctx, "gone")

	products, err := s.WishlistProducts(ctx)
	if err != nil {
		t.Fatalf("WishlistProducts: %v", err)
	}
	if len(asked) != 2 || len(products) != 1 {
		t.Errorf("asked = %v, got = %v", asked, products)
	}
}

func TestManagerReusesSessions(t *testing.T) {
	fetches := 0
	mock := &adapter.Mock{FetchCartFunc: func(ctx context.Context, id string) (*model.Cart, error) {
		fetches++
		return cartWith(id), nil
	}}
	ctx := context.Background()
	store := persist.NewMemory()
	store.Set(ctx, persist.SessionPrefix("a")+model.CartIDKey, "c")

	m := newManager(mock, store)
	s1, _ := m.Get(ctx, "a")
	s2, _ := m.Get(ctx, "a")
	if s1 != s2 {
		t.Error("same id should return the same session")
	}
	if fetches != 1 {
		t.Errorf("cart fetched %d times, want 1", fetches)
	}

	other, _ := m.Get(ctx, "b")
	if other == s1 || m.Len() != 2 {
		t.Errorf("sessions = %d", m.Len())
	}

	if _, err := m.Get(ctx, ""); model.KindOf(err) != model.KindValidation {
		t.Error("empty session id should be rejected")
	}
}

func TestManagerConcurrentFirstAccessLoadsOnce(t *testing.T) {
	var fetches atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	mock := &adapter.Mock{FetchCartFunc: func(ctx context.Context, id string) (*model.Cart, error) {
		if fetches.Add(1) == 1 {
			close(started)
		}
		<-release
		return cartWith(id), nil
	}}
	ctx := context.Background()
	store := persist.NewMemory()
	store.Set(ctx, persist.SessionPrefix("a")+model.CartIDKey, "c")
	m := newManager(mock, store)

	const callers = 8
	results := make(chan *Session, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := m.Get(ctx, "a")
			if err != nil {
				t.Errorf("Get: %v", err)
			}
			results <- s
		}()
	}
	<-started
	close(release)
	wg.Wait()
	close(results)

	first := <-results
	for s := range results {
		if s != first {
			t.Error("concurrent callers got different sessions")
		}
	}
	if got := fetches.Load(); got != 1 {
		t.Errorf("cart fetched %d times, want 1", got)
	}
	if m.Len() != 1 {
		t.Errorf("sessions = %d, want 1", m.Len())
	}
}

func TestManagerLoadIgnoresCallerCancel(t *testing.T) {
	mock := &adapter.Mock{FetchCartFunc: func(ctx context.Context, id string) (*model.Cart, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return cartWith(id), nil
	}}
	store := persist.NewMemory()
	store.Set(context.Background(), persist.SessionPrefix("a")+model.CartIDKey, "c")
	m := newManager(mock, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := m.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.Cart.ID() != "c" {
		t.Errorf("cart id = %q, want c", s.Cart.ID())
	}
	if _, ok, _ := store.Get(context.Background(), persist.SessionPrefix("a")+model.CartIDKey); !ok {
		t.Error("stored cart id should survive a cancelled request")
	}
}

func TestManagerSweep(t *testing.T) {
	m := newManager(&adapter.Mock{}, nil)
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	idle, _ := m.Get(ctx, "idle")
	idle.Wishlist.Toggle(ctx, "p1")

	now = now.Add(20 * time.Minute)
	m.Get(ctx, "active")

	now = now.Add(15 * time.Minute)
	if dropped := m.Sweep(30 * time.Minute); dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}

	// Persisted state survives the sweep.
	again, _ := m.Get(ctx, "idle")
	if again == idle {
		t.Error("swept session should be reloaded")
	}
	if !again.Wishlist.Contains("p1") {
		t.Error("wishlist should be rehydrated from the store")
	}
}
