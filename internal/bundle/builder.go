// Package bundle implements the tester box builder: a fixed-size selection
// of catalog products that is submitted to the cart as a single line.
package bundle

import (
	"context"
	"fmt"
	"sync"

	"tester-box/internal/model"
)

// =============================================================================
// BUILDER STATE MACHINE
// =============================================================================
//
//   selecting ──(10th item)──→ ready ──(Submit)──→ submitting
//       ↑                        │                    │
//       └──────(Deselect)────────┘                    │
//       ↑                                             │
//       └───────────(success: selection cleared)──────┤
//                    ready ←──(failure: restored)─────┘
//
// Reaching ready raises the confirmation surface (Confirming). Dismiss hides
// it without touching the selection; Submit stays available while 10 items
// are selected.
//
// Remote work (SubmitFunc) runs without the builder lock held.
// =============================================================================

// State is the builder's lifecycle position.
type State string

const (
	StateSelecting  State = "selecting"
	StateReady      State = "ready"
	StateSubmitting State = "submitting"
)

// SubmitFunc performs the remote cart mutation for a complete selection.
type SubmitFunc func(ctx context.Context, items []model.Product) (*model.Cart, error)

// Builder holds one shopper's in-progress tester box.
type Builder struct {
	mu sync.Mutex

	products        []model.Product
	available       model.FilterSet
	bundleVariantID string

	selected   []model.Product
	active     model.ActiveFilters
	state      State
	confirming bool
}

// New creates a builder over a loaded catalog.
func New(catalog *model.TesterCatalog) *Builder {
	b := &Builder{state: StateSelecting}
	if catalog != nil {
		b.products = catalog.Products
		b.available = catalog.Filters
		b.bundleVariantID = catalog.BundleVariantID
	}
	return b
}

// BundleVariantID is the merchandise id a submitted box is sold as.
func (b *Builder) BundleVariantID() string {
	return b.bundleVariantID
}

// Product looks up a catalog product by id.
func (b *Builder) Product(id string) (model.Product, bool) {
	for _, p := range b.products {
		if p.ID == id {
			return p, true
		}
	}
	return model.Product{}, false
}

// Catalog returns the loaded catalog narrowed by active. The builder's own
// filter state is neither read nor changed.
func (b *Builder) Catalog(active model.ActiveFilters) *model.TesterCatalog {
	return &model.TesterCatalog{
		Products:        model.ApplyFilters(b.products, active),
		Filters:         b.available,
		BundleVariantID: b.bundleVariantID,
	}
}

// ApplyFilter replaces the constraint on one facet. A nil value clears it.
func (b *Builder) ApplyFilter(facet model.Facet, value *string) error {
	if !facet.Valid() {
		return model.NewValidationError("facet", fmt.Sprintf("unknown facet %q", facet))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = b.active.With(facet, value)
	return nil
}

// ActiveFilters returns the current facet constraints.
func (b *Builder) ActiveFilters() model.ActiveFilters {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// Filtered returns the catalog products matching every active constraint.
func (b *Builder) Filtered() []model.Product {
	b.mu.Lock()
	active := b.active
	b.mu.Unlock()
	return model.ApplyFilters(b.products, active)
}

// Select appends p to the selection. It reports false, changing nothing,
// when the box is full, p is already selected, or a submit is in flight.
func (b *Builder) Select(p model.Product) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateSubmitting || len(b.selected) >= model.BundleSize || b.isSelectedLocked(p.ID) {
		return false
	}
	b.selected = append(b.selected, p)
	if len(b.selected) == model.BundleSize {
		b.state = StateReady
		b.confirming = true
	}
	return true
}

// SelectID selects a catalog product by id.
func (b *Builder) SelectID(id string) (bool, error) {
	p, ok := b.Product(id)
	if !ok {
		return false, model.NewNotFoundError(fmt.Sprintf("product %q", id))
	}
	return b.Select(p), nil
}

// Deselect removes a product from the selection. Any removal leaves ready.
func (b *Builder) Deselect(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateSubmitting {
		return false
	}
	for i, p := range b.selected {
		if p.ID == id {
			b.selected = append(b.selected[:i:i], b.selected[i+1:]...)
			b.state = StateSelecting
			b.confirming = false
			return true
		}
	}
	return false
}

// Dismiss hides the confirmation surface.
func (b *Builder) Dismiss() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirming = false
}

// Submit hands a complete selection to fn. On success the selection is
// cleared; on failure the builder returns to where it was.
func (b *Builder) Submit(ctx context.Context, fn SubmitFunc) (*model.Cart, error) {
	b.mu.Lock()
	if b.state == StateSubmitting {
		b.mu.Unlock()
		return nil, model.NewConflictError("a tester box submission is already in progress")
	}
	if len(b.selected) != model.BundleSize {
		n := len(b.selected)
		b.mu.Unlock()
		return nil, model.NewValidationError("selection",
			fmt.Sprintf("a tester box needs exactly %d items, %d selected", model.BundleSize, n))
	}

	prevState, prevConfirming := b.state, b.confirming
	items := append([]model.Product(nil), b.selected...)
	b.state = StateSubmitting
	b.mu.Unlock()

	cart, err := fn(ctx, items)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.state = prevState
		b.confirming = prevConfirming
		return nil, err
	}
	b.selected = nil
	b.state = StateSelecting
	b.confirming = false
	return cart, nil
}

// State returns the lifecycle position.
func (b *Builder) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Confirming reports whether the confirmation surface is showing.
func (b *Builder) Confirming() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.confirming
}

// Selection returns a copy of the selected products in selection order.
func (b *Builder) Selection() []model.Product {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Product{}, b.selected...)
}

// Remaining is how many more items the box needs.
func (b *Builder) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return model.BundleSize - len(b.selected)
}

// IsSelected reports whether a product is in the box.
func (b *Builder) IsSelected(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isSelectedLocked(id)
}

func (b *Builder) isSelectedLocked(id string) bool {
	for _, p := range b.selected {
		if p.ID == id {
			return true
		}
	}
	return false
}

// Item is a filtered catalog entry with its selection badge.
type Item struct {
	model.Product
	Selected bool `json:"selected"`
}

// Snapshot is a consistent read of the builder for API responses.
type Snapshot struct {
	State           State               `json:"state"`
	Confirming      bool                `json:"confirming"`
	Selected        []model.Product     `json:"selected"`
	Count           int                 `json:"count"`
	Remaining       int                 `json:"remaining"`
	BundleSize      int                 `json:"bundle_size"`
	ActiveFilters   model.ActiveFilters `json:"active_filters"`
	Filters         model.FilterSet     `json:"filters"`
	Items           []Item              `json:"items"`
	BundleVariantID string              `json:"bundle_variant_id"`
}

// Snapshot captures the builder state under one lock.
func (b *Builder) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	filtered := model.ApplyFilters(b.products, b.active)
	items := make([]Item, len(filtered))
	for i, p := range filtered {
		items[i] = Item{Product: p, Selected: b.isSelectedLocked(p.ID)}
	}

	return Snapshot{
		State:           b.state,
		Confirming:      b.confirming,
		Selected:        append([]model.Product{}, b.selected...),
		Count:           len(b.selected),
		Remaining:       model.BundleSize - len(b.selected),
		BundleSize:      model.BundleSize,
		ActiveFilters:   b.active,
		Filters:         b.available,
		Items:           items,
		BundleVariantID: b.bundleVariantID,
	}
}
