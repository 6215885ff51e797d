package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"tester-box/internal/bundle"
	"tester-box/internal/model"
	"tester-box/internal/session"
)

// CartView is the cart as shown to the shopper, with the header badge count.
type CartView struct {
	Cart  *model.Cart `json:"cart"`
	Count int         `json:"count"`
}

// WishlistView lists saved ids and the products they still resolve to.
type WishlistView struct {
	IDs      []string        `json:"ids"`
	Products []model.Product `json:"products"`
}

// ToggleView reports the outcome of a wishlist toggle.
type ToggleView struct {
	ProductID string `json:"product_id"`
	Saved     bool   `json:"saved"`
	Count     int    `json:"count"`
}

// SessionView carries the header badge counts.
type SessionView struct {
	Session       string `json:"session"`
	CartCount     int    `json:"cart_count"`
	WishlistCount int    `json:"wishlist_count"`
}

type filterRequest struct {
	Facet string  `json:"facet" validate:"required,oneof=brand fragrance_type gender"`
	Value *string `json:"value"`
}

type selectRequest struct {
	ProductID string `json:"product_id" validate:"required,max=256"`
}

// =============================================================================
// OPERATIONS
// =============================================================================
//
// Shared by the REST and MCP surfaces. Each takes an already resolved session.

func (h *Handler) catalog(ctx context.Context, s *session.Session, active model.ActiveFilters) (*model.TesterCatalog, error) {
	b, err := s.Builder(ctx)
	if err != nil {
		return nil, err
	}
	return b.Catalog(active), nil
}

func (h *Handler) bundle(ctx context.Context, s *session.Session) (*bundle.Snapshot, error) {
	b, err := s.Builder(ctx)
	if err != nil {
		return nil, err
	}
	snap := b.Snapshot()
	return &snap, nil
}

func (h *Handler) applyFilter(ctx context.Context, s *session.Session, facet string, value *string) (*bundle.Snapshot, error) {
	b, err := s.Builder(ctx)
	if err != nil {
		return nil, err
	}
	if value != nil && *value == "" {
		value = nil
	}
	if err := b.ApplyFilter(model.Facet(facet), value); err != nil {
		return nil, err
	}
	snap := b.Snapshot()
	return &snap, nil
}

func (h *Handler) selectProduct(ctx context.Context, s *session.Session, productID string) (*bundle.Snapshot, error) {
	b, err := s.Builder(ctx)
	if err != nil {
		return nil, err
	}
	added, err := b.SelectID(productID)
	if err != nil {
		return nil, err
	}
	if !added {
		h.logger.DebugContext(ctx, "selection unchanged",
			slog.String("session", s.ID),
			slog.String("product_id", productID),
			slog.Int("remaining", b.Remaining()),
		)
	}
	snap := b.Snapshot()
	return &snap, nil
}

func (h *Handler) deselectProduct(ctx context.Context, s *session.Session, productID string) (*bundle.Snapshot, error) {
	b, err := s.Builder(ctx)
	if err != nil {
		return nil, err
	}
	b.Deselect(productID)
	snap := b.Snapshot()
	return &snap, nil
}

func (h *Handler) dismiss(ctx context.Context, s *session.Session) (*bundle.Snapshot, error) {
	b, err := s.Builder(ctx)
	if err != nil {
		return nil, err
	}
	b.Dismiss()
	snap := b.Snapshot()
	return &snap, nil
}

func (h *Handler) submit(ctx context.Context, s *session.Session) (*CartView, error) {
	h.logger.InfoContext(ctx, "submitting tester box", slog.String("session", s.ID))
	cart, err := s.SubmitBundle(ctx)
	if err != nil {
		return nil, err
	}
	return &CartView{Cart: cart, Count: cart.Count()}, nil
}

func (h *Handler) cart(ctx context.Context, s *session.Session, refresh bool) (*CartView, error) {
	cart := s.Cart.Cart()
	if refresh {
		var err error
		if cart, err = s.RefreshCart(ctx); err != nil {
			return nil, err
		}
	}
	return &CartView{Cart: cart, Count: cart.Count()}, nil
}

func (h *Handler) removeLine(ctx context.Context, s *session.Session, lineID string) (*CartView, error) {
	h.logger.InfoContext(ctx, "removing cart line",
		slog.String("session", s.ID),
		slog.String("line_id", lineID),
	)
	cart, err := s.RemoveLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	return &CartView{Cart: cart, Count: cart.Count()}, nil
}

func (h *Handler) wishlist(ctx context.Context, s *session.Session) (*WishlistView, error) {
	products, err := s.WishlistProducts(ctx)
	if err != nil {
		return nil, err
	}
	return &WishlistView{IDs: s.Wishlist.IDs(), Products: products}, nil
}

func (h *Handler) toggleWishlist(ctx context.Context, s *session.Session, productID string) (*ToggleView, error) {
	saved, err := s.Wishlist.Toggle(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &ToggleView{ProductID: productID, Saved: saved, Count: s.Wishlist.Len()}, nil
}

func sessionView(s *session.Session) *SessionView {
	return &SessionView{
		Session:       s.ID,
		CartCount:     s.Cart.Count(),
		WishlistCount: s.Wishlist.Len(),
	}
}

// =============================================================================
// REST HANDLERS
// =============================================================================

// sessionHandler adapts an operation that needs the request's session.
type sessionHandler func(r *http.Request, s *session.Session) (any, error)

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, fn sessionHandler) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out, err := fn(r, s)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

// handleCatalog lists tester products, narrowed by optional facet params.
// GET /catalog?brand=&fragrance_type=&gender=
func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(r *http.Request, s *session.Session) (any, error) {
		q := r.URL.Query()
		active := model.ActiveFilters{
			Brand:         queryValue(q.Get("brand")),
			FragranceType: queryValue(q.Get("fragrance_type")),
			Gender:        queryValue(q.Get("gender")),
		}
		return h.catalog(r.Context(), s, active)
	})
}

// GET /bundle
func (h *Handler) handleGetBundle(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(r *http.Request, s *session.Session) (any, error) {
		return h.bundle(r.Context(), s)
	})
}

// handleApplyFilter sets or clears one facet. A null or empty value clears.
// PUT /bundle/filters
func (h *Handler) handleApplyFilter(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(r *http.Request, s *session.Session) (any, error) {
		var req filterRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
		return h.applyFilter(r.Context(), s, req.Facet, req.Value)
	})
}

// POST /bundle/items
func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(r *http.Request, s *session.Session) (any, error) {
		var req selectRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
		return h.selectProduct(r.Context(), s, req.ProductID)
	})
}

// DELETE /bundle/items/{id}
func (h *Handler) handleDeselect(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(r *http.Request, s *session.Session) (any, error) {
		return h.deselectProduct(r.Context(), s, r.PathValue("id"))
	})
}

// POST /bundle/dismiss
func (h *Handler) handleDismiss(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(r *http.Request, s *session.Session) (any, error) {
		return h.dismiss(r.Context(), s)
	})
}

// handleSubmit adds the full box to the cart as one line.
// POST /bundle/submit
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(r *http.Request, s *session.Session) (any, error) {
		return h.submit(r.Context(), s)
	})
}

// handleGetCart returns the cached cart; refresh=true re-reads it first.
// GET /cart
func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(r *http.Request, s *session.Session) (any, error) {
		refresh := false
		if raw := r.URL.Query().Get("refresh"); raw != "" {
			parsed, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, model.NewValidationError("refresh", "must be a boolean")
			}
			refresh = parsed
		}
		return h.cart(r.Context(), s, refresh)
	})
}

// DELETE /cart/lines/{id}
func (h *Handler) handleRemoveLine(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(r *http.Request, s *session.Session) (any, error) {
		return h.removeLine(r.Context(), s, r.PathValue("id"))
	})
}

// GET /wishlist
func (h *Handler) handleGetWishlist(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(r *http.Request, s *session.Session) (any, error) {
		return h.wishlist(r.Context(), s)
	})
}

// POST /wishlist/{id}
func (h *Handler) handleToggleWishlist(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(r *http.Request, s *session.Session) (any, error) {
		return h.toggleWishlist(r.Context(), s, r.PathValue("id"))
	})
}

// GET /session
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(r *http.Request, s *session.Session) (any, error) {
		return sessionView(s), nil
	})
}

func queryValue(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
