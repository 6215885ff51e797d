package adapter

import (
	"context"

	"tester-box/internal/model"
)

// Mock implements Adapter for testing.
// Each method can be configured via function fields.
type Mock struct {
	FetchTesterCatalogFunc func(ctx context.Context) (*model.TesterCatalog, error)
	FetchProductsByIDsFunc func(ctx context.Context, ids []string) ([]model.Product, error)
	AddBundleToCartFunc    func(ctx context.Context, cartID, bundleVariantID string, items []model.Product) (*model.Cart, error)
	FetchCartFunc          func(ctx context.Context, cartID string) (*model.Cart, error)
	RemoveCartLineFunc     func(ctx context.Context, cartID, lineID string) (*model.Cart, error)
}

// FetchTesterCatalog calls the configured FetchTesterCatalogFunc or returns an empty catalog.
func (m *Mock) FetchTesterCatalog(ctx context.Context) (*model.TesterCatalog, error) {
	if m.FetchTesterCatalogFunc != nil {
		return m.FetchTesterCatalogFunc(ctx)
	}
	return &model.TesterCatalog{
		Products: []model.Product{},
		Filters:  model.DeriveFilters(nil),
	}, nil
}

// FetchProductsByIDs calls the configured FetchProductsByIDsFunc or returns no products.
func (m *Mock) FetchProductsByIDs(ctx context.Context, ids []string) ([]model.Product, error) {
	if m.FetchProductsByIDsFunc != nil {
		return m.FetchProductsByIDsFunc(ctx, ids)
	}
	return []model.Product{}, nil
}

// AddBundleToCart calls the configured AddBundleToCartFunc or returns an error.
func (m *Mock) AddBundleToCart(ctx context.Context, cartID, bundleVariantID string, items []model.Product) (*model.Cart, error) {
	if m.AddBundleToCartFunc != nil {
		return m.AddBundleToCartFunc(ctx, cartID, bundleVariantID, items)
	}
	return nil, model.NewInternalError(nil)
}

// FetchCart calls the configured FetchCartFunc or reports the cart as gone.
func (m *Mock) FetchCart(ctx context.Context, cartID string) (*model.Cart, error) {
	if m.FetchCartFunc != nil {
		return m.FetchCartFunc(ctx, cartID)
	}
	return nil, nil
}

// RemoveCartLine calls the configured RemoveCartLineFunc or returns an error.
func (m *Mock) RemoveCartLine(ctx context.Context, cartID, lineID string) (*model.Cart, error) {
	if m.RemoveCartLineFunc != nil {
		return m.RemoveCartLineFunc(ctx, cartID, lineID)
	}
	return nil, model.NewNotFoundError("cart")
}

// Verify Mock implements Adapter interface at compile time.
var _ Adapter = (*Mock)(nil)
