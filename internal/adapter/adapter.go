// Package adapter defines the commerce platform port the storefront runs on.
// Implementations translate a platform's catalog and cart API to model types.
package adapter

import (
	"context"

	"tester-box/internal/model"
)

// Adapter abstracts the catalog and cart operations the tester box needs.
//
// All methods return model types ready for API serialization. Failures are
// *model.APIError values carrying a model.Kind.
type Adapter interface {
	// FetchTesterCatalog returns the tester collection, its derived facet
	// values, and the variant id of the tester box product.
	FetchTesterCatalog(ctx context.Context) (*model.TesterCatalog, error)

	// FetchProductsByIDs resolves ids in one round trip. Unknown ids are
	// dropped; the order of the remaining ids is preserved.
	FetchProductsByIDs(ctx context.Context, ids []string) ([]model.Product, error)

	// AddBundleToCart adds one bundle line to cartID, or creates a cart when
	// cartID is empty. A rejected cartID is reported as model.KindNotFound.
	AddBundleToCart(ctx context.Context, cartID, bundleVariantID string, items []model.Product) (*model.Cart, error)

	// FetchCart returns (nil, nil) when the id no longer resolves.
	FetchCart(ctx context.Context, cartID string) (*model.Cart, error)

	// RemoveCartLine removes one line and returns the updated cart.
	RemoveCartLine(ctx context.Context, cartID, lineID string) (*model.Cart, error)
}
