package shopify

import (
	"fmt"
	"time"

	"tester-box/internal/adapter"
	"tester-box/internal/model"
)

// =============================================================================
// SHOPIFY STOREFRONT ADAPTER
// =============================================================================
//
// Implements adapter.Adapter on the Storefront GraphQL API.
//
// Catalog:
//   - tester products come from one collection (default "tester-perfumes")
//   - the bundle is sold as the first variant of one product
//     (default "perfume-tester-box"); a submitted box is one line of that
//     variant, with "Tester N" attributes naming the chosen items
//
// Cart:
//   - no cart id   → cartCreate
//   - cart id      → cartLinesAdd (a null cart means the id was rejected)
//
// Catalog reads are cached for CatalogRevalidate; cart reads never are.
// =============================================================================

// DefaultCatalogRevalidate is how long catalog responses are reused.
const DefaultCatalogRevalidate = 60 * time.Second

// Config holds Shopify adapter settings.
type Config struct {
	Client ClientConfig

	CollectionHandle    string        // default model.DefaultCollectionHandle
	BundleProductHandle string        // default model.DefaultBundleProductHandle
	CatalogRevalidate   time.Duration // 0 = DefaultCatalogRevalidate, <0 disables caching
}

// Adapter implements adapter.Adapter for Shopify stores.
type Adapter struct {
	client *Client

	collectionHandle    string
	bundleProductHandle string
	catalogRevalidate   time.Duration
}

// New creates a Shopify adapter.
func New(cfg Config) (*Adapter, error) {
	client, err := NewClient(cfg.Client)
	if err != nil {
		return nil, fmt.Errorf("creating storefront client: %w", err)
	}

	a := &Adapter{
		client:              client,
		collectionHandle:    cfg.CollectionHandle,
		bundleProductHandle: cfg.BundleProductHandle,
		catalogRevalidate:   cfg.CatalogRevalidate,
	}
	if a.collectionHandle == "" {
		a.collectionHandle = model.DefaultCollectionHandle
	}
	if a.bundleProductHandle == "" {
		a.bundleProductHandle = model.DefaultBundleProductHandle
	}
	if a.catalogRevalidate == 0 {
		a.catalogRevalidate = DefaultCatalogRevalidate
	}
	return a, nil
}

var _ adapter.Adapter = (*Adapter)(nil)
