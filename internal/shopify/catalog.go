package shopify

import (
	"context"
	"fmt"

	"tester-box/internal/model"
)

// FetchTesterCatalog loads the tester collection and the bundle variant.
func (a *Adapter) FetchTesterCatalog(ctx context.Context) (*model.TesterCatalog, error) {
	products, err := a.fetchCollectionProducts(ctx)
	if err != nil {
		return nil, err
	}

	variantID, err := a.fetchBundleVariantID(ctx)
	if err != nil {
		return nil, err
	}

	return &model.TesterCatalog{
		Products:        products,
		Filters:         model.DeriveFilters(products),
		BundleVariantID: variantID,
	}, nil
}

func (a *Adapter) fetchCollectionProducts(ctx context.Context) ([]model.Product, error) {
	var data collectionData
	vars := map[string]any{"handle": a.collectionHandle}
	if err := a.client.decode(ctx, testerProductsQuery, vars, a.catalogRevalidate, &data); err != nil {
		return nil, err
	}
	if data.Collection == nil {
		return nil, model.NewNotFoundError(fmt.Sprintf("collection %q", a.collectionHandle))
	}

	edges := data.Collection.Products.Edges
	products := make([]model.Product, 0, len(edges))
	for i := range edges {
		products = append(products, ProductToModel(&edges[i].Node))
	}
	return products, nil
}

func (a *Adapter) fetchBundleVariantID(ctx context.Context) (string, error) {
	var data productVariantData
	vars := map[string]any{"handle": a.bundleProductHandle}
	if err := a.client.decode(ctx, bundleVariantQuery, vars, a.catalogRevalidate, &data); err != nil {
		return "", err
	}
	if data.Product == nil {
		return "", model.NewNotFoundError(fmt.Sprintf("product %q", a.bundleProductHandle))
	}
	if len(data.Product.Variants.Edges) == 0 {
		return "", model.NewNotFoundError(fmt.Sprintf("variant of product %q", a.bundleProductHandle))
	}
	return data.Product.Variants.Edges[0].Node.ID, nil
}

// FetchProductsByIDs resolves product ids with a single nodes(ids:) query.
// Empty ids are skipped; an empty list makes no request.
func (a *Adapter) FetchProductsByIDs(ctx context.Context, ids []string) ([]model.Product, error) {
	query := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			query = append(query, id)
		}
	}
	if len(query) == 0 {
		return []model.Product{}, nil
	}

	var data nodesData
	vars := map[string]any{"ids": query}
	if err := a.client.decode(ctx, productsByIDsQuery, vars, a.catalogRevalidate, &data); err != nil {
		return nil, err
	}

	products := make([]model.Product, 0, len(data.Nodes))
	for _, node := range data.Nodes {
		// Non-product nodes match no fragment fields and decode empty.
		if node == nil || node.ID == "" {
			continue
		}
		products = append(products, ProductToModel(node))
	}
	return products, nil
}
