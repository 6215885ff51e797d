package shopify

import (
	"fmt"

	"tester-box/internal/model"
)

// ProductToModel converts a catalog product node. Empty metafield values
// are treated the same as absent ones.
func ProductToModel(n *productNode) model.Product {
	p := model.Product{
		ID:            n.ID,
		Title:         n.Title,
		Handle:        n.Handle,
		FeaturedImage: imageToModel(n.FeaturedImage),
		Brand:         metafieldValue(n.Brand),
		FragranceType: metafieldValue(n.FragranceType),
		Gender:        metafieldValue(n.Gender),
	}
	if len(n.Variants.Edges) > 0 {
		p.VariantID = n.Variants.Edges[0].Node.ID
	}
	return p
}

func metafieldValue(m *metafieldNode) *string {
	if m == nil || m.Value == "" {
		return nil
	}
	v := m.Value
	return &v
}

func imageToModel(img *imageNode) model.Image {
	if img == nil {
		return model.Image{}
	}
	return model.Image{URL: img.URL, AltText: img.AltText}
}

// CartToModel converts a cart node. Money fields must parse; a malformed
// amount means the payload is not what the documents asked for.
func CartToModel(n *cartNode) (*model.Cart, error) {
	total, err := model.ParseMoney(n.Cost.TotalAmount.Amount, n.Cost.TotalAmount.CurrencyCode)
	if err != nil {
		return nil, fmt.Errorf("cart total: %w", err)
	}

	cart := &model.Cart{
		ID:          n.ID,
		CheckoutURL: n.CheckoutURL,
		Cost:        model.CartCost{TotalAmount: total},
		Lines:       make([]model.CartLine, 0, len(n.Lines.Edges)),
	}

	for _, e := range n.Lines.Edges {
		line := e.Node
		price, err := model.ParseMoney(line.Merchandise.Price.Amount, line.Merchandise.Price.CurrencyCode)
		if err != nil {
			return nil, fmt.Errorf("line %s price: %w", line.ID, err)
		}

		var attrs []model.Attribute
		if len(line.Attributes) > 0 {
			attrs = make([]model.Attribute, len(line.Attributes))
			for i, a := range line.Attributes {
				attrs[i] = model.Attribute{Key: a.Key, Value: a.Value}
			}
		}

		cart.Lines = append(cart.Lines, model.CartLine{
			ID:       line.ID,
			Quantity: line.Quantity,
			Merchandise: model.Merchandise{
				ID:    line.Merchandise.ID,
				Title: line.Merchandise.Title,
				Product: model.MerchandiseProduct{
					Title:         line.Merchandise.Product.Title,
					FeaturedImage: imageToModel(line.Merchandise.Product.FeaturedImage),
				},
				Price: price,
			},
			Attributes: attrs,
		})
	}

	return cart, nil
}

// BundleLine builds the single cart line that represents a tester box.
func BundleLine(bundleVariantID string, items []model.Product) cartLineInput {
	attrs := model.BundleAttributes(items)
	wire := make([]attributeNode, len(attrs))
	for i, a := range attrs {
		wire[i] = attributeNode{Key: a.Key, Value: a.Value}
	}
	return cartLineInput{
		MerchandiseID: bundleVariantID,
		Quantity:      1,
		Attributes:    wire,
	}
}

// firstUserError converts the first userErrors entry, if any.
func firstUserError(errs []userErrorNode) error {
	if len(errs) == 0 {
		return nil
	}
	// An unknown or expired cart id is reported against the cartId argument.
	if f := errs[0].Field; len(f) > 0 && f[0] == "cartId" {
		return model.NewNotFoundError("cart")
	}
	return model.NewUserError(errs[0].Message, errs[0].Field)
}
