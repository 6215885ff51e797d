package model

import "fmt"

// Attribute is a key/value pair attached to a cart line.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Cart is the last-known snapshot of a remote cart. The platform owns it;
// the storefront only caches it.
type Cart struct {
	ID          string     `json:"id"`
	CheckoutURL string     `json:"checkout_url"`
	Cost        CartCost   `json:"cost"`
	Lines       []CartLine `json:"lines"`
}

// CartCost holds the cart totals computed by the platform.
type CartCost struct {
	TotalAmount Money `json:"total_amount"`
}

// CartLine is one entry of a remote cart.
type CartLine struct {
	ID          string      `json:"id"`
	Quantity    int         `json:"quantity"`
	Merchandise Merchandise `json:"merchandise"`
	Attributes  []Attribute `json:"attributes,omitempty"`
}

// Merchandise is the variant a cart line points at.
type Merchandise struct {
	ID      string             `json:"id"`
	Title   string             `json:"title"`
	Product MerchandiseProduct `json:"product"`
	Price   Money              `json:"price"`
}

// MerchandiseProduct is the parent product summary of a variant.
type MerchandiseProduct struct {
	Title         string `json:"title"`
	FeaturedImage Image  `json:"featured_image"`
}

// Count returns the sum of line quantities. A nil cart counts as zero.
func (c *Cart) Count() int {
	if c == nil {
		return 0
	}
	total := 0
	for _, line := range c.Lines {
		total += line.Quantity
	}
	return total
}

// Line returns the line with the given id, if present.
func (c *Cart) Line(id string) (CartLine, bool) {
	if c == nil {
		return CartLine{}, false
	}
	for _, line := range c.Lines {
		if line.ID == id {
			return line, true
		}
	}
	return CartLine{}, false
}

// BundleAttributes labels each bundle item "Tester N" with N its 1-based
// position, valued with the item's title.
func BundleAttributes(items []Product) []Attribute {
	attrs := make([]Attribute, len(items))
	for i, item := range items {
		attrs[i] = Attribute{
			Key:   fmt.Sprintf("Tester %d", i+1),
			Value: item.Title,
		}
	}
	return attrs
}
