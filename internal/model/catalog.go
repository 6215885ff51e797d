// Package model defines the storefront's domain types: catalog products,
// facet filters, carts, and the error taxonomy shared by every layer.
package model

// BundleSize is the number of testers in one tester box.
const BundleSize = 10

// Default catalog handles. Changing the catalog means changing these (or the
// matching configuration keys).
const (
	DefaultCollectionHandle    = "tester-perfumes"
	DefaultBundleProductHandle = "perfume-tester-box"
)

// Persisted per-shopper keys.
const (
	CartIDKey   = "shopify_cart_id"
	WishlistKey = "wishlist"
)

// Image is a product image reference.
type Image struct {
	URL     string `json:"url"`
	AltText string `json:"alt_text,omitempty"`
}

// Product is a read-only projection of a catalog item.
// Facet fields are nil when the product has no value for them.
type Product struct {
	ID            string  `json:"id"`
	VariantID     string  `json:"variant_id,omitempty"`
	Title         string  `json:"title"`
	Handle        string  `json:"handle,omitempty"`
	FeaturedImage Image   `json:"featured_image"`
	Brand         *string `json:"brand"`
	FragranceType *string `json:"fragrance_type"`
	Gender        *string `json:"gender"`
}

// TesterCatalog is everything the bundle builder needs to start.
type TesterCatalog struct {
	Products        []Product `json:"products"`
	Filters         FilterSet `json:"filters"`
	BundleVariantID string    `json:"bundle_variant_id"`
}

// Facet names one filter dimension.
type Facet string

const (
	FacetBrand         Facet = "brand"
	FacetFragranceType Facet = "fragrance_type"
	FacetGender        Facet = "gender"
)

// Valid reports whether f is one of the three known facets.
func (f Facet) Valid() bool {
	switch f {
	case FacetBrand, FacetFragranceType, FacetGender:
		return true
	}
	return false
}

// FilterSet holds the distinct facet values present in a product list.
// Consumers must not depend on value order.
type FilterSet struct {
	Brands         []string `json:"brands"`
	FragranceTypes []string `json:"fragrance_types"`
	Genders        []string `json:"genders"`
}

// ActiveFilters is the current per-facet constraint. Nil means "All".
type ActiveFilters struct {
	Brand         *string `json:"brand"`
	FragranceType *string `json:"fragrance_type"`
	Gender        *string `json:"gender"`
}

// With returns a copy of a with one facet replaced.
func (a ActiveFilters) With(facet Facet, value *string) ActiveFilters {
	if value != nil {
		v := *value
		value = &v
	}
	switch facet {
	case FacetBrand:
		a.Brand = value
	case FacetFragranceType:
		a.FragranceType = value
	case FacetGender:
		a.Gender = value
	}
	return a
}

// DeriveFilters scans products once and collects the distinct non-empty
// value of each facet, in first-seen order.
func DeriveFilters(products []Product) FilterSet {
	fs := FilterSet{
		Brands:         []string{},
		FragranceTypes: []string{},
		Genders:        []string{},
	}
	seen := map[Facet]map[string]bool{
		FacetBrand:         {},
		FacetFragranceType: {},
		FacetGender:        {},
	}
	add := func(facet Facet, v *string, dst *[]string) {
		if v == nil || *v == "" || seen[facet][*v] {
			return
		}
		seen[facet][*v] = true
		*dst = append(*dst, *v)
	}
	for _, p := range products {
		add(FacetBrand, p.Brand, &fs.Brands)
		add(FacetFragranceType, p.FragranceType, &fs.FragranceTypes)
		add(FacetGender, p.Gender, &fs.Genders)
	}
	return fs
}

// ApplyFilters returns the products matching every active constraint.
// A product without a value for a constrained facet does not match it.
func ApplyFilters(products []Product, active ActiveFilters) []Product {
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if matches(p.Brand, active.Brand) &&
			matches(p.FragranceType, active.FragranceType) &&
			matches(p.Gender, active.Gender) {
			out = append(out, p)
		}
	}
	return out
}

func matches(value, want *string) bool {
	if want == nil {
		return true
	}
	return value != nil && *value == *want
}
