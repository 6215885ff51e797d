package shopify

// Wire types for Storefront API payloads. Only the fields requested by the
// documents in queries.go are modeled.

// connection is a Relay-style list.
type connection[T any] struct {
	Edges []edge[T] `json:"edges"`
}

type edge[T any] struct {
	Node T `json:"node"`
}

type idNode struct {
	ID string `json:"id"`
}

type imageNode struct {
	URL     string `json:"url"`
	AltText string `json:"altText"`
}

type metafieldNode struct {
	Value string `json:"value"`
}

type moneyNode struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

// productNode is a catalog product. Facet metafields are nil when unset.
type productNode struct {
	ID            string             `json:"id"`
	Title         string             `json:"title"`
	Handle        string             `json:"handle"`
	FeaturedImage *imageNode         `json:"featuredImage"`
	Variants      connection[idNode] `json:"variants"`
	Brand         *metafieldNode     `json:"brand"`
	FragranceType *metafieldNode     `json:"fragranceType"`
	Gender        *metafieldNode     `json:"gender"`
}

type collectionData struct {
	Collection *struct {
		Products connection[productNode] `json:"products"`
	} `json:"collection"`
}

type productVariantData struct {
	Product *struct {
		Variants connection[idNode] `json:"variants"`
	} `json:"product"`
}

// nodesData holds a nodes(ids:) result. Null entries decode to nil.
type nodesData struct {
	Nodes []*productNode `json:"nodes"`
}

// === Cart ===

type cartNode struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"checkoutUrl"`
	Cost        struct {
		TotalAmount moneyNode `json:"totalAmount"`
	} `json:"cost"`
	Lines connection[cartLineNode] `json:"lines"`
}

type cartLineNode struct {
	ID          string          `json:"id"`
	Quantity    int             `json:"quantity"`
	Attributes  []attributeNode `json:"attributes"`
	Merchandise struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		Product struct {
			Title         string     `json:"title"`
			FeaturedImage *imageNode `json:"featuredImage"`
		} `json:"product"`
		Price moneyNode `json:"price"`
	} `json:"merchandise"`
}

type attributeNode struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type userErrorNode struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// cartPayload is the shared shape of every cart mutation result.
type cartPayload struct {
	Cart       *cartNode       `json:"cart"`
	UserErrors []userErrorNode `json:"userErrors"`
}

type cartCreateData struct {
	CartCreate *cartPayload `json:"cartCreate"`
}

type cartLinesAddData struct {
	CartLinesAdd *cartPayload `json:"cartLinesAdd"`
}

type cartLinesRemoveData struct {
	CartLinesRemove *cartPayload `json:"cartLinesRemove"`
}

type cartData struct {
	Cart *cartNode `json:"cart"`
}

// === Inputs ===

type cartLineInput struct {
	MerchandiseID string          `json:"merchandiseId"`
	Quantity      int             `json:"quantity"`
	Attributes    []attributeNode `json:"attributes,omitempty"`
}
