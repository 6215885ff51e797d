package shopify

// Storefront API documents. Operation names double as metric labels.

// testerProductsQuery fetches a collection's products with the first variant
// and the three facet metafields.
const testerProductsQuery = `
query getCollectionProducts($handle: String!) {
  collection(handle: $handle) {
    products(first: 250) {
      edges {
        node {
          id
          title
          handle
          featuredImage {
            url
            altText
          }
          variants(first: 1) {
            edges {
              node {
                id
              }
            }
          }
          brand: metafield(namespace: "custom", key: "brand") {
            value
          }
          fragranceType: metafield(namespace: "custom", key: "fragrance_type") {
            value
          }
          gender: metafield(namespace: "custom", key: "gender") {
            value
          }
        }
      }
    }
  }
}
`

// bundleVariantQuery fetches the first variant of the tester box product.
const bundleVariantQuery = `
query getProductVariant($handle: String!) {
  product(handle: $handle) {
    variants(first: 1) {
      edges {
        node {
          id
        }
      }
    }
  }
}
`

// productsByIDsQuery resolves a batch of product ids in one round trip.
// Unknown ids come back as null nodes.
const productsByIDsQuery = `
query getProductsByIds($ids: [ID!]!) {
  nodes(ids: $ids) {
    ... on Product {
      id
      title
      handle
      featuredImage {
        url
        altText
      }
    }
  }
}
`

// cartFragment is the cart shape every cart document returns.
const cartFragment = `
  id
  checkoutUrl
  cost {
    totalAmount {
      amount
      currencyCode
    }
  }
  lines(first: 100) {
    edges {
      node {
        id
        quantity
        attributes {
          key
          value
        }
        merchandise {
          ... on ProductVariant {
            id
            title
            product {
              title
              featuredImage {
                url
                altText
              }
            }
            price {
              amount
              currencyCode
            }
          }
        }
      }
    }
  }
`

const cartCreateMutation = `
mutation cartCreate($input: CartInput!) {
  cartCreate(input: $input) {
    cart {` + cartFragment + `}
    userErrors {
      field
      message
    }
  }
}
`

const cartLinesAddMutation = `
mutation cartLinesAdd($cartId: ID!, $lines: [CartLineInput!]!) {
  cartLinesAdd(cartId: $cartId, lines: $lines) {
    cart {` + cartFragment + `}
    userErrors {
      field
      message
    }
  }
}
`

const cartLinesRemoveMutation = `
mutation cartLinesRemove($cartId: ID!, $lineIds: [ID!]!) {
  cartLinesRemove(cartId: $cartId, lineIds: $lineIds) {
    cart {` + cartFragment + `}
    userErrors {
      field
      message
    }
  }
}
`

const cartQuery = `
query getCart($cartId: ID!) {
  cart(id: $cartId) {` + cartFragment + `}
}
`
