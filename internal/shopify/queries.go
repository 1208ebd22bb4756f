package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Sternrassler/car-catalog/pkg/spec"
)

// metaobjectFields selects what label resolution and flattening read.
const metaobjectFields = `
      ... on Metaobject {
        id
        handle
        type
        fields { key value }
      }`

const metafieldFields = `
    namespace
    key
    type
    value
    reference {` + metaobjectFields + `
    }
    references(first: 20) {
      nodes {` + metaobjectFields + `
      }
    }`

// carProductFragment is the Storefront product selection shared by every
// catalog query. Storefront metafields must be named explicitly.
const carProductFragment = `
fragment CarProduct on Product {
  id
  handle
  title
  vendor
  tags
  description
  availableForSale
  createdAt
  updatedAt
  featuredImage { url altText width height }
  images(first: 10) { nodes { url altText width height } }
  priceRange { minVariantPrice { amount currencyCode } }
  metafields(identifiers: $identifiers) {` + metafieldFields + `
  }
  variants(first: 1) {
    nodes {
      id
      price { amount currencyCode }
      metafields(identifiers: $identifiers) {` + metafieldFields + `
      }
    }
  }
}`

// ProductsPageQuery fetches one page of the full catalog, newest update first.
const ProductsPageQuery = `query CatalogProducts($first: Int!, $after: String, $identifiers: [HasMetafieldsIdentifier!]!) {
  products(first: $first, after: $after, sortKey: UPDATED_AT, reverse: true) {
    pageInfo { hasNextPage endCursor }
    edges { node { ...CarProduct } }
  }
}` + carProductFragment

// LatestProductsQuery fetches the most recently created products.
const LatestProductsQuery = `query LatestProducts($first: Int!, $identifiers: [HasMetafieldsIdentifier!]!) {
  products(first: $first, sortKey: CREATED_AT, reverse: true) {
    pageInfo { hasNextPage endCursor }
    edges { node { ...CarProduct } }
  }
}` + carProductFragment

// ProductByHandleQuery fetches a single product.
const ProductByHandleQuery = `query ProductByHandle($handle: String!, $identifiers: [HasMetafieldsIdentifier!]!) {
  product(handle: $handle) { ...CarProduct }
}` + carProductFragment

// AdminNodesQuery fetches every metafield of the given products. The Admin
// API lists metafields without identifiers, which is why it fills gaps the
// Storefront selection leaves.
const AdminNodesQuery = `query AdminProductSpecs($ids: [ID!]!) {
  nodes(ids: $ids) {
    ... on Product {
      id
      handle
      metafields(first: 100) {
        nodes {` + metafieldFields + `
        }
      }
    }
  }
}`

// storefrontNamespaces are requested from the Storefront API.
var storefrontNamespaces = []string{"custom", "spec"}

// MetafieldIdentifier is a Storefront HasMetafieldsIdentifier.
type MetafieldIdentifier struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
}

// MetafieldIdentifiers lists the metafields requested from the Storefront
// API: every ASCII alias of every attribute in each requested namespace.
func MetafieldIdentifiers() []MetafieldIdentifier {
	var ids []MetafieldIdentifier
	for _, ns := range storefrontNamespaces {
		for _, attr := range spec.Attributes {
			for _, alias := range spec.Aliases(attr) {
				if isMetafieldKey(alias) {
					ids = append(ids, MetafieldIdentifier{Namespace: ns, Key: alias})
				}
			}
		}
	}
	return ids
}

// isMetafieldKey reports whether s is a legal metafield key.
func isMetafieldKey(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// BuildHandlesQuery builds one query fetching every handle through aliased
// product fields (p0, p1, ...). Handles are used in the given order.
func BuildHandlesQuery(handles []string) (string, map[string]any) {
	var params, fields strings.Builder
	vars := make(map[string]any, len(handles)+1)
	for i, h := range handles {
		fmt.Fprintf(&params, ", $h%d: String!", i)
		fmt.Fprintf(&fields, "  p%d: product(handle: $h%d) { ...CarProduct }\n", i, i)
		vars[fmt.Sprintf("h%d", i)] = h
	}
	vars["identifiers"] = MetafieldIdentifiers()

	query := "query ProductsByHandles($identifiers: [HasMetafieldsIdentifier!]!" + params.String() + ") {\n" +
		fields.String() + "}" + carProductFragment
	return query, vars
}

// ProductsPage fetches one page of the full catalog.
func (c *Client) ProductsPage(ctx context.Context, first int, after string) (*ProductPage, error) {
	vars := map[string]any{
		"first":       first,
		"identifiers": MetafieldIdentifiers(),
	}
	if after != "" {
		vars["after"] = after
	}

	var out struct {
		Products ProductPage `json:"products"`
	}
	if err := c.Storefront(ctx, ProductsPageQuery, vars, &out); err != nil {
		return nil, err
	}
	return &out.Products, nil
}

// LatestProducts fetches the n most recently created products.
func (c *Client) LatestProducts(ctx context.Context, n int) ([]Product, error) {
	var out struct {
		Products ProductPage `json:"products"`
	}
	vars := map[string]any{"first": n, "identifiers": MetafieldIdentifiers()}
	if err := c.Storefront(ctx, LatestProductsQuery, vars, &out); err != nil {
		return nil, err
	}
	return out.Products.Products, nil
}

// ProductByHandle fetches a single product. Returns nil if none exists.
func (c *Client) ProductByHandle(ctx context.Context, handle string) (*Product, error) {
	var out struct {
		Product *Product `json:"product"`
	}
	vars := map[string]any{"handle": handle, "identifiers": MetafieldIdentifiers()}
	if err := c.Storefront(ctx, ProductByHandleQuery, vars, &out); err != nil {
		return nil, err
	}
	return out.Product, nil
}

// ProductsByHandles fetches the given handles in one aliased query. Handles
// without a product are absent from the result.
func (c *Client) ProductsByHandles(ctx context.Context, handles []string) (map[string]*Product, error) {
	if len(handles) == 0 {
		return map[string]*Product{}, nil
	}

	query, vars := BuildHandlesQuery(handles)
	var raw map[string]*Product
	if err := c.Storefront(ctx, query, vars, &raw); err != nil {
		return nil, err
	}

	out := make(map[string]*Product, len(handles))
	for i, h := range handles {
		if p := raw[fmt.Sprintf("p%d", i)]; p != nil {
			out[h] = p
		}
	}
	return out, nil
}

// AdminProducts fetches the Admin metafields of the given product IDs.
// IDs the Admin API does not know are absent from the result.
func (c *Client) AdminProducts(ctx context.Context, ids []string) ([]AdminProduct, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var out struct {
		Nodes []json.RawMessage `json:"nodes"`
	}
	if err := c.Admin(ctx, AdminNodesQuery, map[string]any{"ids": ids}, &out); err != nil {
		return nil, err
	}

	products := make([]AdminProduct, 0, len(out.Nodes))
	for _, raw := range out.Nodes {
		var p AdminProduct
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: admin node: %v", ErrMalformedResponse, err)
		}
		// null nodes and non-product nodes decode to an empty record
		if p.ID != "" {
			products = append(products, p)
		}
	}
	return products, nil
}
