package shopify

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/Sternrassler/car-catalog/pkg/spec"
)

// List decodes any of the collection shapes Shopify returns: a connection
// with edges, a connection with nodes, or a bare array. Null entries are
// dropped.
type List[T any] []T

// UnmarshalJSON implements json.Unmarshaler.
func (l *List[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}

	var items []*T
	if data[0] == '[' {
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
	} else {
		var conn struct {
			Edges []struct {
				Node *T `json:"node"`
			} `json:"edges"`
			Nodes []*T `json:"nodes"`
		}
		if err := json.Unmarshal(data, &conn); err != nil {
			return err
		}
		for _, e := range conn.Edges {
			items = append(items, e.Node)
		}
		items = append(items, conn.Nodes...)
	}

	out := make([]T, 0, len(items))
	for _, it := range items {
		if it != nil {
			out = append(out, *it)
		}
	}
	*l = out
	return nil
}

// PageInfo is a connection's cursor state.
type PageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

// metaobject is a referenced metaobject as returned by GraphQL.
type metaobject struct {
	ID     string                     `json:"id"`
	Handle string                     `json:"handle"`
	Type   string                     `json:"type"`
	Fields List[spec.MetaobjectField] `json:"fields"`
}

func (m metaobject) toSpec() spec.Metaobject {
	return spec.Metaobject{ID: m.ID, Handle: m.Handle, Type: m.Type, Fields: m.Fields}
}

// metafield is a metafield as returned by GraphQL.
type metafield struct {
	Namespace  string           `json:"namespace"`
	Key        string           `json:"key"`
	Type       string           `json:"type"`
	Value      *string          `json:"value"`
	Reference  *metaobject      `json:"reference"`
	References List[metaobject] `json:"references"`
}

// Metafields decodes a metafield collection into the tagged form used by
// the spec package. The kind is decided here, once.
type Metafields []spec.Metafield

// UnmarshalJSON implements json.Unmarshaler.
func (m *Metafields) UnmarshalJSON(data []byte) error {
	var raw List[metafield]
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(Metafields, 0, len(raw))
	for _, r := range raw {
		if r.Key == "" {
			continue
		}
		mf := spec.Metafield{
			Namespace: r.Namespace,
			Key:       r.Key,
			Type:      r.Type,
		}
		if r.Value != nil {
			mf.Value = *r.Value
		}
		switch {
		case len(r.References) > 0:
			mf.Kind = spec.KindReferenceList
			for _, ref := range r.References {
				mf.References = append(mf.References, ref.toSpec())
			}
		case r.Reference != nil:
			mf.Kind = spec.KindReference
			ref := r.Reference.toSpec()
			mf.Reference = &ref
		default:
			mf.Kind = spec.KindScalar
		}
		out = append(out, mf)
	}
	*m = out
	return nil
}

// Image is a product image.
type Image struct {
	URL     string `json:"url"`
	AltText string `json:"altText,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
}

// Money is a Shopify MoneyV2.
type Money struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

// Variant is the subset of a product variant the catalog reads.
type Variant struct {
	ID         string     `json:"id"`
	Price      *Money     `json:"price"`
	Metafields Metafields `json:"metafields"`
}

// PriceRange is a product's price range.
type PriceRange struct {
	MinVariantPrice Money `json:"minVariantPrice"`
}

// Product is a raw product record.
type Product struct {
	ID               string        `json:"id"`
	Handle           string        `json:"handle"`
	Title            string        `json:"title"`
	Vendor           string        `json:"vendor"`
	Tags             []string      `json:"tags"`
	Description      string        `json:"description"`
	AvailableForSale bool          `json:"availableForSale"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
	FeaturedImage    *Image        `json:"featuredImage"`
	Images           List[Image]   `json:"images"`
	PriceRange       *PriceRange   `json:"priceRange"`
	Metafields       Metafields    `json:"metafields"`
	Variants         List[Variant] `json:"variants"`
}

// VariantMetafields returns the first variant's metafields.
func (p *Product) VariantMetafields() []spec.Metafield {
	if len(p.Variants) == 0 {
		return nil
	}
	return p.Variants[0].Metafields
}

// Price returns the minimum variant price, falling back to the first
// variant's price.
func (p *Product) Price() *Money {
	if p.PriceRange != nil && p.PriceRange.MinVariantPrice.Amount != "" {
		m := p.PriceRange.MinVariantPrice
		return &m
	}
	if len(p.Variants) > 0 && p.Variants[0].Price != nil {
		m := *p.Variants[0].Price
		return &m
	}
	return nil
}

// ImageURLs returns the featured image first, then the remaining images,
// without duplicates.
func (p *Product) ImageURLs() []string {
	seen := make(map[string]bool)
	var urls []string
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u != "" && !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	if p.FeaturedImage != nil {
		add(p.FeaturedImage.URL)
	}
	for _, img := range p.Images {
		add(img.URL)
	}
	return urls
}

// ProductPage is one page of a product connection.
type ProductPage struct {
	Products List[Product]
	PageInfo PageInfo
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *ProductPage) UnmarshalJSON(data []byte) error {
	var raw struct {
		PageInfo PageInfo `json:"pageInfo"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(data, &p.Products); err != nil {
		return err
	}
	p.PageInfo = raw.PageInfo
	return nil
}

// AdminProduct is a product node from the Admin API.
type AdminProduct struct {
	ID         string     `json:"id"`
	Handle     string     `json:"handle"`
	Metafields Metafields `json:"metafields"`
}
