// Package testutil provides testing utilities for the car catalog.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// API paths served by MockShopify.
const (
	APIVersion     = "2024-10"
	StorefrontPath = "/api/" + APIVersion + "/graphql.json"
	AdminPath      = "/admin/api/" + APIVersion + "/graphql.json"
)

// Operation names of the catalog queries.
const (
	OpProductsPage     = "CatalogProducts"
	OpLatestProducts   = "LatestProducts"
	OpProductByHandle  = "ProductByHandle"
	OpProductsByHandle = "ProductsByHandles"
	OpAdminSpecs       = "AdminProductSpecs"
)

// MockMetafield is a scalar metafield fixture.
type MockMetafield struct {
	Namespace string
	Key       string
	Type      string
	Value     string
}

// MockProduct is a product fixture.
type MockProduct struct {
	ID                string
	Handle            string
	Title             string
	Vendor            string
	Tags              []string
	Description       string
	Price             string
	CreatedAt         time.Time
	Metafields        []MockMetafield
	VariantMetafields []MockMetafield
}

// MockShopifyResponse overrides the answer to one operation.
type MockShopifyResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// GraphQLRequest is a decoded request body.
type GraphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// MockShopify is a GraphQL server serving product fixtures for the
// Storefront and Admin paths.
type MockShopify struct {
	server *httptest.Server

	mu        sync.RWMutex
	products  []MockProduct
	admin     map[string][]MockMetafield
	overrides map[string]MockShopifyResponse
	handlers  map[string]http.HandlerFunc
	delay     time.Duration

	// Tracking
	RequestCount      int
	opCounts          map[string]int
	pathCounts        map[string]int
	LastRequestHeader http.Header
	LastRequest       GraphQLRequest
}

var operationName = regexp.MustCompile(`^\s*query\s+(\w+)`)

// NewMockShopify creates a new mock Shopify server.
func NewMockShopify() *MockShopify {
	mock := &MockShopify{
		admin:      make(map[string][]MockMetafield),
		overrides:  make(map[string]MockShopifyResponse),
		handlers:   make(map[string]http.HandlerFunc),
		opCounts:   make(map[string]int),
		pathCounts: make(map[string]int),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.serve))
	return mock
}

// URL returns the mock server URL.
func (m *MockShopify) URL() string {
	return m.server.URL
}

// StorefrontURL returns the Storefront GraphQL endpoint.
func (m *MockShopify) StorefrontURL() string {
	return m.server.URL + StorefrontPath
}

// AdminURL returns the Admin GraphQL endpoint.
func (m *MockShopify) AdminURL() string {
	return m.server.URL + AdminPath
}

// Close shuts down the mock server.
func (m *MockShopify) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockShopify) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.opCounts = make(map[string]int)
	m.pathCounts = make(map[string]int)
	m.LastRequestHeader = nil
	m.LastRequest = GraphQLRequest{}
}

// SetProducts replaces the product fixtures. Order is catalog order.
func (m *MockShopify) SetProducts(products ...MockProduct) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = append([]MockProduct(nil), products...)
}

// SetAdminMetafields sets the metafields the Admin API returns for a product ID.
func (m *MockShopify) SetAdminMetafields(productID string, metafields ...MockMetafield) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admin[productID] = metafields
}

// SetResponse overrides the answer to an operation.
func (m *MockShopify) SetResponse(op string, resp MockShopifyResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[op] = resp
}

// ClearResponse removes an override.
func (m *MockShopify) ClearResponse(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides, op)
}

// SetHandler serves path with handler instead of the fixtures.
func (m *MockShopify) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetDelay delays every fixture response.
func (m *MockShopify) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockShopify) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// OperationCount returns how often an operation was requested.
func (m *MockShopify) OperationCount(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.opCounts[op]
}

// PathCount returns how often a path was requested.
func (m *MockShopify) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// LastHeader returns the headers of the most recent request.
func (m *MockShopify) LastHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader.Clone()
}

func (m *MockShopify) serve(w http.ResponseWriter, r *http.Request) {
	var req GraphQLRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	op := ""
	if match := operationName.FindStringSubmatch(req.Query); match != nil {
		op = match[1]
	}

	m.mu.Lock()
	m.RequestCount++
	m.opCounts[op]++
	m.pathCounts[r.URL.Path]++
	m.LastRequestHeader = r.Header.Clone()
	m.LastRequest = req
	handler := m.handlers[r.URL.Path]
	override, overridden := m.overrides[op]
	delay := m.delay
	m.mu.Unlock()

	if handler != nil {
		handler(w, r)
		return
	}

	if overridden {
		if override.Delay > 0 {
			time.Sleep(override.Delay)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(override.StatusCode)
		w.Write([]byte(override.Body))
		return
	}

	if delay > 0 {
		time.Sleep(delay)
	}

	if r.URL.Path != StorefrontPath && r.URL.Path != AdminPath {
		http.NotFound(w, r)
		return
	}

	var data any
	switch op {
	case OpProductsPage:
		data = m.productsPage(req.Variables)
	case OpLatestProducts:
		data = m.latestProducts(req.Variables)
	case OpProductByHandle:
		data = map[string]any{"product": m.productNode(stringVar(req.Variables, "handle"))}
	case OpProductsByHandle:
		data = m.productsByHandles(req.Variables)
	case OpAdminSpecs:
		data = m.adminNodes(req.Variables)
	default:
		writeJSON(w, map[string]any{"errors": []map[string]any{{"message": "unknown operation " + op}}})
		return
	}

	writeJSON(w, map[string]any{
		"data": data,
		"extensions": map[string]any{
			"cost": map[string]any{
				"requestedQueryCost": 12,
				"actualQueryCost":    10,
				"throttleStatus": map[string]any{
					"maximumAvailable":   1000.0,
					"currentlyAvailable": 990.0,
					"restoreRate":        50.0,
				},
			},
		},
	})
}

func (m *MockShopify) productsPage(vars map[string]any) any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	first := intVar(vars, "first", 50)
	start := 0
	if after := stringVar(vars, "after"); after != "" {
		start, _ = strconv.Atoi(strings.TrimPrefix(after, "c"))
	}
	end := start + first
	if end > len(m.products) {
		end = len(m.products)
	}

	edges := make([]any, 0, end-start)
	for _, p := range m.products[start:end] {
		edges = append(edges, map[string]any{"node": encodeProduct(p)})
	}
	return map[string]any{"products": map[string]any{
		"pageInfo": map[string]any{
			"hasNextPage": end < len(m.products),
			"endCursor":   "c" + strconv.Itoa(end),
		},
		"edges": edges,
	}}
}

func (m *MockShopify) latestProducts(vars map[string]any) any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sorted := append([]MockProduct(nil), m.products...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	first := intVar(vars, "first", 8)
	if first < len(sorted) {
		sorted = sorted[:first]
	}

	edges := make([]any, 0, len(sorted))
	for _, p := range sorted {
		edges = append(edges, map[string]any{"node": encodeProduct(p)})
	}
	return map[string]any{"products": map[string]any{
		"pageInfo": map[string]any{"hasNextPage": false, "endCursor": ""},
		"edges":    edges,
	}}
}

func (m *MockShopify) productsByHandles(vars map[string]any) any {
	out := make(map[string]any)
	for name := range vars {
		if !strings.HasPrefix(name, "h") {
			continue
		}
		if _, err := strconv.Atoi(name[1:]); err != nil {
			continue
		}
		out["p"+name[1:]] = m.productNode(stringVar(vars, name))
	}
	return out
}

func (m *MockShopify) productNode(handle string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.products {
		if p.Handle == handle {
			return encodeProduct(p)
		}
	}
	return nil
}

func (m *MockShopify) adminNodes(vars map[string]any) any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids, _ := vars["ids"].([]any)
	nodes := make([]any, 0, len(ids))
	for _, raw := range ids {
		id, _ := raw.(string)
		var found *MockProduct
		for i := range m.products {
			if m.products[i].ID == id {
				found = &m.products[i]
				break
			}
		}
		if found == nil {
			nodes = append(nodes, nil)
			continue
		}
		nodes = append(nodes, map[string]any{
			"id":         found.ID,
			"handle":     found.Handle,
			"metafields": map[string]any{"nodes": encodeMetafields(m.admin[id], false)},
		})
	}
	return map[string]any{"nodes": nodes}
}

func encodeProduct(p MockProduct) map[string]any {
	created := p.CreatedAt
	if created.IsZero() {
		created = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	price := p.Price
	if price == "" {
		price = "0.0"
	}
	return map[string]any{
		"id":               p.ID,
		"handle":           p.Handle,
		"title":            p.Title,
		"vendor":           p.Vendor,
		"tags":             nonNil(p.Tags),
		"description":      p.Description,
		"availableForSale": true,
		"createdAt":        created.Format(time.RFC3339),
		"updatedAt":        created.Format(time.RFC3339),
		"featuredImage":    map[string]any{"url": "https://cdn.example.com/" + p.Handle + ".jpg"},
		"images":           map[string]any{"nodes": []any{}},
		"priceRange": map[string]any{
			"minVariantPrice": map[string]any{"amount": price, "currencyCode": "THB"},
		},
		"metafields": encodeMetafields(p.Metafields, true),
		"variants": map[string]any{"nodes": []any{map[string]any{
			"id":         p.ID + "-v1",
			"price":      map[string]any{"amount": price, "currencyCode": "THB"},
			"metafields": encodeMetafields(p.VariantMetafields, true),
		}}},
	}
}

// encodeMetafields renders metafields. Storefront identifier lookups
// return null for identifiers without a value, so withHole appends one.
func encodeMetafields(mfs []MockMetafield, withHole bool) []any {
	out := make([]any, 0, len(mfs)+1)
	for _, mf := range mfs {
		typ := mf.Type
		if typ == "" {
			typ = "single_line_text_field"
		}
		out = append(out, map[string]any{
			"namespace":  mf.Namespace,
			"key":        mf.Key,
			"type":       typ,
			"value":      mf.Value,
			"reference":  nil,
			"references": nil,
		})
	}
	if withHole {
		out = append(out, nil)
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func stringVar(vars map[string]any, name string) string {
	s, _ := vars[name].(string)
	return s
}

func intVar(vars map[string]any, name string, def int) int {
	switch v := vars[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

// GraphQLErrorBody returns a 200 body carrying a GraphQL error.
func GraphQLErrorBody(code, message string) string {
	return fmt.Sprintf(`{"errors":[{"message":%q,"extensions":{"code":%q}}]}`, message, code)
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockShopifyResponse {
	return MockShopifyResponse{StatusCode: http.StatusInternalServerError, Body: `{"errors":"Internal Server Error"}`}
}

// NewNotFoundResponse creates a 404 response.
func NewNotFoundResponse() MockShopifyResponse {
	return MockShopifyResponse{StatusCode: http.StatusNotFound, Body: `{"errors":"Not Found"}`}
}

// NewThrottledResponse creates a THROTTLED GraphQL error response.
func NewThrottledResponse() MockShopifyResponse {
	return MockShopifyResponse{StatusCode: http.StatusOK, Body: GraphQLErrorBody("THROTTLED", "Throttled")}
}
