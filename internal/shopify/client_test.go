package shopify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/car-catalog/internal/testutil"
	"github.com/Sternrassler/car-catalog/pkg/ratelimit"
)

func newTestClient(t *testing.T, mock *testutil.MockShopify, admin ...string) *Client {
	t.Helper()
	if admin == nil {
		admin = []string{mock.AdminURL()}
	}
	cfg := DefaultConfig(Endpoints{
		Storefront:   mock.StorefrontURL(),
		Admin:        admin,
		AdminEnabled: len(admin) > 0,
	}, "storefront-token", testAdminToken)
	cfg.Timeout = 2 * time.Second

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "valid",
			cfg:     Config{Endpoints: Endpoints{Storefront: "https://s/api/v/graphql.json"}, StorefrontToken: "t"},
			wantErr: false,
		},
		{
			name:    "missing storefront endpoint",
			cfg:     Config{StorefrontToken: "t"},
			wantErr: true,
		},
		{
			name:    "missing storefront token",
			cfg:     Config{Endpoints: Endpoints{Storefront: "https://s/api/v/graphql.json"}},
			wantErr: true,
		},
		{
			name: "admin endpoint without token",
			cfg: Config{
				Endpoints:       Endpoints{Storefront: "https://s/api/v/graphql.json", Admin: []string{"https://a/admin"}},
				StorefrontToken: "t",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStorefront_SetsTokenHeader(t *testing.T) {
	mock := testutil.NewMockShopify()
	defer mock.Close()
	mock.SetProducts(testutil.MockProduct{ID: "gid://shopify/Product/1", Handle: "civic-2020", Title: "Honda Civic"})

	c := newTestClient(t, mock)
	p, err := c.ProductByHandle(context.Background(), "civic-2020")
	if err != nil {
		t.Fatalf("ProductByHandle() error = %v", err)
	}
	if p == nil || p.Handle != "civic-2020" {
		t.Fatalf("ProductByHandle() = %+v", p)
	}

	h := mock.LastHeader()
	if h.Get(headerStorefrontToken) != "storefront-token" {
		t.Errorf("%s = %q", headerStorefrontToken, h.Get(headerStorefrontToken))
	}
	if h.Get(headerAdminToken) != "" {
		t.Error("admin token sent to the Storefront API")
	}
}

func TestProductByHandle_Missing(t *testing.T) {
	mock := testutil.NewMockShopify()
	defer mock.Close()

	p, err := newTestClient(t, mock).ProductByHandle(context.Background(), "nope")
	if err != nil {
		t.Fatalf("ProductByHandle() error = %v", err)
	}
	if p != nil {
		t.Errorf("ProductByHandle() = %+v, want nil", p)
	}
}

func TestDo_HTTPError(t *testing.T) {
	mock := testutil.NewMockShopify()
	defer mock.Close()
	mock.SetResponse(testutil.OpProductByHandle, testutil.NewServerErrorResponse())

	_, err := newTestClient(t, mock).ProductByHandle(context.Background(), "x")

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 500 {
		t.Fatalf("error = %v, want HTTPError 500", err)
	}
	if Classify(err) != ErrorClassServer {
		t.Errorf("Classify() = %q", Classify(err))
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("requests = %d, Do must not retry", mock.GetRequestCount())
	}
}

func TestDo_GraphQLErrors(t *testing.T) {
	mock := testutil.NewMockShopify()
	defer mock.Close()
	mock.SetResponse(testutil.OpProductByHandle, testutil.NewThrottledResponse())

	_, err := newTestClient(t, mock).ProductByHandle(context.Background(), "x")

	var gqlErr *GraphQLErrors
	if !errors.As(err, &gqlErr) {
		t.Fatalf("error = %v, want GraphQLErrors", err)
	}
	if Classify(err) != ErrorClassThrottled {
		t.Errorf("Classify() = %q, want throttled", Classify(err))
	}
}

func TestDo_MalformedResponse(t *testing.T) {
	mock := testutil.NewMockShopify()
	defer mock.Close()
	mock.SetResponse(testutil.OpProductByHandle, testutil.MockShopifyResponse{StatusCode: 200, Body: `{"data": [`})

	_, err := newTestClient(t, mock).ProductByHandle(context.Background(), "x")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("error = %v, want ErrMalformedResponse", err)
	}
}

func TestDo_ResponseTooLarge(t *testing.T) {
	mock := testutil.NewMockShopify()
	defer mock.Close()
	mock.SetResponse(testutil.OpProductByHandle, testutil.MockShopifyResponse{
		StatusCode: 200,
		Body:       `{"data":{"product":{"title":"` + strings.Repeat("x", 4096) + `"}}}`,
	})

	c := newTestClient(t, mock)
	_, err := c.Do(context.Background(), Request{
		URL:      mock.StorefrontURL(),
		Query:    ProductByHandleQuery,
		MaxBytes: 1024,
	})
	if !errors.Is(err, ErrResponseTooLarge) {
		t.Errorf("error = %v, want ErrResponseTooLarge", err)
	}
}

func TestDo_Timeout(t *testing.T) {
	mock := testutil.NewMockShopify()
	defer mock.Close()
	mock.SetResponse(testutil.OpProductByHandle, testutil.MockShopifyResponse{
		StatusCode: 200,
		Body:       `{"data":{"product":null}}`,
		Delay:      300 * time.Millisecond,
	})

	c := newTestClient(t, mock)
	start := time.Now()
	_, err := c.Do(context.Background(), Request{
		URL:     mock.StorefrontURL(),
		Query:   ProductByHandleQuery,
		Timeout: 50 * time.Millisecond,
	})
	if Classify(err) != ErrorClassTimeout {
		t.Errorf("error = %v, want timeout", err)
	}
	if time.Since(start) > 250*time.Millisecond {
		t.Error("request was not aborted at its timeout")
	}
}

func TestDo_RedirectLimit(t *testing.T) {
	mock := testutil.NewMockShopify()
	defer mock.Close()
	mock.SetHandler("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, testutil.StorefrontPath, http.StatusPermanentRedirect)
	})
	mock.SetProducts(testutil.MockProduct{ID: "1", Handle: "a"})

	c := newTestClient(t, mock)
	req := Request{
		URL:       mock.URL() + "/moved",
		Query:     ProductByHandleQuery,
		Variables: map[string]any{"handle": "a"},
	}

	if _, err := c.Do(context.Background(), req); !errors.Is(err, ErrTooManyRedirects) {
		t.Errorf("MaxRedirects 0: error = %v, want ErrTooManyRedirects", err)
	}

	req.MaxRedirects = 1
	if _, err := c.Do(context.Background(), req); err != nil {
		t.Errorf("MaxRedirects 1: error = %v", err)
	}
}

func TestAdmin_Disabled(t *testing.T) {
	mock := testutil.NewMockShopify()
	defer mock.Close()

	c, err := New(Config{
		Endpoints:       Endpoints{Storefront: mock.StorefrontURL()},
		StorefrontToken: "t",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := c.AdminProducts(context.Background(), []string{"1"}); !errors.Is(err, ErrAdminDisabled) {
		t.Errorf("error = %v, want ErrAdminDisabled", err)
	}
	if mock.GetRequestCount() != 0 {
		t.Error("disabled admin reached the network")
	}
}

func TestAdmin_FallsBackOn404(t *testing.T) {
	mock := testutil.NewMockShopify()
	defer mock.Close()
	mock.SetProducts(testutil.MockProduct{ID: "gid://shopify/Product/1", Handle: "a"})
	mock.SetAdminMetafields("gid://shopify/Product/1", testutil.MockMetafield{Namespace: "custom", Key: "year", Value: "2020"})

	c := newTestClient(t, mock, mock.URL()+"/missing/graphql.json", mock.AdminURL())

	products, err := c.AdminProducts(context.Background(), []string{"gid://shopify/Product/1"})
	if err != nil {
		t.Fatalf("AdminProducts() error = %v", err)
	}
	if len(products) != 1 || len(products[0].Metafields) != 1 {
		t.Fatalf("AdminProducts() = %+v", products)
	}
	if mock.LastHeader().Get(headerAdminToken) != testAdminToken {
		t.Error("admin token header not set")
	}
	if mock.GetRequestCount() != 2 {
		t.Errorf("requests = %d, want 2", mock.GetRequestCount())
	}
}

func TestAdmin_NoFallbackOnOtherErrors(t *testing.T) {
	mock := testutil.NewMockShopify()
	defer mock.Close()
	mock.SetResponse(testutil.OpAdminSpecs, testutil.MockShopifyResponse{StatusCode: 401, Body: `{"errors":"Unauthorized"}`})

	c := newTestClient(t, mock, mock.AdminURL(), mock.AdminURL())

	_, err := c.AdminProducts(context.Background(), []string{"1"})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 401 {
		t.Fatalf("error = %v, want HTTPError 401", err)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("requests = %d, want 1", mock.GetRequestCount())
	}
}

func TestProductsPage_Pagination(t *testing.T) {
	mock := testutil.NewMockShopify()
	defer mock.Close()
	mock.SetProducts(
		testutil.MockProduct{ID: "1", Handle: "a"},
		testutil.MockProduct{ID: "2", Handle: "b"},
		testutil.MockProduct{ID: "3", Handle: "c"},
	)
	c := newTestClient(t, mock)

	page, err := c.ProductsPage(context.Background(), 2, "")
	if err != nil {
		t.Fatalf("ProductsPage() error = %v", err)
	}
	if len(page.Products) != 2 || !page.PageInfo.HasNextPage {
		t.Fatalf("first page = %+v", page)
	}

	page, err = c.ProductsPage(context.Background(), 2, page.PageInfo.EndCursor)
	if err != nil {
		t.Fatalf("ProductsPage() error = %v", err)
	}
	if len(page.Products) != 1 || page.Products[0].Handle != "c" || page.PageInfo.HasNextPage {
		t.Errorf("second page = %+v", page)
	}
}

func TestProductsByHandles(t *testing.T) {
	mock := testutil.NewMockShopify()
	defer mock.Close()
	mock.SetProducts(
		testutil.MockProduct{ID: "1", Handle: "civic-2020"},
		testutil.MockProduct{ID: "2", Handle: "vios-2018"},
	)

	got, err := newTestClient(t, mock).ProductsByHandles(context.Background(), []string{"civic-2020", "missing", "vios-2018"})
	if err != nil {
		t.Fatalf("ProductsByHandles() error = %v", err)
	}
	if len(got) != 2 || got["civic-2020"] == nil || got["vios-2018"] == nil {
		t.Errorf("ProductsByHandles() = %v", got)
	}
	if mock.OperationCount(testutil.OpProductsByHandle) != 1 {
		t.Error("handles were not fetched in one request")
	}
}

func TestDo_RecordsThrottleStatus(t *testing.T) {
	mock := testutil.NewMockShopify()
	defer mock.Close()

	tracker := ratelimit.NewTracker(nil, EndpointStorefront, zerolog.Nop())
	cfg := DefaultConfig(Endpoints{Storefront: mock.StorefrontURL()}, "t", "")
	cfg.StorefrontThrottle = tracker
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := c.ProductByHandle(context.Background(), "x"); err != nil {
		t.Fatalf("ProductByHandle() error = %v", err)
	}

	state, _ := tracker.GetState(context.Background())
	if state == nil || state.Available != 990 || state.Maximum != 1000 {
		t.Errorf("throttle state = %+v", state)
	}
}

func TestBuildHandlesQuery(t *testing.T) {
	query, vars := BuildHandlesQuery([]string{"a", "b"})

	for _, want := range []string{"$h0: String!", "$h1: String!", "p0: product(handle: $h0)", "p1: product(handle: $h1)"} {
		if !strings.Contains(query, want) {
			t.Errorf("query missing %q", want)
		}
	}
	if vars["h0"] != "a" || vars["h1"] != "b" {
		t.Errorf("vars = %v", vars)
	}
	if _, ok := vars["identifiers"]; !ok {
		t.Error("identifiers variable missing")
	}
}

func TestMetafieldIdentifiers_OnlyLegalKeys(t *testing.T) {
	ids := MetafieldIdentifiers()
	if len(ids) == 0 {
		t.Fatal("no identifiers")
	}
	for _, id := range ids {
		if !isMetafieldKey(id.Key) {
			t.Errorf("illegal key %q", id.Key)
		}
	}
}
