// Package shopify is the server-side GraphQL client for the Storefront and
// Admin APIs. It holds the access tokens and must never be linked into
// anything that ships to a browser; living under internal/ keeps it out of
// reach of other modules.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/car-catalog/pkg/ratelimit"
)

// Prometheus metrics for upstream operations.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_upstream_requests_total",
		Help: "Total Shopify requests by endpoint and status",
	}, []string{"endpoint", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_upstream_request_duration_seconds",
		Help:    "Shopify request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_upstream_errors_total",
		Help: "Total Shopify errors by class",
	}, []string{"class"})

	adminFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_upstream_admin_fallbacks_total",
		Help: "Total number of Admin requests retried on the derived host after a 404",
	})
)

// Endpoint labels.
const (
	EndpointStorefront = "storefront"
	EndpointAdmin      = "admin"
)

// Header names.
const (
	headerStorefrontToken = "X-Shopify-Storefront-Access-Token"
	headerAdminToken      = "X-Shopify-Access-Token"
)

// defaultQueryCost is the cost budget waited for when a request names none.
const defaultQueryCost = 50

// Request is a single GraphQL POST.
type Request struct {
	// URL is the GraphQL endpoint
	URL string

	// Query and Variables form the POST body
	Query     string
	Variables map[string]any

	// Headers are added to the request
	Headers map[string]string

	// Timeout aborts the request; 0 uses the client default
	Timeout time.Duration

	// MaxBytes caps the response body; 0 uses the client default
	MaxBytes int64

	// MaxRedirects is how many redirects are followed; 0 follows none
	MaxRedirects int

	// Endpoint labels metrics and selects the throttle tracker
	Endpoint string

	// Cost is the expected query cost; 0 uses a default
	Cost float64
}

// Response is a decoded GraphQL response without errors.
type Response struct {
	StatusCode int
	Data       json.RawMessage
	Extensions *Extensions
}

// Extensions carries the GraphQL cost report.
type Extensions struct {
	Cost *Cost `json:"cost"`
}

// Cost is extensions.cost.
type Cost struct {
	RequestedQueryCost float64                  `json:"requestedQueryCost"`
	ActualQueryCost    float64                  `json:"actualQueryCost"`
	ThrottleStatus     ratelimit.ThrottleStatus `json:"throttleStatus"`
}

// envelope is the top-level GraphQL response.
type envelope struct {
	Data       json.RawMessage `json:"data"`
	Errors     []GraphQLError  `json:"errors"`
	Extensions *Extensions     `json:"extensions"`
}

// Config holds the client configuration.
type Config struct {
	// Endpoints from ResolveEndpoints
	Endpoints Endpoints

	// Tokens
	StorefrontToken string
	AdminToken      string

	// Per-request limits
	Timeout      time.Duration
	MaxBytes     int64
	MaxRedirects int

	// Optional throttle trackers; nil disables throttle gating
	StorefrontThrottle *ratelimit.Tracker
	AdminThrottle      *ratelimit.Tracker

	// HTTPClient overrides the transport (tests); its CheckRedirect is replaced
	HTTPClient *http.Client
}

// DefaultConfig returns a configuration with production limits.
func DefaultConfig(eps Endpoints, storefrontToken, adminToken string) Config {
	return Config{
		Endpoints:       eps,
		StorefrontToken: storefrontToken,
		AdminToken:      adminToken,
		Timeout:         10 * time.Second,
		MaxBytes:        8 << 20,
		MaxRedirects:    3,
	}
}

// Client talks to the Shopify GraphQL APIs.
type Client struct {
	httpClient *http.Client
	config     Config
	throttles  map[string]*ratelimit.Tracker
	logger     zerolog.Logger
}

// New creates a new Shopify client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoints.Storefront == "" {
		return nil, fmt.Errorf("storefront endpoint is required")
	}
	if cfg.StorefrontToken == "" {
		return nil, fmt.Errorf("storefront access token is required")
	}
	if len(cfg.Endpoints.Admin) > 0 && cfg.AdminToken == "" {
		return nil, fmt.Errorf("admin endpoint configured without an admin access token")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 8 << 20
	}
	if cfg.MaxRedirects < 0 {
		cfg.MaxRedirects = 0
	}

	httpClient := &http.Client{}
	if cfg.HTTPClient != nil {
		copied := *cfg.HTTPClient
		httpClient = &copied
	}
	httpClient.CheckRedirect = checkRedirect

	throttles := make(map[string]*ratelimit.Tracker, 2)
	if cfg.StorefrontThrottle != nil {
		throttles[EndpointStorefront] = cfg.StorefrontThrottle
	}
	if cfg.AdminThrottle != nil {
		throttles[EndpointAdmin] = cfg.AdminThrottle
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
		throttles:  throttles,
		logger:     log.With().Str("component", "shopify-client").Logger(),
	}, nil
}

// AdminEnabled reports whether Admin calls can be made.
func (c *Client) AdminEnabled() bool {
	return c.config.Endpoints.AdminEnabled && c.config.AdminToken != ""
}

// Do performs one GraphQL POST. It never retries.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	endpoint := r.Endpoint
	if endpoint == "" {
		endpoint = EndpointStorefront
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = c.config.Timeout
	}
	maxBytes := r.MaxBytes
	if maxBytes <= 0 {
		maxBytes = c.config.MaxBytes
	}

	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if tracker := c.throttles[endpoint]; tracker != nil {
		cost := r.Cost
		if cost <= 0 {
			cost = defaultQueryCost
		}
		if err := tracker.Wait(ctx, cost); err != nil {
			return nil, c.fail(endpoint, "throttle_wait", fmt.Errorf("throttle wait: %w", err))
		}
	}

	body, err := json.Marshal(map[string]any{"query": r.Query, "variables": r.Variables})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ctx = context.WithValue(ctx, redirectLimitKey{}, r.MaxRedirects)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("url", r.URL).
		Msg("Executing Shopify request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(endpoint, "network_error", fmt.Errorf("shopify request: %w", err))
	}
	// closing an unread body drops the connection instead of draining it
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, c.fail(endpoint, "read_error", fmt.Errorf("read response: %w", err))
	}
	if int64(len(raw)) > maxBytes {
		return nil, c.fail(endpoint, "too_large", fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, maxBytes))
	}

	status := strconv.Itoa(resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.fail(endpoint, status, newHTTPError(resp.StatusCode, r.URL, raw))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, c.fail(endpoint, "malformed", fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}

	if env.Extensions != nil && env.Extensions.Cost != nil {
		if tracker := c.throttles[endpoint]; tracker != nil {
			if err := tracker.Update(ctx, env.Extensions.Cost.ThrottleStatus); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to update throttle state")
			}
		}
	}

	if len(env.Errors) > 0 {
		return nil, c.fail(endpoint, "graphql_error", &GraphQLErrors{Errors: env.Errors})
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, c.fail(endpoint, "malformed", fmt.Errorf("%w: missing data", ErrMalformedResponse))
	}

	upstreamRequestsTotal.WithLabelValues(endpoint, status).Inc()
	return &Response{StatusCode: resp.StatusCode, Data: env.Data, Extensions: env.Extensions}, nil
}

// fail records err and returns it.
func (c *Client) fail(endpoint, status string, err error) error {
	class := Classify(err)
	upstreamErrorsTotal.WithLabelValues(string(class)).Inc()
	upstreamRequestsTotal.WithLabelValues(endpoint, status).Inc()
	c.logger.Warn().
		Err(err).
		Str("endpoint", endpoint).
		Str("error_class", string(class)).
		Msg("Shopify request error")
	return err
}

// Storefront runs query against the Storefront API and decodes data into out.
func (c *Client) Storefront(ctx context.Context, query string, vars map[string]any, out any) error {
	resp, err := c.Do(ctx, Request{
		URL:          c.config.Endpoints.Storefront,
		Query:        query,
		Variables:    vars,
		Headers:      map[string]string{headerStorefrontToken: c.config.StorefrontToken},
		MaxRedirects: c.config.MaxRedirects,
		Endpoint:     EndpointStorefront,
	})
	if err != nil {
		return err
	}
	return decodeData(resp.Data, out)
}

// Admin runs query against the Admin API and decodes data into out. A 404
// from the primary host is retried once on the derived host; any other
// failure is returned as is.
func (c *Client) Admin(ctx context.Context, query string, vars map[string]any, out any) error {
	if !c.AdminEnabled() {
		return ErrAdminDisabled
	}

	hosts := c.config.Endpoints.Admin
	if len(hosts) > 2 {
		hosts = hosts[:2]
	}

	var lastErr error
	for i, url := range hosts {
		resp, err := c.Do(ctx, Request{
			URL:          url,
			Query:        query,
			Variables:    vars,
			Headers:      map[string]string{headerAdminToken: c.config.AdminToken},
			MaxRedirects: c.config.MaxRedirects,
			Endpoint:     EndpointAdmin,
		})
		if err == nil {
			return decodeData(resp.Data, out)
		}
		lastErr = err
		if !IsNotFound(err) || i == len(hosts)-1 {
			return err
		}
		adminFallbacksTotal.Inc()
		c.logger.Warn().
			Str("url", url).
			Str("next", hosts[i+1]).
			Msg("Admin endpoint returned 404, trying derived host")
	}
	return lastErr
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func decodeData(data json.RawMessage, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

type redirectLimitKey struct{}

func checkRedirect(req *http.Request, via []*http.Request) error {
	limit, _ := req.Context().Value(redirectLimitKey{}).(int)
	if len(via) > limit {
		return ErrTooManyRedirects
	}
	return nil
}
