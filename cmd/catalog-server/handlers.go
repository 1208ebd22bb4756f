package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/car-catalog/pkg/cache"
	"github.com/Sternrassler/car-catalog/pkg/catalog"
	"github.com/Sternrassler/car-catalog/pkg/metrics"
)

// requestTimeout bounds one API request; cache loads continue detached.
const requestTimeout = 60 * time.Second

// invalidateTokenHeader carries the cache invalidation token.
const invalidateTokenHeader = "X-Catalog-Token"

// catalogService is the part of the catalog the HTTP API uses.
type catalogService interface {
	GetAllCars(ctx context.Context) ([]catalog.Car, error)
	GetHomepageCars(ctx context.Context) ([]catalog.Car, error)
	GetCarSpecsByHandles(ctx context.Context, handles []string) (map[string]catalog.Car, error)
	GetCarByHandle(ctx context.Context, handle string) (*catalog.Car, error)
	GetBrandCounts(ctx context.Context) ([]catalog.BrandCount, error)
	Invalidate(ctx context.Context, kinds ...cache.Kind) error
	InvalidateCar(ctx context.Context, handle string) error
}

type api struct {
	catalog         catalogService
	redis           *redis.Client
	invalidateToken string
	logger          zerolog.Logger
}

// newRouter builds the HTTP API. redisClient may be nil; invalidateToken
// empty leaves cache invalidation unrouted.
func newRouter(svc catalogService, redisClient *redis.Client, invalidateToken string) http.Handler {
	a := &api{
		catalog:         svc,
		redis:           redisClient,
		invalidateToken: invalidateToken,
		logger:          log.With().Str("component", "catalog-server").Logger(),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(redisClient))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(requestTimeout))

		r.Get("/cars", a.listCars)
		r.Get("/cars/homepage", a.homepageCars)
		r.Get("/cars/specs", a.carSpecs)
		r.Get("/cars/{handle}", a.carByHandle)
		r.Get("/brands", a.brandCounts)
		if invalidateToken != "" {
			r.Post("/cache/invalidate", a.invalidate)
		}
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// readyHandler reports ready when the KV tier answers. Without a KV tier
// the server is always ready.
func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, "Redis not ready: %v", err)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "Ready")
	}
}

func (a *api) listCars(w http.ResponseWriter, r *http.Request) {
	cars, err := a.catalog.GetAllCars(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cars)
}

func (a *api) homepageCars(w http.ResponseWriter, r *http.Request) {
	cars, err := a.catalog.GetHomepageCars(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cars)
}

// carSpecs serves ?handles=a,b. Handle lists that are not in canonical
// form are redirected so that every handle set has one URL.
func (a *api) carSpecs(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("handles")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "handles query parameter is required")
		return
	}

	handles := strings.Split(raw, ",")
	canonical := cache.CanonicalHandles(handles)
	if len(canonical) == 0 {
		writeError(w, http.StatusBadRequest, "no valid handles")
		return
	}
	if !cache.IsCanonical(handles) || len(r.URL.Query()) != 1 {
		http.Redirect(w, r, canonicalSpecsURL(r.URL.Path, canonical), http.StatusPermanentRedirect)
		return
	}

	specs, err := a.catalog.GetCarSpecsByHandles(r.Context(), canonical)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, specs)
}

func canonicalSpecsURL(path string, handles []string) string {
	escaped := make([]string, len(handles))
	for i, h := range handles {
		escaped[i] = url.QueryEscape(h)
	}
	return path + "?handles=" + strings.Join(escaped, ",")
}

func (a *api) carByHandle(w http.ResponseWriter, r *http.Request) {
	car, err := a.catalog.GetCarByHandle(r.Context(), chi.URLParam(r, "handle"))
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "car not found")
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, car)
}

func (a *api) brandCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := a.catalog.GetBrandCounts(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// invalidateRequest is the POST /api/cache/invalidate body. An empty body
// drops every listing and handle set.
type invalidateRequest struct {
	Kinds   []string `json:"kinds"`
	Handles []string `json:"handles"`
}

func (a *api) invalidate(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(invalidateTokenHeader)
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.invalidateToken)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	var req invalidateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	kinds := make([]cache.Kind, 0, len(req.Kinds))
	for _, k := range req.Kinds {
		kind := cache.Kind(k)
		switch kind {
		case cache.KindAllCars, cache.KindHomepage, cache.KindBrandCounts, cache.KindCarSpecs:
			kinds = append(kinds, kind)
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown cache kind %q", k))
			return
		}
	}

	var errs []error
	if len(kinds) > 0 || len(req.Handles) == 0 {
		errs = append(errs, a.catalog.Invalidate(r.Context(), kinds...))
	}
	for _, h := range req.Handles {
		errs = append(errs, a.catalog.InvalidateCar(r.Context(), h))
	}
	if err := errors.Join(errs...); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		writeError(w, http.StatusGatewayTimeout, "request timed out")
		return
	}
	a.logger.Error().
		Err(err).
		Str("path", r.URL.Path).
		Str("request_id", chimiddleware.GetReqID(r.Context())).
		Msg("Request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
