// Package catalog serves normalized car listings. It pulls products from
// Shopify, fills spec gaps from the Admin API and free text, and keeps
// the results in the tiered cache.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/car-catalog/internal/shopify"
	"github.com/Sternrassler/car-catalog/pkg/cache"
	"github.com/Sternrassler/car-catalog/pkg/pagination"
	"github.com/Sternrassler/car-catalog/pkg/spec"
)

// errNoBrands keeps an empty brand count out of the cache.
var errNoBrands = errors.New("no brands to count")

// Source is the upstream the catalog reads from.
type Source interface {
	ProductsPage(ctx context.Context, first int, after string) (*shopify.ProductPage, error)
	LatestProducts(ctx context.Context, n int) ([]shopify.Product, error)
	ProductByHandle(ctx context.Context, handle string) (*shopify.Product, error)
	ProductsByHandles(ctx context.Context, handles []string) (map[string]*shopify.Product, error)
	AdminProducts(ctx context.Context, ids []string) ([]shopify.AdminProduct, error)
	AdminEnabled() bool
}

var _ Source = (*shopify.Client)(nil)

// Config holds catalog settings.
type Config struct {
	// Store scopes cache keys to one shop
	Store string

	// PageSize and MaxPages bound the full catalog walk
	PageSize int
	MaxPages int

	// HomepageCount is the number of newest cars on the homepage
	HomepageCount int

	// HandleChunkSize is the number of handles per aliased query
	HandleChunkSize int

	// AdminBatchSize and AdminConcurrency shape Admin spec lookups
	AdminBatchSize   int
	AdminConcurrency int

	// NegativeTTL is how long a failed full catalog load suppresses refetches
	NegativeTTL time.Duration

	// AdminNeed selects optional attributes that also trigger Admin lookups
	AdminNeed spec.AdminNeedOptions

	// Retry is applied to every upstream call
	Retry shopify.RetryConfig
}

// DefaultConfig returns the production catalog settings.
func DefaultConfig(store string) Config {
	return Config{
		Store:            store,
		PageSize:         50,
		MaxPages:         40,
		HomepageCount:    8,
		HandleChunkSize:  25,
		AdminBatchSize:   50,
		AdminConcurrency: 4,
		NegativeTTL:      60 * time.Second,
		Retry:            shopify.DefaultRetryConfig(),
	}
}

// Catalog resolves and caches car listings.
type Catalog struct {
	source Source
	tiers  *cache.Tiered
	config Config
	logger zerolog.Logger
}

// New creates a catalog.
func New(source Source, tiers *cache.Tiered, cfg Config, logger zerolog.Logger) *Catalog {
	if source == nil {
		panic("catalog source cannot be nil")
	}
	if tiers == nil {
		panic("catalog cache cannot be nil")
	}
	def := DefaultConfig(cfg.Store)
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = def.MaxPages
	}
	if cfg.HomepageCount <= 0 {
		cfg.HomepageCount = def.HomepageCount
	}
	if cfg.HandleChunkSize <= 0 {
		cfg.HandleChunkSize = def.HandleChunkSize
	}
	if cfg.AdminBatchSize <= 0 {
		cfg.AdminBatchSize = def.AdminBatchSize
	}
	if cfg.AdminConcurrency <= 0 {
		cfg.AdminConcurrency = def.AdminConcurrency
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = def.Retry
	}
	return &Catalog{
		source: source,
		tiers:  tiers,
		config: cfg,
		logger: logger,
	}
}

func (c *Catalog) key(kind cache.Kind, handles ...string) cache.Key {
	return cache.Key{Kind: kind, Store: c.config.Store, Handles: handles}
}

// GetAllCars returns the full catalog. An upstream failure with nothing
// cached yields an empty list and a nil error; the failure is logged and
// suppresses refetches for NegativeTTL.
func (c *Catalog) GetAllCars(ctx context.Context) ([]Car, error) {
	res, err := c.tiers.Get(ctx, c.key(cache.KindAllCars), cache.LoadOptions{NegativeTTL: c.config.NegativeTTL}, c.loadAllCars)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Error().Err(err).Msg("Full catalog unavailable, serving empty list")
		return []Car{}, nil
	}
	return decodeCars(res.Data)
}

func (c *Catalog) loadAllCars(ctx context.Context) ([]byte, error) {
	cfg := pagination.Config{PageSize: c.config.PageSize, MaxPages: c.config.MaxPages}
	products, err := pagination.Collect(ctx, cfg, func(ctx context.Context, first int, after string) (*pagination.Page[shopify.Product], error) {
		var page *shopify.ProductPage
		err := shopify.Retry(ctx, c.config.Retry, func(ctx context.Context) error {
			var err error
			page, err = c.source.ProductsPage(ctx, first, after)
			return err
		})
		if err != nil {
			return nil, err
		}
		return &pagination.Page[shopify.Product]{
			Items:       page.Products,
			HasNextPage: page.PageInfo.HasNextPage,
			EndCursor:   page.PageInfo.EndCursor,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	cars := c.resolve(ctx, products, spec.ListingPrecedence)
	carsResolved.Set(float64(len(cars)))
	return json.Marshal(cars)
}

// GetHomepageCars returns the newest HomepageCount cars. Like GetAllCars,
// an upstream failure with nothing cached yields an empty list.
func (c *Catalog) GetHomepageCars(ctx context.Context) ([]Car, error) {
	res, err := c.tiers.Get(ctx, c.key(cache.KindHomepage), cache.LoadOptions{}, c.loadHomepageCars)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Error().Err(err).Msg("Homepage cars unavailable, serving empty list")
		return []Car{}, nil
	}
	return decodeCars(res.Data)
}

func (c *Catalog) loadHomepageCars(ctx context.Context) ([]byte, error) {
	var products []shopify.Product
	err := shopify.Retry(ctx, c.config.Retry, func(ctx context.Context) error {
		var err error
		products, err = c.source.LatestProducts(ctx, c.config.HomepageCount)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load homepage cars: %w", err)
	}
	return json.Marshal(c.resolve(ctx, products, spec.ListingPrecedence))
}

// GetCarSpecsByHandles returns the cars for the given handles, keyed by
// canonical handle. Handles without a product are absent. Order and
// duplicates in handles do not change the result or its cache key.
func (c *Catalog) GetCarSpecsByHandles(ctx context.Context, handles []string) (map[string]Car, error) {
	canonical := cache.CanonicalHandles(handles)
	if len(canonical) == 0 {
		return map[string]Car{}, nil
	}

	res, err := c.tiers.Get(ctx, c.key(cache.KindCarSpecs, canonical...), cache.LoadOptions{}, func(ctx context.Context) ([]byte, error) {
		return c.loadCarSpecs(ctx, canonical)
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]Car)
	if err := json.Unmarshal(res.Data, &out); err != nil {
		return nil, fmt.Errorf("decode car specs: %w", err)
	}
	return out, nil
}

// loadCarSpecs fetches handles in aliased chunks. A failed chunk fails the
// load so that an incomplete map is never cached.
func (c *Catalog) loadCarSpecs(ctx context.Context, handles []string) ([]byte, error) {
	cfg := pagination.Config{BatchSize: c.config.HandleChunkSize, MaxConcurrency: c.config.AdminConcurrency}
	results := pagination.Batches(ctx, handles, cfg, func(ctx context.Context, chunk []string) (map[string]*shopify.Product, error) {
		var out map[string]*shopify.Product
		err := shopify.Retry(ctx, c.config.Retry, func(ctx context.Context) error {
			var err error
			out, err = c.source.ProductsByHandles(ctx, chunk)
			return err
		})
		return out, err
	})

	var products []shopify.Product
	for _, r := range results {
		if r.Error != nil {
			return nil, fmt.Errorf("load car specs (chunk %d): %w", r.Index, r.Error)
		}
		for _, h := range r.Inputs {
			if p := r.Output[h]; p != nil {
				products = append(products, *p)
			}
		}
	}

	cars := c.resolve(ctx, products, spec.ItemPrecedence)
	byHandle := make(map[string]Car, len(cars))
	for _, car := range cars {
		byHandle[strings.ToLower(car.Handle)] = car
	}
	return json.Marshal(byHandle)
}

// GetCarByHandle returns a single car. ErrNotFound is returned when the
// handle has no product.
func (c *Catalog) GetCarByHandle(ctx context.Context, handle string) (*Car, error) {
	handle = strings.ToLower(strings.TrimSpace(handle))
	if handle == "" {
		return nil, ErrNotFound
	}

	res, err := c.tiers.Get(ctx, c.key(cache.KindCar, handle), cache.LoadOptions{}, func(ctx context.Context) ([]byte, error) {
		return c.loadCar(ctx, handle)
	})
	if err != nil {
		return nil, err
	}

	var car Car
	if err := json.Unmarshal(res.Data, &car); err != nil {
		return nil, fmt.Errorf("decode car: %w", err)
	}
	return &car, nil
}

func (c *Catalog) loadCar(ctx context.Context, handle string) ([]byte, error) {
	var product *shopify.Product
	err := shopify.Retry(ctx, c.config.Retry, func(ctx context.Context) error {
		var err error
		product, err = c.source.ProductByHandle(ctx, handle)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load car %q: %w", handle, err)
	}
	if product == nil {
		// a removed product must not keep being served from a stale copy
		return nil, cache.Final(fmt.Errorf("%w: %s", ErrNotFound, handle))
	}

	cars := c.resolve(ctx, []shopify.Product{*product}, spec.ItemPrecedence)
	return json.Marshal(cars[0])
}

// GetBrandCounts returns how many cars each brand has, most common first.
// It is derived from GetAllCars and an empty result is never cached.
func (c *Catalog) GetBrandCounts(ctx context.Context) ([]BrandCount, error) {
	res, err := c.tiers.Get(ctx, c.key(cache.KindBrandCounts), cache.LoadOptions{}, func(ctx context.Context) ([]byte, error) {
		cars, err := c.GetAllCars(ctx)
		if err != nil {
			return nil, err
		}
		counts := CountBrands(cars)
		if len(counts) == 0 {
			return nil, errNoBrands
		}
		return json.Marshal(counts)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, errNoBrands) {
			c.logger.Error().Err(err).Msg("Brand counts unavailable")
		}
		return []BrandCount{}, nil
	}

	var counts []BrandCount
	if err := json.Unmarshal(res.Data, &counts); err != nil {
		return nil, fmt.Errorf("decode brand counts: %w", err)
	}
	return counts, nil
}

// CountBrands counts cars per brand, case-insensitively. The first
// spelling seen names the brand. Cars without a brand are skipped.
func CountBrands(cars []Car) []BrandCount {
	index := make(map[string]int)
	var counts []BrandCount
	for _, car := range cars {
		brand := strings.TrimSpace(car.Brand)
		if brand == "" {
			continue
		}
		k := strings.ToLower(brand)
		if i, ok := index[k]; ok {
			counts[i].Count++
			continue
		}
		index[k] = len(counts)
		counts = append(counts, BrandCount{Brand: brand, Count: 1})
	}

	sort.SliceStable(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return strings.ToLower(counts[i].Brand) < strings.ToLower(counts[j].Brand)
	})
	return counts
}

// listKinds are the cache entries not keyed by handle.
var listKinds = []cache.Kind{cache.KindAllCars, cache.KindHomepage, cache.KindBrandCounts}

// Invalidate drops the entries of the given kinds from every tier. For
// KindCarSpecs every cached handle set goes; no kinds means all listings
// and handle sets.
func (c *Catalog) Invalidate(ctx context.Context, kinds ...cache.Kind) error {
	if len(kinds) == 0 {
		kinds = append(slices.Clone(listKinds), cache.KindCarSpecs)
	}
	var errs []error
	for _, kind := range kinds {
		var err error
		if kind == cache.KindCarSpecs {
			err = c.tiers.InvalidateHandleSets(ctx, kind, c.config.Store)
		} else {
			err = c.tiers.Invalidate(ctx, c.key(kind))
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("invalidate %s: %w", kind, err))
		}
	}
	c.logger.Info().Int("kinds", len(kinds)).Msg("Catalog cache invalidated")
	return errors.Join(errs...)
}

// InvalidateCar drops the single-car entry for handle and every cached
// handle set, any of which may include it.
func (c *Catalog) InvalidateCar(ctx context.Context, handle string) error {
	return errors.Join(
		c.tiers.Invalidate(ctx, c.key(cache.KindCar, strings.ToLower(strings.TrimSpace(handle)))),
		c.tiers.InvalidateHandleSets(ctx, cache.KindCarSpecs, c.config.Store),
	)
}

// resolve merges every product into a Car, querying the Admin API for the
// products whose Storefront spec is incomplete.
func (c *Catalog) resolve(ctx context.Context, products []shopify.Product, precedence spec.Precedence) []Car {
	admin := c.adminSpecs(ctx, products)
	cars := make([]Car, 0, len(products))
	for _, p := range products {
		cars = append(cars, newCar(p, admin[p.ID], precedence))
	}
	return cars
}

func decodeCars(data []byte) ([]Car, error) {
	cars := []Car{}
	if err := json.Unmarshal(data, &cars); err != nil {
		return nil, fmt.Errorf("decode cars: %w", err)
	}
	if cars == nil {
		cars = []Car{}
	}
	return cars, nil
}
