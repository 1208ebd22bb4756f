package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds pagination and batch configuration.
type Config struct {
	// MaxPages is the hard ceiling on pages followed by Collect
	MaxPages int

	// PageSize is the number of items requested per page
	PageSize int

	// BatchSize is the number of inputs per batch in Batches
	BatchSize int

	// MaxConcurrency is the maximum number of batches in flight
	MaxConcurrency int

	// Timeout per page or batch fetch
	Timeout time.Duration
}

// DefaultConfig returns safe defaults for the Shopify Storefront API.
func DefaultConfig() Config {
	return Config{
		MaxPages:       40,
		PageSize:       50,
		BatchSize:      50,
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxPages <= 0 {
		c.MaxPages = def.MaxPages
	}
	if c.PageSize <= 0 {
		c.PageSize = def.PageSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = def.MaxConcurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}

// Page is one page of a cursor connection.
type Page[T any] struct {
	Items       []T
	HasNextPage bool
	EndCursor   string
}

// PageFetcher fetches the page after cursor; "" requests the first page.
type PageFetcher[T any] func(ctx context.Context, first int, after string) (*Page[T], error)

// Collect follows the connection from its first page until HasNextPage is
// false, the cursor stops advancing, or cfg.MaxPages pages were fetched.
// Any page error aborts the walk; no partial result is returned.
func Collect[T any](ctx context.Context, cfg Config, fetch PageFetcher[T]) ([]T, error) {
	cfg = cfg.withDefaults()
	start := time.Now()

	var items []T
	after := ""
	pages := 0
	for pages < cfg.MaxPages {
		pageCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		page, err := fetch(pageCtx, cfg.PageSize, after)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", pages+1, err)
		}
		pages++
		if page == nil {
			break
		}
		items = append(items, page.Items...)

		if !page.HasNextPage || page.EndCursor == "" || page.EndCursor == after {
			break
		}
		after = page.EndCursor

		if pages == cfg.MaxPages {
			log.Warn().
				Int("max_pages", cfg.MaxPages).
				Int("items", len(items)).
				Msg("Page ceiling reached, connection truncated")
		}
	}

	log.Debug().
		Int("pages", pages).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Pagination complete")

	return items, nil
}
