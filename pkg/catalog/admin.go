package catalog

import (
	"context"

	"github.com/Sternrassler/car-catalog/internal/shopify"
	"github.com/Sternrassler/car-catalog/pkg/pagination"
	"github.com/Sternrassler/car-catalog/pkg/spec"
)

// adminSpecs fetches Admin metafields for the products whose Storefront
// data lacks a required attribute. The result maps product ID to the
// extracted Admin spec. Failed batches are logged and leave their products
// without an Admin spec.
func (c *Catalog) adminSpecs(ctx context.Context, products []shopify.Product) map[string]spec.SpecMap {
	var ids []string
	for i := range products {
		p := &products[i]
		if p.ID != "" && spec.NeedsAdminSpec(p.Metafields, p.VariantMetafields(), c.config.AdminNeed) {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	if !c.source.AdminEnabled() {
		adminEnrichments.WithLabelValues("skipped").Add(float64(len(ids)))
		return nil
	}

	cfg := pagination.Config{
		BatchSize:      c.config.AdminBatchSize,
		MaxConcurrency: c.config.AdminConcurrency,
	}
	results := pagination.Batches(ctx, ids, cfg, func(ctx context.Context, batch []string) ([]shopify.AdminProduct, error) {
		var out []shopify.AdminProduct
		err := shopify.Retry(ctx, c.config.Retry, func(ctx context.Context) error {
			var err error
			out, err = c.source.AdminProducts(ctx, batch)
			return err
		})
		return out, err
	})

	specs := make(map[string]spec.SpecMap, len(ids))
	for _, r := range results {
		if r.Error != nil {
			adminEnrichments.WithLabelValues("failed").Add(float64(len(r.Inputs)))
			c.logger.Warn().
				Err(r.Error).
				Int("batch", r.Index).
				Int("products", len(r.Inputs)).
				Msg("Admin spec batch failed, continuing without it")
			continue
		}
		adminEnrichments.WithLabelValues("ok").Add(float64(len(r.Inputs)))
		for _, ap := range r.Output {
			specs[ap.ID] = spec.Extract(ap.Metafields)
		}
	}
	return specs
}
