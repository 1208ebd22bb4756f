package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// adminEnrichments counts products by Admin lookup outcome
	adminEnrichments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_admin_enrichments_total",
			Help: "Products by Admin spec lookup result",
		},
		[]string{"result"}, // result: "ok", "failed", "skipped"
	)

	// carsResolved is the size of the last full catalog load
	carsResolved = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_cars_resolved",
			Help: "Number of cars in the last full catalog load",
		},
	)
)
