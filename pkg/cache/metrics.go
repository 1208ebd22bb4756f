package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Layer labels.
const (
	LayerMemory   = "memory"
	LayerKV       = "kv"
	LayerDisk     = "disk"
	LayerUpstream = "upstream"
)

var (
	// CacheHits tracks cache hits by layer (memory, kv, disk)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_hits_total",
			Help: "Total number of catalog cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks lookups that fell through every tier
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_misses_total",
			Help: "Total number of catalog cache misses across all tiers",
		},
		[]string{"kind"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"layer", "operation"}, // operation: "get", "set", "delete"
	)

	// CacheLoads tracks live upstream loads by result
	CacheLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_loads_total",
			Help: "Total number of live upstream loads",
		},
		[]string{"kind", "result"}, // result: "ok", "error", "stale"
	)

	// NegativeWrites tracks negative entries written after failed loads
	NegativeWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_negative_writes_total",
			Help: "Total number of negative cache entries written",
		},
		[]string{"kind"},
	)

	// SharedWaits tracks callers that joined an in-flight load
	SharedWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_shared_waits_total",
			Help: "Total number of callers served by another caller's in-flight load",
		},
		[]string{"kind"},
	)

	// MemoryEntries tracks the number of entries in the memory tier
	MemoryEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_cache_memory_entries",
			Help: "Current number of entries in the process memory tier",
		},
	)
)
