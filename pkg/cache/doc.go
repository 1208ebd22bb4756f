// Package cache provides the cache tiers behind the car catalog.
//
// Three tiers hold the same encoded payload:
//
//   - Memory: per-process, LRU-bounded, shortest lifetime
//   - KV: Redis, shared across instances, medium TTL
//   - Disk: one JSON file per key, last-resort warm cache
//
// Tiered coordinates them and deduplicates concurrent loads: while a live
// load for a key is in flight, every other caller for that key waits for
// the same result instead of issuing its own upstream calls.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	memory, _ := cache.NewMemory(512)
//	tiered := cache.NewTiered(memory, cache.NewManager(redisClient),
//		cache.NewDisk(".next/cache/catalog", time.Hour), cache.DefaultConfig(), logger)
//
//	key := cache.Key{Kind: cache.KindAllCars, Store: "dealer.myshopify.com"}
//	res, err := tiered.Get(ctx, key, cache.LoadOptions{NegativeTTL: time.Minute}, loadAllCars)
//
// # Negative Caching
//
// When a load fails and LoadOptions.NegativeTTL is set, an empty negative
// entry is written to the KV tier. Callers within that window receive the
// empty payload without reaching upstream.
//
// # Metrics
//
//   - catalog_cache_hits_total{layer} - Cache hits
//   - catalog_cache_misses_total{kind} - Lookups that reached upstream
//   - catalog_cache_errors_total{layer,operation} - Tier errors
//   - catalog_cache_loads_total{kind,result} - Live loads
//   - catalog_cache_negative_writes_total{kind} - Negative entries written
//   - catalog_cache_shared_waits_total{kind} - Deduplicated callers
//   - catalog_cache_memory_entries - Memory tier size
package cache
