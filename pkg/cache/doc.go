// Package cache stores object definition responses in Redis.
//
// Definitions (report and cube grids, dataset models, folder metadata) change
// rarely but are requested on every materialization. The client stores them
// with a TTL and revalidates stale entries with conditional requests when the
// server supplied an ETag or Last-Modified validator.
//
// # Basic Usage
//
//	manager := cache.NewManager(redis.NewClient(&redis.Options{Addr: "localhost:6379"}))
//
//	key := cache.CacheKey{
//		Endpoint:  "/api/v2/reports/B7CA92F04B9FAE8D941C3E9B7E0CD754",
//		ProjectID: "0C0D31E4A7B04C9E8D49D0B2A3E1F4C5",
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the server, then
//		entry, _ = cache.ResponseToEntry(resp, 10*time.Minute)
//		_ = manager.Set(ctx, key, entry)
//	}
//
// Entries for one object are dropped with Invalidate after the object is
// altered or deleted.
//
// # Metrics
//
//   - mstr_cache_hits_total{kind} - Hits served fresh or after revalidation
//   - mstr_cache_misses_total - Misses
//   - mstr_cache_written_bytes_total - Bytes written
//   - mstr_cache_conditional_requests_total - Revalidation requests sent
//   - mstr_cache_not_modified_total - 304 Not Modified responses
//   - mstr_cache_errors_total{operation} - Redis errors
package cache
