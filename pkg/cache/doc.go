// Package cache provides Marvel API response caching with a Redis backend.
//
// Every call to the Marvel API counts against the daily quota, so responses
// are kept in Redis and reused:
//
//   - Fresh entries (before Expires) are served without a request
//   - Stale entries are kept for a retention window and revalidated with
//     If-None-Match; a 304 refreshes the entry
//   - Keys never include the ts/apikey/hash signing parameters
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{
//		Endpoint:    "/v1/public/characters",
//		QueryParams: url.Values{"offset": {"20"}, "limit": {"20"}},
//	}
//
//	entry, err := manager.GetStale(ctx, key)
//	switch {
//	case err == cache.ErrCacheMiss:
//		// fetch from Marvel
//	case !entry.IsExpired():
//		// serve entry.Data
//	case cache.ShouldMakeConditionalRequest(entry):
//		cache.AddConditionalHeaders(req, entry)
//	}
//
// # Metrics
//
//   - marvel_cache_hits_total{layer="redis"} - Cache hits
//   - marvel_cache_misses_total - Cache misses
//   - marvel_cache_size_bytes{layer="redis"} - Bytes written/read
//   - marvel_304_responses_total - Successful revalidations
//   - marvel_conditional_requests_total - Revalidation requests sent
//   - marvel_cache_errors_total{operation} - Cache operation errors
package cache
