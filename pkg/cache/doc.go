// Package cache stores catalog API responses in Redis.
//
// Entries are keyed by endpoint and query string, so every page of a listing
// gets its own entry. The TTL of an entry comes from the response's Expires
// header, then Cache-Control max-age, then DefaultTTL.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient)
//
//	key := cache.Key{
//		Endpoint: "/api/v1/artworks",
//		Query:    url.Values{"page": []string{"2"}, "limit": []string{"12"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the API, then:
//		entry, _ = cache.ResponseToEntry(resp)
//		_ = manager.Set(ctx, key, entry)
//	}
//
// # Conditional Requests
//
// When an entry carries an ETag or Last-Modified value the client revalidates
// it with If-None-Match / If-Modified-Since and serves the cached body on 304.
//
// # Metrics
//
//   - artic_cache_hits_total - Cache hits
//   - artic_cache_misses_total - Cache misses
//   - artic_cache_errors_total{operation} - Redis errors by operation
//   - artic_304_responses_total - Revalidated entries
//   - artic_conditional_requests_total - Conditional requests sent
package cache
