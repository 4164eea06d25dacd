// Package cache is the process-local result cache.
//
// Results are held in a strict least-recently-used order backed by
// hashicorp/golang-lru. Get refreshes recency, Has does not. Inserting beyond
// the configured size evicts the least recently used entry. An optional TTL
// expires entries lazily on lookup and in bulk via Evict/Run.
//
// Key builds the normalized fingerprint used as cache key.
package cache
