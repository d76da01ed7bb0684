package rules

import "time"

// Snapshot is the rule and product group state one evaluation run reads
type Snapshot struct {
	Rules  []*Rule         `json:"rules"`
	Groups []*ProductGroup `json:"groups"`
}

// SnapshotCache provides an abstraction for caching the evaluation snapshot
// This allows swapping between in-memory, Redis, or other caching implementations
type SnapshotCache interface {
	// Get retrieves the cached snapshot, returns nil if cache miss or expired
	Get() *Snapshot

	// Set stores the snapshot in cache
	Set(snapshot *Snapshot)

	// Invalidate clears the cache, forcing a refresh on next Get
	Invalidate()

	// IsValid returns true if cache has valid data
	IsValid() bool
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached entries
	// Set to 0 for no expiration (manual invalidation only)
	TTL time.Duration
}

// DefaultCacheConfig returns sensible defaults for snapshot caching
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL: 0, // No TTL - only invalidate on mutations
	}
}
