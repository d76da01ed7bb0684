package rules

import (
	"sync"
	"time"
)

// InMemorySnapshotCache is a simple in-memory implementation of SnapshotCache
// Thread-safe for concurrent access
type InMemorySnapshotCache struct {
	snapshot *Snapshot
	cachedAt time.Time
	config   CacheConfig
	mu       sync.RWMutex
	isValid  bool
}

// NewInMemorySnapshotCache creates a new in-memory snapshot cache
func NewInMemorySnapshotCache(config CacheConfig) *InMemorySnapshotCache {
	return &InMemorySnapshotCache{
		config:  config,
		isValid: false,
	}
}

// Get retrieves the cached snapshot
// Returns nil if cache is invalid or expired
func (c *InMemorySnapshotCache) Get() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.fresh() {
		return nil
	}

	// Return copy to prevent external modifications of the lists
	return copySnapshot(c.snapshot)
}

// Set stores the snapshot in cache
func (c *InMemorySnapshotCache) Set(snapshot *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshot = copySnapshot(snapshot)
	c.cachedAt = time.Now()
	c.isValid = true
}

// Invalidate clears the cache
func (c *InMemorySnapshotCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.isValid = false
	c.snapshot = nil
}

// IsValid returns true if cache contains valid data
func (c *InMemorySnapshotCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.fresh()
}

// fresh must be called with c.mu held
func (c *InMemorySnapshotCache) fresh() bool {
	if !c.isValid {
		return false
	}
	if c.config.TTL > 0 {
		return time.Since(c.cachedAt) <= c.config.TTL
	}
	return true
}

func copySnapshot(s *Snapshot) *Snapshot {
	if s == nil {
		return nil
	}
	out := &Snapshot{
		Rules:  make([]*Rule, len(s.Rules)),
		Groups: make([]*ProductGroup, len(s.Groups)),
	}
	copy(out.Rules, s.Rules)
	copy(out.Groups, s.Groups)
	return out
}
