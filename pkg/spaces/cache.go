package spaces

import (
	"sync"
	"time"
)

// DefaultTTL is the staleness window for the cached inventory.
const DefaultTTL = 5 * time.Minute

// Cache holds the last successfully aggregated inventory. Replacement
// is all-or-nothing: a refresh swaps the entire record set, so entries
// for spaces that disappeared upstream are dropped and readers never
// observe a partially updated map.
type Cache struct {
	mu         sync.RWMutex
	records    map[string]Space
	lastUpdate time.Time
	ttl        time.Duration

	now func() time.Time // overridable for tests
}

// NewCache creates an empty cache with the given staleness window.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		records: make(map[string]Space),
		ttl:     ttl,
		now:     time.Now,
	}
}

// ReplaceAll swaps the whole record set and stamps the update time.
func (c *Cache) ReplaceAll(records []Space) {
	byID := make(map[string]Space, len(records))
	for _, r := range records {
		byID[r.RepoID] = r
	}

	c.mu.Lock()
	c.records = byID
	c.lastUpdate = c.now()
	c.mu.Unlock()
}

// All returns a copy of the current records.
func (c *Cache) All() []Space {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Space, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, r)
	}
	return out
}

// Find returns the record for repoID.
func (c *Cache) Find(repoID string) (Space, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.records[repoID]
	return r, ok
}

// IsStale reports whether the inventory needs re-aggregation: true
// before the first successful ReplaceAll and again once the staleness
// window has elapsed.
func (c *Cache) IsStale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.lastUpdate.IsZero() {
		return true
	}
	return c.now().Sub(c.lastUpdate) > c.ttl
}

// Len returns the number of cached records.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}
