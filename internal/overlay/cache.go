package overlay

import "sync"

// Cache is the concurrency-safe detection cache: frame id to the tracks seen
// in that frame. Entries are never evicted during a session.
type Cache struct {
	mu    sync.RWMutex
	store Store
}

// NewCache constructs a cache backed by an in-memory store.
func NewCache() *Cache {
	return NewCacheWithStore(NewInMemoryStore())
}

// NewCacheWithStore constructs a cache that uses the given Store.
func NewCacheWithStore(store Store) *Cache {
	return &Cache{store: store}
}

// Put stores tracks for frameID, replacing whatever was there.
func (c *Cache) Put(frameID int, tracks []Track) {
	cp := make([]Track, len(tracks))
	copy(cp, tracks)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.SetFrame(frameID, cp)
}

// Get returns the tracks stored for frameID. A frame that has not arrived yet
// yields an empty, non-nil slice.
func (c *Cache) Get(frameID int) []Track {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tracks, ok := c.store.GetFrame(frameID)
	if !ok {
		return []Track{}
	}
	out := make([]Track, len(tracks))
	copy(out, tracks)
	return out
}

// Len returns the number of cached frames.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Len()
}

// Reset drops every cached frame. Called when a new video replaces the session.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Reset()
}
