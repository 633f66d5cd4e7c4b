// Package cache memoizes resolved modules by case-insensitive logical name.
package cache

import (
	"sort"
	"sync"

	"github.com/kingrea/modpath/internal/module"
)

// Cache maps folded module names to handles. Each name is written once; the
// first handle stored for a name stays for the cache's lifetime.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*module.Handle
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: map[string]*module.Handle{}}
}

// Get returns the handle cached under name, ignoring case.
func (c *Cache) Get(name string) (*module.Handle, bool) {
	key := module.FoldName(name)
	if key == "" {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.entries[key]
	return h, ok
}

// Store caches h under name unless the name is already taken, and returns the
// handle that ends up cached. Callers should use the returned handle.
func (c *Cache) Store(name string, h *module.Handle) *module.Handle {
	key := module.FoldName(name)
	if key == "" || h == nil {
		return h
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if prior, ok := c.entries[key]; ok {
		return prior
	}
	c.entries[key] = h
	return h
}

// Len reports how many names are cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entry is one cached name.
type Entry struct {
	Name   string         `json:"name"`
	Handle *module.Handle `json:"-"`
}

// Snapshot returns the cached entries sorted by folded name.
func (c *Cache) Snapshot() []Entry {
	c.mu.RLock()
	entries := make([]Entry, 0, len(c.entries))
	for key, h := range c.entries {
		entries = append(entries, Entry{Name: key, Handle: h})
	}
	c.mu.RUnlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// Names returns the cached handle names in Snapshot order.
func (c *Cache) Names() []string {
	snapshot := c.Snapshot()
	names := make([]string, len(snapshot))
	for i, entry := range snapshot {
		names[i] = entry.Handle.Name
	}
	return names
}
