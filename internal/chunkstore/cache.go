package chunkstore

import (
	"sort"
	"sync"
)

// Cache holds chunk sets in memory. Slices are copied in both directions so
// callers can never see or cause a partial update.
type Cache struct {
	mu   sync.RWMutex
	sets map[string][]string
}

func NewCache() *Cache {
	return &Cache{sets: make(map[string][]string)}
}

func (c *Cache) Get(documentID string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chunks, ok := c.sets[documentID]
	if !ok {
		return nil, false
	}
	return append([]string(nil), chunks...), true
}

func (c *Cache) Put(documentID string, chunks []string) {
	cp := append([]string(nil), chunks...)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets[documentID] = cp
}

func (c *Cache) Delete(documentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sets, documentID)
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets = make(map[string][]string)
}

// IDs returns the cached document IDs, sorted.
func (c *Cache) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.sets))
	for id := range c.sets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sets)
}
