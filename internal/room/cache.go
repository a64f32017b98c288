// Package room holds the in-memory working set of active rooms: each room's
// authoritative text, its members and its modification bookkeeping.
package room

import (
	"time"

	"github.com/manpreetbhatti/codetogether/internal/cmap"
)

// Cache maps room ids to active documents. Operations on different rooms do
// not contend beyond a shard lock held for a map access.
type Cache struct {
	docs *cmap.Map[*Document]
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{docs: cmap.New[*Document]()}
}

// Get returns the active document of roomID.
func (c *Cache) Get(roomID string) (*Document, bool) {
	return c.docs.Get(roomID)
}

// GetOrCreate returns the cached document of roomID, creating it from the seed
// when absent. A concurrent creator wins and its document is returned.
func (c *Cache) GetOrCreate(roomID, language, seed string, now time.Time) *Document {
	return c.docs.Upsert(roomID, func(cur *Document, exists bool) *Document {
		if exists {
			return cur
		}
		return NewDocument(roomID, language, seed, now)
	})
}

// Remove drops roomID from the cache.
func (c *Cache) Remove(roomID string) {
	c.docs.Delete(roomID, func(*Document, bool) bool { return true })
}

// Evict marks doc evicted and removes it unless another document has taken
// its place. The caller must hold doc's lock.
func (c *Cache) Evict(doc *Document) bool {
	doc.evicted = true
	return c.docs.Delete(doc.ID, func(cur *Document, _ bool) bool {
		return cur == doc
	})
}

// Documents returns every active document.
func (c *Cache) Documents() []*Document {
	return c.docs.Values()
}

// Len returns the number of active documents.
func (c *Cache) Len() int {
	return c.docs.Len()
}
