// Package cache holds the bounded note snapshot cache.
//
// Entries are evicted in insertion order. Reads never refresh an entry's
// position, and overwriting an existing key keeps its original slot.
package cache

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/starford/pagenote/internal/models"
)

// DefaultCapacity is the number of notes kept when no capacity is configured.
const DefaultCapacity = 20

// Notes is a fixed-capacity FIFO map from note id to note snapshot.
type Notes struct {
	mu       sync.Mutex
	capacity int
	entries  *orderedmap.OrderedMap[string, models.Note]
}

// New returns an empty cache. A non-positive capacity selects DefaultCapacity.
func New(capacity int) *Notes {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Notes{
		capacity: capacity,
		entries:  orderedmap.New[string, models.Note](),
	}
}

// Get returns a copy of the cached snapshot for id.
func (c *Notes) Get(id string) (models.Note, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.entries.Get(id)
	if !ok {
		return models.Note{}, false
	}
	return n.Clone(), true
}

// Put inserts or overwrites id. Inserting a new key into a full cache evicts
// the oldest-inserted key first.
func (c *Notes) Put(id string, note models.Note) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, present := c.entries.Get(id); !present && c.entries.Len() >= c.capacity {
		if oldest := c.entries.Oldest(); oldest != nil {
			c.entries.Delete(oldest.Key)
		}
	}
	c.entries.Set(id, note.Clone())
}

// Remove drops id if present.
func (c *Notes) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Delete(id)
}

// Len returns the number of cached notes.
func (c *Notes) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Capacity returns the configured bound.
func (c *Notes) Capacity() int { return c.capacity }

// Keys returns cached ids, oldest first.
func (c *Notes) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, c.entries.Len())
	for p := c.entries.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Key)
	}
	return out
}
