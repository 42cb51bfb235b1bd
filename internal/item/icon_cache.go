package item

import (
	"container/list"
	"sync"

	"github.com/justyntemme/razorlist/internal/debug"
	"github.com/justyntemme/razorlist/internal/model"
)

// FolderExt is the cache key extension used for directory placeholders.
const FolderExt = "<folder>"

// IconKey identifies a placeholder icon.
type IconKey struct {
	Ext  string // lower-case, with leading dot; "" for no extension
	Size int
}

// IconCache is an LRU of placeholder icons keyed by (extension, size).
// Least recently used entries are evicted once maxEntries is reached.
type IconCache struct {
	mu         sync.Mutex
	entries    map[IconKey]*list.Element
	lru        *list.List // front = most recent
	maxEntries int

	hits, misses int64
}

type iconEntry struct {
	key  IconKey
	icon *model.Icon
}

// NewIconCache creates a cache holding at most maxEntries icons.
func NewIconCache(maxEntries int) *IconCache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &IconCache{
		entries:    make(map[IconKey]*list.Element),
		lru:        list.New(),
		maxEntries: maxEntries,
	}
}

// Get returns the cached icon for key and marks it recently used.
func (c *IconCache) Get(key IconKey) (*model.Icon, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.lru.MoveToFront(el)
	return el.Value.(*iconEntry).icon, true
}

// Put stores an icon, evicting the oldest entries when full.
func (c *IconCache) Put(key IconKey, icon *model.Icon) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*iconEntry).icon = icon
		c.lru.MoveToFront(el)
		return
	}

	for c.lru.Len() >= c.maxEntries {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		old := oldest.Value.(*iconEntry)
		delete(c.entries, old.key)
		c.lru.Remove(oldest)
		debug.Log(debug.ENRICH, "IconCache: evicted %q@%d", old.key.Ext, old.key.Size)
	}

	c.entries[key] = c.lru.PushFront(&iconEntry{key: key, icon: icon})
}

// GetOrCreate returns the cached icon for key, building and storing it
// with create on a miss. A nil result from create is not cached.
func (c *IconCache) GetOrCreate(key IconKey, create func() *model.Icon) *model.Icon {
	if icon, ok := c.Get(key); ok {
		return icon
	}
	icon := create()
	if icon != nil {
		c.Put(key, icon)
	}
	return icon
}

// Len returns the number of cached icons.
func (c *IconCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns the hit and miss counters.
func (c *IconCache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Clear removes every entry.
func (c *IconCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[IconKey]*list.Element)
	c.lru.Init()
}
