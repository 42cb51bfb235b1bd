// Package collection holds the two item sequences of a listing session:
// the staging store that enumeration appends to, and the published
// collection that observers read and that is updated by reconcile.
package collection

import (
	"sync"

	"github.com/justyntemme/razorlist/internal/model"
)

// Staging is the unordered working set of an enumeration. It has a single
// producer per session; Snapshot is safe while the producer appends.
type Staging struct {
	mu    sync.RWMutex
	items []*model.Item
	index map[string]int // path -> position in items
}

// NewStaging creates an empty staging store.
func NewStaging() *Staging {
	return &Staging{index: make(map[string]int)}
}

// AppendBatch adds items. An item whose path is already staged replaces
// the staged one in place.
func (s *Staging) AppendBatch(items []*model.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		s.upsertLocked(it)
	}
}

// Upsert adds or replaces a single item. Returns true if it was new.
func (s *Staging) Upsert(it *model.Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(it)
}

func (s *Staging) upsertLocked(it *model.Item) bool {
	if i, ok := s.index[it.Path]; ok {
		s.items[i] = it
		return false
	}
	s.index[it.Path] = len(s.items)
	s.items = append(s.items, it)
	return true
}

// Remove drops the item with the given path, keeping the order of the
// rest. Returns false if absent.
func (s *Staging) Remove(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[path]
	if !ok {
		return false
	}
	copy(s.items[i:], s.items[i+1:])
	s.items[len(s.items)-1] = nil
	s.items = s.items[:len(s.items)-1]
	delete(s.index, path)
	for k := i; k < len(s.items); k++ {
		s.index[s.items[k].Path] = k
	}
	return true
}

// Get returns the staged item for path.
func (s *Staging) Get(path string) (*model.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[path]
	if !ok {
		return nil, false
	}
	return s.items[i], true
}

// Clear removes every item.
func (s *Staging) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.index = make(map[string]int)
}

// Snapshot returns a copy of the staged items.
func (s *Staging) Snapshot() []*model.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Item, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of staged items.
func (s *Staging) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
