package collection

import (
	"sync"
	"sync/atomic"

	"github.com/justyntemme/razorlist/internal/debug"
	"github.com/justyntemme/razorlist/internal/model"
)

// PatchOp is the kind of a structural change.
type PatchOp int

// Patch kinds. Insert and remove patches change only one side of the splice.
const (
	OpReplace PatchOp = iota
	OpInsert
	OpRemove
)

func (op PatchOp) String() string {
	switch op {
	case OpInsert:
		return "insert"
	case OpRemove:
		return "remove"
	default:
		return "replace"
	}
}

// Patch is one range splice: Removed items at Index are replaced by Items.
// Patches of one reconcile apply in order; each Index refers to the
// sequence as left by the previous patch.
type Patch struct {
	Op      PatchOp
	Index   int
	Removed int
	Items   []*model.Item
}

// Apply replays patches on a copy of items.
func Apply(items []*model.Item, patches []Patch) []*model.Item {
	out := make([]*model.Item, len(items))
	copy(out, items)
	for _, p := range patches {
		next := make([]*model.Item, 0, len(out)-p.Removed+len(p.Items))
		next = append(next, out[:p.Index]...)
		next = append(next, p.Items...)
		next = append(next, out[p.Index+p.Removed:]...)
		out = next
	}
	return out
}

// Event is delivered to subscribers: Reset or PropertyChanged.
type Event interface {
	isEvent()
}

// Reset is the single notification sent after a reconcile that changed the
// structure of the collection.
type Reset struct {
	Target  string
	Patches []Patch
	Len     int
}

// PropertyChanged reports an in-place change of one item.
type PropertyChanged struct {
	Path     string
	Property string
}

func (Reset) isEvent()           {}
func (PropertyChanged) isEvent() {}

// Published is the observer-facing sequence. It has many readers and a
// single writer; Reconcile holds the write lock for the whole patch, so
// readers never see a partially applied update.
type Published struct {
	mu     sync.RWMutex
	items  []*model.Item
	index  map[string]int
	target string

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
	dropped atomic.Int64
}

// NewPublished creates an empty published collection.
func NewPublished() *Published {
	return &Published{
		index: make(map[string]int),
		subs:  make(map[int]chan Event),
	}
}

// Reconcile makes the collection equal to target and returns the applied
// patches. An entry already published keeps its published instance, with
// listing metadata refreshed in place, wherever it lands in target.
// Positions holding the same entry are kept; a mismatch opens a replace run that
// ends where the current item reappears in target; leftover tails become
// one insert or one remove. Exactly one Reset is emitted if any patch was
// applied.
func (p *Published) Reconcile(target []*model.Item) []Patch {
	p.mu.Lock()
	cur := p.items

	curIndex := make(map[string]int, len(cur))
	for i, it := range cur {
		curIndex[it.Path] = i
	}

	var patches []Patch
	var touched []string

	canon := make([]*model.Item, len(target))
	for k, it := range target {
		if m, ok := curIndex[it.Path]; ok && cur[m] != it && cur[m].SameEntry(it) {
			if cur[m].Absorb(it) {
				touched = append(touched, it.Path)
			}
			it = cur[m]
		}
		canon[k] = it
	}
	target = canon

	out := make([]*model.Item, 0, len(target))
	i, j := 0, 0

	for i < len(target) && j < len(cur) {
		if cur[j] == target[i] {
			out = append(out, cur[j])
			i++
			j++
			continue
		}

		// Find where the sequences line up again
		ti, cj := -1, -1
		for k := i; k < len(target); k++ {
			if m, ok := curIndex[target[k].Path]; ok && m >= j && cur[m] == target[k] {
				ti, cj = k, m
				break
			}
		}
		if ti < 0 {
			// No resync: replace the overlapping range, tails follow
			n := min(len(target)-i, len(cur)-j)
			patches = append(patches, splice(len(out), n, target[i:i+n]))
			out = append(out, target[i:i+n]...)
			i += n
			j += n
			break
		}
		patches = append(patches, splice(len(out), cj-j, target[i:ti]))
		out = append(out, target[i:ti]...)
		i, j = ti, cj
	}

	if i < len(target) {
		patches = append(patches, splice(len(out), 0, target[i:]))
		out = append(out, target[i:]...)
	} else if j < len(cur) {
		patches = append(patches, splice(len(out), len(cur)-j, nil))
	}

	if len(patches) > 0 {
		p.items = out
		p.index = make(map[string]int, len(out))
		for k, it := range out {
			p.index[it.Path] = k
		}
	}
	reset := Reset{Target: p.target, Patches: patches, Len: len(p.items)}
	p.mu.Unlock()

	if len(patches) > 0 {
		debug.Log(debug.PATCH, "reconcile %q: %d patches, %d items", reset.Target, len(patches), reset.Len)
		p.emit(reset)
	}
	for _, path := range touched {
		p.emit(PropertyChanged{Path: path, Property: model.PropMetadata})
	}
	return patches
}

func splice(at, removed int, items []*model.Item) Patch {
	op := OpReplace
	switch {
	case removed == 0:
		op = OpInsert
	case len(items) == 0:
		op = OpRemove
	}
	cp := make([]*model.Item, len(items))
	copy(cp, items)
	return Patch{Op: op, Index: at, Removed: removed, Items: cp}
}

// Clear empties the collection and forgets its target.
func (p *Published) Clear() []Patch {
	patches := p.Reconcile(nil)
	p.SetTarget("")
	return patches
}

// SetTarget records which path the collection currently shows.
func (p *Published) SetTarget(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.target = path
}

// Target returns the path the collection currently shows.
func (p *Published) Target() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.target
}

// Snapshot returns a copy of the published sequence.
func (p *Published) Snapshot() []*model.Item {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*model.Item, len(p.items))
	copy(out, p.items)
	return out
}

// Len returns the number of published items.
func (p *Published) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

// Find returns the published item with the given path.
func (p *Published) Find(path string) (*model.Item, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	i, ok := p.index[path]
	if !ok {
		return nil, false
	}
	return p.items[i], true
}

// NotifyPropertyChanged tells subscribers that a published item changed in
// place. Paths that are not published are ignored.
func (p *Published) NotifyPropertyChanged(path, property string) {
	if _, ok := p.Find(path); !ok {
		return
	}
	p.emit(PropertyChanged{Path: path, Property: property})
}

// Subscribe registers an observer. Events are delivered without blocking
// the writer; when the buffer is full the event is dropped and the
// observer is expected to resynchronize from Snapshot on the next Reset.
// The returned function unsubscribes and closes the channel.
func (p *Published) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	p.subMu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	p.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.subMu.Lock()
			delete(p.subs, id)
			p.subMu.Unlock()
			close(ch)
		})
	}
}

// Dropped returns how many events were dropped for slow subscribers.
func (p *Published) Dropped() int64 {
	return p.dropped.Load()
}

func (p *Published) emit(ev Event) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- ev:
		default:
			p.dropped.Add(1)
		}
	}
}
