package watch

import (
	"github.com/fsnotify/fsnotify"
)

// eventBatch collects the events of one debounce window for a target and
// folds repeated changes of the same path into one event.
type eventBatch struct {
	target  string
	order   []string
	byPath  map[string]ChangeEvent
	renames []string // old names waiting for the matching Create
}

func newEventBatch(target string) *eventBatch {
	return &eventBatch{target: target, byPath: make(map[string]ChangeEvent)}
}

// add translates a raw notification. It returns false while a rename is
// waiting for its second half.
func (b *eventBatch) add(ev fsnotify.Event) (ChangeEvent, bool) {
	var ce ChangeEvent
	switch {
	case ev.Has(fsnotify.Create):
		if n := len(b.renames); n > 0 {
			old := b.renames[n-1]
			b.renames = b.renames[:n-1]
			ce = ChangeEvent{Op: Renamed, Path: ev.Name, OldPath: old}
		} else {
			ce = ChangeEvent{Op: Created, Path: ev.Name}
		}
	case ev.Has(fsnotify.Remove):
		ce = ChangeEvent{Op: Deleted, Path: ev.Name}
	case ev.Has(fsnotify.Rename):
		if ev.Name == b.target {
			ce = ChangeEvent{Op: Deleted, Path: ev.Name}
			break
		}
		b.renames = append(b.renames, ev.Name)
		return ChangeEvent{}, false
	default:
		ce = ChangeEvent{Op: Modified, Path: ev.Name}
	}
	b.record(ce)
	return ce, true
}

// flushRenames turns renames that never got a Create (moved out of the
// directory) into deletions.
func (b *eventBatch) flushRenames() []ChangeEvent {
	out := make([]ChangeEvent, 0, len(b.renames))
	for _, old := range b.renames {
		ce := ChangeEvent{Op: Deleted, Path: old}
		b.record(ce)
		out = append(out, ce)
	}
	b.renames = nil
	return out
}

func (b *eventBatch) merge(events []ChangeEvent) {
	for _, ce := range events {
		b.record(ce)
	}
}

func (b *eventBatch) record(ce ChangeEvent) {
	prev, seen := b.byPath[ce.Path]

	switch ce.Op {
	case Renamed:
		if before, ok := b.byPath[ce.OldPath]; ok {
			delete(b.byPath, ce.OldPath)
			if before.Op == Created {
				// Created and renamed inside one window
				ce = ChangeEvent{Op: Created, Path: ce.Path}
			} else if before.Op == Renamed {
				ce.OldPath = before.OldPath
			}
		}
	case Created:
		if seen && prev.Op == Deleted {
			ce = ChangeEvent{Op: Modified, Path: ce.Path}
		}
	case Deleted:
		if seen {
			switch prev.Op {
			case Created:
				delete(b.byPath, ce.Path)
				return
			case Renamed:
				delete(b.byPath, ce.Path)
				ce = ChangeEvent{Op: Deleted, Path: prev.OldPath}
			}
		}
	case Modified:
		if seen && prev.Op != Deleted {
			return
		}
	}

	if _, ok := b.byPath[ce.Path]; !ok {
		b.order = append(b.order, ce.Path)
	}
	b.byPath[ce.Path] = ce
}

// result returns the folded events in first-seen order.
func (b *eventBatch) result() []ChangeEvent {
	out := make([]ChangeEvent, 0, len(b.byPath))
	done := make(map[string]bool, len(b.byPath))
	for _, p := range b.order {
		if done[p] {
			continue
		}
		if ce, ok := b.byPath[p]; ok {
			out = append(out, ce)
			done[p] = true
		}
	}
	return out
}
