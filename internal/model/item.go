// Package model holds the types shared by every stage of the listing
// pipeline: raw entries read from a source and the items published to the
// consumer.
package model

import (
	"image"
	"io/fs"
	"sync"
	"time"
)

// Kind classifies an item for presentation and sorting.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
	KindArchive
	KindLibrary
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindArchive:
		return "archive"
	case KindLibrary:
		return "library"
	default:
		return "file"
	}
}

// SyncStatus is the cloud/remote synchronization state of an item.
type SyncStatus int

const (
	SyncUnknown SyncStatus = iota
	SyncNotApplicable
	SyncLocal     // Present locally, nothing to sync
	SyncCloudOnly // Exists only in remote storage
	SyncInSync
	SyncExcluded
)

func (s SyncStatus) String() string {
	switch s {
	case SyncNotApplicable:
		return "n/a"
	case SyncLocal:
		return "local"
	case SyncCloudOnly:
		return "cloud"
	case SyncInSync:
		return "synced"
	case SyncExcluded:
		return "excluded"
	default:
		return "unknown"
	}
}

// Icon is a rasterized icon or thumbnail.
type Icon struct {
	Size  int
	Image image.Image
	// Placeholder is true for per-extension icons that do not depict the
	// file's own content.
	Placeholder bool
}

// Property names carried by property-changed notifications.
const (
	PropName        = "name"
	PropIcon        = "icon"
	PropIconOverlay = "icon_overlay"
	PropSyncStatus  = "sync_status"
	PropMetadata    = "metadata"
)

// Props are the mutable properties of an Item.
type Props struct {
	Name        string
	CreatedAt   time.Time
	ModifiedAt  time.Time
	Size        int64
	SizeKnown   bool
	Icon        *Icon
	IconOverlay *Icon
	SyncStatus  SyncStatus
}

// Item is one filesystem entry shown to the user. Identity fields are
// immutable after construction; everything in Props is guarded by the
// item's lock because enrichment mutates published items in place.
type Item struct {
	Path         string
	Kind         Kind
	IsHidden     bool
	IsShortcut   bool
	IsExecutable bool

	mu    sync.RWMutex
	props Props
}

// NewItem creates an item with the given identity and initial properties.
func NewItem(path string, kind Kind, props Props) *Item {
	return &Item{Path: path, Kind: kind, props: props}
}

// Props returns a consistent copy of the item's mutable properties.
func (it *Item) Props() Props {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.props
}

// Name returns the current display name.
func (it *Item) Name() string {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.props.Name
}

// Icon returns the current icon, or nil.
func (it *Item) Icon() *Icon {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.props.Icon
}

// SyncStatus returns the current sync status.
func (it *Item) SyncStatus() SyncStatus {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.props.SyncStatus
}

// SetName replaces the display name. Returns false if unchanged.
func (it *Item) SetName(name string) bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.props.Name == name {
		return false
	}
	it.props.Name = name
	return true
}

// SetIcon replaces the icon. Returns false if unchanged.
func (it *Item) SetIcon(icon *Icon) bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.props.Icon == icon {
		return false
	}
	it.props.Icon = icon
	return true
}

// SetIconOverlay replaces the overlay icon. Returns false if unchanged.
func (it *Item) SetIconOverlay(icon *Icon) bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.props.IconOverlay == icon {
		return false
	}
	it.props.IconOverlay = icon
	return true
}

// SetSyncStatus replaces the sync status. Returns false if unchanged.
func (it *Item) SetSyncStatus(s SyncStatus) bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.props.SyncStatus == s {
		return false
	}
	it.props.SyncStatus = s
	return true
}

// SameEntry reports whether two items denote the same listing entry:
// same path and same kind.
func (it *Item) SameEntry(other *Item) bool {
	if it == other {
		return true
	}
	if it == nil || other == nil {
		return false
	}
	return it.Path == other.Path && it.Kind == other.Kind
}

// Absorb copies listing metadata (timestamps, size) from a freshly listed
// instance of the same entry. Presentation properties set by enrichment are
// kept. Returns true if anything changed.
func (it *Item) Absorb(fresh *Item) bool {
	if it == fresh {
		return false
	}
	p := fresh.Props()

	it.mu.Lock()
	defer it.mu.Unlock()
	changed := !it.props.ModifiedAt.Equal(p.ModifiedAt) ||
		!it.props.CreatedAt.Equal(p.CreatedAt) ||
		it.props.Size != p.Size ||
		it.props.SizeKnown != p.SizeKnown
	it.props.ModifiedAt = p.ModifiedAt
	it.props.CreatedAt = p.CreatedAt
	it.props.Size = p.Size
	it.props.SizeKnown = p.SizeKnown
	return changed
}

// SourceHint tells where a raw entry came from.
type SourceHint int

const (
	SourceNative SourceHint = iota
	SourceStorage
	SourceCloud
)

// RawEntry is an entry as produced by an entry source, before conversion
// into an Item.
type RawEntry struct {
	Name      string
	Path      string
	IsDir     bool
	Size      int64
	Mode      fs.FileMode
	ModTime   time.Time // zero if unknown
	CreatedAt time.Time // zero if unknown
	IsSymlink bool
	Hidden    bool // set by sources with an explicit hidden attribute
	Source    SourceHint
}
