// Package item converts raw directory entries into listing items.
package item

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/justyntemme/razorlist/internal/model"
)

var archiveExts = map[string]bool{
	".zip": true, ".7z": true, ".rar": true, ".tar": true, ".gz": true, ".tgz": true,
}

var shortcutExts = map[string]bool{
	".lnk": true, ".url": true, ".desktop": true,
}

var executableExts = map[string]bool{
	".exe": true, ".bat": true, ".cmd": true, ".com": true, ".sh": true,
}

const libraryExt = ".library-ms"

// earliestValid is the start of the Windows file-time epoch. Anything older
// is treated as garbage from the source.
var earliestValid = time.Date(1601, 1, 1, 0, 0, 0, 0, time.UTC)

// Factory builds items. It performs no I/O: icons come from the cache only.
type Factory struct {
	Icons    *IconCache // may be nil
	IconSize int
	// Now supplies the substitute for missing or invalid timestamps.
	Now func() time.Time
}

// NewFactory creates a factory with the wall clock.
func NewFactory(icons *IconCache, iconSize int) *Factory {
	return &Factory{Icons: icons, IconSize: iconSize, Now: time.Now}
}

// Build converts one raw entry.
func (f *Factory) Build(raw model.RawEntry) *model.Item {
	now := f.now()
	ext := strings.ToLower(filepath.Ext(raw.Name))

	kind := model.KindFile
	switch {
	case raw.IsDir:
		kind = model.KindDirectory
	case ext == libraryExt:
		kind = model.KindLibrary
	case archiveExts[ext]:
		kind = model.KindArchive
	}

	props := model.Props{
		Name:       raw.Name,
		CreatedAt:  validTime(raw.CreatedAt, now),
		ModifiedAt: validTime(raw.ModTime, now),
	}
	if raw.CreatedAt.IsZero() && !raw.ModTime.IsZero() {
		props.CreatedAt = props.ModifiedAt
	}
	if !raw.IsDir {
		props.Size = raw.Size
		props.SizeKnown = raw.Size >= 0
	}
	if raw.Source == model.SourceCloud {
		props.SyncStatus = model.SyncCloudOnly
	}

	it := model.NewItem(raw.Path, kind, props)
	it.IsHidden = raw.Hidden || strings.HasPrefix(raw.Name, ".")
	it.IsShortcut = raw.IsSymlink || shortcutExts[ext]
	it.IsExecutable = !raw.IsDir && (raw.Mode.Perm()&0o111 != 0 || executableExts[ext])

	if f.Icons != nil {
		key := IconKey{Ext: ext, Size: f.IconSize}
		if raw.IsDir {
			key.Ext = FolderExt
		}
		if icon, ok := f.Icons.Get(key); ok {
			it.SetIcon(icon)
		}
	}
	return it
}

// BuildAll converts a batch, keeping its order.
func (f *Factory) BuildAll(raws []model.RawEntry) []*model.Item {
	items := make([]*model.Item, len(raws))
	for i, raw := range raws {
		items[i] = f.Build(raw)
	}
	return items
}

func (f *Factory) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

// validTime substitutes now for zero, pre-1601 and far-future timestamps.
func validTime(t, now time.Time) time.Time {
	if t.IsZero() || t.Before(earliestValid) || t.After(now.AddDate(100, 0, 0)) {
		return now
	}
	return t
}
