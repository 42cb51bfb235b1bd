// Package enrich installs the expensive properties of listed items after
// they are published: icons and thumbnails, cloud sync status, and display
// names that differ from the file name.
package enrich

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/justyntemme/razorlist/internal/debug"
	"github.com/justyntemme/razorlist/internal/metrics"
	"github.com/justyntemme/razorlist/internal/model"
)

// IconProvider produces the icon or thumbnail for a path. A nil icon with
// a nil error means the provider has nothing better than the default.
type IconProvider interface {
	GetIcon(ctx context.Context, path string, size int) (*model.Icon, error)
}

// SyncStatusProber reports the cloud sync state of a path.
type SyncStatusProber interface {
	SyncStatus(ctx context.Context, path string) (model.SyncStatus, error)
}

// Notifier receives a property-changed notification for every property the
// loader changes on a published item.
type Notifier interface {
	NotifyPropertyChanged(path, property string)
}

// CompletionNotifier is an optional Notifier extension told about every
// item whose enrichment ran to the end without being cancelled.
type CompletionNotifier interface {
	Notifier
	Enriched(it *model.Item)
}

// Loader enriches items on a bounded worker pool. Every step checks for
// cancellation before and after its I/O; a cancelled item keeps whatever
// it had when it was published.
type Loader struct {
	Icons    IconProvider
	Sync     SyncStatusProber
	IconSize int
	Workers  int

	mu       sync.Mutex
	inflight map[string]*itemToken
}

type itemToken struct {
	cancel context.CancelFunc
}

// NewLoader creates a loader. Either collaborator may be nil to skip its
// step.
func NewLoader(icons IconProvider, prober SyncStatusProber, iconSize, workers int) *Loader {
	if iconSize <= 0 {
		iconSize = 48
	}
	if workers <= 0 {
		workers = 4
	}
	return &Loader{
		Icons:    icons,
		Sync:     prober,
		IconSize: iconSize,
		Workers:  workers,
		inflight: make(map[string]*itemToken),
	}
}

// CancelItem aborts the in-flight enrichment of path, if any, without
// touching the rest of the pool.
func (l *Loader) CancelItem(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if tok, ok := l.inflight[path]; ok {
		tok.cancel()
		delete(l.inflight, path)
		debug.Log(debug.ENRICH, "cancel requested: %s", path)
	}
}

// EnrichAll enriches items with at most Workers running at once. It
// returns ctx.Err() if the batch was cancelled; step errors are never
// returned.
func (l *Loader) EnrichAll(ctx context.Context, items []*model.Item, n Notifier) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.Workers)

	for _, it := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if l.Enrich(gctx, it, n) {
				if cn, ok := n.(CompletionNotifier); ok {
					cn.Enriched(it)
				}
			}
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		debug.Log(debug.ENRICH, "batch cancelled after %d items: %v", len(items), err)
		return err
	}
	return nil
}

// Enrich runs every step for one item. It reports false if the item was
// cancelled before all steps ran.
func (l *Loader) Enrich(ctx context.Context, it *model.Item, n Notifier) bool {
	ctx, done := l.begin(ctx, it.Path)
	defer done()

	if l.Icons != nil && !l.stopped(ctx, "icon") {
		l.loadIcon(ctx, it, n)
	}
	if l.Sync != nil && !l.stopped(ctx, "sync") {
		l.probeSync(ctx, it, n)
	}
	if !l.stopped(ctx, "name") {
		l.correctName(ctx, it, n)
	}
	return ctx.Err() == nil
}

func (l *Loader) begin(ctx context.Context, path string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	tok := &itemToken{cancel: cancel}

	l.mu.Lock()
	if prev, ok := l.inflight[path]; ok {
		prev.cancel()
	}
	l.inflight[path] = tok
	l.mu.Unlock()

	return ctx, func() {
		l.mu.Lock()
		if l.inflight[path] == tok {
			delete(l.inflight, path)
		}
		l.mu.Unlock()
		cancel()
	}
}

func (l *Loader) stopped(ctx context.Context, step string) bool {
	if ctx.Err() == nil {
		return false
	}
	metrics.RecordEnrichCancelled(step)
	return true
}

func (l *Loader) loadIcon(ctx context.Context, it *model.Item, n Notifier) {
	icon, err := l.Icons.GetIcon(ctx, it.Path, l.IconSize)
	if l.stopped(ctx, "icon") {
		return
	}
	if err != nil {
		debug.Log(debug.ENRICH, "icon %s: %v", it.Path, err)
		metrics.RecordEnrichStep("icon", false)
		return
	}
	metrics.RecordEnrichStep("icon", true)
	if icon != nil && it.SetIcon(icon) {
		n.NotifyPropertyChanged(it.Path, model.PropIcon)
	}
}

func (l *Loader) probeSync(ctx context.Context, it *model.Item, n Notifier) {
	status, err := l.Sync.SyncStatus(ctx, it.Path)
	if l.stopped(ctx, "sync") {
		return
	}
	if err != nil {
		debug.Log(debug.ENRICH, "sync status %s: %v", it.Path, err)
		metrics.RecordEnrichStep("sync", false)
		return
	}
	metrics.RecordEnrichStep("sync", true)
	if it.SetSyncStatus(status) {
		n.NotifyPropertyChanged(it.Path, model.PropSyncStatus)
	}
}

func (l *Loader) correctName(ctx context.Context, it *model.Item, n Notifier) {
	name, ok := DisplayName(it)
	if !ok || l.stopped(ctx, "name") {
		return
	}
	metrics.RecordEnrichStep("name", true)
	if it.SetName(name) {
		n.NotifyPropertyChanged(it.Path, model.PropName)
	}
}
