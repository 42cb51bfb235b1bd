// Package listing runs live directory listings: it selects the entry
// source for a target, streams its batches through staging, ordering and
// reconciliation into the published collection, and keeps the listing
// current as the directory changes.
package listing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/justyntemme/razorlist/internal/debug"
	"github.com/justyntemme/razorlist/internal/enrich"
	"github.com/justyntemme/razorlist/internal/fs"
	"github.com/justyntemme/razorlist/internal/item"
	"github.com/justyntemme/razorlist/internal/metrics"
	"github.com/justyntemme/razorlist/internal/model"
	"github.com/justyntemme/razorlist/internal/order"
	"github.com/justyntemme/razorlist/internal/query"
	"github.com/justyntemme/razorlist/internal/watch"
)

// State is the coordinator state of a session.
type State int

const (
	Idle State = iota
	Enumerating
	Success
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Enumerating:
		return "enumerating"
	case Success:
		return "success"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// ListResult is the terminal outcome of one List call.
type ListResult struct {
	Target   string
	State    State
	Kind     fs.ErrorKind // failure kind; PartialEnumeration keeps Count items
	Err      error
	Strategy fs.Strategy
	FellBack bool // the bulk strategy failed and the item strategy ran
	Count    int
	Duration time.Duration
}

// Partial reports whether the listing ended early but kept what it staged.
func (r ListResult) Partial() bool {
	return r.Kind == fs.PartialEnumeration
}

func (r ListResult) outcome() string {
	if r.State == Failed {
		return r.Kind.String()
	}
	return r.State.String()
}

// Selector picks the strategy for a path. *fs.Policy implements it.
type Selector interface {
	Select(path string) fs.Outcome
}

// ItemStrategy lists folders and reads single entries through storage
// providers. *fs.ItemSource implements it.
type ItemStrategy interface {
	fs.EntrySource
	Stat(ctx context.Context, path string) (model.RawEntry, error)
}

// ViewSettings persists per-folder sort settings. *store.DB implements it.
type ViewSettings interface {
	GetSort(ctx context.Context, folder string) (order.Options, bool, error)
	SetSort(ctx context.Context, folder string, opts order.Options) error
}

// Config holds the coordinator settings shared by its sessions.
type Config struct {
	BatchSize       int
	ShowHidden      bool
	Sort            order.Options
	RememberSort    bool
	ChangeThreshold int // watcher bursts above this re-list the directory
	Watch           bool
	WatchVCS        bool
	Debounce        time.Duration
	SearchDepth     int
	ContentEngine   query.Engine // backend for contents directives in searches
}

// Coordinator runs enumerations for sessions. It holds no per-session
// state; every session owns its gate, staging and published collection.
type Coordinator struct {
	Policy  Selector
	Bulk    fs.EntrySource
	Items   ItemStrategy
	Factory *item.Factory
	Loader  *enrich.Loader // nil disables enrichment
	Views   ViewSettings   // nil disables per-folder sort
	Config  Config
}

// NewCoordinator creates a coordinator with default settings filled in.
func NewCoordinator(policy Selector, bulk fs.EntrySource, items ItemStrategy, factory *item.Factory, cfg Config) *Coordinator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 256
	}
	if cfg.ChangeThreshold <= 0 {
		cfg.ChangeThreshold = 32
	}
	if cfg.SearchDepth <= 0 {
		cfg.SearchDepth = 10
	}
	if factory == nil {
		factory = item.NewFactory(nil, 0)
	}
	return &Coordinator{
		Policy:  policy,
		Bulk:    bulk,
		Items:   items,
		Factory: factory,
		Config:  cfg,
	}
}

// List enumerates target into the session's published collection and
// returns the terminal outcome. A newer List on the same session cancels
// this one; if that happens before this call gets the gate, this call
// returns Cancelled without touching the session.
func (c *Coordinator) List(ctx context.Context, s *Session, target string) ListResult {
	return c.run(s, s.begin(ctx, target))
}

func (c *Coordinator) run(s *Session, cl *call) ListResult {
	defer cl.release()
	start := time.Now()

	if err := s.gate.Acquire(cl.gateCtx, 1); err != nil {
		return c.abandon(s, cl)
	}
	defer s.gate.Release(1)
	if cl.gateCtx.Err() != nil {
		return c.abandon(s, cl)
	}

	s.setState(Enumerating)
	debug.Log(debug.LIST, "[%s] list %q (call %d)", s.short(), cl.target, cl.seq)

	res := c.enumerate(s, cl)
	res.Duration = time.Since(start)
	metrics.RecordEnumeration(res.Strategy.String(), res.outcome(), res.Count, res.Duration)
	debug.Log(debug.LIST, "[%s] %q: %s via %s, %d items in %v", s.short(), cl.target, res.outcome(), res.Strategy, res.Count, res.Duration)

	s.finish(res)
	return res
}

func (c *Coordinator) abandon(s *Session, cl *call) ListResult {
	metrics.RecordGateAbandoned()
	debug.Log(debug.LIST, "[%s] call %d for %q abandoned while waiting for the gate", s.short(), cl.seq, cl.target)
	return ListResult{
		Target: cl.target,
		State:  Cancelled,
		Kind:   fs.Cancelled,
		Err:    fs.NewError(fs.Cancelled, cl.target, cl.gateCtx.Err()),
	}
}

// enumerate is the body of a List call; it runs inside the gate.
func (c *Coordinator) enumerate(s *Session, cl *call) ListResult {
	res := ListResult{Target: cl.target}

	s.staging.Clear()
	changed, empty := s.pub.prepare(cl.target)
	if changed {
		s.forgetEnriched()
	}
	// A refresh of the shown listing publishes once at the end so the view
	// never shrinks to a partial result.
	progressive := changed || empty
	opts := c.sortFor(cl.ctx, s, cl.target)

	src, strategy, err := c.selectSource(s, cl.target)
	if err != nil {
		return c.fail(s, res, err)
	}
	res.Strategy = strategy

	count, err := c.stream(cl, s, src, opts, progressive)
	if err != nil && strategy == fs.StrategyBulk && cl.ctx.Err() == nil && fs.IsFallbackable(fs.KindOf(err)) {
		kind := fs.KindOf(err)
		metrics.RecordFallback(kind.String())
		debug.Log(debug.LIST, "[%s] bulk scan of %q failed (%v), retrying with the item strategy", s.short(), cl.target, err)

		s.staging.Clear()
		res.Strategy = fs.StrategyItem
		res.FellBack = true
		count, err = c.stream(cl, s, c.Items, opts, progressive)
	}
	res.Count = count

	switch {
	case err == nil:
		res.State = Success
	case cl.ctx.Err() != nil || fs.KindOf(err) == fs.Cancelled:
		// Shown results stay; a newer call clears staging itself.
		res.State = Cancelled
		res.Kind = fs.Cancelled
		res.Err = fs.NewError(fs.Cancelled, cl.target, err)
		return res
	case count > 0:
		res.State = Failed
		res.Kind = fs.PartialEnumeration
		res.Err = fs.NewError(fs.PartialEnumeration, cl.target, err)
	default:
		return c.fail(s, res, err)
	}

	sorted := order.Sort(s.staging.Snapshot(), opts)
	s.pub.reconcile(sorted)
	adoptPublished(s)
	c.startEnrichment(s, s.pendingEnrichment())
	return res
}

// adoptPublished makes staging hold the published instance of every shown
// entry, since reconcile keeps those over freshly built ones.
func adoptPublished(s *Session) {
	s.staging.AppendBatch(s.pub.coll.Snapshot())
}

func (c *Coordinator) fail(s *Session, res ListResult, err error) ListResult {
	s.staging.Clear()
	s.pub.reconcile(nil)
	res.State = Failed
	res.Kind = fs.KindOf(err)
	res.Err = fs.MapError(res.Target, err)
	return res
}

func (c *Coordinator) selectSource(s *Session, target string) (fs.EntrySource, fs.Strategy, error) {
	if s.search != nil {
		return s.search, fs.StrategyBulk, nil
	}

	switch o := c.Policy.Select(target).(type) {
	case fs.NativeScan:
		return c.Bulk, fs.StrategyBulk, nil
	case fs.StorageAPI:
		debug.Log(debug.LIST, "[%s] %q uses the storage API (%s, cloud=%v)", s.short(), target, o.Scheme, o.CloudHint)
		return c.Items, fs.StrategyItem, nil
	case fs.Failed:
		return nil, fs.StrategyNone, o.Err
	default:
		return nil, fs.StrategyNone, fmt.Errorf("unhandled strategy outcome %T", o)
	}
}

// stream drains src into staging. With progressive set every batch is
// published as soon as it is staged.
func (c *Coordinator) stream(cl *call, s *Session, src fs.EntrySource, opts order.Options, progressive bool) (int, error) {
	h, err := src.Open(cl.ctx, cl.target)
	if err != nil {
		return 0, err
	}
	defer h.Close()

	count := 0
	for {
		batch, err := h.NextBatch(cl.ctx, c.Config.BatchSize)
		if len(batch) > 0 {
			items := c.filter(s, c.Factory.BuildAll(batch))
			s.staging.AppendBatch(items)
			count += len(items)
			if progressive && len(items) > 0 && cl.ctx.Err() == nil {
				s.pub.reconcile(order.Sort(s.staging.Snapshot(), opts))
			}
		}
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, err
		}
	}
}

func (c *Coordinator) filter(s *Session, items []*model.Item) []*model.Item {
	if s.showHidden() {
		return items
	}
	out := items[:0]
	for _, it := range items {
		if !it.IsHidden {
			out = append(out, it)
		}
	}
	return out
}

func (c *Coordinator) sortFor(ctx context.Context, s *Session, target string) order.Options {
	if opts, ok := s.sortOverride(); ok {
		return opts
	}
	if c.Views != nil && c.Config.RememberSort && s.search == nil {
		opts, ok, err := c.Views.GetSort(ctx, target)
		if err != nil {
			debug.Log(debug.LIST, "[%s] view settings for %q: %v", s.short(), target, err)
		} else if ok {
			return opts
		}
	}
	return c.Config.Sort
}

func (c *Coordinator) startEnrichment(s *Session, items []*model.Item) {
	if c.Loader == nil || len(items) == 0 {
		return
	}
	ctx := s.enrichContext()
	s.spawn(func() {
		if err := c.Loader.EnrichAll(ctx, items, s.enrichSink()); err != nil {
			debug.Log(debug.ENRICH, "[%s] enrichment stopped: %v", s.short(), err)
		}
	})
}

// ApplyChanges reconciles a small burst of watcher events item by item.
// It returns false when the caller should re-list the directory instead:
// the burst is too large, an enumeration holds the gate, or an entry
// could not be read.
func (c *Coordinator) ApplyChanges(ctx context.Context, s *Session, events []watch.ChangeEvent) bool {
	if s.search != nil || len(events) == 0 || len(events) > c.Config.ChangeThreshold {
		return false
	}
	if !s.gate.TryAcquire(1) {
		return false
	}
	defer s.gate.Release(1)

	target := s.Target()
	if target == "" || s.pub.coll.Target() != target {
		return false
	}

	var fresh []*model.Item
	for _, ev := range events {
		if filepath.Dir(ev.Path) != target {
			return false
		}
		switch ev.Op {
		case watch.Deleted:
			c.removeEntry(s, ev.Path)
		case watch.Renamed:
			c.removeEntry(s, ev.OldPath)
			fallthrough
		default:
			it, ok := c.statEntry(ctx, s, ev.Path)
			if !ok {
				return false
			}
			if it != nil {
				fresh = append(fresh, it)
			}
		}
	}

	opts := c.sortFor(ctx, s, target)
	patches := s.pub.reconcile(order.Sort(s.staging.Snapshot(), opts))
	adoptPublished(s)
	debug.Log(debug.LIST, "[%s] applied %d change events to %q (%d patches)", s.short(), len(events), target, len(patches))

	var pending []*model.Item
	for _, it := range fresh {
		if published, ok := s.pub.coll.Find(it.Path); ok && published == it {
			pending = append(pending, it)
		}
	}
	c.startEnrichment(s, pending)
	return true
}

func (c *Coordinator) removeEntry(s *Session, path string) {
	s.staging.Remove(path)
	if c.Loader != nil {
		c.Loader.CancelItem(path)
	}
}

// statEntry reads path and upserts it into staging. A vanished or hidden
// entry is removed; ok is false when the entry could not be read.
func (c *Coordinator) statEntry(ctx context.Context, s *Session, path string) (*model.Item, bool) {
	raw, err := c.Items.Stat(ctx, path)
	if err != nil {
		if fs.KindOf(err) == fs.NotFound {
			c.removeEntry(s, path)
			return nil, true
		}
		debug.Log(debug.LIST, "[%s] stat %q: %v", s.short(), path, err)
		return nil, false
	}

	it := c.Factory.Build(raw)
	if it.IsHidden && !s.showHidden() {
		c.removeEntry(s, path)
		return nil, true
	}
	if c.Loader != nil {
		c.Loader.CancelItem(path)
	}
	s.staging.Upsert(it)
	return it, true
}
