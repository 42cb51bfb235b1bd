package listing

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/justyntemme/razorlist/internal/collection"
	"github.com/justyntemme/razorlist/internal/debug"
	"github.com/justyntemme/razorlist/internal/enrich"
	"github.com/justyntemme/razorlist/internal/fs"
	"github.com/justyntemme/razorlist/internal/metrics"
	"github.com/justyntemme/razorlist/internal/model"
	"github.com/justyntemme/razorlist/internal/order"
	"github.com/justyntemme/razorlist/internal/query"
	"github.com/justyntemme/razorlist/internal/watch"
)

// Session is one live listing: a target path, the collection published for
// it, and the watcher keeping it current. All enumeration for the session
// is serialized through its gate.
type Session struct {
	ID             string
	IsSearchResult bool

	coord   *Coordinator
	search  fs.EntrySource
	query   *query.Query
	staging *collection.Staging
	pub     *publisher
	gate    *semaphore.Weighted

	life     context.Context
	shutdown context.CancelFunc
	wg       sync.WaitGroup

	mu           sync.Mutex
	seq          uint64
	target       string
	state        State
	last         ListResult
	cancelEnum   context.CancelFunc
	cancelGate   context.CancelFunc
	enrichCtx    context.Context
	cancelEnrich context.CancelFunc
	sort         *order.Options
	hidden       *bool
	enriched     map[*model.Item]struct{}

	watcher      *watch.Watcher
	hasNoWatcher bool
	vcs          watch.VCSInfo
	vcsValid     bool

	results    chan ListResult
	vcsChanges chan string
	refresh    chan string
	disposed   sync.Once
}

// call is one List invocation's pair of cancellation tokens.
type call struct {
	seq     uint64
	target  string
	ctx     context.Context // enumeration token
	gateCtx context.Context // gate-wait token
	release func()
}

// NewSession creates an idle session. Call SetTarget to start listing.
func (c *Coordinator) NewSession() *Session {
	return c.newSession(nil, nil)
}

// NewSearchSession creates a session listing the entries below root that
// match q. Search results are never watched.
func (c *Coordinator) NewSearchSession(q *query.Query) *Session {
	src := fs.NewSearchSource(q, c.Config.SearchDepth)
	src.Engine = c.Config.ContentEngine
	return c.newSession(src, q)
}

func (c *Coordinator) newSession(search fs.EntrySource, q *query.Query) *Session {
	life, shutdown := context.WithCancel(context.Background())
	enrichCtx, cancelEnrich := context.WithCancel(life)
	s := &Session{
		ID:             uuid.NewString(),
		IsSearchResult: search != nil,
		coord:          c,
		search:         search,
		query:          q,
		staging:        collection.NewStaging(),
		pub:            newPublisher(collection.NewPublished()),
		gate:           semaphore.NewWeighted(1),
		life:           life,
		shutdown:       shutdown,
		enrichCtx:      enrichCtx,
		cancelEnrich:   cancelEnrich,
		enriched:       make(map[*model.Item]struct{}),
		hasNoWatcher:   true,
		results:        make(chan ListResult, 16),
		vcsChanges:     make(chan string, 1),
		refresh:        make(chan string, 1),
	}

	if c.Config.Watch && search == nil {
		w, err := watch.New(c.Config.Debounce)
		if err != nil {
			debug.Log(debug.WATCH, "[%s] watcher unavailable: %v", s.short(), err)
		} else {
			s.watcher = w
		}
	}

	metrics.SessionOpened()
	s.wg.Add(1)
	go s.loop()
	debug.Log(debug.LIST, "[%s] session created (search=%v)", s.short(), s.IsSearchResult)
	return s
}

func (s *Session) short() string {
	if len(s.ID) > 8 {
		return s.ID[:8]
	}
	return s.ID
}

// begin rotates the session's tokens for a new call: the previous
// enumeration, its gate wait and any running enrichment are cancelled.
func (s *Session) begin(ctx context.Context, target string) *call {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelEnum != nil {
		s.cancelEnum()
	}
	if s.cancelGate != nil {
		s.cancelGate()
	}
	s.cancelEnrich()
	s.enrichCtx, s.cancelEnrich = context.WithCancel(s.life)

	s.seq++
	s.target = target
	enumCtx, cancelEnum := context.WithCancel(ctx)
	stopLife := context.AfterFunc(s.life, cancelEnum)
	if s.life.Err() != nil {
		cancelEnum()
	}
	gateCtx, cancelGate := context.WithCancel(enumCtx)
	s.cancelEnum, s.cancelGate = cancelEnum, cancelGate

	return &call{
		seq:     s.seq,
		target:  target,
		ctx:     enumCtx,
		gateCtx: gateCtx,
		release: func() {
			stopLife()
			cancelGate()
			cancelEnum()
		},
	}
}

// SetTarget switches the session to path and starts listing it. It
// returns immediately; outcomes arrive on Results.
func (s *Session) SetTarget(path string) {
	if s.life.Err() != nil {
		return
	}
	path = ExpandPath(path, s.Target())

	s.mu.Lock()
	changed := s.target != path
	s.target = path
	s.sort = nil
	s.mu.Unlock()

	if changed {
		s.attachWatcher(path)
	}
	s.start(path)
}

// Refresh re-lists the current target. Requests arriving while one is
// already queued collapse into it.
func (s *Session) Refresh(reason string) {
	if s.life.Err() != nil || s.Target() == "" {
		return
	}
	metrics.RecordRefresh(reason)
	select {
	case s.refresh <- reason:
	default:
		debug.Log(debug.LIST, "[%s] refresh (%s) collapsed into a pending one", s.short(), reason)
	}
}

func (s *Session) start(target string) {
	cl := s.begin(s.life, target)
	if !s.spawn(func() { s.coord.run(s, cl) }) {
		cl.release()
	}
}

// spawn runs fn on a goroutine tracked by Dispose. It returns false, without
// running fn, once the session is disposed.
func (s *Session) spawn(fn func()) bool {
	s.mu.Lock()
	if s.life.Err() != nil {
		s.mu.Unlock()
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		fn()
	}()
	return true
}

// loop serializes refresh requests, watcher output and VCS signals.
func (s *Session) loop() {
	defer s.wg.Done()

	var (
		watchRefresh <-chan watch.RefreshRequest
		vcs          <-chan string
	)
	if s.watcher != nil {
		watchRefresh = s.watcher.Refresh()
		vcs = s.watcher.VCSChanged()
	}

	for {
		select {
		case <-s.life.Done():
			return

		case reason := <-s.refresh:
			target := s.Target()
			if s.HasNoWatcher() && s.watcher != nil {
				s.attachWatcher(target)
			}
			debug.Log(debug.LIST, "[%s] refresh %q (%s)", s.short(), target, reason)
			s.start(target)

		case req := <-watchRefresh:
			if req.Target != s.Target() {
				continue
			}
			if s.coord.ApplyChanges(s.life, s, req.Events) {
				continue
			}
			s.Refresh("watch")

		case dir := <-vcs:
			select {
			case s.vcsChanges <- dir:
			default:
			}
		}
	}
}

// attachWatcher points the watcher at path and records the working tree
// the path belongs to. Paths without native change notification, and
// failures to subscribe, leave the session without a watcher; it then
// relies on explicit refreshes.
func (s *Session) attachWatcher(path string) {
	native := fs.SupportsNativeWatch(path)
	info, inTree := watch.VCSInfo{}, false
	if native {
		info, inTree = watch.DetectVCS(path)
	}

	watching := false
	switch {
	case s.watcher == nil:
		debug.Log(debug.WATCH, "[%s] watching disabled for %q", s.short(), path)
	case !native:
		debug.Log(debug.WATCH, "[%s] no native notifications for %q", s.short(), path)
		s.watcher.Unwatch()
	default:
		if err := s.watcher.Watch(path); err != nil {
			debug.Log(debug.WATCH, "[%s] subscribe to %q failed: %v", s.short(), path, err)
			s.watcher.Unwatch()
			break
		}
		watching = true

		meta := ""
		if inTree && s.coord.Config.WatchVCS {
			meta = info.MetaDir
		}
		if err := s.watcher.WatchVCS(meta); err != nil {
			debug.Log(debug.WATCH, "[%s] vcs watch %q: %v", s.short(), meta, err)
		}
	}

	s.mu.Lock()
	s.hasNoWatcher = !watching
	s.vcs, s.vcsValid = info, inTree
	s.mu.Unlock()
}

// HasNoWatcher reports whether the listing is only updated by explicit
// refreshes.
func (s *Session) HasNoWatcher() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasNoWatcher
}

// VCS returns the working tree the target belongs to. ok is false when the
// target is not under version control.
func (s *Session) VCS() (info watch.VCSInfo, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vcs, s.vcsValid
}

// Target returns the most recently requested target.
func (s *Session) Target() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// State returns the coordinator state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastResult returns the outcome of the most recent completed call.
func (s *Session) LastResult() ListResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// finish records a completed call and reports it. Cancellations are not
// reported.
func (s *Session) finish(res ListResult) {
	s.mu.Lock()
	s.state = Idle
	if res.State != Cancelled {
		s.last = res
	}
	s.mu.Unlock()

	if res.State == Cancelled {
		return
	}
	for {
		select {
		case s.results <- res:
			return
		default:
		}
		// Drop the oldest unread outcome
		select {
		case <-s.results:
		default:
		}
	}
}

// Snapshot returns the published items in order.
func (s *Session) Snapshot() []*model.Item {
	return s.pub.coll.Snapshot()
}

// Subscribe registers for Reset and PropertyChanged events of the
// published collection.
func (s *Session) Subscribe(buffer int) (<-chan collection.Event, func()) {
	return s.pub.coll.Subscribe(buffer)
}

// Results delivers the terminal outcome of every completed listing.
func (s *Session) Results() <-chan ListResult { return s.results }

// VCSChanges delivers the metadata directory of the working tree each time
// its state settles after a change.
func (s *Session) VCSChanges() <-chan string { return s.vcsChanges }

// SetSort changes the order of the listing and re-publishes it. With
// per-folder settings enabled the choice is saved for the target.
func (s *Session) SetSort(ctx context.Context, opts order.Options) error {
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.gate.Release(1)

	s.mu.Lock()
	s.sort = &opts
	target := s.target
	s.mu.Unlock()

	s.pub.reconcile(order.Sort(s.staging.Snapshot(), opts))

	c := s.coord
	if c.Views != nil && c.Config.RememberSort && !s.IsSearchResult && target != "" {
		return c.Views.SetSort(ctx, target, opts)
	}
	return nil
}

func (s *Session) sortOverride() (order.Options, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sort == nil {
		return order.Options{}, false
	}
	return *s.sort, true
}

// SetShowHidden changes hidden item visibility for this session and
// re-lists the target.
func (s *Session) SetShowHidden(show bool) {
	s.mu.Lock()
	s.hidden = &show
	s.mu.Unlock()
	s.Refresh("hidden")
}

func (s *Session) showHidden() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hidden != nil {
		return *s.hidden
	}
	// A search asking about hidden entries decides for itself
	if s.query != nil {
		for _, d := range s.query.Directives {
			if d.Type == query.DirHidden {
				return true
			}
		}
	}
	return s.coord.Config.ShowHidden
}

func (s *Session) enrichContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enrichCtx
}

func (s *Session) forgetEnriched() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enriched = make(map[*model.Item]struct{})
}

// pendingEnrichment returns the published items not yet fully enriched and
// forgets items that are no longer published.
func (s *Session) pendingEnrichment() []*model.Item {
	items := s.pub.coll.Snapshot()
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make(map[*model.Item]struct{}, len(s.enriched))
	var pending []*model.Item
	for _, it := range items {
		if _, ok := s.enriched[it]; ok {
			kept[it] = struct{}{}
		} else {
			pending = append(pending, it)
		}
	}
	s.enriched = kept
	return pending
}

func (s *Session) enrichSink() enrich.Notifier {
	return enrichSink{s}
}

// enrichSink forwards enrichment notifications to the publisher and
// remembers completed items.
type enrichSink struct {
	s *Session
}

func (e enrichSink) NotifyPropertyChanged(path, property string) {
	e.s.pub.NotifyPropertyChanged(path, property)
}

func (e enrichSink) Enriched(it *model.Item) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	e.s.enriched[it] = struct{}{}
}

// Dispose cancels all work, detaches the watcher and stops the publisher.
// It waits for running calls to return.
func (s *Session) Dispose() {
	s.disposed.Do(func() {
		s.mu.Lock()
		s.shutdown()
		s.mu.Unlock()
		if s.watcher != nil {
			s.watcher.Close()
		}
		s.wg.Wait()
		s.pub.stop()
		metrics.SessionClosed()
		debug.Log(debug.LIST, "[%s] disposed", s.short())
	})
}
