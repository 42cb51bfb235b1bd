// Package watch turns filesystem notifications for a listed directory into
// coalesced refresh requests, and tracks the VCS metadata directory of the
// working tree the listing belongs to.
package watch

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/justyntemme/razorlist/internal/debug"
	"github.com/justyntemme/razorlist/internal/metrics"
)

// Op is the kind of a change event.
type Op int

const (
	Created Op = iota
	Deleted
	Renamed
	Modified
)

func (o Op) String() string {
	switch o {
	case Created:
		return "created"
	case Deleted:
		return "deleted"
	case Renamed:
		return "renamed"
	default:
		return "modified"
	}
}

// ChangeEvent is one change inside the watched directory. OldPath is set
// for Renamed only.
type ChangeEvent struct {
	Op      Op
	Path    string
	OldPath string
}

// RefreshRequest asks for a re-enumeration of Target. Events holds the
// de-duplicated changes of the debounce window.
type RefreshRequest struct {
	Target string
	Reason string
	Events []ChangeEvent
}

// Watcher watches one target directory and, optionally, one VCS metadata
// directory. Bursts of events are debounced into a single RefreshRequest.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu     sync.Mutex
	target string
	vcsDir string

	events  chan ChangeEvent
	refresh chan RefreshRequest
	vcs     chan string
	done    chan struct{}
	once    sync.Once
}

// New creates a watcher. A non-positive debounce defaults to 200ms.
func New(debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	w := &Watcher{
		watcher:  fw,
		debounce: debounce,
		events:   make(chan ChangeEvent, 256),
		refresh:  make(chan RefreshRequest, 1),
		vcs:      make(chan string, 1),
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Watch makes target the watched directory, replacing the previous one.
func (w *Watcher) Watch(target string) error {
	target = filepath.Clean(target)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.target == target {
		return nil
	}
	if err := w.watcher.Add(target); err != nil {
		return err
	}
	if w.target != "" && w.target != w.vcsDir {
		if err := w.watcher.Remove(w.target); err != nil {
			debug.Log(debug.WATCH, "unwatch %s: %v", w.target, err)
		}
	}
	w.target = target
	debug.Log(debug.WATCH, "now watching directory: %s", target)
	return nil
}

// WatchVCS sets the VCS metadata directory to watch. "" stops watching it.
func (w *Watcher) WatchVCS(metaDir string) error {
	if metaDir != "" {
		metaDir = filepath.Clean(metaDir)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.vcsDir == metaDir {
		return nil
	}
	if metaDir != "" {
		if err := w.watcher.Add(metaDir); err != nil {
			return err
		}
	}
	if w.vcsDir != "" && w.vcsDir != w.target {
		if err := w.watcher.Remove(w.vcsDir); err != nil {
			debug.Log(debug.WATCH, "unwatch vcs %s: %v", w.vcsDir, err)
		}
	}
	w.vcsDir = metaDir
	debug.Log(debug.WATCH, "vcs metadata watch: %q", metaDir)
	return nil
}

// Unwatch stops watching both subjects.
func (w *Watcher) Unwatch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range []string{w.target, w.vcsDir} {
		if p != "" {
			w.watcher.Remove(p)
		}
	}
	w.target, w.vcsDir = "", ""
}

// Target returns the watched directory.
func (w *Watcher) Target() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.target
}

// VCSDir returns the watched VCS metadata directory, or "".
func (w *Watcher) VCSDir() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.vcsDir
}

// Events returns translated change events as they arrive. Events are
// dropped when the channel is full; refresh requests still carry them.
func (w *Watcher) Events() <-chan ChangeEvent { return w.events }

// Refresh returns coalesced refresh requests. At most one is pending.
func (w *Watcher) Refresh() <-chan RefreshRequest { return w.refresh }

// VCSChanged returns the VCS metadata directory each time it settles after
// a change. At most one signal is pending.
func (w *Watcher) VCSChanged() <-chan string { return w.vcs }

// Close shuts down the watcher.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}

// subject classifies a raw event path.
type subject int

const (
	subjectNone subject = iota
	subjectTarget
	subjectVCS
)

func (w *Watcher) classify(name string) (subject, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.vcsDir != "" && (name == w.vcsDir || strings.HasPrefix(name, w.vcsDir+string(filepath.Separator))) {
		return subjectVCS, w.vcsDir
	}
	if w.target != "" && (filepath.Dir(name) == w.target || name == w.target) {
		return subjectTarget, w.target
	}
	return subjectNone, ""
}

// run processes filesystem events with debouncing
func (w *Watcher) run() {
	var (
		batch      *eventBatch
		lastTarget time.Time
		vcsPending string
		lastVCS    time.Time
	)
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !(ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) ||
				ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Chmod)) {
				continue
			}

			subj, root := w.classify(ev.Name)
			switch subj {
			case subjectVCS:
				vcsPending = root
				lastVCS = time.Now()
				debug.Log(debug.WATCH, "vcs event: %s on %s", ev.Op, ev.Name)

			case subjectTarget:
				if batch == nil || batch.target != root {
					batch = newEventBatch(root)
				}
				if ce, ok := batch.add(ev); ok {
					w.publish(ce)
				}
				lastTarget = time.Now()
				debug.Log(debug.WATCH, "fsnotify event: %s on %s", ev.Op, ev.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			debug.Log(debug.WATCH, "fsnotify error: %v", err)

		case <-ticker.C:
			now := time.Now()
			if batch != nil && now.Sub(lastTarget) >= w.debounce {
				for _, ce := range batch.flushRenames() {
					w.publish(ce)
				}
				if w.Target() == batch.target {
					w.sendRefresh(RefreshRequest{Target: batch.target, Reason: "watch", Events: batch.result()})
				}
				batch = nil
			}
			if vcsPending != "" && now.Sub(lastVCS) >= w.debounce {
				select {
				case w.vcs <- vcsPending:
					debug.Log(debug.WATCH, "vcs state changed: %s", vcsPending)
				default:
				}
				vcsPending = ""
			}
		}
	}
}

func (w *Watcher) publish(ce ChangeEvent) {
	metrics.RecordWatchEvent(ce.Op.String())
	select {
	case w.events <- ce:
	default:
	}
}

// sendRefresh delivers req, merging it into a request still pending.
func (w *Watcher) sendRefresh(req RefreshRequest) {
	metrics.RecordRefresh("watch")
	select {
	case w.refresh <- req:
		return
	default:
	}
	select {
	case old := <-w.refresh:
		if old.Target == req.Target {
			merged := newEventBatch(req.Target)
			merged.merge(old.Events)
			merged.merge(req.Events)
			req.Events = merged.result()
		}
		metrics.RecordRefresh("coalesced")
	default:
	}
	select {
	case w.refresh <- req:
	default:
	}
}
