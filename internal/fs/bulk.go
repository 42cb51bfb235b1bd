package fs

import (
	"context"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charlievieth/fastwalk"
	"github.com/dustin/go-humanize"
	"github.com/justyntemme/razorlist/internal/debug"
	"github.com/justyntemme/razorlist/internal/model"
)

// BulkSource is the native bulk-scan strategy: a single fastwalk pass over
// the directory, depth 1, streamed to the caller in batches.
type BulkSource struct {
	// OpenTimeout bounds opening the directory handle.
	OpenTimeout time.Duration
	// FlushInterval is how long NextBatch waits for more entries once it
	// has at least one, so slow directories still publish progressively.
	FlushInterval time.Duration
}

// NewBulkSource creates a bulk source with the given open timeout.
func NewBulkSource(openTimeout time.Duration) *BulkSource {
	if openTimeout <= 0 {
		openTimeout = 3 * time.Second
	}
	return &BulkSource{OpenTimeout: openTimeout, FlushInterval: 100 * time.Millisecond}
}

// Open probes the directory and starts the walk.
func (b *BulkSource) Open(ctx context.Context, path string) (EnumerationHandle, error) {
	path = filepath.Clean(path)
	debug.Log(debug.SOURCE, "bulk: opening %q (timeout %s)", path, b.OpenTimeout)

	openCtx, cancelOpen := context.WithTimeout(ctx, b.OpenTimeout)
	err := withTimeout(openCtx, path, func() error { return openProbe(path) })
	cancelOpen()
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewError(Cancelled, path, ctx.Err())
		}
		return nil, MapError(path, err)
	}

	return startWalk(ctx, path, b.FlushInterval, func(ctx context.Context, emit func(model.RawEntry) error) error {
		return walkChildren(ctx, path, emit)
	}), nil
}

func openProbe(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return NewError(NotFound, path, ErrNotFound)
	}
	return nil
}

// walkFunc produces entries through emit until the walk ends. emit fails
// once the consumer has gone away.
type walkFunc func(ctx context.Context, emit func(model.RawEntry) error) error

// walkHandle streams the entries of a background walk in batches.
type walkHandle struct {
	path          string
	entries       chan model.RawEntry
	cancel        context.CancelFunc
	flushInterval time.Duration

	// err is written by the walk goroutine before it closes entries.
	err  error
	done bool
}

func startWalk(ctx context.Context, path string, flush time.Duration, walk walkFunc) *walkHandle {
	walkCtx, cancel := context.WithCancel(ctx)
	h := &walkHandle{
		path:          path,
		entries:       make(chan model.RawEntry, 256),
		cancel:        cancel,
		flushInterval: flush,
	}
	go func() {
		h.err = walk(walkCtx, func(e model.RawEntry) error {
			select {
			case h.entries <- e:
				return nil
			case <-walkCtx.Done():
				return walkCtx.Err()
			}
		})
		close(h.entries)
	}()
	return h
}

// walkChildren emits the direct children of root.
func walkChildren(ctx context.Context, root string, emit func(model.RawEntry) error) error {
	conf := &fastwalk.Config{
		Follow: true, // Follow symlinks to get target info
	}
	rootLen := len(root)
	// fastwalk may call back from several goroutines
	var count, bytes atomic.Int64

	err := fastwalk.Walk(conf, root, func(fullPath string, d iofs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if fullPath == root {
				return err
			}
			debug.Log(debug.SOURCE_ENTRY, "bulk: walk error at %q: %v", fullPath, err)
			return nil
		}
		if fullPath == root {
			return nil
		}

		// Only direct children; fullPath starts with root
		relStart := rootLen
		if relStart < len(fullPath) && (fullPath[relStart] == '/' || fullPath[relStart] == '\\') {
			relStart++
		}
		if strings.ContainsAny(fullPath[relStart:], "/\\") {
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}

		isSymlink := d.Type()&os.ModeSymlink != 0
		if isSymlink && strings.HasPrefix(d.Name(), ".") {
			// Hidden reparse points are never shown
			debug.Log(debug.SOURCE_ENTRY, "bulk: skipping hidden symlink %q", d.Name())
			return nil
		}

		info, err := fastwalk.StatDirEntry(fullPath, d)
		if err != nil {
			// Try lstat as fallback for broken symlinks
			info, err = os.Lstat(fullPath)
			if err != nil {
				debug.Log(debug.SOURCE_ENTRY, "bulk: skipping %q: stat error: %v", d.Name(), err)
				return nil
			}
		}

		entry := model.RawEntry{
			Name:      d.Name(),
			Path:      fullPath,
			IsDir:     info.IsDir(),
			Size:      info.Size(),
			Mode:      info.Mode(),
			ModTime:   info.ModTime(),
			IsSymlink: isSymlink,
			Source:    model.SourceNative,
		}
		count.Add(1)
		if !entry.IsDir {
			bytes.Add(entry.Size)
		}

		if err := emit(entry); err != nil {
			return err
		}

		if d.IsDir() {
			return fastwalk.SkipDir
		}
		return nil
	})

	debug.Log(debug.SOURCE, "bulk: walk of %q finished: %d entries, %s, err=%v",
		root, count.Load(), humanize.Bytes(uint64(bytes.Load())), err)
	return err
}

func (h *walkHandle) NextBatch(ctx context.Context, max int) ([]model.RawEntry, error) {
	if h.done {
		return nil, io.EOF
	}
	if max <= 0 {
		max = 1
	}

	batch := make([]model.RawEntry, 0, max)
	var flush <-chan time.Time

	for len(batch) < max {
		select {
		case <-ctx.Done():
			return batch, NewError(Cancelled, h.path, ctx.Err())
		case <-flush:
			return batch, nil
		case entry, ok := <-h.entries:
			if !ok {
				h.done = true
				return batch, h.finalErr(ctx)
			}
			batch = append(batch, entry)
			if flush == nil && h.flushInterval > 0 {
				timer := time.NewTimer(h.flushInterval)
				defer timer.Stop()
				flush = timer.C
			}
		}
	}
	return batch, nil
}

func (h *walkHandle) finalErr(ctx context.Context) error {
	if h.err == nil {
		return io.EOF
	}
	if ctx.Err() != nil {
		return NewError(Cancelled, h.path, ctx.Err())
	}
	return MapError(h.path, h.err)
}

func (h *walkHandle) Close() error {
	h.cancel()
	return nil
}
