package fs

import (
	"context"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"

	"github.com/justyntemme/razorlist/internal/debug"
	"github.com/justyntemme/razorlist/internal/model"
	"github.com/justyntemme/razorlist/internal/query"
)

// Progress is a best-effort update sent while a search walks its tree.
type Progress struct {
	Path    string
	Scanned int64
	Matched int64
	Label   string
}

// SearchSource walks a tree and yields only entries matching a query. It
// backs search-result sessions; results are never watched.
type SearchSource struct {
	Query *query.Query
	// DefaultDepth is used when the query has no recursive directive.
	DefaultDepth int
	// Progress, if set, receives non-blocking updates.
	Progress chan<- Progress
	// FlushInterval mirrors BulkSource.FlushInterval.
	FlushInterval time.Duration
	// Engine answers contents directives with an external tool when set.
	Engine query.Engine
}

// NewSearchSource creates a search source for a parsed query.
func NewSearchSource(q *query.Query, defaultDepth int) *SearchSource {
	if defaultDepth <= 0 {
		defaultDepth = 10
	}
	return &SearchSource{Query: q, DefaultDepth: defaultDepth, FlushInterval: 100 * time.Millisecond}
}

// Open starts the walk below root.
func (s *SearchSource) Open(ctx context.Context, root string) (EnumerationHandle, error) {
	root = filepath.Clean(root)
	if err := statDir(root); err != nil {
		return nil, MapError(root, err)
	}
	depth := s.Query.Depth(s.DefaultDepth)
	debug.Log(debug.SOURCE, "search: root=%q query=%q depth=%d", root, s.Query.Raw, depth)

	return startWalk(ctx, root, s.FlushInterval, func(ctx context.Context, emit func(model.RawEntry) error) error {
		return s.walkTree(ctx, root, depth, emit)
	}), nil
}

// skipDirRoots are top-level system directories never descended into.
var skipDirRoots = map[string]bool{
	"dev":        true,
	"proc":       true,
	"sys":        true,
	"run":        true,
	"snap":       true,
	"boot":       true,
	"lost+found": true,
}

// shouldSkipPath reports whether path lies in a system directory.
func shouldSkipPath(path string) bool {
	if len(path) < 2 || path[0] != '/' {
		return false
	}
	first, _, _ := strings.Cut(path[1:], "/")
	return skipDirRoots[first]
}

func (s *SearchSource) walkTree(ctx context.Context, root string, maxDepth int, emit func(model.RawEntry) error) error {
	matcher := query.NewMatcher(ctx, s.Query)
	s.prefetchContents(ctx, matcher, root, maxDepth)

	var mu sync.Mutex
	var scanned, matched int64

	// Symlinks are not followed so links to parents cannot loop
	conf := &fastwalk.Config{Follow: false}

	err := fastwalk.Walk(conf, root, func(fullPath string, d iofs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if fullPath == root {
				return err
			}
			debug.Log(debug.SOURCE_ENTRY, "search: error at %q: %v", fullPath, err)
			return nil
		}
		if fullPath == root {
			return nil
		}
		if shouldSkipPath(fullPath) {
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}
		if fastwalk.DirEntryDepth(d) > maxDepth {
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}

		info, err := fastwalk.StatDirEntry(fullPath, d)
		if err != nil {
			info, err = os.Lstat(fullPath)
			if err != nil {
				return nil
			}
		}
		if !info.IsDir() && !info.Mode().IsRegular() && info.Mode()&os.ModeSymlink == 0 {
			// Devices, sockets and pipes
			return nil
		}

		entry := model.RawEntry{
			Name:      d.Name(),
			Path:      fullPath,
			IsDir:     info.IsDir(),
			Size:      info.Size(),
			Mode:      info.Mode(),
			ModTime:   info.ModTime(),
			IsSymlink: d.Type()&os.ModeSymlink != 0,
			Source:    model.SourceNative,
		}

		ok := matcher.Match(entry)
		mu.Lock()
		scanned++
		if ok {
			matched++
		}
		sc, mc := scanned, matched
		mu.Unlock()
		if sc%256 == 0 {
			s.report(root, sc, mc)
		}

		if ok {
			return emit(entry)
		}
		return nil
	})

	s.report(root, scanned, matched)
	debug.Log(debug.SOURCE, "search: %q done: %d scanned, %d matched, err=%v", root, scanned, matched, err)
	return err
}

// prefetchContents asks the external engine for the files matching a single
// contents directive. On failure the matcher reads files itself.
func (s *SearchSource) prefetchContents(ctx context.Context, m *query.Matcher, root string, depth int) {
	patterns := s.Query.ContentPatterns()
	if len(patterns) != 1 || s.Engine.Kind == query.EngineBuiltin {
		return
	}
	files, err := s.Engine.Files(ctx, patterns[0], root, depth)
	if err != nil {
		debug.Log(debug.SOURCE, "search: %s failed (%v), reading contents in process", s.Engine.Kind, err)
		return
	}
	if files != nil {
		m.SetContentMatches(files)
	}
}

func (s *SearchSource) report(root string, scanned, matched int64) {
	if s.Progress == nil {
		return
	}
	select {
	case s.Progress <- Progress{
		Path:    root,
		Scanned: scanned,
		Matched: matched,
		Label:   fmt.Sprintf("Searched %d entries...", scanned),
	}:
	default:
	}
}
