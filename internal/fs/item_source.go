package fs

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/justyntemme/razorlist/internal/debug"
	"github.com/justyntemme/razorlist/internal/model"
)

// Folder is a handle to a folder obtained from a storage provider.
type Folder interface {
	Path() string
	Enumerate(ctx context.Context) (EntryStream, error)
}

// StorageProvider is the higher-level storage-item abstraction used by the
// item strategy.
type StorageProvider interface {
	GetFolder(ctx context.Context, path string) (Folder, error)
	GetFile(ctx context.Context, path string) (model.RawEntry, error)
}

// SyncStatusProber is implemented by providers that can report the
// cloud/remote sync state of an entry.
type SyncStatusProber interface {
	SyncStatus(ctx context.Context, path string) (model.SyncStatus, error)
}

// ItemSource is the item strategy: it routes each path to the storage
// provider registered for its scheme.
type ItemSource struct {
	policy *Policy

	mu        sync.RWMutex
	providers map[string]StorageProvider

	routeMu sync.Mutex
	routes  map[string]Outcome // parent directory -> route of its entries
}

const maxCachedRoutes = 64

// NewItemSource creates an item source. The local provider is always
// registered for the "file" scheme; the zip provider for archives.
func NewItemSource(policy *Policy) *ItemSource {
	s := &ItemSource{
		policy:    policy,
		providers: make(map[string]StorageProvider),
		routes:    make(map[string]Outcome),
	}
	s.Register(SchemeFile, NewLocalProvider())
	s.Register(SchemeZip, NewZipProvider())
	return s
}

// Register installs a provider for a scheme, replacing any previous one.
func (s *ItemSource) Register(scheme string, p StorageProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[scheme] = p
}

// Provider returns the provider that serves path, if any.
func (s *ItemSource) Provider(path string) (StorageProvider, error) {
	return s.providerFor(path, s.policy.Route(path))
}

func (s *ItemSource) providerFor(path string, o Outcome) (StorageProvider, error) {
	scheme := SchemeFile
	switch o := o.(type) {
	case StorageAPI:
		scheme = o.Scheme
	case Failed:
		return nil, o.Err
	}

	s.mu.RLock()
	p, ok := s.providers[scheme]
	s.mu.RUnlock()
	if !ok {
		return nil, NewError(UnsupportedPath, path, fmt.Errorf("no storage provider for %q: %w", scheme, ErrUnsupportedPath))
	}
	return p, nil
}

// entryRoute routes a single entry by its parent directory. Routes are
// cached per directory since every entry of a listing shares one.
func (s *ItemSource) entryRoute(path string) Outcome {
	dir := parentPath(path)

	s.routeMu.Lock()
	defer s.routeMu.Unlock()
	if o, ok := s.routes[dir]; ok {
		return o
	}
	if len(s.routes) >= maxCachedRoutes {
		s.routes = make(map[string]Outcome)
	}
	o := s.policy.Route(dir)
	s.routes[dir] = o
	return o
}

// parentPath returns the folder containing path. URL paths keep their
// scheme and host.
func parentPath(path string) string {
	if i := strings.Index(path, "://"); i > 0 {
		prefix, rest := path[:i+3], strings.TrimRight(path[i+3:], "/")
		if j := strings.LastIndex(rest, "/"); j >= 0 {
			return prefix + rest[:j]
		}
		return prefix + rest
	}
	return filepath.Dir(path)
}

// Open resolves the folder through its provider and streams its entries.
func (s *ItemSource) Open(ctx context.Context, path string) (EnumerationHandle, error) {
	p, err := s.Provider(path)
	if err != nil {
		return nil, err
	}
	debug.Log(debug.SOURCE, "item: opening %q with %T", path, p)

	folder, err := p.GetFolder(ctx, path)
	if err != nil {
		return nil, MapError(path, err)
	}
	stream, err := folder.Enumerate(ctx)
	if err != nil {
		return nil, MapError(path, err)
	}
	return newStreamHandle(path, stream), nil
}

// Stat reads a single entry through the provider serving path.
func (s *ItemSource) Stat(ctx context.Context, path string) (model.RawEntry, error) {
	p, err := s.providerFor(path, s.entryRoute(path))
	if err != nil {
		return model.RawEntry{}, err
	}
	entry, err := p.GetFile(ctx, path)
	if err != nil {
		return model.RawEntry{}, MapError(path, err)
	}
	return entry, nil
}

// SyncStatus probes the sync state of path. Providers that cannot tell
// report SyncNotApplicable.
func (s *ItemSource) SyncStatus(ctx context.Context, path string) (model.SyncStatus, error) {
	o := s.entryRoute(path)
	if api, ok := o.(StorageAPI); ok && api.CloudHint && api.Scheme == SchemeFile {
		return localCloudStatus(path)
	}
	p, err := s.providerFor(path, o)
	if err != nil {
		return model.SyncUnknown, err
	}
	if prober, ok := p.(SyncStatusProber); ok {
		return prober.SyncStatus(ctx, path)
	}
	return model.SyncNotApplicable, nil
}
