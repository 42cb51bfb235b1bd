package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/justyntemme/razorlist/internal/debug"
	"github.com/justyntemme/razorlist/internal/model"
)

// LocalProvider serves local folders item by item: batched ReadDir on an
// open handle and one Lstat/Stat per entry.
type LocalProvider struct {
	// ReadAhead is the number of names requested per ReadDir call.
	ReadAhead int
}

// NewLocalProvider creates a local provider.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{ReadAhead: 64}
}

type localFolder struct {
	path      string
	readAhead int
}

func (f *localFolder) Path() string { return f.path }

// GetFolder resolves a local folder.
func (p *LocalProvider) GetFolder(ctx context.Context, path string) (Folder, error) {
	path = filepath.Clean(strings.TrimPrefix(path, "file://"))
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, NewError(NotFound, path, ErrNotFound)
	}
	return &localFolder{path: path, readAhead: p.ReadAhead}, nil
}

// GetFile reads one entry.
func (p *LocalProvider) GetFile(ctx context.Context, path string) (model.RawEntry, error) {
	path = filepath.Clean(strings.TrimPrefix(path, "file://"))
	return statEntry(path)
}

func statEntry(path string) (model.RawEntry, error) {
	linfo, err := os.Lstat(path)
	if err != nil {
		return model.RawEntry{}, err
	}
	info := linfo
	isSymlink := linfo.Mode()&os.ModeSymlink != 0
	if isSymlink {
		if target, err := os.Stat(path); err == nil {
			info = target
		}
	}
	return model.RawEntry{
		Name:      filepath.Base(path),
		Path:      path,
		IsDir:     info.IsDir(),
		Size:      info.Size(),
		Mode:      info.Mode(),
		ModTime:   info.ModTime(),
		IsSymlink: isSymlink,
		Source:    model.SourceStorage,
	}, nil
}

func (f *localFolder) Enumerate(ctx context.Context) (EntryStream, error) {
	dir, err := os.Open(f.path)
	if err != nil {
		return nil, err
	}
	readAhead := f.readAhead
	if readAhead <= 0 {
		readAhead = 64
	}
	return &localStream{dir: dir, path: f.path, readAhead: readAhead}, nil
}

type localStream struct {
	dir       *os.File
	path      string
	readAhead int
	pending   []os.DirEntry
	eof       bool
	err       error
}

func (s *localStream) Next(ctx context.Context) (model.RawEntry, bool) {
	for {
		if err := ctx.Err(); err != nil {
			s.err = err
			return model.RawEntry{}, false
		}
		if len(s.pending) == 0 {
			if s.eof {
				return model.RawEntry{}, false
			}
			entries, err := s.dir.ReadDir(s.readAhead)
			if err == io.EOF {
				s.eof = true
			} else if err != nil {
				s.err = err
				return model.RawEntry{}, false
			}
			s.pending = entries
			continue
		}

		d := s.pending[0]
		s.pending = s.pending[1:]
		entry, err := statEntry(filepath.Join(s.path, d.Name()))
		if err != nil {
			// Entry vanished between ReadDir and Lstat
			debug.Log(debug.SOURCE_ENTRY, "local: skipping %q: %v", d.Name(), err)
			continue
		}
		return entry, true
	}
}

func (s *localStream) Err() error { return s.err }

func (s *localStream) Close() error { return s.dir.Close() }
