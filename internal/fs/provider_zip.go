package fs

import (
	"archive/zip"
	"context"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/justyntemme/razorlist/internal/model"
)

// ZipProvider browses zip archives as folders. The archive is read once per
// GetFolder call; entries are synthesized for implicit parent directories.
type ZipProvider struct{}

// NewZipProvider creates a zip provider.
func NewZipProvider() *ZipProvider { return &ZipProvider{} }

type zipFolder struct {
	path    string
	entries []model.RawEntry
}

func (f *zipFolder) Path() string { return f.path }

func (f *zipFolder) Enumerate(ctx context.Context) (EntryStream, error) {
	return &sliceStream{entries: f.entries}, nil
}

// GetFolder lists the direct children of the folder inside the archive.
func (p *ZipProvider) GetFolder(ctx context.Context, folderPath string) (Folder, error) {
	archive, inner, ok := SplitArchivePath(folderPath)
	if !ok {
		return nil, NewError(NotFound, folderPath, ErrNotFound)
	}
	children, found, err := zipChildren(archive, inner)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, NewError(NotFound, folderPath, ErrNotFound)
	}

	base := filepath.Join(archive, filepath.FromSlash(inner))
	entries := make([]model.RawEntry, 0, len(children))
	for _, c := range children {
		c.Path = filepath.Join(base, c.Name)
		entries = append(entries, c)
	}
	return &zipFolder{path: folderPath, entries: entries}, nil
}

// GetFile reads one entry of the archive.
func (p *ZipProvider) GetFile(ctx context.Context, filePath string) (model.RawEntry, error) {
	archive, inner, ok := SplitArchivePath(filePath)
	if !ok || inner == "" {
		return model.RawEntry{}, NewError(NotFound, filePath, ErrNotFound)
	}
	parent, name := path.Split(inner)
	children, _, err := zipChildren(archive, strings.TrimSuffix(parent, "/"))
	if err != nil {
		return model.RawEntry{}, err
	}
	for _, c := range children {
		if c.Name == name {
			c.Path = filePath
			return c, nil
		}
	}
	return model.RawEntry{}, NewError(NotFound, filePath, ErrNotFound)
}

// zipChildren returns the direct children of dir ("" = root) and whether
// dir exists in the archive.
func zipChildren(archive, dir string) ([]model.RawEntry, bool, error) {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return nil, false, err
	}
	defer r.Close()

	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}
	found := dir == ""
	byName := make(map[string]model.RawEntry)

	for _, f := range r.File {
		name := strings.TrimPrefix(f.Name, "./")
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		found = true
		rest := strings.TrimPrefix(name, prefix)
		if rest == "" {
			continue
		}
		child, tail, nested := strings.Cut(rest, "/")
		if nested {
			// Implicit or explicit directory
			if _, seen := byName[child]; !seen || tail == "" {
				byName[child] = model.RawEntry{
					Name:    child,
					IsDir:   true,
					ModTime: zipModTime(f, tail == ""),
					Source:  model.SourceStorage,
				}
			}
			continue
		}
		byName[child] = model.RawEntry{
			Name:    child,
			Size:    int64(f.UncompressedSize64),
			Mode:    f.Mode(),
			ModTime: f.Modified,
			Source:  model.SourceStorage,
		}
	}

	out := make([]model.RawEntry, 0, len(byName))
	for _, e := range byName {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, found, nil
}

func zipModTime(f *zip.File, explicit bool) time.Time {
	if explicit {
		return f.Modified
	}
	return time.Time{}
}
