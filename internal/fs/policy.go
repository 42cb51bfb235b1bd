package fs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/justyntemme/razorlist/internal/debug"
)

// Outcome is the result of strategy selection for a path. It is one of
// NativeScan, StorageAPI or Failed.
type Outcome interface {
	isOutcome()
}

// NativeScan selects the bulk strategy.
type NativeScan struct{}

// StorageAPI selects the item strategy through a storage provider.
type StorageAPI struct {
	Scheme    string // provider scheme: "file", "sftp", "s3", "zip", "ftp", "shell"
	CloudHint bool   // entries need cloud-placeholder status checks
}

// Failed rejects the path without enumerating.
type Failed struct {
	Kind ErrorKind
	Err  error
}

func (NativeScan) isOutcome() {}
func (StorageAPI) isOutcome() {}
func (Failed) isOutcome()     {}

// Scheme names used by the router and providers.
const (
	SchemeFile  = "file"
	SchemeSFTP  = "sftp"
	SchemeS3    = "s3"
	SchemeZip   = "zip"
	SchemeFTP   = "ftp"
	SchemeShell = "shell"
)

// Policy decides which strategy lists a path.
type Policy struct {
	// CloudRoots are local folders kept in sync by a cloud client that only
	// reports placeholder state through the storage API ("Box"-style).
	CloudRoots []string
	// ProbeTimeout bounds the quick access probe.
	ProbeTimeout time.Duration
	// Probe checks that a local directory is accessible. Defaults to os.Stat.
	Probe func(path string) error
}

// NewPolicy creates a policy with the default probe.
func NewPolicy(cloudRoots []string, probeTimeout time.Duration) *Policy {
	if probeTimeout <= 0 {
		probeTimeout = 3 * time.Second
	}
	return &Policy{CloudRoots: cloudRoots, ProbeTimeout: probeTimeout}
}

// Route classifies path without touching the directory: local paths get
// StorageAPI with the file scheme. Select adds the access probe.
func (p *Policy) Route(path string) Outcome {
	if scheme, ok := urlScheme(path); ok {
		switch scheme {
		case SchemeSFTP:
			return StorageAPI{Scheme: SchemeSFTP}
		case SchemeS3:
			return StorageAPI{Scheme: SchemeS3, CloudHint: true}
		case SchemeFTP, "ftps":
			return StorageAPI{Scheme: SchemeFTP}
		case SchemeFile:
			path = strings.TrimPrefix(path, "file://")
		default:
			return Failed{Kind: UnsupportedPath, Err: NewError(UnsupportedPath, path, ErrUnsupportedPath)}
		}
	}

	if isUNC(path) {
		if isVirtualUNC(path) {
			debug.Log(debug.SOURCE, "policy: %q is a virtual namespace path, using storage API", path)
			return StorageAPI{Scheme: SchemeShell}
		}
		debug.Log(debug.SOURCE, "policy: rejecting network path %q", path)
		return Failed{Kind: UnsupportedPath, Err: NewError(UnsupportedPath, path, ErrUnsupportedPath)}
	}

	if _, _, ok := SplitArchivePath(path); ok {
		return StorageAPI{Scheme: SchemeZip}
	}

	if p.underCloudRoot(path) {
		return StorageAPI{Scheme: SchemeFile, CloudHint: true}
	}
	return StorageAPI{Scheme: SchemeFile}
}

// Select returns the strategy outcome for path. Local directories whose
// quick access probe succeeds get the bulk strategy.
func (p *Policy) Select(path string) Outcome {
	o := p.Route(path)
	if o != (StorageAPI{Scheme: SchemeFile}) {
		return o
	}
	path = strings.TrimPrefix(path, "file://")
	if err := p.probe(path); err != nil {
		debug.Log(debug.SOURCE, "policy: probe of %q failed (%v), using storage API", path, err)
		return o
	}
	return NativeScan{}
}

func (p *Policy) underCloudRoot(path string) bool {
	clean := filepath.Clean(path)
	for _, root := range p.CloudRoots {
		if root == "" {
			continue
		}
		root = filepath.Clean(root)
		if clean == root || strings.HasPrefix(clean, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// probe runs the access probe with a bounded timeout.
func (p *Policy) probe(path string) error {
	probe := p.Probe
	if probe == nil {
		probe = statDir
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.ProbeTimeout)
	defer cancel()
	return withTimeout(ctx, path, func() error { return probe(path) })
}

func statDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return NewError(NotFound, path, ErrNotFound)
	}
	return nil
}

// withTimeout runs fn and returns a Timeout EnumError if ctx expires first.
// fn keeps running in the background; its late result is discarded.
func withTimeout(ctx context.Context, path string, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return NewError(Timeout, path, ErrTimeout)
		}
		return NewError(Cancelled, path, ctx.Err())
	}
}

func urlScheme(path string) (string, bool) {
	idx := strings.Index(path, "://")
	if idx <= 0 {
		return "", false
	}
	scheme := strings.ToLower(path[:idx])
	for _, r := range scheme {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '+' && r != '-' && r != '.' {
			return "", false
		}
	}
	return scheme, true
}

func isUNC(path string) bool {
	return strings.HasPrefix(path, `\\`) || strings.HasPrefix(path, "//")
}

// virtualPrefixes are UNC-shaped paths served by the storage API rather
// than by the network redirector: MTP devices, shell namespaces and WSL.
var virtualPrefixes = []string{
	`\\?\`,
	`\\shell\`,
	`\\wsl$\`,
	`\\wsl.localhost\`,
}

func isVirtualUNC(path string) bool {
	lower := strings.ToLower(strings.ReplaceAll(path, "/", `\`))
	for _, prefix := range virtualPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// archiveExts are the archive formats that can be browsed as folders.
var archiveExts = map[string]bool{
	".zip": true,
}

// SplitArchivePath splits a path that points into (or at) a browsable
// archive into the archive file and the folder inside it. The inner path
// uses forward slashes and has no leading slash; "" means the archive root.
func SplitArchivePath(path string) (archive, inner string, ok bool) {
	norm := filepath.ToSlash(path)
	parts := strings.Split(norm, "/")
	for i, part := range parts {
		if !archiveExts[strings.ToLower(filepath.Ext(part))] {
			continue
		}
		archive = filepath.FromSlash(strings.Join(parts[:i+1], "/"))
		if info, err := os.Stat(archive); err != nil || info.IsDir() {
			continue
		}
		inner = strings.Trim(strings.Join(parts[i+1:], "/"), "/")
		return archive, inner, true
	}
	return "", "", false
}

// SupportsNativeWatch reports whether change notifications can be
// subscribed for path. Remote, archive-backed and virtual paths cannot.
func SupportsNativeWatch(path string) bool {
	if _, ok := urlScheme(path); ok && !strings.HasPrefix(strings.ToLower(path), "file://") {
		return false
	}
	if isUNC(path) {
		return false
	}
	if _, _, ok := SplitArchivePath(path); ok {
		return false
	}
	return true
}
