package watch

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/justyntemme/razorlist/internal/debug"
)

// VCSInfo describes the working tree a directory belongs to.
type VCSInfo struct {
	Kind    string // "git" or "hg"
	Root    string // working tree root
	MetaDir string // metadata directory to watch
}

// DetectVCS walks up from path looking for a version-control working tree.
// A .git file (worktrees, submodules) is followed to its gitdir.
func DetectVCS(path string) (VCSInfo, bool) {
	dir, err := filepath.Abs(path)
	if err != nil {
		return VCSInfo{}, false
	}

	for {
		if info, ok := gitAt(dir); ok {
			debug.Log(debug.WATCH, "vcs: %s root %s (meta %s)", info.Kind, info.Root, info.MetaDir)
			return info, true
		}
		if fi, err := os.Stat(filepath.Join(dir, ".hg")); err == nil && fi.IsDir() {
			return VCSInfo{Kind: "hg", Root: dir, MetaDir: filepath.Join(dir, ".hg")}, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return VCSInfo{}, false
		}
		dir = parent
	}
}

func gitAt(dir string) (VCSInfo, bool) {
	dotGit := filepath.Join(dir, ".git")
	fi, err := os.Stat(dotGit)
	if err != nil {
		return VCSInfo{}, false
	}
	if fi.IsDir() {
		return VCSInfo{Kind: "git", Root: dir, MetaDir: dotGit}, true
	}

	gitdir, ok := readGitFile(dotGit)
	if !ok {
		return VCSInfo{}, false
	}
	if !filepath.IsAbs(gitdir) {
		gitdir = filepath.Join(dir, gitdir)
	}
	if fi, err := os.Stat(gitdir); err != nil || !fi.IsDir() {
		return VCSInfo{}, false
	}
	return VCSInfo{Kind: "git", Root: dir, MetaDir: filepath.Clean(gitdir)}, true
}

// readGitFile parses a "gitdir: <path>" file.
func readGitFile(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(sc.Text()), "gitdir:"); ok {
			return strings.TrimSpace(rest), true
		}
	}
	return "", false
}
