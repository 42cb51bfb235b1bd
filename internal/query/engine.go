package query

import (
	"bufio"
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/justyntemme/razorlist/internal/debug"
)

// EngineKind identifies a content search backend.
type EngineKind int

const (
	EngineBuiltin EngineKind = iota // reads files in process
	EngineRipgrep                   // rg
	EngineUgrep                     // ug / ugrep
)

func (k EngineKind) String() string {
	switch k {
	case EngineRipgrep:
		return "ripgrep"
	case EngineUgrep:
		return "ugrep"
	default:
		return "builtin"
	}
}

// Engine is a resolved content search backend. The zero value is the
// builtin engine.
type Engine struct {
	Kind    EngineKind
	Command string
}

var lookPath = exec.LookPath

var engineCommands = map[EngineKind][]string{
	EngineRipgrep: {"rg"},
	EngineUgrep:   {"ug", "ugrep"},
}

// ResolveEngine maps a configured engine name to an installed backend.
// "auto" or "" picks the first installed external tool, preferring
// ripgrep. A named tool that is not installed resolves to the builtin
// engine.
func ResolveEngine(name string) Engine {
	var kinds []EngineKind
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		kinds = []EngineKind{EngineRipgrep, EngineUgrep}
	case "ripgrep", "rg":
		kinds = []EngineKind{EngineRipgrep}
	case "ugrep", "ug":
		kinds = []EngineKind{EngineUgrep}
	default:
		return Engine{}
	}

	for _, k := range kinds {
		for _, cmd := range engineCommands[k] {
			if path, err := lookPath(cmd); err == nil {
				return Engine{Kind: k, Command: path}
			}
		}
	}
	debug.Log(debug.SOURCE, "content engine %q not installed, using builtin", name)
	return Engine{}
}

// args builds the command line listing files below root whose contents
// contain pattern, ignoring case. depth 1 searches root only.
func (e Engine) args(pattern, root string, depth int) []string {
	var args []string
	switch e.Kind {
	case EngineRipgrep:
		args = []string{"--files-with-matches", "--no-heading", "--ignore-case", "--max-filesize", "10M"}
		if depth > 0 {
			args = append(args, "--max-depth", strconv.Itoa(depth))
		}
	case EngineUgrep:
		args = []string{"-l", "-i", "--ignore-binary", "-r"}
		if depth > 0 {
			args = append(args, "--max-depth="+strconv.Itoa(depth))
		}
	}
	return append(args, "--", pattern, root)
}

// Files returns the absolute paths of the files below root whose contents
// contain pattern. The builtin engine returns a nil set and no error.
func (e Engine) Files(ctx context.Context, pattern, root string, depth int) (map[string]bool, error) {
	if e.Kind == EngineBuiltin || e.Command == "" {
		return nil, nil
	}
	debug.Log(debug.SOURCE, "content search: %s %q below %q (depth %d)", e.Kind, pattern, root, depth)
	return runFileLister(ctx, e.Command, e.args(pattern, root, depth))
}

// runFileLister runs a grep-style tool printing one path per line. Exit
// status 1 means no matches.
func runFileLister(ctx context.Context, cmd string, args []string) (map[string]bool, error) {
	c := exec.CommandContext(ctx, cmd, args...)
	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := c.Start(); err != nil {
		return nil, err
	}

	files := make(map[string]bool)
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		path := strings.TrimSpace(scanner.Text())
		if path == "" {
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		files[path] = true
	}
	scanErr := scanner.Err()

	if err := c.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return files, scanErr
		}
		return nil, err
	}
	return files, scanErr
}
