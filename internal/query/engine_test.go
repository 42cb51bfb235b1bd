package query

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"

	"github.com/justyntemme/razorlist/internal/model"
)

func fakeLookPath(t *testing.T, installed ...string) {
	t.Helper()
	orig := lookPath
	t.Cleanup(func() { lookPath = orig })
	lookPath = func(cmd string) (string, error) {
		for _, c := range installed {
			if c == cmd {
				return "/usr/bin/" + cmd, nil
			}
		}
		return "", errors.New("not found")
	}
}

func TestEngineKind_String(t *testing.T) {
	testCases := []struct {
		kind     EngineKind
		expected string
	}{
		{EngineBuiltin, "builtin"},
		{EngineRipgrep, "ripgrep"},
		{EngineUgrep, "ugrep"},
		{EngineKind(99), "builtin"},
	}
	for _, tc := range testCases {
		if got := tc.kind.String(); got != tc.expected {
			t.Errorf("EngineKind(%d).String(): expected %q, got %q", tc.kind, tc.expected, got)
		}
	}
}

func TestResolveEngine(t *testing.T) {
	testCases := []struct {
		name      string
		installed []string
		expected  Engine
	}{
		{"auto", []string{"rg", "ug"}, Engine{EngineRipgrep, "/usr/bin/rg"}},
		{"", []string{"ugrep"}, Engine{EngineUgrep, "/usr/bin/ugrep"}},
		{"auto", nil, Engine{}},
		{"Ripgrep", []string{"rg"}, Engine{EngineRipgrep, "/usr/bin/rg"}},
		{"ug", []string{"rg", "ug"}, Engine{EngineUgrep, "/usr/bin/ug"}},
		{"ripgrep", []string{"ug"}, Engine{}},
		{"builtin", []string{"rg"}, Engine{}},
		{"grep", []string{"rg"}, Engine{}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fakeLookPath(t, tc.installed...)
			if got := ResolveEngine(tc.name); got != tc.expected {
				t.Errorf("ResolveEngine(%q) with %v: expected %+v, got %+v", tc.name, tc.installed, tc.expected, got)
			}
		})
	}
}

func TestEngine_Args(t *testing.T) {
	rg := Engine{Kind: EngineRipgrep, Command: "rg"}
	want := []string{"--files-with-matches", "--no-heading", "--ignore-case", "--max-filesize", "10M", "--max-depth", "2", "--", "TODO", "/src"}
	if got := rg.args("TODO", "/src", 2); !reflect.DeepEqual(got, want) {
		t.Errorf("ripgrep args: expected %v, got %v", want, got)
	}

	ug := Engine{Kind: EngineUgrep, Command: "ug"}
	want = []string{"-l", "-i", "--ignore-binary", "-r", "--", "-v", "/src"}
	if got := ug.args("-v", "/src", 0); !reflect.DeepEqual(got, want) {
		t.Errorf("ugrep args: expected %v, got %v", want, got)
	}
}

func TestEngine_BuiltinListsNothing(t *testing.T) {
	files, err := Engine{}.Files(context.Background(), "x", t.TempDir(), 1)
	if err != nil || files != nil {
		t.Errorf("builtin engine: expected nil, nil; got %v, %v", files, err)
	}
}

func TestRunFileLister(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")

	files, err := runFileLister(context.Background(), "sh", []string{"-c", "echo " + a + "; echo; echo " + a})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(files, map[string]bool{a: true}) {
		t.Errorf("expected {%s}, got %v", a, files)
	}

	// Exit status 1 is "no matches"
	files, err = runFileLister(context.Background(), "sh", []string{"-c", "exit 1"})
	if err != nil || len(files) != 0 {
		t.Errorf("exit 1: expected no files and no error, got %v, %v", files, err)
	}

	if _, err := runFileLister(context.Background(), "sh", []string{"-c", "exit 2"}); err == nil {
		t.Error("exit 2: expected an error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := runFileLister(ctx, "sh", []string{"-c", "sleep 5"}); err == nil {
		t.Error("cancelled: expected an error")
	}
}

func TestMatcher_ContentMatches(t *testing.T) {
	dir := t.TempDir()
	hit := filepath.Join(dir, "hit.txt")
	miss := filepath.Join(dir, "miss.txt")
	if err := os.WriteFile(miss, []byte("needle"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewMatcher(context.Background(), Parse("contents:needle"))
	m.SetContentMatches(map[string]bool{hit: true})

	if !m.Match(model.RawEntry{Name: "hit.txt", Path: hit, Size: 10}) {
		t.Error("expected the engine's file to match")
	}
	// The engine's answer wins over the file contents
	if m.Match(model.RawEntry{Name: "miss.txt", Path: miss, Size: 6}) {
		t.Error("expected a file the engine did not report to be rejected")
	}
}

func TestQuery_ContentPatterns(t *testing.T) {
	q := Parse(`contents:"foo bar" ext:go text:baz`)
	if got := q.ContentPatterns(); !reflect.DeepEqual(got, []string{"foo bar", "baz"}) {
		t.Errorf("expected [foo bar baz], got %v", got)
	}
	if got := Parse("ext:go").ContentPatterns(); got != nil {
		t.Errorf("expected no patterns, got %v", got)
	}
}
