package query

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/justyntemme/razorlist/internal/model"
)

func TestParse_Empty(t *testing.T) {
	q := Parse("   ")
	if !q.IsEmpty() {
		t.Errorf("expected empty query, got %d directives", len(q.Directives))
	}
}

func TestParse_BareWordIsName(t *testing.T) {
	q := Parse("report")
	if len(q.Directives) != 1 {
		t.Fatalf("expected 1 directive, got %d", len(q.Directives))
	}
	if d := q.Directives[0]; d.Type != DirName || d.Value != "report" {
		t.Errorf("expected name directive 'report', got %+v", d)
	}
}

func TestParse_ExtDirective(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"ext:go", ".go"},
		{"ext:.go", ".go"},
		{"extension:TXT", ".txt"},
		{"type:md", ".md"},
	}

	for _, tc := range testCases {
		q := Parse(tc.input)
		if len(q.Directives) != 1 {
			t.Fatalf("input %q: expected 1 directive, got %d", tc.input, len(q.Directives))
		}
		d := q.Directives[0]
		if d.Type != DirExt {
			t.Errorf("input %q: expected DirExt, got %d", tc.input, d.Type)
		}
		if d.Value != tc.expected {
			t.Errorf("input %q: expected value %q, got %q", tc.input, tc.expected, d.Value)
		}
	}
}

func TestParse_SizeDirective(t *testing.T) {
	testCases := []struct {
		input      string
		expectedOp Operator
		expectedSz int64
	}{
		{"size:>1KB", OpGreater, 1024},
		{"size:<10MB", OpLess, 10 << 20},
		{"size:>=1GB", OpGreaterEq, 1 << 30},
		{"size:<=500B", OpLessEq, 500},
		{"size:=1024", OpEquals, 1024},
		{"size:2048", OpEquals, 2048},
	}

	for _, tc := range testCases {
		d := Parse(tc.input).Directives[0]
		if d.Type != DirSize {
			t.Errorf("input %q: expected DirSize, got %d", tc.input, d.Type)
		}
		if d.Operator != tc.expectedOp {
			t.Errorf("input %q: expected operator %d, got %d", tc.input, tc.expectedOp, d.Operator)
		}
		if d.NumValue != tc.expectedSz {
			t.Errorf("input %q: expected size %d, got %d", tc.input, tc.expectedSz, d.NumValue)
		}
	}
}

func TestParseDate_Relative(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)

	testCases := []struct {
		input    string
		expected time.Time
	}{
		{"today", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},
		{"yesterday", time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)},
		{"week", now.AddDate(0, 0, -7)},
		{"2024-01-01", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"2024-06", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		{"garbage", time.Time{}},
	}

	for _, tc := range testCases {
		got := parseDate(tc.input, now)
		if !got.Equal(tc.expected) {
			t.Errorf("parseDate(%q): expected %v, got %v", tc.input, tc.expected, got)
		}
	}
}

func TestParse_HiddenAndRecursive(t *testing.T) {
	q := Parse("hidden:false recursive:3")
	if len(q.Directives) != 2 {
		t.Fatalf("expected 2 directives, got %d", len(q.Directives))
	}
	if d := q.Directives[0]; d.Type != DirHidden || d.BoolVal {
		t.Errorf("expected hidden:false, got %+v", d)
	}
	if got := q.Depth(1); got != 3 {
		t.Errorf("expected depth 3, got %d", got)
	}
	if got := Parse("*.go").Depth(1); got != 1 {
		t.Errorf("expected default depth 1, got %d", got)
	}
	if got := Parse("recursive:").Depth(5); got != 5 {
		t.Errorf("expected fallback depth 5, got %d", got)
	}
}

func TestParse_QuotedValues(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{`contents:"hello world"`, "hello world"},
		{`contents:'foo bar'`, "foo bar"},
		{`name:"my file.txt"`, "my file.txt"},
	}

	for _, tc := range testCases {
		q := Parse(tc.input)
		if len(q.Directives) != 1 {
			t.Fatalf("input %q: expected 1 directive, got %d", tc.input, len(q.Directives))
		}
		if q.Directives[0].Value != tc.expected {
			t.Errorf("input %q: expected value %q, got %q", tc.input, tc.expected, q.Directives[0].Value)
		}
	}
}

func TestParseSize(t *testing.T) {
	testCases := []struct {
		input    string
		expected int64
	}{
		{"100", 100},
		{"1kb", 1024},
		{"1.5MB", int64(1.5 * (1 << 20))},
		{"invalid", 0},
		{"", 0},
	}

	for _, tc := range testCases {
		if got := parseSize(tc.input); got != tc.expected {
			t.Errorf("parseSize(%q): expected %d, got %d", tc.input, tc.expected, got)
		}
	}
}

func TestMatchGlob(t *testing.T) {
	testCases := []struct {
		name     string
		pattern  string
		expected bool
	}{
		{"test.go", "test", true},
		{"test.go", "txt", false},
		{"test.go", "*.go", true},
		{"test.go", "test.*", true},
		{"test.go", "*.{go,mod}", true},
		{"go.sum", "*.{go,mod}", false},
		{"hello_world.go", "*_*", true},
		{"helloworld.go", "*_*", false},
		{"file1.txt", "file?.txt", true},
		{"file10.txt", "file?.txt", false},
	}

	for _, tc := range testCases {
		if got := MatchGlob(tc.name, tc.pattern); got != tc.expected {
			t.Errorf("MatchGlob(%q, %q): expected %v, got %v", tc.name, tc.pattern, tc.expected, got)
		}
	}
}

func TestCompareTime(t *testing.T) {
	base := time.Date(2024, 5, 5, 12, 0, 0, 0, time.UTC)
	later := base.Add(time.Hour)

	if !CompareTime(later, base, OpGreater) {
		t.Error("expected later > base")
	}
	if !CompareTime(base, base, OpGreaterEq) || !CompareTime(base, base, OpLessEq) {
		t.Error("expected base >= base and base <= base")
	}
	if !CompareTime(later, base, OpEquals) {
		t.Error("expected same-day times to compare equal")
	}
}

func TestMatcher_Match(t *testing.T) {
	tmpDir := t.TempDir()

	goFile := filepath.Join(tmpDir, "test.go")
	if err := os.WriteFile(goFile, []byte("package main\nfunc main() {}"), 0644); err != nil {
		t.Fatal(err)
	}

	entries := map[string]model.RawEntry{
		"go":     {Name: "test.go", Path: goFile, Size: 28},
		"small":  {Name: "small.txt", Path: filepath.Join(tmpDir, "small.txt"), Size: 5},
		"large":  {Name: "large.txt", Path: filepath.Join(tmpDir, "large.txt"), Size: 2048},
		"hidden": {Name: ".env", Path: filepath.Join(tmpDir, ".env"), Size: 10},
		"dir":    {Name: "src", Path: filepath.Join(tmpDir, "src"), IsDir: true},
	}

	testCases := []struct {
		query    string
		entry    string
		expected bool
	}{
		{"test", "go", true},
		{"*.go", "go", true},
		{"*.txt", "go", false},
		{"ext:txt", "small", true},
		{"size:<100", "small", true},
		{"size:>1000", "large", true},
		{"size:>1000", "dir", false},
		{"hidden:true", "hidden", true},
		{"hidden:false", "hidden", false},
		{"hidden:false", "small", true},
		{"contents:func", "go", true},
		{"contents:nope", "go", false},
		{"contents:x", "dir", false},
		{"*.go size:<10", "go", false},
	}

	for _, tc := range testCases {
		m := NewMatcher(context.Background(), Parse(tc.query))
		if got := m.Match(entries[tc.entry]); got != tc.expected {
			t.Errorf("Match(%q, %s): expected %v, got %v", tc.query, tc.entry, tc.expected, got)
		}
	}
}

func TestMatcher_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMatcher(ctx, Parse("*.go"))
	if m.Match(model.RawEntry{Name: "main.go"}) {
		t.Error("expected no match once the context is cancelled")
	}
}

func TestMatcher_ContentFunc(t *testing.T) {
	m := NewMatcher(context.Background(), Parse("contents:needle"))
	var read []string
	m.SetContentFunc(func(path string) ([]byte, error) {
		read = append(read, path)
		return []byte("hay NEEDLE hay"), nil
	})

	if !m.Match(model.RawEntry{Name: "a.txt", Path: "/virtual/a.txt", Size: 14}) {
		t.Error("expected case-insensitive content match")
	}
	if len(read) != 1 || read[0] != "/virtual/a.txt" {
		t.Errorf("expected one read of /virtual/a.txt, got %v", read)
	}
}
