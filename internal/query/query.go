// Package query parses and evaluates the filter language used by search
// result listings: bare words match names, directives narrow by extension,
// size, modification date, visibility and contents.
package query

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/justyntemme/razorlist/internal/model"
)

// Directive types
type DirectiveType int

const (
	DirName DirectiveType = iota
	DirContents
	DirExt
	DirSize
	DirModified
	DirHidden
	DirRecursive
)

// Comparison operators for size/date
type Operator int

const (
	OpNone Operator = iota
	OpGreater
	OpLess
	OpGreaterEq
	OpLessEq
	OpEquals
)

// Directive is a single filter term.
type Directive struct {
	Type     DirectiveType
	Value    string
	Operator Operator
	NumValue int64     // size in bytes, or depth for DirRecursive
	TimeVal  time.Time // parsed date
	BoolVal  bool
}

// Query holds parsed directives. All directives must match (implicit AND).
type Query struct {
	Directives []Directive
	Raw        string
}

// Parse parses a query string.
//
//	"foo"                  → name contains foo
//	"name:*.go"            → doublestar glob on the name
//	"ext:go"               → .go files
//	"size:>1MB"            → larger than 1MB
//	"modified:>2024-01-01" → modified after Jan 1, 2024
//	"hidden:false"         → only visible entries
//	"recursive:3"          → descend up to 3 levels
func Parse(input string) *Query {
	q := &Query{Raw: input}
	input = strings.TrimSpace(input)
	if input == "" {
		return q
	}
	for _, part := range splitRespectingQuotes(input) {
		q.Directives = append(q.Directives, parseDirective(part))
	}
	return q
}

func splitRespectingQuotes(s string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)

	for _, r := range s {
		switch {
		case (r == '"' || r == '\'') && !inQuotes:
			inQuotes = true
			quoteChar = r
		case r == quoteChar && inQuotes:
			inQuotes = false
			quoteChar = 0
		case r == ' ' && !inQuotes:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

func parseDirective(s string) Directive {
	if idx := strings.Index(s, ":"); idx > 0 {
		directive := strings.ToLower(s[:idx])
		value := strings.Trim(s[idx+1:], "\"'")

		switch directive {
		case "name", "filename", "file":
			return Directive{Type: DirName, Value: value}

		case "contents", "content", "text":
			return Directive{Type: DirContents, Value: value}

		case "ext", "extension", "type":
			if !strings.HasPrefix(value, ".") {
				value = "." + value
			}
			return Directive{Type: DirExt, Value: strings.ToLower(value)}

		case "size":
			op, numStr := parseOperator(value)
			return Directive{Type: DirSize, Value: value, Operator: op, NumValue: parseSize(numStr)}

		case "modified", "date", "mtime":
			op, dateStr := parseOperator(value)
			return Directive{Type: DirModified, Value: value, Operator: op, TimeVal: parseDate(dateStr, time.Now())}

		case "hidden":
			b, err := strconv.ParseBool(value)
			if err != nil {
				b = true
			}
			return Directive{Type: DirHidden, Value: value, BoolVal: b}

		case "recursive", "depth", "r":
			depth, err := strconv.Atoi(value)
			if err != nil || depth < 0 {
				depth = 0
			}
			return Directive{Type: DirRecursive, Value: value, NumValue: int64(depth)}
		}
	}
	return Directive{Type: DirName, Value: s}
}

func parseOperator(s string) (Operator, string) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, ">="):
		return OpGreaterEq, strings.TrimSpace(s[2:])
	case strings.HasPrefix(s, "<="):
		return OpLessEq, strings.TrimSpace(s[2:])
	case strings.HasPrefix(s, ">"):
		return OpGreater, strings.TrimSpace(s[1:])
	case strings.HasPrefix(s, "<"):
		return OpLess, strings.TrimSpace(s[1:])
	case strings.HasPrefix(s, "="):
		return OpEquals, strings.TrimSpace(s[1:])
	default:
		return OpEquals, s
	}
}

// parseSize converts size strings like "1KB", "10MB", "1GB" to bytes
func parseSize(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))

	multiplier := int64(1)
	numStr := s

	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1 << 30
		numStr = s[:len(s)-2]
	case strings.HasSuffix(s, "MB"):
		multiplier = 1 << 20
		numStr = s[:len(s)-2]
	case strings.HasSuffix(s, "KB"):
		multiplier = 1 << 10
		numStr = s[:len(s)-2]
	case strings.HasSuffix(s, "B"):
		numStr = s[:len(s)-1]
	}

	n, err := strconv.ParseFloat(strings.TrimSpace(numStr), 64)
	if err != nil {
		return 0
	}
	return int64(n * float64(multiplier))
}

// parseDate parses "2024-01-01", "2024-01", "today", "yesterday", "week",
// "month" and "year" relative to now.
func parseDate(s string, now time.Time) time.Time {
	s = strings.ToLower(strings.TrimSpace(s))

	switch s {
	case "today":
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	case "yesterday":
		y, m, d := now.AddDate(0, 0, -1).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	case "week":
		return now.AddDate(0, 0, -7)
	case "month":
		return now.AddDate(0, -1, 0)
	case "year":
		return now.AddDate(-1, 0, 0)
	}

	layouts := []string{
		"2006-01-02",
		"2006-01",
		"2006/01/02",
		"01/02/2006",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// IsEmpty reports whether the query has no directives.
func (q *Query) IsEmpty() bool {
	return len(q.Directives) == 0
}

// HasContentSearch reports whether the query reads file contents.
func (q *Query) HasContentSearch() bool {
	for _, d := range q.Directives {
		if d.Type == DirContents {
			return true
		}
	}
	return false
}

// ContentPatterns returns the values of the contents directives.
func (q *Query) ContentPatterns() []string {
	var out []string
	for _, d := range q.Directives {
		if d.Type == DirContents {
			out = append(out, d.Value)
		}
	}
	return out
}

// Depth returns the requested recursion depth, or def when the query has
// no recursive directive. A recursive directive without a number uses def.
func (q *Query) Depth(def int) int {
	for _, d := range q.Directives {
		if d.Type == DirRecursive {
			if d.NumValue > 0 {
				return int(d.NumValue)
			}
			return def
		}
	}
	return def
}

// maxContentSize bounds content matching to files the matcher will read.
const maxContentSize = 10 << 20

// Matcher evaluates raw entries against a query.
type Matcher struct {
	query       *Query
	ctx         context.Context
	contentFunc func(path string) ([]byte, error)
	contentHits map[string]bool // files an external engine found; nil reads contents
}

// NewMatcher creates a matcher that reads contents from the local disk.
func NewMatcher(ctx context.Context, q *Query) *Matcher {
	return &Matcher{query: q, ctx: ctx, contentFunc: os.ReadFile}
}

// SetContentFunc replaces the content reader.
func (m *Matcher) SetContentFunc(f func(path string) ([]byte, error)) {
	m.contentFunc = f
}

// SetContentMatches makes contents directives match exactly the given
// files instead of reading them. Only valid for a query with a single
// contents directive.
func (m *Matcher) SetContentMatches(files map[string]bool) {
	m.contentHits = files
}

// Match reports whether the entry satisfies every directive.
func (m *Matcher) Match(e model.RawEntry) bool {
	for _, d := range m.query.Directives {
		if m.ctx != nil && m.ctx.Err() != nil {
			return false
		}
		if !m.matchDirective(d, e) {
			return false
		}
	}
	return true
}

func (m *Matcher) matchDirective(d Directive, e model.RawEntry) bool {
	switch d.Type {
	case DirName:
		return MatchGlob(strings.ToLower(e.Name), strings.ToLower(d.Value))

	case DirContents:
		if e.IsDir || e.Size > maxContentSize {
			return false
		}
		if m.contentHits != nil {
			return m.contentHits[e.Path]
		}
		data, err := m.contentFunc(e.Path)
		if err != nil {
			return false
		}
		return strings.Contains(strings.ToLower(string(data)), strings.ToLower(d.Value))

	case DirExt:
		return strings.ToLower(filepath.Ext(e.Name)) == d.Value

	case DirSize:
		if e.IsDir {
			return false
		}
		return CompareInt(e.Size, d.NumValue, d.Operator)

	case DirModified:
		if d.TimeVal.IsZero() {
			return true
		}
		return CompareTime(e.ModTime, d.TimeVal, d.Operator)

	case DirHidden:
		hidden := e.Hidden || strings.HasPrefix(e.Name, ".")
		return hidden == d.BoolVal

	case DirRecursive:
		return true
	}
	return true
}

// MatchGlob matches name against a doublestar pattern. A pattern without
// glob metacharacters is a substring match.
func MatchGlob(name, pattern string) bool {
	if !strings.ContainsAny(pattern, "*?[{") {
		return strings.Contains(name, pattern)
	}
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}

// CompareInt applies op to val and target.
func CompareInt(val, target int64, op Operator) bool {
	switch op {
	case OpGreater:
		return val > target
	case OpLess:
		return val < target
	case OpGreaterEq:
		return val >= target
	case OpLessEq:
		return val <= target
	default:
		return val == target
	}
}

// CompareTime applies op to val and target. Equality compares dates only.
func CompareTime(val, target time.Time, op Operator) bool {
	switch op {
	case OpGreater:
		return val.After(target)
	case OpLess:
		return val.Before(target)
	case OpGreaterEq:
		return !val.Before(target)
	case OpLessEq:
		return !val.After(target)
	default:
		vy, vm, vd := val.Date()
		ty, tm, td := target.Date()
		return vy == ty && vm == tm && vd == td
	}
}
