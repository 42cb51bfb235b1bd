// Package order sorts listing items into their published sequence.
package order

import (
	"cmp"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/justyntemme/razorlist/internal/model"
)

// Key selects the sort column.
type Key int

const (
	ByName Key = iota
	ByDateModified
	ByDateCreated
	BySize
	ByType
)

func (k Key) String() string {
	switch k {
	case ByDateModified:
		return "modified"
	case ByDateCreated:
		return "created"
	case BySize:
		return "size"
	case ByType:
		return "type"
	default:
		return "name"
	}
}

// ParseKey parses a key name as written by String.
func ParseKey(s string) (Key, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "name":
		return ByName, nil
	case "modified", "date", "mtime":
		return ByDateModified, nil
	case "created", "ctime":
		return ByDateCreated, nil
	case "size":
		return BySize, nil
	case "type", "ext":
		return ByType, nil
	}
	return ByName, fmt.Errorf("unknown sort key %q", s)
}

// Options is a sort configuration. The zero value sorts by name,
// ascending, without grouping directories.
type Options struct {
	Key              Key
	Descending       bool
	DirectoriesFirst bool
}

// Sort returns a new slice ordered by opts. Items equal under the sort key
// fall back to case-insensitive name, then path, both ascending, so the
// result does not depend on input order and re-sorting an unchanged set
// returns it unchanged.
func Sort(items []*model.Item, opts Options) []*model.Item {
	type keyed struct {
		it    *model.Item
		props model.Props
		name  string
	}

	// Snapshot props once; enrichment may mutate items concurrently
	rows := make([]keyed, len(items))
	for i, it := range items {
		p := it.Props()
		rows[i] = keyed{it: it, props: p, name: strings.ToLower(p.Name)}
	}

	compare := func(a, b *keyed) int {
		switch opts.Key {
		case ByDateModified:
			return a.props.ModifiedAt.Compare(b.props.ModifiedAt)
		case ByDateCreated:
			return a.props.CreatedAt.Compare(b.props.CreatedAt)
		case BySize:
			return cmp.Compare(a.props.Size, b.props.Size)
		case ByType:
			extA := strings.ToLower(filepath.Ext(a.props.Name))
			extB := strings.ToLower(filepath.Ext(b.props.Name))
			if c := strings.Compare(extA, extB); c != 0 {
				return c
			}
			return strings.Compare(a.name, b.name)
		default:
			return strings.Compare(a.name, b.name)
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := &rows[i], &rows[j]
		if opts.DirectoriesFirst {
			aDir := a.it.Kind == model.KindDirectory
			bDir := b.it.Kind == model.KindDirectory
			if aDir != bDir {
				return aDir
			}
		}
		c := compare(a, b)
		if opts.Descending {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		if a.name != b.name {
			return a.name < b.name
		}
		return a.it.Path < b.it.Path
	})

	out := make([]*model.Item, len(rows))
	for i := range rows {
		out[i] = rows[i].it
	}
	return out
}
