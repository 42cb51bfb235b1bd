package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/justyntemme/razorlist/internal/collection"
	"github.com/justyntemme/razorlist/internal/listing"
	"github.com/justyntemme/razorlist/internal/model"
)

const nameWidth = 40

var styles = struct {
	header, dir, file, exec, hidden, dim, ok, warn, err, added, removed lipgloss.Style
}{
	header:  lipgloss.NewStyle().Bold(true).Underline(true),
	dir:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
	file:    lipgloss.NewStyle(),
	exec:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	hidden:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	ok:      lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	err:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	added:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	removed: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
}

func printListing(w io.Writer, items []*model.Item, search bool, root string) {
	fmt.Fprintln(w, styles.header.Render(root))
	for _, it := range items {
		fmt.Fprintln(w, row(it, search, root))
	}
}

func row(it *model.Item, search bool, root string) string {
	p := it.Props()
	name := p.Name
	if search {
		if rel, err := filepath.Rel(root, it.Path); err == nil {
			name = rel
		}
	}

	style := styles.file
	switch {
	case it.IsHidden:
		style = styles.hidden
	case it.Kind == model.KindDirectory:
		style = styles.dir
		name += "/"
	case it.IsExecutable:
		style = styles.exec
	}
	if len(name) > nameWidth {
		name = name[:nameWidth-1] + "…"
	}

	size := "-"
	if p.SizeKnown && it.Kind != model.KindDirectory {
		size = humanize.Bytes(uint64(p.Size))
	}
	return fmt.Sprintf("%s %9s  %s",
		style.Render(fmt.Sprintf("%-*s", nameWidth, name)),
		size,
		styles.dim.Render(humanize.Time(p.ModifiedAt)))
}

func printResult(w io.Writer, res listing.ListResult) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s entries via %s", humanize.Comma(int64(res.Count)), res.Strategy)
	if res.FellBack {
		b.WriteString(" (fallback)")
	}
	fmt.Fprintf(&b, " in %s", res.Duration.Round(time.Millisecond))

	switch {
	case res.State == listing.Success:
		fmt.Fprintln(w, styles.ok.Render(b.String()))
	case res.Partial():
		fmt.Fprintln(w, styles.warn.Render(b.String()+": incomplete: "+res.Err.Error()))
	default:
		fmt.Fprintln(w, styles.err.Render(res.Kind.String()+": "+errString(res.Err)))
	}
}

func printEvent(w io.Writer, ev collection.Event) {
	switch e := ev.(type) {
	case collection.Reset:
		for _, p := range e.Patches {
			if p.Removed > 0 {
				fmt.Fprintln(w, styles.removed.Render(fmt.Sprintf("- %d at %d", p.Removed, p.Index)))
			}
			for _, it := range p.Items {
				fmt.Fprintln(w, styles.added.Render("+ "+it.Name()))
			}
		}
		fmt.Fprintln(w, styles.dim.Render(fmt.Sprintf("%d entries", e.Len)))
	case collection.PropertyChanged:
		if e.Property == model.PropName || e.Property == model.PropMetadata {
			fmt.Fprintln(w, styles.dim.Render(fmt.Sprintf("~ %s (%s)", filepath.Base(e.Path), e.Property)))
		}
	}
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
