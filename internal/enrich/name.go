package enrich

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/justyntemme/razorlist/internal/model"
)

// DisplayName returns the name an item should be shown with when it
// differs from its file name: shortcut extensions are hidden and desktop
// entries show their Name= key.
func DisplayName(it *model.Item) (string, bool) {
	if it.Kind == model.KindDirectory {
		return "", false
	}
	name := it.Name()
	ext := strings.ToLower(filepath.Ext(name))

	switch ext {
	case ".lnk", ".url":
		if base := strings.TrimSuffix(name, filepath.Ext(name)); base != "" {
			return base, base != name
		}
	case ".desktop":
		if title, ok := desktopEntryName(it.Path); ok {
			return title, title != name
		}
	}
	return "", false
}

// desktopEntryName reads the untranslated Name key of the [Desktop Entry]
// group.
func desktopEntryName(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	inEntry := false
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			inEntry = line == "[Desktop Entry]"
			continue
		}
		if !inEntry {
			continue
		}
		if key, value, ok := strings.Cut(line, "="); ok && strings.TrimSpace(key) == "Name" {
			if value = strings.TrimSpace(value); value != "" {
				return value, true
			}
		}
	}
	return "", false
}
