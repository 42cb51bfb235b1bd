package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/justyntemme/razorlist/internal/order"
)

func TestLoadFrom_CreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "razorlist", "config.json")
	m := NewManager()
	if err := m.LoadFrom(path); err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}

	cfg := m.Get()
	if cfg.Listing.OpenTimeoutMs != 3000 || cfg.Watch.DebounceMs != 200 || cfg.Enrich.Workers != 4 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if m.ParseError() != nil {
		t.Errorf("ParseError = %v", m.ParseError())
	}
}

func TestLoadFrom_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"sort": {"key": "size", "ascending": false}, "watch": {"debounceMs": 50}}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewManager()
	if err := m.LoadFrom(path); err != nil {
		t.Fatal(err)
	}

	opts := m.SortOptions()
	if opts.Key != order.BySize || !opts.Descending {
		t.Errorf("SortOptions = %+v", opts)
	}
	if got := m.Debounce(); got != 50*time.Millisecond {
		t.Errorf("Debounce = %v", got)
	}
	if got := m.OpenTimeout(); got != 3*time.Second {
		t.Errorf("OpenTimeout = %v, want default", got)
	}
	if cfg := m.Get(); cfg.Remote.SFTPPort != 22 {
		t.Errorf("SFTPPort = %d, want default 22", cfg.Remote.SFTPPort)
	}
}

func TestLoadFrom_ParseErrorUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewManager()
	if err := m.LoadFrom(path); err != nil {
		t.Fatalf("LoadFrom returned %v; parse errors should not fail loading", err)
	}
	if m.ParseError() == nil {
		t.Error("expected a parse error")
	}
	if m.Get().Sort.Key != "name" {
		t.Errorf("expected default sort after parse error")
	}
}

func TestSetters_Persist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	m := NewManager()
	if err := m.LoadFrom(path); err != nil {
		t.Fatal(err)
	}

	if err := m.SetSort(order.Options{Key: order.ByDateModified, Descending: true}); err != nil {
		t.Fatal(err)
	}
	if err := m.SetShowHidden(true); err != nil {
		t.Fatal(err)
	}

	reloaded := NewManager()
	if err := reloaded.LoadFrom(path); err != nil {
		t.Fatal(err)
	}
	cfg := reloaded.Get()
	if cfg.Sort.Key != "modified" || cfg.Sort.Ascending || cfg.Sort.DirectoriesFirst || !cfg.Listing.ShowHidden {
		t.Errorf("reloaded config = %+v", cfg)
	}
}

func TestSortOptions_UnknownKey(t *testing.T) {
	m := NewManager()
	m.config.Sort.Key = "colour"
	if got := m.SortOptions().Key; got != order.ByName {
		t.Errorf("Key = %v, want name", got)
	}
}

func TestGenerateConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	backup, err := GenerateConfig(path)
	if err != nil || backup != "" {
		t.Fatalf("first GenerateConfig = %q, %v", backup, err)
	}

	if err := os.WriteFile(path, []byte(`{"custom": true}`), 0o644); err != nil {
		t.Fatal(err)
	}
	backup, err = GenerateConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(filepath.Base(backup), "config.backup.") {
		t.Errorf("backup path = %q", backup)
	}
	saved, _ := os.ReadFile(backup)
	if string(saved) != `{"custom": true}` {
		t.Errorf("backup content = %q", saved)
	}
	fresh, _ := os.ReadFile(path)
	if !strings.Contains(string(fresh), `"debounceMs": 200`) {
		t.Errorf("regenerated config missing defaults: %s", fresh)
	}
}
