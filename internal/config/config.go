package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/justyntemme/razorlist/internal/debug"
	"github.com/justyntemme/razorlist/internal/order"
)

// Config holds all user-configurable settings loaded from config.json
type Config struct {
	Listing ListingConfig `json:"listing"`
	Sort    SortConfig    `json:"sort"`
	Watch   WatchConfig   `json:"watch"`
	Enrich  EnrichConfig  `json:"enrich"`
	Remote  RemoteConfig  `json:"remote"`
	Search  SearchConfig  `json:"search"`
}

// ListingConfig holds enumeration settings
type ListingConfig struct {
	BatchSize             int      `json:"batchSize"`
	OpenTimeoutMs         int      `json:"openTimeoutMs"`
	ShowHidden            bool     `json:"showHidden"`
	ApplyChangesThreshold int      `json:"applyChangesThreshold"` // Larger watcher bursts trigger a full re-list
	CloudRoots            []string `json:"cloudRoots"`            // Local folders synced by a cloud client
}

// SortConfig holds the default sort for folders without saved settings
type SortConfig struct {
	Key               string `json:"key"` // "name" | "modified" | "created" | "size" | "type"
	Ascending         bool   `json:"ascending"`
	DirectoriesFirst  bool   `json:"directoriesFirst"`
	RememberPerFolder bool   `json:"rememberPerFolder"`
}

// WatchConfig holds change watcher settings
type WatchConfig struct {
	Enabled    bool `json:"enabled"`
	DebounceMs int  `json:"debounceMs"`
	WatchVCS   bool `json:"watchVCS"`
}

// EnrichConfig holds extended property settings
type EnrichConfig struct {
	Workers          int  `json:"workers"`
	IconSize         int  `json:"iconSize"`
	IconCacheEntries int  `json:"iconCacheEntries"`
	Thumbnails       bool `json:"thumbnails"`
}

// RemoteConfig holds storage provider settings
type RemoteConfig struct {
	SFTPPort int    `json:"sftpPort"`
	S3Region string `json:"s3Region"`
}

// SearchConfig holds search session settings
type SearchConfig struct {
	DefaultDepth  int    `json:"defaultDepth"`
	ContentEngine string `json:"contentEngine"` // "auto" | "builtin" | "ripgrep" | "ugrep"
}

// Manager handles loading, saving, and accessing configuration
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	parseErr error // Stores parsing error if config failed to load
}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{
		config: DefaultConfig(),
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Listing: ListingConfig{
			BatchSize:             256,
			OpenTimeoutMs:         3000,
			ShowHidden:            false,
			ApplyChangesThreshold: 32,
		},
		Sort: SortConfig{
			Key:               "name",
			Ascending:         true,
			DirectoriesFirst:  true,
			RememberPerFolder: true,
		},
		Watch: WatchConfig{
			Enabled:    true,
			DebounceMs: 200,
			WatchVCS:   true,
		},
		Enrich: EnrichConfig{
			Workers:          4,
			IconSize:         48,
			IconCacheEntries: 256,
			Thumbnails:       true,
		},
		Remote: RemoteConfig{
			SFTPPort: 22,
		},
		Search: SearchConfig{
			DefaultDepth:  10,
			ContentEngine: "auto",
		},
	}
}

// ConfigPath returns the config file path: ~/.config/razorlist/config.json
// This is consistent across all platforms (Windows, macOS, Linux)
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "razorlist", "config.json")
}

// Load reads the configuration from the default config file
func (m *Manager) Load() error {
	return m.LoadFrom(ConfigPath())
}

// LoadFrom reads the configuration from path.
// If the file doesn't exist, creates it with defaults
// If parsing fails, stores the error and returns defaults
func (m *Manager) LoadFrom(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.path = path
	m.parseErr = nil

	configDir := filepath.Dir(m.path)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		debug.Log(debug.CONFIG, "failed to create directory %s: %v", configDir, err)
		return err
	}

	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		debug.Log(debug.CONFIG, "creating default config at %s", m.path)
		m.config = DefaultConfig()
		if saveErr := m.saveUnlocked(); saveErr != nil {
			debug.Log(debug.CONFIG, "failed to save default config: %v", saveErr)
			return saveErr
		}
		return nil
	}
	if err != nil {
		debug.Log(debug.CONFIG, "failed to read %s: %v", m.path, err)
		return err
	}

	// Missing keys keep their defaults
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		debug.Log(debug.CONFIG, "JSON parse error: %v", err)
		m.parseErr = err
		m.config = DefaultConfig()
		return nil // Don't return error - we're using defaults
	}

	debug.Log(debug.CONFIG, "loaded from %s", m.path)
	m.config = cfg
	return nil
}

// saveUnlocked saves config without acquiring lock (caller must hold lock)
func (m *Manager) saveUnlocked() error {
	if m.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0o644)
}

// Save writes the current configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveUnlocked()
}

// Get returns a copy of the current configuration
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return *DefaultConfig()
	}
	return *m.config
}

// ParseError returns the parsing error if config failed to load
func (m *Manager) ParseError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.parseErr
}

// SortOptions returns the default sort as order options. An unknown key
// falls back to sorting by name.
func (m *Manager) SortOptions() order.Options {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, err := order.ParseKey(m.config.Sort.Key)
	if err != nil {
		debug.Log(debug.CONFIG, "%v; sorting by name", err)
	}
	return order.Options{
		Key:              key,
		Descending:       !m.config.Sort.Ascending,
		DirectoriesFirst: m.config.Sort.DirectoriesFirst,
	}
}

// SetSort updates the default sort
func (m *Manager) SetSort(opts order.Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.Sort.Key = opts.Key.String()
	m.config.Sort.Ascending = !opts.Descending
	m.config.Sort.DirectoriesFirst = opts.DirectoriesFirst
	return m.saveUnlocked()
}

// SetShowHidden updates the hidden item visibility
func (m *Manager) SetShowHidden(show bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.Listing.ShowHidden = show
	return m.saveUnlocked()
}

// OpenTimeout returns the bulk scan open timeout
func (m *Manager) OpenTimeout() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return millis(m.config.Listing.OpenTimeoutMs, 3*time.Second)
}

// Debounce returns the watcher debounce window
func (m *Manager) Debounce() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return millis(m.config.Watch.DebounceMs, 200*time.Millisecond)
}

func millis(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// GenerateConfig backs up the existing config at path and writes a fresh
// default config. Returns the backup path if a backup was created, or
// empty string if no config existed
func GenerateConfig(path string) (backupPath string, err error) {
	if _, err := os.Stat(path); err == nil {
		timestamp := time.Now().Format("20060102-150405")
		backupPath = filepath.Join(filepath.Dir(path), "config.backup."+timestamp+".json")

		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read existing config: %w", err)
		}
		if err := os.WriteFile(backupPath, data, 0o644); err != nil {
			return "", fmt.Errorf("failed to write backup: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return backupPath, fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(DefaultConfig(), "", "  ")
	if err != nil {
		return backupPath, fmt.Errorf("failed to marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return backupPath, fmt.Errorf("failed to write config: %w", err)
	}

	return backupPath, nil
}
