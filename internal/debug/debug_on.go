//go:build debug

// Package debug provides a centralized, categorized debug logging system.
// Build with -tags debug to enable logging.
package debug

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Enabled indicates whether debug logging is active
const Enabled = true

// Category represents a debug logging category
type Category string

const (
	// Core categories
	LIST       Category = "LIST"       // Session lifecycle, coordinator state machine
	SOURCE     Category = "SOURCE"     // Entry sources, strategy selection, providers
	COLLECTION Category = "COLLECTION" // Staging and published collections, reconcile
	WATCH      Category = "WATCH"      // Change watcher, debounce, VCS signals
	ENRICH     Category = "ENRICH"     // Extended property loading
	STORE      Category = "STORE"      // View settings database
	CONFIG     Category = "CONFIG"     // Configuration loading

	// Detailed subcategories (use sparingly - can be verbose)
	SOURCE_ENTRY Category = "SOURCE_ENTRY" // Individual entry processing (very verbose)
	PATCH        Category = "PATCH"        // Individual reconcile patches
)

var (
	// enabledCategories controls which categories are active
	enabledCategories = map[Category]bool{
		LIST:       true,
		SOURCE:     true,
		COLLECTION: true,
		WATCH:      true,
		ENRICH:     true,
		STORE:      true,
		CONFIG:     true,
		// Verbose categories disabled by default
		SOURCE_ENTRY: false,
		PATCH:        false,
	}
	categoryMu sync.RWMutex

	logger = newLogger()
)

func newLogger() *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000000")
	cfg.DisableStacktrace = true
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

func init() {
	// Format: RAZORLIST_DEBUG=LIST,SOURCE or RAZORLIST_DEBUG=all or RAZORLIST_DEBUG=none
	if env := os.Getenv("RAZORLIST_DEBUG"); env != "" {
		categoryMu.Lock()
		defer categoryMu.Unlock()

		env = strings.ToUpper(env)
		switch env {
		case "ALL":
			for cat := range enabledCategories {
				enabledCategories[cat] = true
			}
		case "NONE":
			for cat := range enabledCategories {
				enabledCategories[cat] = false
			}
		default:
			for cat := range enabledCategories {
				enabledCategories[cat] = false
			}
			for _, cat := range strings.Split(env, ",") {
				cat = strings.TrimSpace(cat)
				enabledCategories[Category(cat)] = true
			}
		}
	}
}

// Log logs a debug message for the specified category
func Log(cat Category, format string, args ...interface{}) {
	categoryMu.RLock()
	enabled := enabledCategories[cat]
	categoryMu.RUnlock()

	if !enabled {
		return
	}

	logger.Debugw(fmt.Sprintf(format, args...), "cat", string(cat))
}

// Enable enables a debug category
func Enable(cat Category) {
	categoryMu.Lock()
	enabledCategories[cat] = true
	categoryMu.Unlock()
}

// Disable disables a debug category
func Disable(cat Category) {
	categoryMu.Lock()
	enabledCategories[cat] = false
	categoryMu.Unlock()
}

// IsEnabled returns whether a category is enabled
func IsEnabled(cat Category) bool {
	categoryMu.RLock()
	defer categoryMu.RUnlock()
	return enabledCategories[cat]
}

// EnableAll enables all debug categories including verbose ones
func EnableAll() {
	categoryMu.Lock()
	for cat := range enabledCategories {
		enabledCategories[cat] = true
	}
	categoryMu.Unlock()
}

// Sync flushes buffered log output
func Sync() {
	_ = logger.Sync()
}
