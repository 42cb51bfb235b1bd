// Package store persists per-folder view settings in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/justyntemme/razorlist/internal/debug"
	"github.com/justyntemme/razorlist/internal/order"
)

// DB stores the sort settings chosen for individual folders.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the database at dbPath and ensures the schema.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// WAL mode allows simultaneous readers and writers
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, err
	}
	// Synchronous NORMAL is safe against app crashes, faster than FULL
	if _, err := conn.Exec("PRAGMA synchronous=NORMAL;"); err != nil {
		conn.Close()
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS view_settings (
		path TEXT PRIMARY KEY,
		sort_key TEXT NOT NULL,
		descending INTEGER NOT NULL DEFAULT 0,
		dirs_first INTEGER NOT NULL DEFAULT 1,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, err
	}

	debug.Log(debug.STORE, "opened %s", dbPath)
	return &DB{conn: conn}, nil
}

// DefaultPath returns the database location under the user config dir.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "razorlist", "views.db")
}

// GetSort returns the sort settings saved for folder. ok is false when the
// folder has none.
func (d *DB) GetSort(ctx context.Context, folder string) (order.Options, bool, error) {
	var (
		key        string
		descending bool
		dirsFirst  bool
	)
	err := d.conn.QueryRowContext(ctx,
		"SELECT sort_key, descending, dirs_first FROM view_settings WHERE path = ?",
		filepath.Clean(folder),
	).Scan(&key, &descending, &dirsFirst)
	if errors.Is(err, sql.ErrNoRows) {
		return order.Options{}, false, nil
	}
	if err != nil {
		return order.Options{}, false, fmt.Errorf("get sort for %s: %w", folder, err)
	}

	k, err := order.ParseKey(key)
	if err != nil {
		debug.Log(debug.STORE, "ignoring stored sort %q for %s: %v", key, folder, err)
		return order.Options{}, false, nil
	}
	return order.Options{Key: k, Descending: descending, DirectoriesFirst: dirsFirst}, true, nil
}

// SetSort saves the sort settings for folder.
func (d *DB) SetSort(ctx context.Context, folder string, opts order.Options) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO view_settings (path, sort_key, descending, dirs_first, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(path) DO UPDATE SET
			sort_key = excluded.sort_key,
			descending = excluded.descending,
			dirs_first = excluded.dirs_first,
			updated_at = CURRENT_TIMESTAMP`,
		filepath.Clean(folder), opts.Key.String(), opts.Descending, opts.DirectoriesFirst,
	)
	if err != nil {
		return fmt.Errorf("set sort for %s: %w", folder, err)
	}
	debug.Log(debug.STORE, "saved sort %s desc=%v for %s", opts.Key, opts.Descending, folder)
	return nil
}

// ForgetSort removes the saved settings for folder.
func (d *DB) ForgetSort(ctx context.Context, folder string) error {
	if _, err := d.conn.ExecContext(ctx, "DELETE FROM view_settings WHERE path = ?", filepath.Clean(folder)); err != nil {
		return fmt.Errorf("forget sort for %s: %w", folder, err)
	}
	return nil
}

// Folders returns every folder with saved settings, most recent first.
func (d *DB) Folders(ctx context.Context) ([]string, error) {
	rows, err := d.conn.QueryContext(ctx, "SELECT path FROM view_settings ORDER BY updated_at DESC, path ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folders []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		folders = append(folders, path)
	}
	return folders, rows.Err()
}

// Close closes the database.
func (d *DB) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}
