package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite database at path and creates the downloads table if it doesn't exist.
func InitDB(ctx context.Context, path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	// the queue has a single writer; one connection avoids SQLITE_BUSY between pool members
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS downloads (
		id TEXT PRIMARY KEY,
		artifact_id TEXT NOT NULL,
		status TEXT NOT NULL,
		progress REAL NOT NULL DEFAULT 0,
		downloaded_bytes INTEGER NOT NULL DEFAULT 0,
		total_bytes INTEGER NOT NULL DEFAULT 0,
		display_size TEXT NOT NULL DEFAULT '',
		speed_bytes_per_sec REAL NOT NULL DEFAULT 0,
		eta_seconds INTEGER,
		error TEXT,
		created_at TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT,
		local_path TEXT,
		sequence INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()

		return nil, err
	}

	return db, nil
}
