// Package sqlite persists the download queue in a SQLite table, one row per item.
package sqlite

import (
	"database/sql"
	"time"
)

const timeLayout = time.RFC3339Nano

// DownloadRepository implements queue.Store on top of a downloads table.
type DownloadRepository struct {
	db *sql.DB
}

func NewDownloadRepository(dbConn *sql.DB) *DownloadRepository {
	return &DownloadRepository{db: dbConn}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}

	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}

	return sql.NullString{String: *s, Valid: true}
}

func nullInt(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: *n, Valid: true}
}
