package sqlite

import (
	"context"
	"fmt"

	"github.com/comicaholic/genai-studio/internal/queue"
)

// Save replaces the table contents with items in one transaction.
func (r *DownloadRepository) Save(ctx context.Context, items []queue.Item) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM downloads`); err != nil {
		return fmt.Errorf("failed to clear downloads: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO downloads (
		id, artifact_id, status, progress, downloaded_bytes, total_bytes, display_size,
		speed_bytes_per_sec, eta_seconds, error, created_at, started_at, completed_at,
		local_path, sequence
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}

	defer stmt.Close()

	for _, it := range items {
		_, err := stmt.ExecContext(ctx,
			it.ID,
			it.ArtifactID,
			string(it.Status),
			it.Progress,
			it.DownloadedBytes,
			it.TotalBytes,
			it.DisplaySize,
			it.SpeedBytesPerSec,
			nullInt(it.ETASeconds),
			nullString(it.Error),
			it.CreatedAt.UTC().Format(timeLayout),
			nullTime(it.StartedAt),
			nullTime(it.CompletedAt),
			nullString(it.LocalPath),
			it.Sequence,
		)
		if err != nil {
			return fmt.Errorf("failed to insert download %s: %w", it.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit downloads: %w", err)
	}

	return nil
}
