package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/comicaholic/genai-studio/internal/queue"
)

// Load returns every stored item in enqueue order.
func (r *DownloadRepository) Load(ctx context.Context) ([]queue.Item, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT
			id,
			artifact_id,
			status,
			progress,
			downloaded_bytes,
			total_bytes,
			display_size,
			speed_bytes_per_sec,
			eta_seconds,
			error,
			created_at,
			started_at,
			completed_at,
			local_path,
			sequence
		FROM downloads
		ORDER BY sequence`)
	if err != nil {
		return nil, fmt.Errorf("failed to query downloads: %w", err)
	}

	defer rows.Close()

	items := []queue.Item{}

	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}

		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read downloads: %w", err)
	}

	return items, nil
}

func scanItem(rows *sql.Rows) (queue.Item, error) {
	var (
		it                     queue.Item
		status, createdAt      string
		eta                    sql.NullInt64
		errText, localPath     sql.NullString
		startedAt, completedAt sql.NullString
	)

	err := rows.Scan(
		&it.ID,
		&it.ArtifactID,
		&status,
		&it.Progress,
		&it.DownloadedBytes,
		&it.TotalBytes,
		&it.DisplaySize,
		&it.SpeedBytesPerSec,
		&eta,
		&errText,
		&createdAt,
		&startedAt,
		&completedAt,
		&localPath,
		&it.Sequence,
	)
	if err != nil {
		return queue.Item{}, fmt.Errorf("failed to scan download: %w", err)
	}

	it.Status = queue.Status(status)

	if it.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return queue.Item{}, fmt.Errorf("failed to parse created_at of %s: %w", it.ID, err)
	}

	if it.StartedAt, err = parseNullTime(startedAt); err != nil {
		return queue.Item{}, fmt.Errorf("failed to parse started_at of %s: %w", it.ID, err)
	}

	if it.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return queue.Item{}, fmt.Errorf("failed to parse completed_at of %s: %w", it.ID, err)
	}

	if eta.Valid {
		it.ETASeconds = &eta.Int64
	}

	if errText.Valid {
		it.Error = &errText.String
	}

	if localPath.Valid {
		it.LocalPath = &localPath.String
	}

	return it, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}

	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil, err
	}

	return &t, nil
}
