package queue

import (
	"time"
)

// Status is the lifecycle state of a queue item.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusQueued, StatusDownloading, StatusCompleted, StatusFailed, StatusCancelled}

// IsActive reports whether the item still waits for or occupies the worker.
func (s Status) IsActive() bool {
	return s == StatusQueued || s == StatusDownloading
}

// IsTerminal reports whether the status can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Item is one requested artifact transfer.
type Item struct {
	ID               string     `json:"id"`
	ArtifactID       string     `json:"artifact_id"`
	Status           Status     `json:"status"`
	Progress         float64    `json:"progress"`
	DownloadedBytes  int64      `json:"downloaded_bytes"`
	TotalBytes       int64      `json:"total_bytes"`
	DisplaySize      string     `json:"display_size,omitempty"`
	SpeedBytesPerSec float64    `json:"speed_bytes_per_sec"`
	ETASeconds       *int64     `json:"eta_seconds"`
	Error            *string    `json:"error"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at"`
	LocalPath        *string    `json:"local_path"`
	Sequence         int64      `json:"sequence"`
}

// Clone returns a copy that shares no pointers with it.
func (it Item) Clone() Item {
	out := it
	out.ETASeconds = clonePtr(it.ETASeconds)
	out.Error = clonePtr(it.Error)
	out.StartedAt = clonePtr(it.StartedAt)
	out.CompletedAt = clonePtr(it.CompletedAt)
	out.LocalPath = clonePtr(it.LocalPath)

	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}

	v := *p

	return &v
}

func ptr[T any](v T) *T {
	return &v
}

// Lists groups the three views over the queue.
type Lists struct {
	All       []Item `json:"all"`
	Active    []Item `json:"active"`
	Completed []Item `json:"completed"`
}

// Event reports an item reaching a terminal status.
type Event struct {
	Item Item
}
