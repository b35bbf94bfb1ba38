package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/comicaholic/genai-studio/internal/logctx"
	"github.com/comicaholic/genai-studio/internal/progress"
	"github.com/comicaholic/genai-studio/internal/transfer"
)

var (
	// ErrInvalidArtifact is returned by Enqueue for an empty artifact id.
	ErrInvalidArtifact = errors.New("artifact id must not be empty")
	// ErrClosed is returned by Enqueue once the manager is closed.
	ErrClosed = errors.New("download queue is closed")
)

const defaultEventBuffer = 64

// Store persists the whole item table.
type Store interface {
	Save(ctx context.Context, items []Item) error
	Load(ctx context.Context) ([]Item, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithProgressInterval sets how often the progress monitor samples the target directory.
func WithProgressInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithClock replaces the clock used for item timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithEventBuffer sets the capacity of the Events channel.
func WithEventBuffer(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.events = make(chan Event, n)
		}
	}
}

type inflight struct {
	id     string
	cancel context.CancelFunc
}

// Manager owns the download queue: the item table, its persistence and the single worker
// goroutine that drains it.
type Manager struct {
	store     Store
	resolver  transfer.Resolver
	fetcher   transfer.Fetcher
	modelsDir string
	interval  time.Duration
	now       func() time.Time

	// ctx is the worker context; persistCtx outlives Close so the final state is saved.
	ctx        context.Context
	cancel     context.CancelFunc
	persistCtx context.Context

	mu           sync.Mutex
	items        map[string]*Item
	seq          int64
	running      bool
	closed       bool
	eventsClosed bool
	inflight     *inflight
	wg           sync.WaitGroup

	events chan Event
}

// New loads the persisted queue and returns a manager. Items left downloading by a previous
// process stay untouched until Resume is called.
func New(
	ctx context.Context,
	store Store,
	resolver transfer.Resolver,
	fetcher transfer.Fetcher,
	modelsDir string,
	opts ...Option,
) (*Manager, error) {
	m := &Manager{
		store:     store,
		resolver:  resolver,
		fetcher:   fetcher,
		modelsDir: modelsDir,
		interval:  progress.DefaultInterval,
		now:       utcNow,
		items:     make(map[string]*Item),
		events:    make(chan Event, defaultEventBuffer),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.persistCtx = context.WithoutCancel(ctx)

	items, err := store.Load(ctx)
	if err != nil {
		m.cancel()

		return nil, fmt.Errorf("failed to load queue: %w", err)
	}

	m.restore(items)

	logctx.LoggerFromContext(ctx).Info("download queue loaded", "items", len(m.items))

	return m, nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}

func (m *Manager) restore(items []Item) {
	var unsequenced []*Item

	for i := range items {
		it := items[i].Clone()
		m.items[it.ID] = &it

		if it.Sequence > m.seq {
			m.seq = it.Sequence
		}

		if it.Sequence == 0 {
			unsequenced = append(unsequenced, &it)
		}
	}

	sort.SliceStable(unsequenced, func(i, j int) bool {
		return unsequenced[i].CreatedAt.Before(unsequenced[j].CreatedAt)
	})

	for _, it := range unsequenced {
		m.seq++
		it.Sequence = m.seq
	}
}

// Enqueue requests a transfer of artifactID and returns the item id. When the artifact is
// already queued or downloading, the existing id is returned and nothing changes.
func (m *Manager) Enqueue(ctx context.Context, artifactID string) (string, error) {
	artifactID = strings.TrimSpace(artifactID)
	if artifactID == "" {
		return "", ErrInvalidArtifact
	}

	logger := logctx.LoggerFromContext(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", ErrClosed
	}

	for _, it := range m.items {
		if it.ArtifactID == artifactID && it.Status.IsActive() {
			logger.Debug("artifact already in queue", "download_id", it.ID, "artifact_id", artifactID)

			return it.ID, nil
		}
	}

	now := m.now()
	m.seq++

	it := &Item{
		ID:         m.newID(artifactID, now),
		ArtifactID: artifactID,
		Status:     StatusQueued,
		CreatedAt:  now,
		Sequence:   m.seq,
	}
	m.items[it.ID] = it

	m.persistLocked()
	m.startWorkerLocked()

	logger.Info("artifact queued", "download_id", it.ID, "artifact_id", artifactID)

	return it.ID, nil
}

func (m *Manager) newID(artifactID string, now time.Time) string {
	id := fmt.Sprintf("%s_%d", artifactID, now.UnixNano())
	if _, ok := m.items[id]; ok {
		id = fmt.Sprintf("%s_%d", id, m.seq)
	}

	return id
}

// Get returns a copy of the item with the given id.
func (m *Manager) Get(id string) (Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok {
		return Item{}, false
	}

	return it.Clone(), true
}

// List returns all items plus the active and completed views, taken atomically.
func (m *Manager) List() Lists {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.sortedLocked()
	lists := Lists{
		All:       make([]Item, 0, len(all)),
		Active:    []Item{},
		Completed: []Item{},
	}

	for _, it := range all {
		lists.All = append(lists.All, it)

		switch {
		case it.Status.IsActive():
			lists.Active = append(lists.Active, it)
		case it.Status == StatusCompleted:
			lists.Completed = append(lists.Completed, it)
		}
	}

	return lists
}

// ListAll returns every item in enqueue order.
func (m *Manager) ListAll() []Item {
	return m.List().All
}

// ListActive returns the queued and downloading items.
func (m *Manager) ListActive() []Item {
	return m.List().Active
}

// ListCompleted returns the successfully completed items.
func (m *Manager) ListCompleted() []Item {
	return m.List().Completed
}

// Counts returns the number of items per status, every status included.
func (m *Manager) Counts() map[string]int64 {
	counts := make(map[string]int64, len(Statuses))
	for _, s := range Statuses {
		counts[string(s)] = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, it := range m.items {
		counts[string(it.Status)]++
	}

	return counts
}

// Cancel moves a queued or downloading item to cancelled, interrupting its transfer when
// it is in flight. It reports false for unknown or finished items.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok || !it.Status.IsActive() {
		return false
	}

	it.Status = StatusCancelled
	it.CompletedAt = ptr(m.now())
	it.SpeedBytesPerSec = 0
	it.ETASeconds = nil

	m.interruptLocked(id)
	m.persistLocked()
	m.emitLocked(it)

	logctx.LoggerFromContext(m.ctx).Info("download cancelled", "download_id", id)

	return true
}

// Remove deletes the item whatever its status, interrupting its transfer when it is in
// flight. It reports false when the id is unknown.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[id]; !ok {
		return false
	}

	delete(m.items, id)

	m.interruptLocked(id)
	m.persistLocked()

	logctx.LoggerFromContext(m.ctx).Info("download removed", "download_id", id)

	return true
}

// ClearCompleted removes every completed item and returns how many were removed. Failed and
// cancelled items are kept.
func (m *Manager) ClearCompleted() int {
	return m.removeWhere(func(it *Item) bool {
		return it.Status == StatusCompleted
	})
}

// RemoveCompletedBefore removes completed items that finished before cutoff.
func (m *Manager) RemoveCompletedBefore(cutoff time.Time) int {
	return m.removeWhere(func(it *Item) bool {
		return it.Status == StatusCompleted && it.CompletedAt != nil && it.CompletedAt.Before(cutoff)
	})
}

func (m *Manager) removeWhere(match func(*Item) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0

	for id, it := range m.items {
		if match(it) {
			delete(m.items, id)
			removed++
		}
	}

	m.persistLocked()

	return removed
}

// Resume re-queues items a previous process left downloading and starts the worker when
// anything is queued. It returns the number of re-queued items.
func (m *Manager) Resume(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	requeued := 0
	queued := false

	for _, it := range m.items {
		if it.Status == StatusDownloading && (m.inflight == nil || m.inflight.id != it.ID) {
			requeueLocked(it)
			requeued++
		}

		if it.Status == StatusQueued {
			queued = true
		}
	}

	if requeued > 0 {
		m.persistLocked()
		logctx.LoggerFromContext(ctx).Info("re-queued interrupted downloads", "count", requeued)
	}

	if queued {
		m.startWorkerLocked()
	}

	return requeued
}

// Close stops the worker, puts an interrupted transfer back in the queue and waits for the
// worker to exit. The Events channel is closed once the worker is gone.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()

		return nil
	}

	m.closed = true
	m.cancel()
	m.mu.Unlock()

	done := make(chan struct{})

	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("failed to stop download worker: %w", ctx.Err())
	}

	m.mu.Lock()
	m.eventsClosed = true
	close(m.events)
	m.mu.Unlock()

	return nil
}

// Events delivers a copy of every item that reaches a terminal status. Events are dropped
// when the buffer is full.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// requeueLocked puts an interrupted item back in the queue with progress recomputed from the
// bytes already on disk.
func requeueLocked(it *Item) {
	it.Status = StatusQueued
	it.StartedAt = nil
	it.SpeedBytesPerSec = 0
	it.ETASeconds = nil
	it.Progress = progressOf(it.DownloadedBytes, it.TotalBytes)
}

func (m *Manager) interruptLocked(id string) {
	if m.inflight != nil && m.inflight.id == id {
		m.inflight.cancel()
	}
}

func (m *Manager) startWorkerLocked() {
	if m.running || m.closed {
		return
	}

	m.running = true
	m.wg.Add(1)

	go m.work()
}

func (m *Manager) sortedLocked() []Item {
	out := make([]Item, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Sequence < out[j].Sequence
	})

	return out
}

// persistLocked saves the table. A failed save is logged and the in-memory state stays
// authoritative.
func (m *Manager) persistLocked() {
	if err := m.store.Save(m.persistCtx, m.sortedLocked()); err != nil {
		logctx.LoggerFromContext(m.persistCtx).Error("failed to persist download queue", "err", err)
	}
}

func (m *Manager) emitLocked(it *Item) {
	if m.eventsClosed {
		return
	}

	select {
	case m.events <- Event{Item: it.Clone()}:
	default:
		logctx.LoggerFromContext(m.ctx).Warn("dropping queue event, buffer full", "download_id", it.ID)
	}
}
