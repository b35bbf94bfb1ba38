package queue

import (
	"context"
	"fmt"
	"math"

	"github.com/comicaholic/genai-studio/internal/logctx"
	"github.com/comicaholic/genai-studio/internal/progress"
	"github.com/comicaholic/genai-studio/internal/transfer"
	"github.com/dustin/go-humanize"
)

type job struct {
	id         string
	artifactID string
	ctx        context.Context
	cancel     context.CancelFunc
}

// work drains the queue one item at a time and exits when nothing is queued.
func (m *Manager) work() {
	defer m.wg.Done()

	for {
		j, ok := m.next()
		if !ok {
			return
		}

		m.process(j)
	}
}

// next claims the oldest queued item. Selection and the worker's exit decision happen under
// the same lock as Enqueue, so a concurrent Enqueue either sees the worker running or
// starts a new one.
func (m *Manager) next() (*job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.ctx.Err() != nil {
		m.running = false

		return nil, false
	}

	var next *Item

	for _, it := range m.items {
		if it.Status == StatusQueued && (next == nil || it.Sequence < next.Sequence) {
			next = it
		}
	}

	if next == nil {
		m.running = false

		return nil, false
	}

	next.Status = StatusDownloading
	next.StartedAt = ptr(m.now())
	next.Error = nil

	ctx, cancel := context.WithCancel(m.ctx)
	m.inflight = &inflight{id: next.ID, cancel: cancel}

	m.persistLocked()

	return &job{id: next.ID, artifactID: next.ArtifactID, ctx: ctx, cancel: cancel}, true
}

func (m *Manager) process(j *job) {
	defer j.cancel()

	ctx := logctx.With(j.ctx, "download_id", j.id, "artifact_id", j.artifactID)
	logger := logctx.LoggerFromContext(ctx)

	logger.Info("download started")

	var info *transfer.ArtifactInfo

	err := recovered(func() error {
		var err error
		info, err = m.resolver.ResolveArtifactInfo(ctx, j.artifactID)

		return err
	})
	if err == nil && info == nil {
		info = &transfer.ArtifactInfo{}
	}

	if err != nil {
		m.finish(ctx, j, "", nil, err)

		return
	}

	m.applyInfo(j.id, info)

	targetDir := transfer.TargetDir(m.modelsDir, j.artifactID)
	onProgress := func(s progress.Snapshot) {
		m.applySnapshot(j.id, s)
	}

	monitor := progress.NewMonitor(targetDir, info.TotalBytes, m.interval, onProgress)
	monitor.Start()

	var result *transfer.FetchResult

	err = recovered(func() error {
		var err error
		result, err = m.fetcher.FetchArtifact(ctx, j.artifactID, targetDir, onProgress)

		return err
	})

	monitor.Stop()

	m.finish(ctx, j, targetDir, result, err)
}

// recovered runs fn and turns a panic into an error so the worker survives a faulty
// collaborator.
func recovered(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transfer panicked: %v", r)
		}
	}()

	return fn()
}

func (m *Manager) applyInfo(id string, info *transfer.ArtifactInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok || it.Status != StatusDownloading {
		return
	}

	if info.TotalBytes > 0 {
		it.TotalBytes = info.TotalBytes
	}

	it.DisplaySize = info.DisplaySize

	m.persistLocked()
}

// applySnapshot folds a progress sample into the in-flight item. Samples for items that
// are gone or no longer downloading are ignored; byte counts and progress never go back.
func (m *Manager) applySnapshot(id string, s progress.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok || it.Status != StatusDownloading {
		return
	}

	if s.DownloadedBytes > it.DownloadedBytes {
		it.DownloadedBytes = s.DownloadedBytes
	}

	if s.TotalBytes > 0 {
		it.TotalBytes = s.TotalBytes
	}

	if p := math.Min(s.Progress, 100); p > it.Progress {
		it.Progress = p
	}

	it.SpeedBytesPerSec = s.SpeedBytesPerSec
	it.ETASeconds = clonePtr(s.ETASeconds)

	m.persistLocked()
}

func (m *Manager) finish(ctx context.Context, j *job, targetDir string, result *transfer.FetchResult, err error) {
	logger := logctx.LoggerFromContext(ctx)

	var probed int64
	if err == nil {
		probed = progress.Probe(targetDir)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inflight != nil && m.inflight.id == j.id {
		m.inflight = nil
	}

	it, ok := m.items[j.id]
	if !ok || it.Status != StatusDownloading {
		logger.Info("discarding transfer result for withdrawn download")

		return
	}

	switch {
	case err == nil:
		m.completeLocked(it, targetDir, result, probed)

		logger.Info("download completed",
			"local_path", *it.LocalPath,
			"size", humanize.Bytes(uint64(it.DownloadedBytes)),
		)
	case m.ctx.Err() != nil:
		requeueLocked(it)
		m.persistLocked()

		logger.Info("download interrupted by shutdown, re-queued")

		return
	default:
		it.Status = StatusFailed
		it.Error = ptr(err.Error())
		it.Progress = progressOf(it.DownloadedBytes, it.TotalBytes)

		logger.Error("download failed", "err", err)
	}

	it.CompletedAt = ptr(m.now())
	it.SpeedBytesPerSec = 0
	it.ETASeconds = nil

	m.persistLocked()
	m.emitLocked(it)
}

func (m *Manager) completeLocked(it *Item, targetDir string, result *transfer.FetchResult, probed int64) {
	if result == nil {
		result = &transfer.FetchResult{}
	}

	if probed > it.DownloadedBytes {
		it.DownloadedBytes = probed
	}

	switch {
	case result.TotalBytes > 0:
		it.TotalBytes = result.TotalBytes
	case it.TotalBytes > 0:
	default:
		it.TotalBytes = it.DownloadedBytes
	}

	localPath := result.LocalPath
	if localPath == "" {
		localPath = targetDir
	}

	it.Status = StatusCompleted
	it.Progress = 100
	it.LocalPath = ptr(localPath)
	it.Error = nil
}

// progressOf returns downloaded as a percentage of total, 0 when the total is unknown.
func progressOf(downloaded, total int64) float64 {
	if total <= 0 {
		return 0
	}

	return math.Min(100, float64(downloaded)/float64(total)*100)
}
