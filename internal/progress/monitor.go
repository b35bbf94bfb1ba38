package progress

import (
	"math"
	"sync"
	"time"
)

const (
	// DefaultInterval is the sampling period used when none is given.
	DefaultInterval = time.Second

	minElapsed = 100 * time.Millisecond
)

// Snapshot is a point-in-time view of a running transfer.
type Snapshot struct {
	DownloadedBytes  int64
	TotalBytes       int64
	Progress         float64
	SpeedBytesPerSec float64
	// ETASeconds is nil when the speed is zero or the total size is unknown.
	ETASeconds *int64
	// Final is set on the snapshot emitted by Stop.
	Final bool
}

// Func receives snapshots.
type Func func(Snapshot)

// Monitor samples a directory on a fixed interval until stopped.
type Monitor struct {
	dir        string
	totalBytes int64
	interval   time.Duration
	onProgress Func
	probe      func(string) int64
	now        func() time.Time

	mu         sync.Mutex
	lastBytes  int64
	lastSample time.Time
	started    bool
	stopped    bool
	stopCh     chan struct{}
	done       chan struct{}
}

// NewMonitor creates a monitor for dir. totalBytes may be 0 when the size is unknown.
func NewMonitor(dir string, totalBytes int64, interval time.Duration, onProgress Func) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}

	if onProgress == nil {
		onProgress = func(Snapshot) {}
	}

	return &Monitor{
		dir:        dir,
		totalBytes: totalBytes,
		interval:   interval,
		onProgress: onProgress,
		probe:      Probe,
		now:        time.Now,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start records the baseline sample and begins ticking in a goroutine.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.started || m.stopped {
		m.mu.Unlock()
		return
	}

	m.started = true
	m.lastBytes = m.probe(m.dir)
	m.lastSample = m.now()
	m.mu.Unlock()

	go m.loop()
}

// Stop ends sampling and emits the final snapshot. It is safe to call more than once;
// only the first call emits.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}

	m.stopped = true
	started := m.started
	m.mu.Unlock()

	close(m.stopCh)

	if started {
		<-m.done
	}

	m.onProgress(m.finalSnapshot())
}

func (m *Monitor) loop() {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.onProgress(m.Sample())
		}
	}
}

// Sample takes one measurement and advances the baseline.
func (m *Monitor) Sample() Snapshot {
	current := m.probe(m.dir)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	// a racing probe can briefly under-count; never report negative growth
	delta := current - m.lastBytes
	if delta < 0 {
		delta = 0
	}

	elapsed := now.Sub(m.lastSample)
	if elapsed < minElapsed {
		elapsed = minElapsed
	}

	speed := float64(delta) / elapsed.Seconds()

	downloaded := current
	if downloaded < m.lastBytes {
		downloaded = m.lastBytes
	}

	m.lastBytes = downloaded
	m.lastSample = now

	return m.snapshot(downloaded, speed)
}

func (m *Monitor) snapshot(downloaded int64, speed float64) Snapshot {
	s := Snapshot{
		DownloadedBytes:  downloaded,
		TotalBytes:       m.totalBytes,
		SpeedBytesPerSec: speed,
	}

	if m.totalBytes > 0 {
		s.Progress = math.Min(100, float64(downloaded)/float64(m.totalBytes)*100)

		if speed > 0 {
			remaining := m.totalBytes - downloaded
			if remaining < 0 {
				remaining = 0
			}

			eta := int64(math.Ceil(float64(remaining) / speed))
			s.ETASeconds = &eta
		}
	}

	return s
}

func (m *Monitor) finalSnapshot() Snapshot {
	current := m.probe(m.dir)

	m.mu.Lock()
	if current < m.lastBytes {
		current = m.lastBytes
	}
	m.lastBytes = current
	m.mu.Unlock()

	return Snapshot{
		DownloadedBytes: current,
		TotalBytes:      m.totalBytes,
		Progress:        100,
		Final:           true,
	}
}
