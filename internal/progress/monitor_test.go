package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock and fakeDisk let a test drive samples deterministically.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

type fakeDisk struct {
	mu    sync.Mutex
	bytes int64
}

func (d *fakeDisk) set(n int64) {
	d.mu.Lock()
	d.bytes = n
	d.mu.Unlock()
}

func (d *fakeDisk) probe(string) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.bytes
}

type recorder struct {
	mu        sync.Mutex
	snapshots []Snapshot
}

func (r *recorder) record(s Snapshot) {
	r.mu.Lock()
	r.snapshots = append(r.snapshots, s)
	r.mu.Unlock()
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Snapshot(nil), r.snapshots...)
}

func newTestMonitor(total int64, disk *fakeDisk, clock *fakeClock, rec *recorder) *Monitor {
	m := NewMonitor("/models/demo", total, time.Hour, rec.record)
	m.probe = disk.probe
	m.now = clock.now

	return m
}

func TestMonitor_SampleComputesSpeedProgressAndETA(t *testing.T) {
	disk := &fakeDisk{}
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	rec := &recorder{}

	m := newTestMonitor(1000, disk, clock, rec)
	m.Start()
	defer m.Stop()

	disk.set(250)
	clock.advance(time.Second)
	s := m.Sample()

	assert.Equal(t, int64(250), s.DownloadedBytes)
	assert.Equal(t, int64(1000), s.TotalBytes)
	assert.InDelta(t, 25.0, s.Progress, 0.001)
	assert.InDelta(t, 250.0, s.SpeedBytesPerSec, 0.001)
	require.NotNil(t, s.ETASeconds)
	assert.Equal(t, int64(3), *s.ETASeconds)

	disk.set(600)
	clock.advance(2 * time.Second)
	s = m.Sample()

	assert.InDelta(t, 175.0, s.SpeedBytesPerSec, 0.001)
	assert.InDelta(t, 60.0, s.Progress, 0.001)
	require.NotNil(t, s.ETASeconds)
	assert.Equal(t, int64(3), *s.ETASeconds)
}

func TestMonitor_NegativeDeltaIsClamped(t *testing.T) {
	disk := &fakeDisk{}
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	rec := &recorder{}

	m := newTestMonitor(1000, disk, clock, rec)
	m.Start()
	defer m.Stop()

	disk.set(500)
	clock.advance(time.Second)
	m.Sample()

	// partial read under-counts
	disk.set(300)
	clock.advance(time.Second)
	s := m.Sample()

	assert.Equal(t, int64(500), s.DownloadedBytes)
	assert.Zero(t, s.SpeedBytesPerSec)
	assert.Nil(t, s.ETASeconds)
}

func TestMonitor_UnknownTotalKeepsProgressAtZero(t *testing.T) {
	disk := &fakeDisk{}
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	rec := &recorder{}

	m := newTestMonitor(0, disk, clock, rec)
	m.Start()
	defer m.Stop()

	disk.set(4096)
	clock.advance(time.Second)
	s := m.Sample()

	assert.Equal(t, int64(4096), s.DownloadedBytes)
	assert.Zero(t, s.Progress)
	assert.Nil(t, s.ETASeconds)
	assert.Positive(t, s.SpeedBytesPerSec)
}

func TestMonitor_ElapsedIsFloored(t *testing.T) {
	disk := &fakeDisk{}
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	rec := &recorder{}

	m := newTestMonitor(1000, disk, clock, rec)
	m.Start()
	defer m.Stop()

	disk.set(100)
	s := m.Sample() // no time has passed

	assert.InDelta(t, 1000.0, s.SpeedBytesPerSec, 0.001)
}

func TestMonitor_StopEmitsFinalSnapshotOnce(t *testing.T) {
	disk := &fakeDisk{}
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	rec := &recorder{}

	m := newTestMonitor(1000, disk, clock, rec)
	m.Start()

	disk.set(400)
	m.Stop()
	m.Stop()

	snaps := rec.all()
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].Final)
	assert.Equal(t, 100.0, snaps[0].Progress)
	assert.Equal(t, int64(400), snaps[0].DownloadedBytes)
}

func TestMonitor_StopWithoutStart(t *testing.T) {
	rec := &recorder{}
	m := NewMonitor(t.TempDir(), 0, time.Hour, rec.record)

	m.Stop()

	snaps := rec.all()
	require.Len(t, snaps, 1)
	assert.Equal(t, 100.0, snaps[0].Progress)
}

func TestMonitor_TicksOnInterval(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}

	m := NewMonitor(dir, 0, 10*time.Millisecond, rec.record)
	m.Start()

	require.Eventually(t, func() bool { return len(rec.all()) >= 2 }, time.Second, 5*time.Millisecond)

	m.Stop()

	snaps := rec.all()
	last := snaps[len(snaps)-1]
	assert.True(t, last.Final)

	for _, s := range snaps[:len(snaps)-1] {
		assert.False(t, s.Final)
	}
}
