package jsonfile

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/comicaholic/genai-studio/internal/logctx"
	"github.com/comicaholic/genai-studio/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T {
	return &v
}

func newStore(t *testing.T) *Store {
	t.Helper()

	return New(filepath.Join(t.TempDir(), "data", "download_queue.json"))
}

func capture(t *testing.T) (context.Context, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer

	return logctx.WithLogger(context.Background(), logctx.NewJSONLogger(&buf, slog.LevelDebug)), &buf
}

func sampleItems() []queue.Item {
	created := time.Date(2025, 3, 4, 5, 6, 7, 890, time.UTC)
	started := created.Add(time.Second)
	done := created.Add(time.Minute)

	return []queue.Item{
		{ID: "a_1", ArtifactID: "a", Status: queue.StatusQueued, CreatedAt: created, Sequence: 1},
		{
			ID: "b_2", ArtifactID: "org/b", Status: queue.StatusDownloading, Progress: 42.5,
			DownloadedBytes: 425, TotalBytes: 1000, DisplaySize: "1.0 kB", SpeedBytesPerSec: 100,
			ETASeconds: ptr(int64(6)), CreatedAt: created, StartedAt: &started, Sequence: 2,
		},
		{
			ID: "c_3", ArtifactID: "c", Status: queue.StatusCompleted, Progress: 100,
			DownloadedBytes: 1000, TotalBytes: 1000, CreatedAt: created, StartedAt: &started,
			CompletedAt: &done, LocalPath: ptr("/data/models/c"), Sequence: 3,
		},
		{
			ID: "d_4", ArtifactID: "d", Status: queue.StatusFailed, Error: ptr("network error during fetch_file: reset"),
			CreatedAt: created, StartedAt: &started, CompletedAt: &done, Sequence: 4,
		},
		{ID: "e_5", ArtifactID: "e", Status: queue.StatusCancelled, CreatedAt: created, CompletedAt: &done, Sequence: 5},
	}
}

func TestStore_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		items []queue.Item
	}{
		{name: "empty", items: []queue.Item{}},
		{name: "every status", items: sampleItems()},
		{name: "unknown total", items: []queue.Item{
			{ID: "z_1", ArtifactID: "z", Status: queue.StatusCompleted, Progress: 100, TotalBytes: 0, Sequence: 1},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			require.NoError(t, s.Save(ctx, tt.items))

			got, err := s.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.items, got)
		})
	}
}

func TestStore_DocumentShape(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Save(context.Background(), nil))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `{"downloads": []}`, string(data))
}

func TestStore_LoadMissingFile(t *testing.T) {
	got, err := newStore(t).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_LoadEmptyOrCorruptFile(t *testing.T) {
	for name, content := range map[string]string{
		"empty":     "",
		"blank":     "  \n",
		"corrupt":   `{"downloads": [`,
		"wrong doc": `[1, 2, 3]`,
	} {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), dirPerm))
			require.NoError(t, os.WriteFile(s.Path(), []byte(content), filePerm))

			ctx, logs := capture(t)

			got, err := s.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, got)
			assert.Contains(t, logs.String(), `"level":"WARN"`)
		})
	}
}

func TestStore_StaleTempFileDoesNotAffectLoad(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	items := sampleItems()

	require.NoError(t, s.Save(ctx, items))

	// simulate a crash between writing the temp file and renaming it
	stale := filepath.Join(filepath.Dir(s.Path()), "download_queue.json.123.tmp")
	require.NoError(t, os.WriteFile(stale, []byte(`{"downloads": [{"id": "half`), filePerm))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, items, got)

	_, err = os.Stat(stale)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStore_SaveFallsBackToRemoveThenRename(t *testing.T) {
	s := newStore(t)
	ctx, logs := capture(t)

	require.NoError(t, s.Save(ctx, sampleItems()[:1]))

	calls := 0
	s.rename = func(oldpath, newpath string) error {
		calls++
		if calls == 1 {
			return errors.New("target busy")
		}

		return os.Rename(oldpath, newpath)
	}

	items := sampleItems()
	require.NoError(t, s.Save(ctx, items))
	assert.Equal(t, 2, calls)
	assert.Contains(t, logs.String(), "removing target first")

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, items, got)
}

func TestStore_SaveFallsBackToDirectWrite(t *testing.T) {
	s := newStore(t)
	ctx, logs := capture(t)

	s.rename = func(string, string) error {
		return errors.New("rename not supported")
	}

	items := sampleItems()
	require.NoError(t, s.Save(ctx, items))
	assert.Contains(t, logs.String(), "writing in place")

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, items, got)

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(s.Path()), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}
