package transfer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/comicaholic/genai-studio/internal/progress"
	"github.com/comicaholic/genai-studio/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	info *ArtifactInfo
	err  error
}

func (s *stubResolver) ResolveArtifactInfo(context.Context, string) (*ArtifactInfo, error) {
	return s.info, s.err
}

type stubFetcher struct {
	calls int
	err   error
}

func (s *stubFetcher) FetchArtifact(_ context.Context, _, targetDir string, _ progress.Func) (*FetchResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}

	return &FetchResult{LocalPath: targetDir, TotalBytes: 42}, nil
}

func TestTargetDir(t *testing.T) {
	got := TargetDir(filepath.FromSlash("/data/models"), "demo/model-1")
	assert.Equal(t, filepath.FromSlash("/data/models/demo_model-1"), got)
}

func TestInstrumentedResolver_PassesThrough(t *testing.T) {
	tel, err := telemetry.New(context.Background(), telemetry.Config{})
	require.NoError(t, err)

	r := NewInstrumentedResolver(&stubResolver{info: &ArtifactInfo{TotalBytes: 1000, DisplaySize: "1.0 kB"}}, tel, "hub")

	info, err := r.ResolveArtifactInfo(context.Background(), "demo/model-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), info.TotalBytes)

	cause := &ResolutionError{ArtifactID: "demo/missing", Reason: "repository not found"}
	r = NewInstrumentedResolver(&stubResolver{err: cause}, tel, "hub")

	_, err = r.ResolveArtifactInfo(context.Background(), "demo/missing")

	var target *ResolutionError
	require.True(t, errors.As(err, &target))
	assert.Equal(t, "demo/missing", target.ArtifactID)
}

func TestInstrumentedFetcher_PassesThrough(t *testing.T) {
	tel, err := telemetry.New(context.Background(), telemetry.Config{})
	require.NoError(t, err)

	inner := &stubFetcher{}
	f := NewInstrumentedFetcher(inner, tel, "hub")

	res, err := f.FetchArtifact(context.Background(), "demo/model-1", "/tmp/demo_model-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/demo_model-1", res.LocalPath)
	assert.Equal(t, 1, inner.calls)

	inner.err = &NetworkError{Operation: "fetch_file", StatusCode: 502, APIMessage: "bad gateway"}

	_, err = f.FetchArtifact(context.Background(), "demo/model-1", "/tmp/demo_model-1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
}
