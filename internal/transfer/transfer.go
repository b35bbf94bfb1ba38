package transfer

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/comicaholic/genai-studio/internal/progress"
)

// ArtifactInfo describes a remote artifact before it is fetched.
type ArtifactInfo struct {
	// TotalBytes is 0 when the remote does not report sizes.
	TotalBytes  int64
	DisplaySize string
}

// FetchResult is returned by a successful fetch.
type FetchResult struct {
	LocalPath  string
	TotalBytes int64
}

// Resolver looks up artifact metadata.
type Resolver interface {
	ResolveArtifactInfo(ctx context.Context, artifactID string) (*ArtifactInfo, error)
}

// Fetcher performs the actual multi-file transfer of an artifact into targetDir. It blocks
// until the transfer finishes and must return promptly once ctx is cancelled. onProgress may
// be nil; fetchers that know exact byte counts can report them through it.
type Fetcher interface {
	FetchArtifact(ctx context.Context, artifactID, targetDir string, onProgress progress.Func) (*FetchResult, error)
}

// TargetDir returns the directory an artifact is fetched into below root.
func TargetDir(root, artifactID string) string {
	return filepath.Join(root, strings.ReplaceAll(artifactID, "/", "_"))
}
