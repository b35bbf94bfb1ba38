package transfer

import (
	"context"

	"github.com/comicaholic/genai-studio/internal/progress"
	"github.com/comicaholic/genai-studio/internal/telemetry"
)

// InstrumentedResolver wraps a Resolver with telemetry.
type InstrumentedResolver struct {
	resolver   Resolver
	telemetry  *telemetry.Telemetry
	clientType string
}

// NewInstrumentedResolver creates a new instrumented resolver.
func NewInstrumentedResolver(resolver Resolver, tel *telemetry.Telemetry, clientType string) *InstrumentedResolver {
	return &InstrumentedResolver{
		resolver:   resolver,
		telemetry:  tel,
		clientType: clientType,
	}
}

// ResolveArtifactInfo resolves artifact metadata with telemetry.
func (r *InstrumentedResolver) ResolveArtifactInfo(ctx context.Context, artifactID string) (*ArtifactInfo, error) {
	var result *ArtifactInfo

	var err error

	instrumentedErr := r.telemetry.InstrumentClientOperation(ctx, r.clientType, "resolve_artifact", func(ctx context.Context) error {
		result, err = r.resolver.ResolveArtifactInfo(ctx, artifactID)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

// InstrumentedFetcher wraps a Fetcher with telemetry.
type InstrumentedFetcher struct {
	fetcher    Fetcher
	telemetry  *telemetry.Telemetry
	clientType string
}

// NewInstrumentedFetcher creates a new instrumented fetcher.
func NewInstrumentedFetcher(fetcher Fetcher, tel *telemetry.Telemetry, clientType string) *InstrumentedFetcher {
	return &InstrumentedFetcher{
		fetcher:    fetcher,
		telemetry:  tel,
		clientType: clientType,
	}
}

// FetchArtifact fetches an artifact, recording the download and the client operation.
func (f *InstrumentedFetcher) FetchArtifact(
	ctx context.Context, artifactID, targetDir string, onProgress progress.Func,
) (*FetchResult, error) {
	var result *FetchResult

	var err error

	instrumentedErr := f.telemetry.InstrumentDownload(ctx, func(ctx context.Context) error {
		return f.telemetry.InstrumentClientOperation(ctx, f.clientType, "fetch_artifact", func(ctx context.Context) error {
			result, err = f.fetcher.FetchArtifact(ctx, artifactID, targetDir, onProgress)

			return err
		})
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	if result != nil {
		f.telemetry.RecordDownloadedBytes(ctx, result.TotalBytes)
	}

	return result, nil
}
