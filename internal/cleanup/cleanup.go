package cleanup

import (
	"context"
	"time"

	"github.com/comicaholic/genai-studio/internal/logctx"
)

// Remover drops completed queue items that finished before a cutoff.
type Remover interface {
	RemoveCompletedBefore(cutoff time.Time) int
}

// RemoveExpired removes completed items older than keepDuration and returns how many were
// removed. A non-positive keepDuration disables retention.
func RemoveExpired(ctx context.Context, r Remover, now time.Time, keepDuration time.Duration) int {
	if keepDuration <= 0 {
		return 0
	}

	removed := r.RemoveCompletedBefore(now.Add(-keepDuration))
	if removed > 0 {
		logctx.LoggerFromContext(ctx).Info("removed expired downloads", "count", removed, "retention", keepDuration.String())
	}

	return removed
}

// Run applies RemoveExpired every interval until ctx is done.
func Run(ctx context.Context, r Remover, keepDuration, interval time.Duration) {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("cleanup goroutine shutting down.")

			return
		case now := <-ticker.C:
			RemoveExpired(ctx, r, now.UTC(), keepDuration)
		}
	}
}
