package notifier

import (
	"context"

	"github.com/comicaholic/genai-studio/internal/logctx"
	"github.com/comicaholic/genai-studio/internal/queue"
	"github.com/dustin/go-humanize"
)

// Watch sends a message for every terminal queue event until events is closed.
func Watch(ctx context.Context, n Notifier, events <-chan queue.Event) {
	logger := logctx.LoggerFromContext(ctx)

	for ev := range events {
		msg := Message(ev)
		if msg == "" {
			continue
		}

		if err := n.Notify(ctx, msg); err != nil {
			logger.Error("failed to send notification", "download_id", ev.Item.ID, "err", err)
		}
	}
}

// Message renders the notification text for an event, or "" when there is nothing to say.
func Message(ev queue.Event) string {
	it := ev.Item

	switch it.Status {
	case queue.StatusCompleted:
		return "✅ Download finished for model: " + it.ArtifactID + " (" + humanize.Bytes(uint64(it.TotalBytes)) + ")"
	case queue.StatusFailed:
		reason := "unknown error"
		if it.Error != nil {
			reason = *it.Error
		}

		return "❌ Download failed for model: " + it.ArtifactID + ": " + reason
	case queue.StatusCancelled:
		return "⏹️ Download cancelled for model: " + it.ArtifactID
	default:
		return ""
	}
}
