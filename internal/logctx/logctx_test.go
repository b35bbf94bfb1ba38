package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerFromContext_DefaultsToSlogDefault(t *testing.T) {
	assert.Same(t, slog.Default(), LoggerFromContext(context.Background()))
}

func TestWith_AddsAttributesToContextLogger(t *testing.T) {
	var buf bytes.Buffer

	ctx := WithLogger(context.Background(), NewJSONLogger(&buf, slog.LevelDebug))
	ctx = With(ctx, "download_id", "demo/model-1_1")

	LoggerFromContext(ctx).InfoContext(ctx, "download started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "download started", entry["msg"])
	assert.Equal(t, "demo/model-1_1", entry["download_id"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}
