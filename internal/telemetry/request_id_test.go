package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/comicaholic/genai-studio/internal/logctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	var seen string

	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = logctx.RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}

func TestRequestID_ReusesUpstreamHeader(t *testing.T) {
	var seen string

	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = logctx.RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-1")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "upstream-1", seen)
	assert.Equal(t, "upstream-1", rec.Header().Get(RequestIDHeader))
}

func TestHTTPLogging_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var buf bytes.Buffer

			logger := logctx.NewJSONLogger(&buf, slog.LevelDebug)

			h := HTTPLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/downloads", nil)
			ctx := logctx.WithRequestID(logctx.WithLogger(req.Context(), logger), "req-1")

			h.ServeHTTP(httptest.NewRecorder(), req.WithContext(ctx))

			var record map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

			assert.Equal(t, tt.level, record["level"])
			assert.Equal(t, "http request completed", record["msg"])
			assert.Equal(t, "/api/downloads", record["path"])
			assert.EqualValues(t, tt.status, record["status"])
			assert.Equal(t, "req-1", record["request_id"])
		})
	}
}
