package telemetry

import (
	"net/http"
	"time"

	"github.com/comicaholic/genai-studio/internal/logctx"
)

// responseWriter wraps http.ResponseWriter to capture the status code and body size.
type responseWriter struct {
	http.ResponseWriter

	status       int
	wroteHeader  bool
	bytesWritten int64
}

// wrapResponseWriter creates a new responseWriter with status defaulted to 200 OK.
func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}

	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

// WriteHeader captures the status code and delegates to the underlying ResponseWriter.
func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}

	rw.status = code
	rw.wroteHeader = true

	rw.ResponseWriter.WriteHeader(code)
}

// Write captures implicit 200 OK if WriteHeader was not called.
func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}

	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)

	return n, err
}

// HTTPLogging middleware logs HTTP requests with a level derived from the status code:
// 5xx at ERROR, 4xx at WARN, everything else at INFO. request_id is added by the
// logger's handler.
func HTTPLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logctx.LoggerFromContext(ctx)
		start := time.Now()

		wrapped := wrapResponseWriter(w)

		next.ServeHTTP(wrapped, r)

		status := wrapped.status
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.ErrorContext(ctx, "http request completed", attrs...)
		case status >= http.StatusBadRequest:
			logger.WarnContext(ctx, "http request completed", attrs...)
		default:
			logger.InfoContext(ctx, "http request completed", attrs...)
		}
	})
}
