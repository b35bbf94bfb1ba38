package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// HTTPMiddleware provides HTTP telemetry middleware.
type HTTPMiddleware struct {
	telemetry *Telemetry
}

// NewHTTPMiddleware creates a new HTTP middleware for telemetry.
func NewHTTPMiddleware(telemetry *Telemetry) *HTTPMiddleware {
	return &HTTPMiddleware{
		telemetry: telemetry,
	}
}

// Middleware returns the HTTP middleware function.
func (m *HTTPMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.telemetry == nil {
			next.ServeHTTP(w, r)

			return
		}

		start := time.Now()
		ctx := r.Context()

		m.telemetry.IncrementHTTPInFlight(ctx)
		defer m.telemetry.DecrementHTTPInFlight(ctx)

		ctx, span := m.telemetry.Tracer().Start(ctx, "http_request")
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.user_agent", r.UserAgent()),
		)

		rw := wrapResponseWriter(w)

		next.ServeHTTP(rw, r.WithContext(ctx))

		duration := time.Since(start)
		route := routePattern(r)

		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", rw.status),
			attribute.Int64("http.response_size", rw.bytesWritten),
		)

		if rw.status >= http.StatusBadRequest {
			span.SetAttributes(attribute.Bool("error", true))

			if rw.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(rw.status))
			}
		}

		m.telemetry.RecordHTTPRequest(ctx, r.Method, route, getStatusClass(rw.status), duration)
	})
}

// routePattern returns the matched chi route ("/api/downloads/{id}") instead of the raw
// path, keeping the route label bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}

	return "unmatched"
}

// getStatusClass returns the status class (2xx, 3xx, 4xx, 5xx) for a given status code.
func getStatusClass(statusCode int) string {
	switch {
	case statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices:
		return "2xx"
	case statusCode >= http.StatusMultipleChoices && statusCode < http.StatusBadRequest:
		return "3xx"
	case statusCode >= http.StatusBadRequest && statusCode < http.StatusInternalServerError:
		return "4xx"
	case statusCode >= http.StatusInternalServerError:
		return "5xx"
	default:
		return "unknown"
	}
}
