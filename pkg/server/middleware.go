package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/causahq/causa/pkg/observability"
)

// responseWriter captures status and size for logging and metrics.
type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *responseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// requestLogger logs one line per request after it completes, with the
// resolved route pattern rather than the raw path.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		slog.Info("HTTP request",
			"method", r.Method,
			"route", routePattern(r),
			"status", wrapped.status,
			"bytes", wrapped.bytes,
			"duration", time.Since(start),
		)
	})
}

// metricsMiddleware wraps each request in a span and records the HTTP
// instrument set keyed by route pattern, so path parameters never become
// label values.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		tracer := observability.GetTracer(component)
		ctx, span := tracer.Start(r.Context(), "http.request")
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path),
			attribute.String("http.host", r.Host),
		)

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		duration := time.Since(start)
		span.SetAttributes(
			attribute.Int("http.status_code", wrapped.status),
			attribute.Int("http.response_size", wrapped.bytes),
		)
		if wrapped.status >= 500 {
			span.SetStatus(codes.Error, http.StatusText(wrapped.status))
		} else {
			span.SetStatus(codes.Ok, http.StatusText(wrapped.status))
		}

		observability.GetGlobalMetrics().RecordHTTPRequest(ctx,
			r.Method, routePattern(r), wrapped.status, duration, int64(wrapped.bytes))
	})
}

// corsMiddleware answers preflights and stamps permissive CORS headers.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID, X-Org-IDs")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// routePattern returns chi's matched pattern, e.g.
// "/v1/cases/{case_id}/agent/messages". The pattern is only complete after
// the handler ran, so callers read it post-dispatch. Falls back to the raw
// path for unrouted requests.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}
