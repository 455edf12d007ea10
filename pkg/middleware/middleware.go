// Package middleware provides HTTP middleware for the master's admin
// HTTP surface (request ID stamping, structured access logging, panic
// recovery, request metrics).
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gridwork/cluster/pkg/logging"
	"github.com/gridwork/cluster/pkg/metrics"
)

// Middleware wraps an http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Chain composes middlewares into a single Middleware, applied in the
// order given: Chain(a, b)(h) serves a request through a, then b,
// then h.
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

type contextKey string

// RequestIDKey is the context key under which WithRequestID stores the
// generated request ID.
const RequestIDKey contextKey = "request_id"

// WithRequestID stamps every request with a UUID, echoed back on the
// X-Request-ID response header and attached to the request context so
// downstream handlers and WithLogging can correlate log lines.
func WithRequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := uuid.NewString()
			w.Header().Set("X-Request-ID", requestID)

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// responseRecorder captures the status code written by the wrapped
// handler so WithLogging can report it after the fact.
type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// WithLogging logs every request's method, path, status, and duration
// through the given logger, tagging each line with the request ID
// WithRequestID attached to the context (if present).
func WithLogging(logger logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

			reqLogger := logger
			if requestID, ok := r.Context().Value(RequestIDKey).(string); ok {
				reqLogger = logger.With("request_id", requestID)
			}

			reqLogger.Debug("handling request", "method", r.Method, "path", r.URL.Path)

			next.ServeHTTP(rec, r)

			reqLogger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status_code", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// WithMetrics records every request/response pair through coll,
// keyed the same way the messenger records its own traffic: method
// standing in for the admin surface's HTTP verb, path for the route.
func WithMetrics(coll metrics.Collector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

			coll.RecordRequest(r.Method, r.URL.Path)
			next.ServeHTTP(rec, r)
			coll.RecordResponse(r.Method, r.URL.Path, rec.status, time.Since(start))
		})
	}
}

// WithRecover converts a panic in a downstream handler into a 500
// response and a logged error, instead of crashing the admin server.
func WithRecover(logger logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logging.LogError(logger, errFromPanic(rec), "panic_recovered",
						"method", r.Method, "path", r.URL.Path)
					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func errFromPanic(rec interface{}) error {
	if err, ok := rec.(error); ok {
		return err
	}
	return errRecovered{rec}
}

type errRecovered struct {
	value interface{}
}

func (e errRecovered) Error() string {
	return "panic: " + toString(e.value)
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if stringer, ok := v.(interface{ String() string }); ok {
		return stringer.String()
	}
	return "unknown panic value"
}
