package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"notifyrouter/pkg/logger"
	"notifyrouter/pkg/metrics"
	"notifyrouter/pkg/trace"
)

// Trace puts the request's trace id into the context and echoes it back.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := trace.FromHeader(r.Header.Get(trace.HeaderName))
		w.Header().Set(trace.HeaderName, traceID)
		next.ServeHTTP(w, r.WithContext(trace.WithContext(r.Context(), traceID)))
	})
}

// AccessLog logs each request and records its latency by route pattern.
func AccessLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			path := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				path = rc.RoutePattern()
			}
			took := time.Since(start)
			metrics.RecordHTTPRequestDuration(r.Method, path, strconv.Itoa(status), took)

			logger.WithTrace(r.Context(), log).Info("http request",
				zap.String("method", r.Method),
				zap.String("path", path),
				zap.Int("status", status),
				zap.Duration("took", took),
			)
		})
	}
}
