package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"notifyrouter/pkg/otel"
)

// Pinger reports whether the audit store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

func NewRouter(notify *NotifyHandler, query *QueryHandler, db Pinger, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(otel.HTTPMiddleware)
	r.Use(Trace)
	r.Use(AccessLog(logger))

	// Health endpoints
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, envelope{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, envelope{"status": "db_not_ready", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, envelope{"status": "ready"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/notify", func(r chi.Router) {
		r.Post("/email", notify.SendEmail)
		r.Post("/realtime", notify.SendRealtime)
		r.Post("/queue", notify.Enqueue)
		r.Get("/health", notify.Health)
	})

	r.Route("/api/notifications", func(r chi.Router) {
		r.Get("/", query.List)
		r.Get("/failed", query.Failed)
		r.Get("/stats", query.Stats)
	})

	return r
}
