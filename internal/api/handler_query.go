package api

import (
	"context"
	"net/http"
	"strconv"

	"notifyrouter/internal/model"
	"notifyrouter/internal/repository"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// RecordQuerier reads the audit trail.
type RecordQuerier interface {
	Find(ctx context.Context, f repository.Filter) ([]model.NotificationRecord, error)
	FindFailed(ctx context.Context, limit uint64) ([]model.NotificationRecord, error)
	CountByStatus(ctx context.Context, status model.Status) (int64, error)
}

type QueryHandler struct {
	records RecordQuerier
}

func NewQueryHandler(records RecordQuerier) *QueryHandler {
	return &QueryHandler{records: records}
}

// List handles GET /api/notifications?type=&status=&recipient=&limit=
func (h *QueryHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.Filter{
		Type:      model.ChannelType(q.Get("type")),
		Status:    model.Status(q.Get("status")),
		Recipient: q.Get("recipient"),
	}
	if f.Type != "" && !f.Type.Valid() {
		writeError(w, http.StatusBadRequest, "unknown type "+q.Get("type"))
		return
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status "+q.Get("status"))
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	f.Limit = limit

	records, err := h.records.Find(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch notifications")
		return
	}
	writeJSON(w, http.StatusOK, envelope{"notifications": records})
}

// Failed handles GET /api/notifications/failed?limit=
func (h *QueryHandler) Failed(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	records, err := h.records.FindFailed(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch notifications")
		return
	}
	writeJSON(w, http.StatusOK, envelope{"notifications": records})
}

// Stats handles GET /api/notifications/stats
func (h *QueryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts := make(map[model.Status]int64, len(model.AllStatuses))
	for _, s := range model.AllStatuses {
		n, err := h.records.CountByStatus(r.Context(), s)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to count notifications")
			return
		}
		counts[s] = n
	}
	writeJSON(w, http.StatusOK, envelope{"counts": counts})
}

// parseLimit reads ?limit=, defaulting to defaultListLimit and capping at maxListLimit.
func parseLimit(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return min(n, maxListLimit), true
}
