package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"notifyrouter/internal/model"
	"notifyrouter/internal/service/notification"
)

// Dispatcher is the notification entry point the handlers call.
type Dispatcher interface {
	DispatchEmail(ctx context.Context, req model.EmailRequest) error
	DispatchRealtime(ctx context.Context, req model.RealtimeRequest) error
	DispatchQueue(ctx context.Context, env model.QueueEnvelope) error
}

type NotifyHandler struct {
	dispatcher Dispatcher
	service    string
	now        func() time.Time
}

func NewNotifyHandler(dispatcher Dispatcher, service string) *NotifyHandler {
	return &NotifyHandler{dispatcher: dispatcher, service: service, now: time.Now}
}

type validatable interface {
	Validate() error
}

// bind decodes and validates the body, writing a 400 when either fails.
func bind(w http.ResponseWriter, r *http.Request, dst validatable) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := dst.Validate(); err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, envelope{
				"status":  "error",
				"message": "validation failed",
				"errors":  verr.Fields,
			})
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// dispatchFailed maps a dispatch failure: retryable ones are 503, the rest 502.
func dispatchFailed(w http.ResponseWriter, prefix string, err error) {
	status := http.StatusBadGateway
	if notification.IsRetryable(err) {
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, prefix+": "+err.Error())
}

// SendEmail handles POST /api/notify/email
func (h *NotifyHandler) SendEmail(w http.ResponseWriter, r *http.Request) {
	var req model.EmailRequest
	if !bind(w, r, &req) {
		return
	}
	if err := h.dispatcher.DispatchEmail(r.Context(), req); err != nil {
		dispatchFailed(w, "Failed to send email", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"status":    "success",
		"message":   "Email sent successfully",
		"recipient": req.To,
	})
}

// SendRealtime handles POST /api/notify/realtime
func (h *NotifyHandler) SendRealtime(w http.ResponseWriter, r *http.Request) {
	var req model.RealtimeRequest
	if !bind(w, r, &req) {
		return
	}
	if err := h.dispatcher.DispatchRealtime(r.Context(), req); err != nil {
		dispatchFailed(w, "Failed to send real-time notification", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"status":  "success",
		"message": "Real-time notification sent successfully",
		"topic":   req.Topic,
	})
}

// Enqueue handles POST /api/notify/queue
func (h *NotifyHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var env model.QueueEnvelope
	if !bind(w, r, &env) {
		return
	}
	if err := h.dispatcher.DispatchQueue(r.Context(), env); err != nil {
		dispatchFailed(w, "Failed to queue notification", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"status":  "success",
		"message": "Notification queued successfully",
		"type":    env.Type,
	})
}

// Health handles GET /api/notify/health
func (h *NotifyHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{
		"status":    "UP",
		"service":   h.service,
		"timestamp": h.now(),
	})
}
