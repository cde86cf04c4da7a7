package audit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"notifyrouter/internal/model"
	"notifyrouter/pkg/logger"
	"notifyrouter/pkg/metrics"
)

const defaultWriteTimeout = 5 * time.Second

// Store persists audit records. The repository implements it.
type Store interface {
	Save(ctx context.Context, rec *model.NotificationRecord) error
}

// Recorder writes one audit record per delivery attempt. It never returns an
// error: a failed write is logged and counted, and the caller carries on.
type Recorder struct {
	store   Store
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	return &Recorder{
		store:   store,
		logger:  logger,
		timeout: defaultWriteTimeout,
		now:     time.Now,
	}
}

// Record builds and saves a record. cause is stored only for FAILED records.
// The write is detached from ctx cancellation so an aborted request still gets audited.
func (r *Recorder) Record(ctx context.Context, channel model.ChannelType, recipient, content string, status model.Status, cause error) {
	rec := model.NewRecord(channel, recipient, content, status, cause, r.now())
	log := logger.WithTrace(ctx, r.logger)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.save(writeCtx, rec); err != nil {
		metrics.IncrementAuditFailure()
		log.Error("Failed to save notification record",
			zap.String("type", string(channel)),
			zap.String("recipient", recipient),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return
	}

	log.Debug("Notification record saved",
		zap.Int64("id", rec.ID),
		zap.String("type", string(channel)),
		zap.String("status", string(status)),
	)
}

func (r *Recorder) save(ctx context.Context, rec *model.NotificationRecord) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("audit store panicked: %v", p)
		}
	}()
	return r.store.Save(ctx, rec)
}
