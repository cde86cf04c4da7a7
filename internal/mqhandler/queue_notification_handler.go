package mqhandler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"notifyrouter/internal/model"
	"notifyrouter/pkg/logger"
)

// EnvelopeProcessor handles one decoded queue envelope.
type EnvelopeProcessor interface {
	Process(ctx context.Context, env model.QueueEnvelope) error
}

// QueueNotificationHandler is the broker listener for notification.queue.
type QueueNotificationHandler struct {
	processor EnvelopeProcessor
	logger    *zap.Logger
}

func NewQueueNotificationHandler(processor EnvelopeProcessor, logger *zap.Logger) *QueueNotificationHandler {
	return &QueueNotificationHandler{
		processor: processor,
		logger:    logger,
	}
}

// Handle decodes the envelope and processes it. Duplicate deliveries are
// processed again; there is no deduplication.
func (h *QueueNotificationHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var env model.QueueEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Error("Failed to unmarshal queue envelope", zap.Error(err))
		return err
	}

	log.Info("Processing queued notification",
		zap.String("type", env.Type),
		zap.String("recipient", env.Recipient),
		zap.Int("priority", env.Priority),
	)

	if err := h.processor.Process(ctx, env); err != nil {
		log.Error("Failed to process queued notification",
			zap.String("type", env.Type),
			zap.String("recipient", env.Recipient),
			zap.Error(err),
		)
		return err
	}
	return nil
}
