package queue

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"notifyrouter/internal/model"
	"notifyrouter/pkg/logger"
	"notifyrouter/pkg/metrics"
)

// DefaultSubject is used for queued emails whose message has no "subject|" prefix.
const DefaultSubject = "Notification"

// EmailChannel is the part of the email sender the demultiplexer needs.
type EmailChannel interface {
	Send(ctx context.Context, to, subject, body string, isHTML bool) error
}

// RealtimeChannel is the part of the realtime sender the demultiplexer needs.
type RealtimeChannel interface {
	PublishToUser(ctx context.Context, username, message string) error
	PublishAll(ctx context.Context, message string) error
}

// Demultiplexer turns a queue envelope into one channel call. The broker
// listener and the local fallback both go through it.
type Demultiplexer struct {
	email    EmailChannel
	realtime RealtimeChannel
	logger   *zap.Logger
}

func NewDemultiplexer(email EmailChannel, realtime RealtimeChannel, logger *zap.Logger) *Demultiplexer {
	return &Demultiplexer{email: email, realtime: realtime, logger: logger}
}

// Process routes env by its declared type. An unrecognized type is logged,
// counted and dropped; it is not reported as an error.
func (d *Demultiplexer) Process(ctx context.Context, env model.QueueEnvelope) error {
	log := logger.WithTrace(ctx, d.logger)

	switch env.NormalizedType() {
	case model.EnvelopeEmail:
		subject, body := SplitEmailMessage(env.Message)
		return d.email.Send(ctx, env.Recipient, subject, body, false)
	case model.EnvelopeWebSocket:
		return d.realtime.PublishToUser(ctx, env.Recipient, env.Message)
	case model.EnvelopeBroadcast:
		return d.realtime.PublishAll(ctx, env.Message)
	default:
		metrics.IncrementUnrecognizedChannel()
		log.Warn("Unknown notification type, dropping envelope",
			zap.String("type", env.Type),
			zap.String("recipient", env.Recipient),
		)
		return nil
	}
}

// SplitEmailMessage splits "subject|body" on the first separator.
func SplitEmailMessage(message string) (subject, body string) {
	if subject, body, found := strings.Cut(message, "|"); found {
		return subject, body
	}
	return DefaultSubject, message
}
