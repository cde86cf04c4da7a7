package notification

import (
	"context"

	"go.uber.org/zap"

	"notifyrouter/internal/model"
	"notifyrouter/pkg/logger"
	"notifyrouter/pkg/metrics"
	"notifyrouter/pkg/workerpool"
)

// EmailChannel sends one email.
type EmailChannel interface {
	Send(ctx context.Context, to, subject, body string, isHTML bool) error
}

// TopicChannel publishes to a realtime topic.
type TopicChannel interface {
	Publish(ctx context.Context, topic, message string) error
}

// QueueProxy hands a queue envelope to the broker or to local processing.
type QueueProxy interface {
	Send(ctx context.Context, env model.QueueEnvelope) error
}

// Auditor records one delivery attempt and never fails.
type Auditor interface {
	Record(ctx context.Context, channel model.ChannelType, recipient, content string, status model.Status, cause error)
}

// Runner executes a task on a worker and waits for it.
type Runner interface {
	Do(ctx context.Context, name string, prio workerpool.Priority, fn workerpool.Task) error
}

// Dispatcher is the entry point for all three request kinds. Every call makes
// exactly one audit attempt after the transport outcome is known.
type Dispatcher struct {
	email    EmailChannel
	realtime TopicChannel
	queue    QueueProxy
	audit    Auditor
	runner   Runner
	logger   *zap.Logger
}

func NewDispatcher(email EmailChannel, realtime TopicChannel, queue QueueProxy, audit Auditor, runner Runner, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		email:    email,
		realtime: realtime,
		queue:    queue,
		audit:    audit,
		runner:   runner,
		logger:   logger,
	}
}

// DispatchEmail sends the email on a worker, waits for the outcome and audits it.
// A transport failure is audited as FAILED and returned as a *DispatchError.
func (d *Dispatcher) DispatchEmail(ctx context.Context, req model.EmailRequest) error {
	err := d.runner.Do(ctx, "email", workerpool.PriorityNormal, func(ctx context.Context) error {
		return d.email.Send(ctx, req.To, req.Subject, req.Body, req.HTML)
	})
	return d.finish(ctx, model.ChannelEmail, "send", req.To, req.Subject, model.StatusSent, err)
}

// DispatchRealtime publishes to /topic/{topic} and audits the outcome.
func (d *Dispatcher) DispatchRealtime(ctx context.Context, req model.RealtimeRequest) error {
	err := d.realtime.Publish(ctx, req.Topic, req.Message)
	return d.finish(ctx, model.ChannelRealtime, "publish", req.Topic, req.Message, model.StatusSent, err)
}

// DispatchQueue hands the envelope off and audits QUEUED, or FAILED when the
// hand-off itself was rejected.
func (d *Dispatcher) DispatchQueue(ctx context.Context, env model.QueueEnvelope) error {
	err := d.queue.Send(ctx, env)
	return d.finish(ctx, model.ChannelQueue, "hand-off", env.Recipient, env.AuditContent(), model.StatusQueued, err)
}

func (d *Dispatcher) finish(ctx context.Context, channel model.ChannelType, op, recipient, content string, okStatus model.Status, err error) error {
	log := logger.WithTrace(ctx, d.logger).With(
		zap.String("channel", string(channel)),
		zap.String("recipient", recipient),
	)

	if err != nil {
		d.audit.Record(ctx, channel, recipient, content, model.StatusFailed, err)
		metrics.IncrementDispatch(string(channel), string(model.StatusFailed))

		derr := NewDispatchError(channel, op, err)
		log.Error("Notification dispatch failed",
			zap.String("error_type", derr.Kind),
			zap.Bool("retryable", derr.Retryable()),
			zap.Error(err),
		)
		return derr
	}

	d.audit.Record(ctx, channel, recipient, content, okStatus, nil)
	metrics.IncrementDispatch(string(channel), string(okStatus))
	log.Info("Notification dispatched", zap.String("status", string(okStatus)))
	return nil
}
