package queue

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"notifyrouter/internal/model"
	"notifyrouter/pkg/logger"
	"notifyrouter/pkg/metrics"
	"notifyrouter/pkg/mq"
	"notifyrouter/pkg/workerpool"
)

// ErrBrokerDisconnected is reported (and recovered from) when the publisher lost its channel.
var ErrBrokerDisconnected = errors.New("broker publisher disconnected")

// Publisher is the broker client the proxy publishes through.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
	IsConnected() bool
}

// Broker says whether a broker is deployed. It is decided once at start-up
// from configuration; the zero value is absent.
type Broker struct {
	publisher Publisher
}

func BrokerConfigured(p Publisher) Broker { return Broker{publisher: p} }

func BrokerAbsent() Broker { return Broker{} }

func (b Broker) Present() bool { return b.publisher != nil }

// Processor handles an envelope locally.
type Processor interface {
	Process(ctx context.Context, env model.QueueEnvelope) error
}

// Submitter hands fire-and-forget work to a worker.
type Submitter interface {
	Go(ctx context.Context, name string, prio workerpool.Priority, fn workerpool.Task) error
}

// Proxy publishes envelopes to the broker and falls back to local processing
// when the broker is absent or a publish fails.
type Proxy struct {
	broker Broker
	local  Processor
	pool   Submitter
	logger *zap.Logger
}

func NewProxy(broker Broker, local Processor, pool Submitter, logger *zap.Logger) *Proxy {
	return &Proxy{broker: broker, local: local, pool: pool, logger: logger}
}

// Send hands env off. A nil error means the envelope was published or a
// local task was accepted; it says nothing about final delivery.
func (p *Proxy) Send(ctx context.Context, env model.QueueEnvelope) error {
	log := logger.WithTrace(ctx, p.logger).With(
		zap.String("type", env.Type),
		zap.String("recipient", env.Recipient),
	)

	if !p.broker.Present() {
		log.Warn("Broker not configured, processing notification directly")
		metrics.IncrementBrokerRoute("fallback_absent")
		return p.fallback(ctx, env)
	}

	err := p.publish(ctx, env)
	if err == nil {
		metrics.IncrementBrokerRoute("broker")
		log.Info("Notification published to broker", zap.String("routing_key", mq.RoutingKey))
		return nil
	}

	log.Error("Broker publish failed, processing notification directly", zap.Error(err))
	metrics.IncrementBrokerRoute("fallback_error")
	return p.fallback(ctx, env)
}

func (p *Proxy) publish(ctx context.Context, env model.QueueEnvelope) error {
	pub := p.broker.publisher
	if !pub.IsConnected() {
		return ErrBrokerDisconnected
	}
	return pub.Publish(ctx, mq.RoutingKey, env)
}

func (p *Proxy) fallback(ctx context.Context, env model.QueueEnvelope) error {
	prio := workerpool.PriorityFromInt(env.Priority)
	err := p.pool.Go(ctx, "queue-fallback", prio, func(ctx context.Context) error {
		return p.local.Process(ctx, env)
	})
	if err != nil {
		return fmt.Errorf("hand off queued notification: %w", err)
	}
	return nil
}
