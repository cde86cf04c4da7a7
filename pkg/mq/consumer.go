package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"notifyrouter/pkg/logger"
	"notifyrouter/pkg/metrics"
	"notifyrouter/pkg/otel"
	"notifyrouter/pkg/trace"
	"notifyrouter/pkg/util"
)

type MessageHandler func(ctx context.Context, data json.RawMessage) error

// RetryCounter tracks how many times a message has failed across redeliveries.
type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type deliveryAction int

const (
	actionAck deliveryAction = iota
	actionRequeue
	actionDeadLetter
)

func (a deliveryAction) String() string {
	switch a {
	case actionAck:
		return "ack"
	case actionRequeue:
		return "requeue"
	case actionDeadLetter:
		return "dead_letter"
	default:
		return "unknown"
	}
}

const consumerTag = "notifyrouter"

type Consumer struct {
	conn       *amqp091.Connection
	channel    *amqp091.Channel
	queue      amqp091.Queue
	handler    MessageHandler
	retries    RetryCounter
	maxRetries int64
	logger     *zap.Logger

	mu       sync.Mutex
	finished chan struct{} // closed when StartConsuming returns
}

// NewConsumer connects to the broker and declares the notification topology.
// retries may be nil, in which case the AMQP redelivered flag limits retries to one.
func NewConsumer(url string, maxRetries int64, retries RetryCounter, logger *zap.Logger) (*Consumer, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q, err := DeclareTopology(ch)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	if err := DeclareDLQ(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("Consumer initialized",
		zap.String("routing_key", RoutingKey),
		zap.String("queue", q.Name),
		zap.String("exchange", ExchangeName),
		zap.Int64("max_retries", maxRetries),
	)

	return &Consumer{
		conn:       conn,
		channel:    ch,
		queue:      q,
		retries:    retries,
		maxRetries: maxRetries,
		logger:     logger,
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

// Stop cancels the delivery subscription; StartConsuming returns once the broker confirms.
func (c *Consumer) Stop() {
	if c.channel != nil {
		if err := c.channel.Cancel(consumerTag, false); err != nil {
			c.logger.Warn("Failed to cancel consumer", zap.Error(err))
		}
	}
}

// Shutdown cancels the subscription, waits for the delivery in progress to be
// settled and then closes the channel and connection. If ctx ends first the
// connection is closed anyway and the unsettled message is redelivered.
func (c *Consumer) Shutdown(ctx context.Context) error {
	c.Stop()

	c.mu.Lock()
	finished := c.finished
	c.mu.Unlock()

	var err error
	if finished != nil {
		select {
		case <-finished:
		case <-ctx.Done():
			err = fmt.Errorf("consumer drain interrupted: %w", ctx.Err())
		}
	}
	c.Close()
	return err
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// StartConsuming starts consuming messages. This method blocks and should be called in a goroutine.
func (c *Consumer) StartConsuming() error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	c.mu.Lock()
	c.finished = make(chan struct{})
	finished := c.finished
	c.mu.Unlock()
	defer close(finished)

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		consumerTag,
		false, // 手动ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.String("routing_key", RoutingKey),
		zap.String("queue", c.queue.Name),
	)

	// 保证每条消息都会被 ack、requeue 或进入死信队列
	for msg := range deliveries {
		c.process(msg)
	}

	c.logger.Info("Consumer delivery channel closed", zap.String("queue", c.queue.Name))
	return nil
}

func (c *Consumer) process(msg amqp091.Delivery) {
	start := time.Now()
	ctx := otel.ExtractHeaders(context.Background(), msg.Headers)
	ctx, span := otel.MQConsumeSpan(ctx, c.queue.Name, msg.RoutingKey)
	defer span.End()
	if traceID, ok := msg.Headers["x-trace-id"].(string); ok && traceID != "" {
		ctx = trace.WithContext(ctx, traceID)
	}
	log := logger.WithTrace(ctx, c.logger).With(
		zap.String("queue", c.queue.Name),
		zap.String("message_id", msg.MessageId),
	)

	log.Debug("Received message", zap.Int("message_size", len(msg.Body)))

	err := c.runHandler(ctx, msg.Body)
	action := actionAck
	errorType := ""
	if err != nil {
		action, errorType = c.resolveFailure(ctx, msg.MessageId, msg.Redelivered, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, errorType)
		log.Error("Handler error",
			zap.String("error_type", errorType),
			zap.String("action", action.String()),
			zap.Error(err),
		)
	}

	switch action {
	case actionAck:
		if ackErr := msg.Ack(false); ackErr != nil {
			log.Error("Failed to ack message", zap.Error(ackErr))
		}
	case actionRequeue:
		if nackErr := msg.Nack(false, true); nackErr != nil {
			log.Error("Failed to nack message", zap.Error(nackErr))
		}
	case actionDeadLetter:
		if dlqErr := publishToDLQ(ctx, c.channel, msg, err.Error(), errorType); dlqErr != nil {
			// 死信发布失败：重新入队，避免丢消息
			log.Error("Failed to publish to DLQ, requeueing", zap.Error(dlqErr))
			_ = msg.Nack(false, true)
			break
		}
		if ackErr := msg.Ack(false); ackErr != nil {
			log.Error("Failed to ack dead-lettered message", zap.Error(ackErr))
		}
	}

	metrics.IncrementConsumerOutcome(action.String())
	metrics.RecordMQConsumeLatency(RoutingKey, c.queue.Name, time.Since(start))
}

// runHandler 执行业务处理；handler panic 会被转换为错误
func (c *Consumer) runHandler(ctx context.Context, body []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return c.handler(ctx, body)
}

// resolveFailure decides whether a failed message is retried or dead-lettered.
func (c *Consumer) resolveFailure(ctx context.Context, messageID string, redelivered bool, err error) (deliveryAction, string) {
	retryable, errorType := util.IsRetryableError(err)
	if !retryable {
		return actionDeadLetter, errorType
	}

	if c.retries == nil || messageID == "" {
		if redelivered {
			return actionDeadLetter, errorType
		}
		return actionRequeue, errorType
	}

	key := util.FormatRetryKey("queue-listener", messageID)
	count, cntErr := c.retries.IncrementAndGet(ctx, key)
	if cntErr != nil {
		c.logger.Warn("Retry counter unavailable, falling back to redelivered flag",
			zap.String("message_id", messageID),
			zap.Error(cntErr),
		)
		if redelivered {
			return actionDeadLetter, errorType
		}
		return actionRequeue, errorType
	}

	if util.ShouldRetry(count, c.maxRetries, retryable) {
		return actionRequeue, errorType
	}

	_ = c.retries.Reset(ctx, key)
	return actionDeadLetter, errorType
}
