package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	DLQExchangeName = "notification.dlx"
	DLQQueueName    = QueueName + ".dlq"
)

// DeclareDLQ declares the dead letter exchange and its queue, bound with the main routing key.
func DeclareDLQ(ch *amqp091.Channel) error {
	err := ch.ExchangeDeclare(
		DLQExchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare DLQ exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		DLQQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare DLQ queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, RoutingKey, DLQExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind DLQ queue: %w", err)
	}

	return nil
}

// publishToDLQ copies a failed delivery into the dead letter queue with the failure reason in its headers.
func publishToDLQ(ctx context.Context, ch *amqp091.Channel, msg amqp091.Delivery, originalError, errorType string) error {
	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers["x-original-error"] = originalError
	headers["x-error-type"] = errorType
	headers["x-failed-at"] = time.Now().UTC().Format(time.RFC3339)

	return ch.PublishWithContext(
		ctx,
		DLQExchangeName,
		RoutingKey,
		false,
		false,
		amqp091.Publishing{
			ContentType:  msg.ContentType,
			Body:         msg.Body,
			DeliveryMode: amqp091.Persistent,
			MessageId:    msg.MessageId,
			Headers:      headers,
		},
	)
}
