package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"notifyrouter/pkg/logger"
)

const (
	topicPrefix          = "/topic/"
	userTopic            = "/topic/notifications"
	BroadcastDestination = "/topic/broadcast"
)

// TopicDestination is the destination subscribers of topic listen on.
func TopicDestination(topic string) string {
	return topicPrefix + topic
}

// UserDestination is the per-user notifications destination.
func UserDestination(username string) string {
	return "/user/" + username + userTopic
}

// Transport publishes an encoded payload to a destination.
type Transport interface {
	Send(ctx context.Context, destination string, payload []byte) error
}

type topicPayload struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Topic     string    `json:"topic"`
}

type userPayload struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Recipient string    `json:"recipient"`
}

type broadcastPayload struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
}

// RealtimeSender is the realtime channel: topic, per-user and broadcast pushes.
type RealtimeSender struct {
	transport Transport
	logger    *zap.Logger
	now       func() time.Time
}

func NewRealtimeSender(transport Transport, logger *zap.Logger) *RealtimeSender {
	return &RealtimeSender{transport: transport, logger: logger, now: time.Now}
}

// Publish sends message to /topic/{topic}.
func (s *RealtimeSender) Publish(ctx context.Context, topic, message string) error {
	return s.send(ctx, TopicDestination(topic), topicPayload{
		Message:   message,
		Timestamp: s.now(),
		Topic:     topic,
	})
}

// PublishToUser sends message to one user's notifications destination.
func (s *RealtimeSender) PublishToUser(ctx context.Context, username, message string) error {
	return s.send(ctx, UserDestination(username), userPayload{
		Message:   message,
		Timestamp: s.now(),
		Recipient: username,
	})
}

// PublishAll sends message to every connected client.
func (s *RealtimeSender) PublishAll(ctx context.Context, message string) error {
	return s.send(ctx, BroadcastDestination, broadcastPayload{
		Message:   message,
		Timestamp: s.now(),
		Type:      "broadcast",
	})
}

// PublishCustom sends an arbitrary JSON payload to /topic/{topic}.
func (s *RealtimeSender) PublishCustom(ctx context.Context, topic string, payload any) error {
	return s.send(ctx, TopicDestination(topic), payload)
}

func (s *RealtimeSender) send(ctx context.Context, destination string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode realtime payload: %w", err)
	}
	if err := s.transport.Send(ctx, destination, body); err != nil {
		return fmt.Errorf("publish to %s: %w", destination, err)
	}

	logger.WithTrace(ctx, s.logger).Debug("Realtime message published",
		zap.String("destination", destination),
	)
	return nil
}
