package model

import "strings"

// EnvelopeType is the declared target of a queued request.
type EnvelopeType string

const (
	EnvelopeEmail     EnvelopeType = "EMAIL"
	EnvelopeWebSocket EnvelopeType = "WEBSOCKET"
	EnvelopeBroadcast EnvelopeType = "BROADCAST"
)

// QueueEnvelope is the generic request placed on, and taken off, the broker queue.
type QueueEnvelope struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Recipient string `json:"recipient"`
	Priority  int    `json:"priority"`
}

// NormalizedType upper-cases the declared type. The result may still be unrecognized.
func (e QueueEnvelope) NormalizedType() EnvelopeType {
	return EnvelopeType(strings.ToUpper(strings.TrimSpace(e.Type)))
}

// AuditContent is the text stored for a queue dispatch.
func (e QueueEnvelope) AuditContent() string {
	return e.Type + ": " + e.Message
}
