package model

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/mcnijman/go-emailaddress"
)

const (
	MaxSubjectLen         = 255
	MaxEmailBodyLen       = 10000
	MaxTopicLen           = 100
	MaxRealtimeMessageLen = 1000
	MaxQueueTypeLen       = 50
	MaxQueueMessageLen    = 2000
	MaxRecipientLen       = 255
)

// ValidationError collects per-field problems found in a request.
type ValidationError struct {
	Fields map[string]string `json:"errors"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type fieldChecker struct {
	fields map[string]string
}

func (c *fieldChecker) fail(field, msg string) {
	if c.fields == nil {
		c.fields = map[string]string{}
	}
	if _, exists := c.fields[field]; !exists {
		c.fields[field] = msg
	}
}

func (c *fieldChecker) required(field, value string, maxLen int) {
	if strings.TrimSpace(value) == "" {
		c.fail(field, "must not be blank")
		return
	}
	if maxLen > 0 && utf8.RuneCountInString(value) > maxLen {
		c.fail(field, fmt.Sprintf("must be at most %d characters", maxLen))
	}
}

func (c *fieldChecker) optional(field, value string, maxLen int) {
	if utf8.RuneCountInString(value) > maxLen {
		c.fail(field, fmt.Sprintf("must be at most %d characters", maxLen))
	}
}

func (c *fieldChecker) err() error {
	if len(c.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: c.fields}
}

// EmailRequest asks for a direct email.
type EmailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	HTML    bool   `json:"html"`
}

func (r EmailRequest) Validate() error {
	var c fieldChecker
	c.required("to", r.To, MaxRecipientLen)
	if _, ok := c.fields["to"]; !ok {
		if _, err := emailaddress.Parse(r.To); err != nil {
			c.fail("to", "must be a valid email address")
		}
	}
	c.required("subject", r.Subject, MaxSubjectLen)
	c.required("body", r.Body, MaxEmailBodyLen)
	return c.err()
}

// RealtimeRequest asks for a push to a realtime topic.
type RealtimeRequest struct {
	Topic     string `json:"topic"`
	Message   string `json:"message"`
	Recipient string `json:"recipient,omitempty"`
}

func (r RealtimeRequest) Validate() error {
	var c fieldChecker
	c.required("topic", r.Topic, MaxTopicLen)
	c.required("message", r.Message, MaxRealtimeMessageLen)
	c.optional("recipient", r.Recipient, MaxRecipientLen)
	return c.err()
}

// Validate checks a queue request as received from a caller.
func (e QueueEnvelope) Validate() error {
	var c fieldChecker
	c.required("type", e.Type, MaxQueueTypeLen)
	c.required("message", e.Message, MaxQueueMessageLen)
	c.required("recipient", e.Recipient, MaxRecipientLen)
	return c.err()
}
