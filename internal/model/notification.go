package model

import "time"

// ChannelType is the transport an audit record describes.
type ChannelType string

const (
	ChannelEmail    ChannelType = "EMAIL"
	ChannelRealtime ChannelType = "REALTIME"
	ChannelQueue    ChannelType = "QUEUE"
)

// Status is fixed when a record is built; records are never updated afterwards.
type Status string

const (
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
	StatusQueued  Status = "QUEUED"
	StatusPending Status = "PENDING"
)

// AllStatuses lists statuses in reporting order.
var AllStatuses = []Status{StatusSent, StatusFailed, StatusQueued, StatusPending}

func (s Status) Valid() bool {
	switch s {
	case StatusSent, StatusFailed, StatusQueued, StatusPending:
		return true
	}
	return false
}

func (c ChannelType) Valid() bool {
	switch c {
	case ChannelEmail, ChannelRealtime, ChannelQueue:
		return true
	}
	return false
}

// NotificationRecord is one audited delivery attempt.
type NotificationRecord struct {
	ID           int64       `json:"id"`
	Type         ChannelType `json:"type"`
	Recipient    string      `json:"recipient"`
	Content      string      `json:"content"`
	Status       Status      `json:"status"`
	CreatedAt    time.Time   `json:"createdAt"`
	SentAt       *time.Time  `json:"sentAt,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
}

// NewRecord builds a record for an attempt that just finished with status.
// cause is only kept for FAILED records; SENT records get SentAt = now.
func NewRecord(channel ChannelType, recipient, content string, status Status, cause error, now time.Time) *NotificationRecord {
	rec := &NotificationRecord{
		Type:      channel,
		Recipient: recipient,
		Content:   content,
		Status:    status,
		CreatedAt: now,
	}
	switch status {
	case StatusSent:
		sentAt := now
		rec.SentAt = &sentAt
	case StatusFailed:
		if cause != nil {
			rec.ErrorMessage = cause.Error()
		}
		if rec.ErrorMessage == "" {
			rec.ErrorMessage = "unknown error"
		}
	}
	return rec
}
