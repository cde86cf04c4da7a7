package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notifyrouter/internal/model"
)

func newTestDemux() (*Demultiplexer, *fakeEmail, *fakeRealtime) {
	email := &fakeEmail{}
	rt := &fakeRealtime{}
	return NewDemultiplexer(email, rt, zap.NewNop()), email, rt
}

func TestSplitEmailMessage(t *testing.T) {
	tests := []struct {
		name, message, subject, body string
	}{
		{"subject and body", "Hi|Welcome aboard", "Hi", "Welcome aboard"},
		{"no separator", "Welcome aboard", DefaultSubject, "Welcome aboard"},
		{"split on first only", "Hi|a|b", "Hi", "a|b"},
		{"empty subject", "|body", "", "body"},
		{"empty body", "Hi|", "Hi", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, body := SplitEmailMessage(tt.message)
			assert.Equal(t, tt.subject, subject)
			assert.Equal(t, tt.body, body)
		})
	}
}

func TestProcessEmailWithSubject(t *testing.T) {
	d, email, rt := newTestDemux()

	err := d.Process(context.Background(), model.QueueEnvelope{Type: "EMAIL", Message: "Hi|Welcome aboard", Recipient: "a@b.com"})
	require.NoError(t, err)

	require.Len(t, email.Calls(), 1)
	assert.Equal(t, emailCall{to: "a@b.com", subject: "Hi", body: "Welcome aboard"}, email.Calls()[0])
	assert.Empty(t, rt.users)
	assert.Empty(t, rt.broadcast)
}

func TestProcessEmailDefaultSubject(t *testing.T) {
	d, email, _ := newTestDemux()

	require.NoError(t, d.Process(context.Background(), model.QueueEnvelope{Type: "email", Message: "Welcome aboard", Recipient: "a@b.com"}))
	require.Len(t, email.Calls(), 1)
	assert.Equal(t, "Notification", email.Calls()[0].subject)
	assert.Equal(t, "Welcome aboard", email.Calls()[0].body)
}

func TestProcessWebSocketTargetsUser(t *testing.T) {
	d, email, rt := newTestDemux()

	require.NoError(t, d.Process(context.Background(), model.QueueEnvelope{Type: "WebSocket", Message: "ping", Recipient: "bob"}))
	assert.Equal(t, []string{"bob:ping"}, rt.users)
	assert.Empty(t, email.Calls())
}

func TestProcessBroadcastIgnoresRecipient(t *testing.T) {
	d, _, rt := newTestDemux()

	require.NoError(t, d.Process(context.Background(), model.QueueEnvelope{Type: "BROADCAST", Message: "maintenance", Recipient: "ignored"}))
	assert.Equal(t, []string{"maintenance"}, rt.broadcast)
	assert.Empty(t, rt.users)
}

func TestProcessUnknownTypeIsNoop(t *testing.T) {
	d, email, rt := newTestDemux()

	assert.NotPanics(t, func() {
		assert.NoError(t, d.Process(context.Background(), model.QueueEnvelope{Type: "unknown", Message: "x", Recipient: "y"}))
	})
	assert.Empty(t, email.Calls())
	assert.Empty(t, rt.users)
	assert.Empty(t, rt.broadcast)
}

func TestProcessReturnsChannelError(t *testing.T) {
	d, _, rt := newTestDemux()
	rt.err = errors.New("redis down")

	err := d.Process(context.Background(), model.QueueEnvelope{Type: "BROADCAST", Message: "x"})
	assert.EqualError(t, err, "redis down")
}
