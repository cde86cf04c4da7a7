package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notifyrouter/internal/model"
	"notifyrouter/pkg/mq"
	"notifyrouter/pkg/workerpool"
)

var welcome = model.QueueEnvelope{Type: "EMAIL", Message: "Hi|Welcome aboard", Recipient: "a@b.com", Priority: 1}

func TestBrokerVariants(t *testing.T) {
	assert.False(t, BrokerAbsent().Present())
	assert.False(t, Broker{}.Present())
	assert.True(t, BrokerConfigured(&fakePublisher{}).Present())
}

func TestSendPublishesWhenBrokerConfigured(t *testing.T) {
	demux, email, _ := newTestDemux()
	pub := &fakePublisher{connected: true}
	pool := &inlineSubmitter{}
	p := NewProxy(BrokerConfigured(pub), demux, pool, zap.NewNop())

	require.NoError(t, p.Send(context.Background(), welcome))

	assert.Equal(t, []model.QueueEnvelope{welcome}, pub.published)
	assert.Equal(t, []string{mq.RoutingKey}, pub.keys)
	assert.Empty(t, email.Calls(), "published envelopes are not processed locally")
	assert.Empty(t, pool.priorities)
}

func TestSendFallsBackWhenBrokerAbsent(t *testing.T) {
	demux, email, _ := newTestDemux()
	pool := &inlineSubmitter{}
	p := NewProxy(BrokerAbsent(), demux, pool, zap.NewNop())

	require.NoError(t, p.Send(context.Background(), welcome))

	require.Len(t, email.Calls(), 1)
	assert.Equal(t, emailCall{to: "a@b.com", subject: "Hi", body: "Welcome aboard"}, email.Calls()[0])
	assert.Equal(t, []workerpool.Priority{workerpool.PriorityHigh}, pool.priorities)
}

func TestSendFallsBackWhenPublishFails(t *testing.T) {
	demux, email, _ := newTestDemux()
	pub := &fakePublisher{connected: true, err: errors.New("channel closed")}
	p := NewProxy(BrokerConfigured(pub), demux, &inlineSubmitter{}, zap.NewNop())

	require.NoError(t, p.Send(context.Background(), welcome))
	assert.Len(t, email.Calls(), 1)
}

func TestSendFallsBackWhenPublisherDisconnected(t *testing.T) {
	demux, email, _ := newTestDemux()
	pub := &fakePublisher{connected: false}
	p := NewProxy(BrokerConfigured(pub), demux, &inlineSubmitter{}, zap.NewNop())

	require.NoError(t, p.Send(context.Background(), welcome))
	assert.Empty(t, pub.published)
	assert.Len(t, email.Calls(), 1)
}

func TestSendReportsRejectedHandOff(t *testing.T) {
	demux, email, _ := newTestDemux()
	p := NewProxy(BrokerAbsent(), demux, &inlineSubmitter{err: workerpool.ErrQueueFull}, zap.NewNop())

	err := p.Send(context.Background(), welcome)
	assert.ErrorIs(t, err, workerpool.ErrQueueFull)
	assert.Empty(t, email.Calls())
}

func TestFallbackFailureDoesNotReachCaller(t *testing.T) {
	demux, email, _ := newTestDemux()
	email.err = errors.New("relay down")
	pool := &inlineSubmitter{}
	p := NewProxy(BrokerAbsent(), demux, pool, zap.NewNop())

	require.NoError(t, p.Send(context.Background(), welcome))
	require.Len(t, pool.taskErrs, 1)
	assert.EqualError(t, pool.taskErrs[0], "relay down")
}

func TestFallbackRunsOnWorkerPool(t *testing.T) {
	demux, email, _ := newTestDemux()
	pool := workerpool.New(workerpool.Config{Workers: 1, QueueSize: 4}, zap.NewNop())
	pool.Start()
	t.Cleanup(func() { _ = pool.Stop(context.Background()) })

	p := NewProxy(BrokerAbsent(), demux, pool, zap.NewNop())
	require.NoError(t, p.Send(context.Background(), welcome))

	require.Eventually(t, func() bool { return len(email.Calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Hi", email.Calls()[0].subject)
}
