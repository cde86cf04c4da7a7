package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notifyrouter/internal/model"
	"notifyrouter/internal/service/audit"
	"notifyrouter/internal/service/channel"
	"notifyrouter/internal/service/queue"
	"notifyrouter/pkg/workerpool"
)

type memoryStore struct {
	mu      sync.Mutex
	records []model.NotificationRecord
	err     error
}

func (s *memoryStore) Save(_ context.Context, rec *model.NotificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	rec.ID = int64(len(s.records) + 1)
	s.records = append(s.records, *rec)
	return nil
}

func (s *memoryStore) all() []model.NotificationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.NotificationRecord(nil), s.records...)
}

type fakeMail struct {
	mu    sync.Mutex
	sent  []channel.Message
	err   error
	delay time.Duration
}

func (f *fakeMail) Send(_ context.Context, msg channel.Message) error {
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMail) messages() []channel.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]channel.Message(nil), f.sent...)
}

type fakeRealtimeTransport struct {
	mu           sync.Mutex
	destinations []string
	err          error
}

func (f *fakeRealtimeTransport) Send(_ context.Context, destination string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.destinations = append(f.destinations, destination)
	return nil
}

type fakeProxy struct {
	err  error
	sent []model.QueueEnvelope
}

func (f *fakeProxy) Send(_ context.Context, env model.QueueEnvelope) error {
	f.sent = append(f.sent, env)
	return f.err
}

type harness struct {
	store    *memoryStore
	mail     *fakeMail
	realtime *fakeRealtimeTransport
	pool     *workerpool.Pool
	d        *Dispatcher
}

func newHarness(t *testing.T, proxy QueueProxy) *harness {
	t.Helper()
	log := zap.NewNop()
	h := &harness{
		store:    &memoryStore{},
		mail:     &fakeMail{},
		realtime: &fakeRealtimeTransport{},
		pool:     workerpool.New(workerpool.Config{Workers: 2, QueueSize: 8}, log),
	}
	h.pool.Start()
	t.Cleanup(func() { _ = h.pool.Stop(context.Background()) })

	email := channel.NewEmailSender(h.mail, "", nil, log)
	rt := channel.NewRealtimeSender(h.realtime, log)
	if proxy == nil {
		proxy = queue.NewProxy(queue.BrokerAbsent(), queue.NewDemultiplexer(email, rt, log), h.pool, log)
	}
	h.d = NewDispatcher(email, rt, proxy, audit.NewRecorder(h.store, log), h.pool, log)
	return h
}

func TestDispatchEmailSuccessAuditsSent(t *testing.T) {
	h := newHarness(t, nil)

	err := h.d.DispatchEmail(context.Background(), model.EmailRequest{To: "a@b.com", Subject: "Hi", Body: "Welcome"})
	require.NoError(t, err)

	require.Len(t, h.mail.messages(), 1)
	records := h.store.all()
	require.Len(t, records, 1)
	assert.Equal(t, model.StatusSent, records[0].Status)
	assert.Equal(t, model.ChannelEmail, records[0].Type)
	assert.Equal(t, "a@b.com", records[0].Recipient)
	assert.Equal(t, "Hi", records[0].Content)
	assert.NotNil(t, records[0].SentAt)
}

func TestDispatchEmailFailureAuditsFailedAndReturnsError(t *testing.T) {
	h := newHarness(t, nil)
	h.mail.err = errors.New("relay down")

	err := h.d.DispatchEmail(context.Background(), model.EmailRequest{To: "a@b.com", Subject: "Hi", Body: "Welcome"})
	require.Error(t, err)

	var derr *DispatchError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, model.ChannelEmail, derr.Channel)
	assert.Contains(t, err.Error(), "relay down")

	records := h.store.all()
	require.Len(t, records, 1)
	assert.Equal(t, model.StatusFailed, records[0].Status)
	assert.NotEmpty(t, records[0].ErrorMessage)
	assert.Nil(t, records[0].SentAt)
}

func TestAuditFailureDoesNotMaskOutcome(t *testing.T) {
	h := newHarness(t, nil)
	h.store.err = errors.New("db down")

	err := h.d.DispatchEmail(context.Background(), model.EmailRequest{To: "a@b.com", Subject: "Hi", Body: "Welcome"})
	assert.NoError(t, err)

	relayDown := errors.New("relay down")
	h.mail.err = relayDown
	err = h.d.DispatchEmail(context.Background(), model.EmailRequest{To: "a@b.com", Subject: "Hi", Body: "Welcome"})
	assert.ErrorIs(t, err, relayDown)
}

func TestDispatchRealtimePublishesToTopic(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.d.DispatchRealtime(context.Background(), model.RealtimeRequest{Topic: "orders", Message: "shipped"}))

	assert.Equal(t, []string{"/topic/orders"}, h.realtime.destinations)
	records := h.store.all()
	require.Len(t, records, 1)
	assert.Equal(t, model.ChannelRealtime, records[0].Type)
	assert.Equal(t, "orders", records[0].Recipient)
	assert.Equal(t, "shipped", records[0].Content)
	assert.Equal(t, model.StatusSent, records[0].Status)
}

func TestDispatchRealtimeUnavailableIsRetryable(t *testing.T) {
	h := newHarness(t, nil)
	h.realtime.err = channel.UnavailableTransport{}.Send(context.Background(), "", nil)

	err := h.d.DispatchRealtime(context.Background(), model.RealtimeRequest{Topic: "orders", Message: "shipped"})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, model.StatusFailed, h.store.all()[0].Status)
}

func TestDispatchQueueFallbackMatchesDirectEmail(t *testing.T) {
	h := newHarness(t, nil)
	env := model.QueueEnvelope{Type: "EMAIL", Message: "Hi|Welcome aboard", Recipient: "a@b.com"}

	require.NoError(t, h.d.DispatchQueue(context.Background(), env))

	require.Eventually(t, func() bool { return len(h.mail.messages()) == 1 }, 2*time.Second, 10*time.Millisecond)
	msg := h.mail.messages()[0]
	assert.Equal(t, channel.Message{From: channel.DefaultFromAddress, To: "a@b.com", Subject: "Hi", Body: "Welcome aboard"}, msg)

	records := h.store.all()
	require.Len(t, records, 1)
	assert.Equal(t, model.ChannelQueue, records[0].Type)
	assert.Equal(t, model.StatusQueued, records[0].Status)
	assert.Equal(t, "EMAIL: Hi|Welcome aboard", records[0].Content)
}

func TestDispatchQueueHandOffFailureAuditsFailed(t *testing.T) {
	proxy := &fakeProxy{err: workerpool.ErrPoolStopped}
	h := newHarness(t, proxy)

	err := h.d.DispatchQueue(context.Background(), model.QueueEnvelope{Type: "BROADCAST", Message: "x", Recipient: "all"})
	require.Error(t, err)
	assert.ErrorIs(t, err, workerpool.ErrPoolStopped)

	records := h.store.all()
	require.Len(t, records, 1)
	assert.Equal(t, model.StatusFailed, records[0].Status)
	assert.Equal(t, workerpool.ErrPoolStopped.Error(), records[0].ErrorMessage)
}

func TestDispatchQueueUnknownTypeStillQueued(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.d.DispatchQueue(context.Background(), model.QueueEnvelope{Type: "pigeon", Message: "x", Recipient: "y"}))
	assert.Equal(t, model.StatusQueued, h.store.all()[0].Status)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewDispatchError(model.ChannelEmail, "send", context.DeadlineExceeded)))
	assert.False(t, IsRetryable(NewDispatchError(model.ChannelEmail, "send", errors.New("mailbox unavailable"))))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestDispatchEmailAuditsDeliveryWhenCallerCancels(t *testing.T) {
	h := newHarness(t, nil)
	h.mail.delay = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	defer cancel()

	err := h.d.DispatchEmail(ctx, model.EmailRequest{To: "a@b.com", Subject: "Hi", Body: "Welcome"})
	require.NoError(t, err)

	assert.Len(t, h.mail.messages(), 1)
	records := h.store.all()
	require.Len(t, records, 1)
	assert.Equal(t, model.StatusSent, records[0].Status)
	assert.Empty(t, records[0].ErrorMessage)
}
