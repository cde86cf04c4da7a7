package queue

import (
	"context"
	"sync"

	"notifyrouter/internal/model"
	"notifyrouter/pkg/workerpool"
)

type emailCall struct {
	to, subject, body string
	html              bool
}

type fakeEmail struct {
	mu    sync.Mutex
	calls []emailCall
	err   error
}

func (f *fakeEmail) Send(_ context.Context, to, subject, body string, isHTML bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, emailCall{to, subject, body, isHTML})
	return f.err
}

func (f *fakeEmail) Calls() []emailCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]emailCall(nil), f.calls...)
}

type fakeRealtime struct {
	mu        sync.Mutex
	users     []string
	broadcast []string
	err       error
}

func (f *fakeRealtime) PublishToUser(_ context.Context, username, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, username+":"+message)
	return f.err
}

func (f *fakeRealtime) PublishAll(_ context.Context, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcast = append(f.broadcast, message)
	return f.err
}

type fakePublisher struct {
	connected bool
	err       error
	published []model.QueueEnvelope
	keys      []string
}

func (f *fakePublisher) Publish(_ context.Context, routingKey string, payload any) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, routingKey)
	f.published = append(f.published, payload.(model.QueueEnvelope))
	return nil
}

func (f *fakePublisher) IsConnected() bool { return f.connected }

// inlineSubmitter runs tasks synchronously so tests can observe their effect.
type inlineSubmitter struct {
	err        error
	priorities []workerpool.Priority
	taskErrs   []error
}

func (s *inlineSubmitter) Go(ctx context.Context, _ string, prio workerpool.Priority, fn workerpool.Task) error {
	if s.err != nil {
		return s.err
	}
	s.priorities = append(s.priorities, prio)
	s.taskErrs = append(s.taskErrs, fn(ctx))
	return nil
}
