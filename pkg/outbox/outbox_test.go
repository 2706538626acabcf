package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taskflow/pkg/trace"
)

type memStore struct {
	mu     sync.Mutex
	events map[int64]*Event
}

func newMemStore(events ...*Event) *memStore {
	s := &memStore{events: map[int64]*Event{}}
	for _, e := range events {
		s.events[e.ID] = e
	}
	return s
}

func (s *memStore) GetPendingEvents(_ context.Context, limit int) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Event
	for id := int64(1); id <= int64(len(s.events)); id++ {
		if e, ok := s.events[id]; ok && e.Status == StatusPending && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) MarkAsSent(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[id].Status = StatusSent
	return nil
}

func (s *memStore) MarkAsFailed(_ context.Context, id int64, maxRetries int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.events[id]
	e.RetryCount++
	if e.RetryCount >= maxRetries {
		e.Status = StatusFailed
	}
	return nil
}

func (s *memStore) GetEventByID(_ context.Context, id int64) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return e, nil
}

func (s *memStore) GetFailedEvents(_ context.Context, limit int) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Event
	for _, e := range s.events {
		if e.Status == StatusFailed && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

type published struct {
	routingKey string
	body       string
	messageID  string
	traceID    string
}

type fakePublisher struct {
	fail map[string]bool
	sent []published
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, routingKey string, body []byte, messageID string) error {
	if p.fail[routingKey] {
		return errors.New("channel closed")
	}
	p.sent = append(p.sent, published{routingKey, string(body), messageID, trace.FromContext(ctx)})
	return nil
}

func pending(id int64, key, payload string) *Event {
	return &Event{ID: id, EventID: "evt-" + key, RoutingKey: key, Payload: []byte(payload), Status: StatusPending}
}

func TestDispatcherPublishesRawPayloadWithTrace(t *testing.T) {
	store := newMemStore(pending(1, "task.assigned", `{"trace_id":"abc","task_id":7}`))
	pub := &fakePublisher{}
	d := NewDispatcher(store, pub, zap.NewNop())

	assert.Equal(t, 1, d.ProcessPending(context.Background()))
	require.Len(t, pub.sent, 1)
	assert.Equal(t, `{"trace_id":"abc","task_id":7}`, pub.sent[0].body)
	assert.Equal(t, "evt-task.assigned", pub.sent[0].messageID)
	assert.Equal(t, "abc", pub.sent[0].traceID)
	assert.Equal(t, StatusSent, store.events[1].Status)
}

func TestDispatcherMarksFailedAfterMaxRetries(t *testing.T) {
	store := newMemStore(pending(1, "broken", `{}`), pending(2, "ok", `{}`))
	pub := &fakePublisher{fail: map[string]bool{"broken": true}}
	d := NewDispatcher(store, pub, zap.NewNop()).WithMaxRetries(2)

	assert.Equal(t, 1, d.ProcessPending(context.Background()))
	assert.Equal(t, StatusPending, store.events[1].Status)
	assert.Equal(t, 1, store.events[1].RetryCount)

	assert.Equal(t, 0, d.ProcessPending(context.Background()))
	assert.Equal(t, StatusFailed, store.events[1].Status)
	assert.Equal(t, StatusSent, store.events[2].Status)
}

func TestReplayFailedEvents(t *testing.T) {
	a := pending(1, "a", `{}`)
	a.Status = StatusFailed
	b := pending(2, "b", `{}`)
	b.Status = StatusFailed
	store := newMemStore(a, b)
	pub := &fakePublisher{fail: map[string]bool{"b": true}}
	svc := NewReplayService(store, pub, zap.NewNop())

	n, err := svc.ReplayFailedEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, StatusSent, store.events[1].Status)
	assert.Equal(t, StatusFailed, store.events[2].Status)

	assert.ErrorIs(t, svc.ReplayEvent(context.Background(), 99), ErrEventNotFound)
}

type captureInserter struct{ got *Event }

func (c *captureInserter) InsertEvent(_ context.Context, _ pgx.Tx, e *Event) error {
	c.got = e
	return nil
}

func TestInsertEventInTxGeneratesEventID(t *testing.T) {
	ins := &captureInserter{}
	id := int64(3)
	err := InsertEventInTx(context.Background(), nil, ins, "task", &id, "task.assigned", "", map[string]int{"task_id": 3})
	require.NoError(t, err)
	require.NotNil(t, ins.got)
	assert.Len(t, ins.got.EventID, 36)
	assert.Equal(t, StatusPending, ins.got.Status)
	assert.JSONEq(t, `{"task_id":3}`, string(ins.got.Payload))

	err = InsertEventInTx(context.Background(), nil, ins, "user", nil, "auth.password_reset_requested", "fixed", struct{}{})
	require.NoError(t, err)
	assert.Equal(t, "fixed", ins.got.EventID)
}
