package publisher

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fjod/cheeseshop/internal/domain"
	"github.com/fjod/cheeseshop/internal/repository"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockWriter struct {
	m        sync.RWMutex
	messages []kafka.Message
	failOn   string
	closed   bool
}

func (w *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.m.Lock()
	defer w.m.Unlock()
	for _, msg := range msgs {
		if w.failOn != "" && string(msg.Key) == w.failOn {
			return fmt.Errorf("broker unavailable")
		}
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *mockWriter) Close() error {
	w.m.Lock()
	defer w.m.Unlock()
	w.closed = true
	return nil
}

func (w *mockWriter) keys() []string {
	w.m.RLock()
	defer w.m.RUnlock()
	keys := make([]string, len(w.messages))
	for i, m := range w.messages {
		keys[i] = string(m.Key)
	}
	return keys
}

type mockOutbox struct {
	m         sync.RWMutex
	events    []*repository.OutboxEvent
	processed map[int64]bool
	fetchErr  error
	markErr   error
}

func newMockOutbox(ids ...string) *mockOutbox {
	o := &mockOutbox{processed: make(map[int64]bool)}
	for i, id := range ids {
		o.events = append(o.events, &repository.OutboxEvent{
			ID:          int64(i + 1),
			AggregateID: id,
			EventType:   domain.EventPurchaseCompleted,
			Payload:     []byte(`{"purchase":{"id":"` + id + `"}}`),
			CreatedAt:   time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
		})
	}
	return o
}

func (o *mockOutbox) GetUnprocessedEvents(_ context.Context, limit int) ([]*repository.OutboxEvent, error) {
	o.m.RLock()
	defer o.m.RUnlock()
	if o.fetchErr != nil {
		return nil, o.fetchErr
	}
	var out []*repository.OutboxEvent
	for _, e := range o.events {
		if !o.processed[e.ID] && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (o *mockOutbox) MarkEventAsProcessed(_ context.Context, id int64) error {
	o.m.Lock()
	defer o.m.Unlock()
	if o.markErr != nil {
		return o.markErr
	}
	o.processed[id] = true
	return nil
}

func (o *mockOutbox) processedCount() int {
	o.m.RLock()
	defer o.m.RUnlock()
	return len(o.processed)
}

func TestProcessUnpublishedEvents(t *testing.T) {
	store := newMockOutbox("p-1", "p-2")
	w := &mockWriter{}
	p := NewOutboxPoller(store, w, zap.NewNop())

	n := p.processUnpublishedEvents(context.Background())

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"p-1", "p-2"}, w.keys())
	assert.Equal(t, 2, store.processedCount())

	// nothing left on the next tick
	assert.Equal(t, 0, p.processUnpublishedEvents(context.Background()))
	assert.Len(t, w.keys(), 2)
}

func TestProcessUnpublishedEvents_MessageShape(t *testing.T) {
	store := newMockOutbox("p-1")
	w := &mockWriter{}

	NewOutboxPoller(store, w, zap.NewNop()).processUnpublishedEvents(context.Background())

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, store.events[0].Payload, msg.Value)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, domain.EventPurchaseCompleted, string(msg.Headers[0].Value))
}

func TestProcessUnpublishedEvents_PublishFailureStopsBatch(t *testing.T) {
	store := newMockOutbox("p-1", "p-2", "p-3")
	w := &mockWriter{failOn: "p-2"}
	p := NewOutboxPoller(store, w, zap.NewNop())

	n := p.processUnpublishedEvents(context.Background())

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"p-1"}, w.keys())

	w.m.Lock()
	w.failOn = ""
	w.m.Unlock()

	assert.Equal(t, 2, p.processUnpublishedEvents(context.Background()))
	assert.Equal(t, []string{"p-1", "p-2", "p-3"}, w.keys())
}

func TestProcessUnpublishedEvents_FetchError(t *testing.T) {
	store := newMockOutbox("p-1")
	store.fetchErr = fmt.Errorf("database error")
	w := &mockWriter{}

	n := NewOutboxPoller(store, w, zap.NewNop()).processUnpublishedEvents(context.Background())

	assert.Equal(t, 0, n)
	assert.Empty(t, w.keys())
}

func TestProcessUnpublishedEvents_MarkErrorRepublishes(t *testing.T) {
	store := newMockOutbox("p-1")
	store.markErr = fmt.Errorf("database error")
	w := &mockWriter{}
	p := NewOutboxPoller(store, w, zap.NewNop())

	assert.Equal(t, 0, p.processUnpublishedEvents(context.Background()))
	assert.Equal(t, 0, p.processUnpublishedEvents(context.Background()))

	// at least once: the unmarked event goes out again
	assert.Equal(t, []string{"p-1", "p-1"}, w.keys())
}

func TestRun_PublishesUntilCancelled(t *testing.T) {
	store := newMockOutbox("p-1")
	w := &mockWriter{}
	p := NewOutboxPoller(store, w, zap.NewNop())
	p.tick = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return store.processedCount() == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestClose(t *testing.T) {
	w := &mockWriter{}
	require.NoError(t, NewOutboxPoller(newMockOutbox(), w, zap.NewNop()).Close())
	assert.True(t, w.closed)
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter(" localhost:9092, ,broker2:9092")
	defer w.Close()

	assert.Equal(t, PurchaseTopic, w.Topic)
	assert.NotNil(t, w.Addr)
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"localhost:9092", "broker2:9092"}, SplitBrokers(" localhost:9092, ,broker2:9092"))
	assert.Empty(t, SplitBrokers(""))
}
