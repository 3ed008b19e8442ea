package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Publish(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestEmitSynchronous(t *testing.T) {
	store := NewMemoryStore()
	p := NewPublisher(store)

	err := p.Emit(context.Background(), Event{
		Actor:   "officer-1",
		Subject: "subj-1",
		Action:  ActionApplicationApproved,
	})
	require.NoError(t, err)

	events := store.All()
	require.Len(t, events, 1)
	assert.NotEqual(t, uuid.Nil, events[0].ID)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestEmitAnonymizesIP(t *testing.T) {
	store := NewMemoryStore()
	p := NewPublisher(store)

	require.NoError(t, p.Emit(context.Background(), Event{
		Subject: "subj-1",
		Action:  ActionApplicationSubmitted,
		IP:      "203.0.113.47",
	}))

	events := store.All()
	require.Len(t, events, 1)
	assert.Equal(t, "203.0.113.0", events[0].IP, "raw client IPs must never be persisted")
}

func TestEmitAsyncDrains(t *testing.T) {
	store := NewMemoryStore()
	p := NewPublisher(store, WithAsyncBuffer(16))

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Emit(context.Background(), Event{Subject: "subj-1", Action: ActionReviewStarted}))
	}
	p.Close()

	assert.Len(t, store.All(), 5)
}

func TestSinkReceivesPersistedEvents(t *testing.T) {
	store := NewMemoryStore()
	sink := &recordingSink{}
	p := NewPublisher(store, WithSink(sink))

	require.NoError(t, p.Emit(context.Background(), Event{Subject: "subj-1", Action: ActionCredentialRevoked}))
	assert.Equal(t, 1, sink.count())
}

func TestSinkFailureDoesNotFailEmit(t *testing.T) {
	store := NewMemoryStore()
	sink := &recordingSink{err: errors.New("broker down")}
	p := NewPublisher(store, WithSink(sink))

	require.NoError(t, p.Emit(context.Background(), Event{Subject: "subj-1", Action: ActionCredentialRevoked}))
	assert.Len(t, store.All(), 1, "event must still be persisted when the sink fails")
}

func TestListBySubject(t *testing.T) {
	store := NewMemoryStore()
	p := NewPublisher(store)

	require.NoError(t, p.Emit(context.Background(), Event{Subject: "subj-1", Action: ActionApplicationSubmitted}))
	require.NoError(t, p.Emit(context.Background(), Event{Subject: "subj-2", Action: ActionApplicationSubmitted}))
	require.NoError(t, p.Emit(context.Background(), Event{Subject: "subj-1", Action: ActionApplicationApproved, Timestamp: time.Now()}))

	events, err := p.List(context.Background(), "subj-1")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
