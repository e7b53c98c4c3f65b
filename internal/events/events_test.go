package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Deliver(_ context.Context, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return s.err
}

func (s *recordingSink) delivered() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestDispatcher_DeliversToAllSinks(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	d := NewDispatcher(8, zap.NewNop(), a, b)

	d.Publish(Event{Kind: RowCreated, EntityID: "e1", RowID: "r1"})
	d.Publish(Event{Kind: RowUpdated, EntityID: "e1", RowID: "r1"})
	d.Close()

	require.Len(t, a.delivered(), 2)
	require.Len(t, b.delivered(), 2)
	assert.Equal(t, RowCreated, a.delivered()[0].Kind)
	assert.Equal(t, "r1", a.delivered()[0].RowID)
}

func TestDispatcher_AssignsIDAndTimestamp(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(8, zap.NewNop(), sink)

	d.Publish(Event{Kind: RowCreated, RowID: "r1"})
	d.Close()

	evts := sink.delivered()
	require.Len(t, evts, 1)
	assert.NotEmpty(t, evts[0].ID)
	assert.WithinDuration(t, time.Now(), evts[0].At, time.Minute)
}

func TestDispatcher_SinkErrorDoesNotStopDelivery(t *testing.T) {
	failing := &recordingSink{err: errors.New("sink down")}
	healthy := &recordingSink{}
	d := NewDispatcher(8, zap.NewNop(), failing, healthy)

	d.Publish(Event{Kind: RelationshipChanged, RowID: "r1"})
	d.Publish(Event{Kind: RelationshipChanged, RowID: "r2"})
	d.Close()

	assert.Len(t, failing.delivered(), 2)
	assert.Len(t, healthy.delivered(), 2)
}

func TestDispatcher_PublishAfterCloseIsIgnored(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(8, zap.NewNop(), sink)
	d.Close()

	// Must not panic on the closed channel.
	d.Publish(Event{Kind: RowCreated, RowID: "r1"})
	assert.Empty(t, sink.delivered())
}

func TestDispatcher_CloseIsIdempotent(t *testing.T) {
	d := NewDispatcher(8, zap.NewNop())
	d.Close()
	d.Close()
}
