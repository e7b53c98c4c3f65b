// Package events delivers fire-and-forget row and relationship change
// notifications to registered sinks. Delivery failures are logged, never
// propagated to the operation that produced the event.
package events

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Kind names the event category.
type Kind string

const (
	RowCreated          Kind = "row.created"
	RowUpdated          Kind = "row.updated"
	RelationshipChanged Kind = "relationship.changed"
)

// Event is one change notification.
type Event struct {
	ID       string
	Kind     Kind
	TenantID string
	EntityID string
	RowID    string
	At       time.Time
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Deliver(ctx context.Context, evt Event) error
}

// Dispatcher fans events out to sinks from a background goroutine. Publish
// never blocks the caller: when the buffer is full the event is dropped and
// logged.
type Dispatcher struct {
	sinks   []Sink
	ch      chan Event
	logger  *zap.Logger
	wg      sync.WaitGroup
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	closed  bool
}

// NewDispatcher creates a dispatcher with the given buffer size and starts
// its delivery loop.
func NewDispatcher(bufferSize int, logger *zap.Logger, sinks ...Sink) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	d := &Dispatcher{
		sinks:   sinks,
		ch:      make(chan Event, bufferSize),
		logger:  logger,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Publish enqueues an event for delivery. It assigns the event ID and
// timestamp, and drops the event when the dispatcher buffer is full or the
// dispatcher is closed.
func (d *Dispatcher) Publish(evt Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	evt.ID = ulid.MustNew(ulid.Timestamp(time.Now()), d.entropy).String()
	d.mu.Unlock()

	evt.At = time.Now()
	select {
	case d.ch <- evt:
	default:
		d.logger.Warn("event buffer full, dropping event",
			zap.String("kind", string(evt.Kind)),
			zap.String("row_id", evt.RowID))
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for evt := range d.ch {
		for _, sink := range d.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := sink.Deliver(ctx, evt); err != nil {
				d.logger.Warn("event delivery failed",
					zap.String("kind", string(evt.Kind)),
					zap.String("event_id", evt.ID),
					zap.Error(err))
			}
			cancel()
		}
	}
}

// Close stops accepting events and drains the buffer before returning.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.ch)
	d.wg.Wait()
}
