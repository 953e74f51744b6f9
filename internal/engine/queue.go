package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
	"github.com/bissakov/qazcode-rpa-sub001/internal/runlog"
)

// ErrQueueClosed is returned by Next once the queue is closed and drained.
var ErrQueueClosed = errors.New("event queue closed")

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypeSnapshot carries the current variable values.
	EventTypeSnapshot EventType = iota + 1
	// EventTypeLog carries one run log entry.
	EventTypeLog
	// EventTypeCompleted marks a run that reached End or was stopped.
	EventTypeCompleted
	// EventTypeError marks a run that ended on an unhandled error.
	EventTypeError
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventTypeSnapshot:
		return "snapshot"
	case EventTypeLog:
		return "log"
	case EventTypeCompleted:
		return "completed"
	case EventTypeError:
		return "error"
	}
	return "unknown"
}

// StateSnapshot is a copy of the variables visible to the running
// scenario.
type StateSnapshot struct {
	Timestamp    string                `json:"timestamp"`
	Elapsed      time.Duration         `json:"elapsed_ns"`
	GlobalVars   map[string]expr.Value `json:"global_vars"`
	ScenarioVars map[string]expr.Value `json:"scenario_vars"`
}

// Completed reports how a run finished without an error.
type Completed struct {
	Stopped bool `json:"stopped"`
}

// ErrorEvent carries the message of the error that ended a run.
type ErrorEvent struct {
	Message string `json:"message"`
}

// Event is one item of the outbound stream. Exactly one payload field is
// set, matching Type.
type Event struct {
	Type EventType
	Seq  int64

	Snapshot  *StateSnapshot
	Log       *runlog.Entry
	Completed *Completed
	Error     *ErrorEvent
}

// EventQueue is a thread-safe FIFO queue for run events.
//
// The queue is unbounded so the VM never blocks or drops an event while a
// slow consumer catches up.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in consumers.
type EventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // Signals event availability (buffered, size 1)
}

// NewEventQueue creates an empty event queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *EventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking; the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Event{}, false) if queue is empty.
func (q *EventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Nil out the slot so the payload pointers can be collected.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Next blocks until an event is available, the queue is closed and empty
// (ErrQueueClosed), or ctx is done (ctx.Err()).
func (q *EventQueue) Next(ctx context.Context) (Event, error) {
	for {
		if e, ok := q.TryDequeue(); ok {
			return e, nil
		}

		q.mu.Lock()
		drained := q.closed && len(q.events) == 0
		q.mu.Unlock()
		if drained {
			return Event{}, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-q.Wait():
		}
	}
}

// Drain removes and returns every queued event without blocking.
func (q *EventQueue) Drain() []Event {
	var out []Event
	for {
		e, ok := q.TryDequeue()
		if !ok {
			return out
		}
		out = append(out, e)
	}
}

// Wait returns a channel that signals when events may be available.
// Use with select for context-aware waiting:
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // Try TryDequeue
//	}
func (q *EventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Closed reports whether Close has been called.
func (q *EventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *EventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
