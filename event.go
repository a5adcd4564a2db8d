package flowgraph

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// sentinel is the distinguished value that signals end-of-stream. It is
// ordered after every real event on any edge and, per fan-out point, is
// forwarded to every outlet exactly once. Callers never construct one
// directly; it is injected by Controller.Terminate.
type sentinel struct{}

// terminationObj is the single instance of the termination sentinel
// propagated through a running graph.
var terminationObj = &sentinel{}

// Event is the unit of data flowing through the graph. A cloned event is
// produced whenever a step derives a new body, so each outlet of a
// fan-out sees an event it may independently mutate; Extend is the one
// step that deliberately mutates a body in place (see its doc comment).
type Event struct {
	ID     string
	Body   any
	Key    string
	Time   time.Time
	result *AwaitableResult
}

// NewEvent creates an Event with a fresh diagnostic ID, no key, no
// event-time, and no awaitable result attached. The ID is a UUIDv7 so log
// lines and traces spanning multiple steps can be correlated and sorted
// by creation time, the same convention id.go uses for entity IDs.
func NewEvent(body any) *Event {
	return &Event{ID: uuid.Must(uuid.NewV7()).String(), Body: body}
}

// clone returns a shallow copy of e with a new Body, used by steps that
// derive a new body without mutating the caller's event (the "body-mode"
// call shape selected by WithFullEvent(false)).
func (e *Event) clone(body any) *Event {
	n := *e
	n.Body = body
	return &n
}

// WithBody returns a shallow copy of e carrying a new Body, preserving
// Key and Time. Exported for external Processor implementations (join,
// table drivers) that need to derive an event to emit downstream without
// reaching into package-internal helpers.
func (e *Event) WithBody(body any) *Event {
	return e.clone(body)
}

// AwaitableResult returns the result slot associated with e, or nil if
// the caller did not request one at emission time.
func (e *Event) AwaitableResult() *AwaitableResult { return e.result }

// AwaitableResult is a single-assignment result slot. It is created at
// emission time when the caller requests a completion handle
// (Controller.Emit with returnAwaitableResult true), settled exactly once by a
// Complete step (on success) or by the Controller (with an error, on
// abnormal termination), and may be awaited with an optional timeout.
//
// The done-channel-close is the happens-before barrier: Set publishes its
// value before closing done, and every reader observes the write only
// after observing the close, mirroring the single-assignment handle the
// teacher codebase uses for spawned background work.
type AwaitableResult struct {
	value any
	err   error
	done  chan struct{}
}

// NewAwaitableResult creates an unsettled result slot.
func NewAwaitableResult() *AwaitableResult {
	return &AwaitableResult{done: make(chan struct{})}
}

// Set settles the slot with value and no error. Calling Set or SetError
// more than once panics: the slot is single-assignment by contract, and a
// caller attaching a second assignment is always a caller bug worth
// surfacing loudly rather than silently ignoring.
func (r *AwaitableResult) Set(value any) {
	r.value = value
	close(r.done)
}

// SetError settles the slot with an error, used by the Controller to
// unblock waiters on abnormal termination.
func (r *AwaitableResult) SetError(err error) {
	r.err = err
	close(r.done)
}

// Await blocks until the slot is settled or ctx is cancelled, whichever
// comes first.
func (r *AwaitableResult) Await(ctx context.Context) (any, error) {
	select {
	case <-r.done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AwaitTimeout blocks until the slot is settled or the timeout elapses.
func (r *AwaitableResult) AwaitTimeout(timeout time.Duration) (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return r.Await(ctx)
}

// Done returns a channel closed when the slot is settled.
func (r *AwaitableResult) Done() <-chan struct{} { return r.done }
