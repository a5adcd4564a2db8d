package flowgraph

import (
	"context"
	"sync"
	"time"
)

// EmitOption configures a single event at emission time.
type EmitOption func(*Event)

// WithKey sets the event's partitioning/coalescing key.
func WithKey(key string) EmitOption {
	return func(e *Event) { e.Key = key }
}

// WithEventTime sets the event's logical timestamp. When unset it stays
// the zero time; steps that read it, e.g. Batch for a batch's Time, use
// that zero value as is.
func WithEventTime(t time.Time) EmitOption {
	return func(e *Event) { e.Time = t }
}

// Controller is the caller-facing handle returned by running a flow: it
// owns the head step and the single termination sentinel that traverses
// the whole graph exactly once.
type Controller struct {
	head Step

	mu         sync.Mutex
	pending    []*AwaitableResult
	terminated bool
	done       chan struct{}
	termResult any
	termErr    error
}

// Run returns a Controller driving head, the entry point built by BuildFlow.
func Run(head Step) *Controller {
	return &Controller{head: head, done: make(chan struct{})}
}

// Emit pushes one event into the head of the graph. When
// returnAwaitableResult is true, the returned *AwaitableResult is settled
// by a Complete step downstream (on success) or by this Controller (with
// an error, if Terminate subsequently observes an abnormal shutdown while
// the result is still outstanding).
func (c *Controller) Emit(ctx context.Context, body any, returnAwaitableResult bool, opts ...EmitOption) (*AwaitableResult, error) {
	ev := NewEvent(body)
	for _, opt := range opts {
		opt(ev)
	}
	var ar *AwaitableResult
	if returnAwaitableResult {
		ar = NewAwaitableResult()
		ev.result = ar
		c.mu.Lock()
		c.pending = append(c.pending, ar)
		c.mu.Unlock()
	}

	_, err := c.head.Do(ctx, ev)
	if err != nil && ar != nil {
		select {
		case <-ar.Done():
		default:
			ar.SetError(err)
		}
	}
	return ar, err
}

// Terminate pushes the termination sentinel into the head source. It is
// idempotent: calling it more than once is a no-op returning the first
// call's outcome. Any AwaitableResult still outstanding when the sentinel
// finishes (or fails to finish) traversing the graph is settled with the
// termination error, or with errTerminatedWithoutResult if none occurred.
func (c *Controller) Terminate(ctx context.Context) error {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return c.termErr
	}
	c.terminated = true
	c.mu.Unlock()

	result, err := c.head.Do(ctx, nil)

	c.mu.Lock()
	c.termResult, c.termErr = result, err
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	close(c.done)

	settleErr := err
	if settleErr == nil {
		settleErr = errTerminatedWithoutResult
	}
	for _, ar := range pending {
		select {
		case <-ar.Done():
		default:
			ar.SetError(settleErr)
		}
	}
	return err
}

// AwaitTermination blocks until Terminate has completed the sentinel's
// traversal of the whole graph, returning the folded termination-result
// (typically a Reduce step's final accumulator, if the graph has one).
func (c *Controller) AwaitTermination(ctx context.Context) (any, error) {
	select {
	case <-c.done:
		return c.termResult, c.termErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var errTerminatedWithoutResult = &FlowError{Step: "controller", Err: errNeverCompleted{}}

type errNeverCompleted struct{}

func (errNeverCompleted) Error() string {
	return "stream terminated before this event reached a Complete step"
}
