package flowgraph

import (
	"context"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Step is a node in the dataflow graph with zero or more outlets and an
// operation that accepts one event at a time on a single cooperative
// execution context.
//
// Do is the single entry point for both real events and the termination
// sentinel. A nil ev is the termination sentinel: the step must flush any
// internal buffers, forward the sentinel downstream, and return a
// termination-result value folded from its outlets per the configured
// combiner. On a real event (ev != nil) the returned value is ignored by
// callers; only the error matters.
type Step interface {
	Do(ctx context.Context, ev *Event) (any, error)
	// To appends outlet as a new downstream edge and returns it, so graph
	// construction can be chained: step.To(next).To(nextNext).
	To(outlet Step) Step
	Outlets() []Step
	Name() string
}

// combinerFunc folds the termination-results of two outlets into one.
// The default keeps the first non-nil value, matching the base protocol's
// "first non-null wins" rule.
type combinerFunc func(a, b any) any

func defaultCombiner(a, b any) any {
	if a != nil {
		return a
	}
	return b
}

// StepOption configures a step at construction time.
type StepOption func(*base)

// WithName overrides a step's diagnostic name (defaults to the name passed
// to its constructor).
func WithName(name string) StepOption {
	return func(b *base) { b.name = name }
}

// WithFullEvent selects whether user callbacks see the *Event wrapper
// (true) or just its Body (false, the default).
func WithFullEvent(full bool) StepOption {
	return func(b *base) { b.fullEvent = full }
}

// WithContext attaches the process-scoped Context a step may use to
// resolve named tables, parameters, and secrets.
func WithContext(c *Context) StepOption {
	return func(b *base) { b.context = c }
}

// WithCombiner overrides the binary function folding the termination
// results returned by each outlet. The default keeps the first non-nil
// value.
func WithCombiner(fn combinerFunc) StepOption {
	return func(b *base) { b.combiner = fn }
}

// WithCloseable registers a resource this step owns; base.close releases
// every registered resource. No built-in step calls close on termination
// or on worker exit, so registered resources stay open after the stream
// ends.
func WithCloseable(c io.Closer) StepOption {
	return func(b *base) { b.closeables = append(b.closeables, c) }
}

// WithLogger sets a structured logger for a step's internal diagnostics
// (batch emissions, worker lifecycle). When unset, a step logs nothing.
func WithLogger(l *slog.Logger) StepOption {
	return func(b *base) { b.logger = l }
}

// nopLogger discards everything; it is the default so the library never
// forces output on callers that don't configure a logger.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// base implements the common outlet bookkeeping, fan-out protocol, and
// full_event call-shape helpers shared by every concrete step. Concrete
// steps embed base and implement Do themselves.
type base struct {
	name       string
	outlets    []Step
	fullEvent  bool
	combiner   combinerFunc
	context    *Context
	closeables []io.Closer
	logger     *slog.Logger
}

func newBase(defaultName string, opts ...StepOption) base {
	b := base{name: defaultName, combiner: defaultCombiner, logger: nopLogger}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *base) Name() string { return b.name }

func (b *base) Outlets() []Step { return b.outlets }

func (b *base) To(outlet Step) Step {
	b.outlets = append(b.outlets, outlet)
	return outlet
}

// close releases every resource this step registered via WithCloseable.
// Safe to call even when no closeables were registered.
func (b *base) close() error {
	var firstErr error
	for _, c := range b.closeables {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// doDownstream implements the fan-out semantics shared by every step:
//
//   - zero outlets: no-op for a real event, nil result for the sentinel.
//   - one outlet: direct forward, no task spawned.
//   - multiple outlets, real event: the first outlet is awaited inline and
//     the rest run concurrently; all must finish before doDownstream
//     returns, so back-pressure from any branch stalls the caller.
//   - multiple outlets, sentinel: sequential forwarding, folding results
//     with the configured combiner (termination is one-shot, so there is
//     no concurrency benefit and ordering of the fold is well-defined only
//     when serialized).
func (b *base) doDownstream(ctx context.Context, ev *Event) (any, error) {
	if len(b.outlets) == 0 {
		return nil, nil
	}

	if ev == nil {
		result, err := b.outlets[0].Do(ctx, nil)
		if err != nil {
			return nil, err
		}
		for _, outlet := range b.outlets[1:] {
			next, err := outlet.Do(ctx, nil)
			if err != nil {
				return nil, err
			}
			result = b.combiner(result, next)
		}
		return result, nil
	}

	if len(b.outlets) == 1 {
		_, err := b.outlets[0].Do(ctx, ev)
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, outlet := range b.outlets[1:] {
		outlet := outlet
		g.Go(func() error {
			_, err := outlet.Do(gctx, ev)
			return err
		})
	}
	_, firstErr := b.outlets[0].Do(ctx, ev)
	if waitErr := g.Wait(); firstErr == nil {
		firstErr = waitErr
	}
	return nil, firstErr
}

// safeEventOrBody returns the value a user callback should receive: a
// shallow clone of ev when fullEvent is set, or just ev.Body otherwise.
// Cloning protects sibling fan-out branches from observing a mutation the
// callback makes to the Event it was handed.
func (b *base) safeEventOrBody(ev *Event) any {
	if b.fullEvent {
		c := *ev
		return &c
	}
	return ev.Body
}

// userFnOutputToEvent wraps a callback's return value back into an event
// to forward downstream: the returned *Event as-is in event-mode, or a
// clone of ev carrying the returned body in body-mode.
func (b *base) userFnOutputToEvent(ev *Event, fnResult any) *Event {
	if b.fullEvent {
		return fnResult.(*Event)
	}
	return ev.clone(fnResult)
}
