package flowgraph

import "context"

// ReduceFunc folds the current accumulator and one element into the next
// accumulator.
type ReduceFunc func(ctx context.Context, acc any, element any) (any, error)

// ReduceStep holds an accumulator initialised to an initial value. On
// termination it returns the accumulator as the stream's
// termination-result. Reduce is terminal: it rejects outlets at
// construction time.
type ReduceStep struct {
	base
	fn     ReduceFunc
	result any
}

// NewReduce builds a Reduce step seeded with initialValue.
func NewReduce(name string, initialValue any, fn ReduceFunc, opts ...StepOption) *ReduceStep {
	if fn == nil {
		panic(&ConstructionError{Step: name, Message: "Reduce requires a non-nil fn"})
	}
	return &ReduceStep{base: newBase(name, opts...), fn: fn, result: initialValue}
}

// To always panics: Reduce is a terminal step and cannot be piped
// further. Construction code that calls it is a ConstructionError by the
// spec's own definition, surfaced here as a panic since graph building is
// a construction-time activity with no error-return path in this API.
func (s *ReduceStep) To(outlet Step) Step {
	panic(&ConstructionError{Step: s.name, Message: "Reduce is a terminal step; it cannot be piped further"})
}

func (s *ReduceStep) Do(ctx context.Context, ev *Event) (any, error) {
	if ev == nil {
		return s.result, nil
	}
	element := ev.Body
	if s.fullEvent {
		element = ev
	}
	next, err := s.fn(ctx, s.result, element)
	if err != nil {
		return nil, err
	}
	s.result = next
	return nil, nil
}
