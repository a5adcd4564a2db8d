package flowgraph

import (
	"context"
	"fmt"
)

// MapFunc transforms one element into another. element is the Event's
// body, or the Event itself when the step was built WithFullEvent(true).
type MapFunc func(ctx context.Context, element any) (any, error)

// FilterFunc decides whether to keep an element.
type FilterFunc func(ctx context.Context, element any) (bool, error)

// FlatMapFunc transforms one element into a finite sequence of elements,
// one derived event emitted per returned element.
type FlatMapFunc func(ctx context.Context, element any) ([]any, error)

// ExtendFunc returns attributes to merge into an event's body in place.
type ExtendFunc func(ctx context.Context, element any) (map[string]any, error)

// MapStep applies fn to each element, emitting one derived event per
// input.
type MapStep struct {
	base
	fn MapFunc
}

// NewMap builds a Map step. Panics with *ConstructionError if fn is nil —
// a non-callable transform is a programming error caught at construction,
// never at run time.
func NewMap(name string, fn MapFunc, opts ...StepOption) *MapStep {
	if fn == nil {
		panic(&ConstructionError{Step: name, Message: "Map requires a non-nil fn"})
	}
	return &MapStep{base: newBase(name, opts...), fn: fn}
}

func (s *MapStep) Do(ctx context.Context, ev *Event) (any, error) {
	if ev == nil {
		return s.doDownstream(ctx, nil)
	}
	result, err := s.fn(ctx, s.safeEventOrBody(ev))
	if err != nil {
		return nil, err
	}
	return s.doDownstream(ctx, s.userFnOutputToEvent(ev, result))
}

// FilterStep forwards the input event unchanged iff fn returns true.
type FilterStep struct {
	base
	fn FilterFunc
}

// NewFilter builds a Filter step. Panics with *ConstructionError if fn is
// nil.
func NewFilter(name string, fn FilterFunc, opts ...StepOption) *FilterStep {
	if fn == nil {
		panic(&ConstructionError{Step: name, Message: "Filter requires a non-nil fn"})
	}
	return &FilterStep{base: newBase(name, opts...), fn: fn}
}

func (s *FilterStep) Do(ctx context.Context, ev *Event) (any, error) {
	if ev == nil {
		return s.doDownstream(ctx, nil)
	}
	keep, err := s.fn(ctx, s.safeEventOrBody(ev))
	if err != nil {
		return nil, err
	}
	if !keep {
		return nil, nil
	}
	return s.doDownstream(ctx, ev)
}

// FlatMapStep emits one derived event per element of fn's returned
// sequence.
type FlatMapStep struct {
	base
	fn FlatMapFunc
}

// NewFlatMap builds a FlatMap step. Panics with *ConstructionError if fn
// is nil.
func NewFlatMap(name string, fn FlatMapFunc, opts ...StepOption) *FlatMapStep {
	if fn == nil {
		panic(&ConstructionError{Step: name, Message: "FlatMap requires a non-nil fn"})
	}
	return &FlatMapStep{base: newBase(name, opts...), fn: fn}
}

func (s *FlatMapStep) Do(ctx context.Context, ev *Event) (any, error) {
	if ev == nil {
		return s.doDownstream(ctx, nil)
	}
	results, err := s.fn(ctx, s.safeEventOrBody(ev))
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if _, err := s.doDownstream(ctx, s.userFnOutputToEvent(ev, r)); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// ExtendStep merges fn's returned attributes into the event body in
// place, then forwards the original event. Because the merge happens in
// place rather than on a clone, a fan-out sibling of Extend observes the
// mutation — this mirrors the original storey implementation's behavior
// rather than cloning defensively.
type ExtendStep struct {
	base
	fn ExtendFunc
}

// NewExtend builds an Extend step. Panics with *ConstructionError if fn is
// nil. fn's element argument is always the body regardless of
// WithFullEvent, since body mutation requires a map-like body.
func NewExtend(name string, fn ExtendFunc, opts ...StepOption) *ExtendStep {
	if fn == nil {
		panic(&ConstructionError{Step: name, Message: "Extend requires a non-nil fn"})
	}
	return &ExtendStep{base: newBase(name, opts...), fn: fn}
}

func (s *ExtendStep) Do(ctx context.Context, ev *Event) (any, error) {
	if ev == nil {
		return s.doDownstream(ctx, nil)
	}
	attrs, err := s.fn(ctx, ev.Body)
	if err != nil {
		return nil, err
	}
	body, ok := ev.Body.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: Extend requires a map[string]any body, got %T", s.name, ev.Body)
	}
	for k, v := range attrs {
		body[k] = v
	}
	return s.doDownstream(ctx, ev)
}
