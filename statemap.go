package flowgraph

import (
	"context"
	"sync"
)

// StateFunc transforms element using the current state and returns the
// output element together with the updated state.
type StateFunc func(ctx context.Context, element any, state any) (result any, newState any, err error)

// MapWithStateStep carries an initial_state that is either an arbitrary
// value (group_by_key=false, threaded through every call) or a
// key-to-per-key-state mapping / Table (group_by_key=true, fetched and
// written back per key).
type MapWithStateStep struct {
	base
	fn          StateFunc
	groupByKey  bool
	mu          sync.Mutex
	state       any            // used when !groupByKey
	perKeyState map[string]any // used when groupByKey and state is not a Table
	table       Table          // used when groupByKey and state is a Table
}

// NewMapWithState builds a MapWithState step.
//
// When groupByKey is false, initialState is the starting value threaded
// through every call. When groupByKey is true, initialState must be a
// Table, a map[string]any of per-key starting states, or nil (an empty
// per-key map); any other value panics with *ConstructionError, since
// that is a programming error caught at construction, not at run time.
func NewMapWithState(name string, initialState any, fn StateFunc, groupByKey bool, opts ...StepOption) *MapWithStateStep {
	if fn == nil {
		panic(&ConstructionError{Step: name, Message: "MapWithState requires a non-nil fn"})
	}
	s := &MapWithStateStep{base: newBase(name, opts...), fn: fn, groupByKey: groupByKey}
	if !groupByKey {
		s.state = initialState
		return s
	}
	switch st := initialState.(type) {
	case Table:
		s.table = st
		s.closeables = append(s.closeables, closerFunc(st.Close))
	case map[string]any:
		s.perKeyState = st
	case nil:
		s.perKeyState = make(map[string]any)
	default:
		panic(&ConstructionError{Step: name, Message: "MapWithState(groupByKey=true) requires a Table or map[string]any initial state"})
	}
	return s
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func (s *MapWithStateStep) Do(ctx context.Context, ev *Event) (any, error) {
	if ev == nil {
		return s.doDownstream(ctx, nil)
	}

	element := s.safeEventOrBody(ev)
	result, err := s.call(ctx, ev.Key, element)
	if err != nil {
		return nil, err
	}
	return s.doDownstream(ctx, s.userFnOutputToEvent(ev, result))
}

func (s *MapWithStateStep) call(ctx context.Context, key string, element any) (any, error) {
	if !s.groupByKey {
		s.mu.Lock()
		defer s.mu.Unlock()
		result, newState, err := s.fn(ctx, element, s.state)
		if err != nil {
			return nil, err
		}
		s.state = newState
		return result, nil
	}

	if s.table != nil {
		keyState, err := s.table.GetOrLoadKey(ctx, key, "*")
		if err != nil {
			return nil, err
		}
		result, newState, err := s.fn(ctx, element, keyState)
		if err != nil {
			return nil, err
		}
		newMap, ok := newState.(map[string]any)
		if !ok {
			return nil, &ConstructionError{Step: s.name, Message: "MapWithState(groupByKey=true) fn must return a map[string]any state for Table-backed state"}
		}
		if err := s.table.Set(ctx, key, newMap); err != nil {
			return nil, err
		}
		return result, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	result, newState, err := s.fn(ctx, element, s.perKeyState[key])
	if err != nil {
		return nil, err
	}
	s.perKeyState[key] = newState
	return result, nil
}

// MapClassFunc is the method an object passed to MapClass must implement
// equivalent: it runs once per element and may call the passed drop
// callback to signal the current event should be filtered out, mirroring
// storey's in-method filter() signal.
type MapClassFunc func(ctx context.Context, element any, drop func()) (any, error)

// MapClassStep is the inheritance-style variant of Map: the caller
// supplies a function with an in-call drop signal instead of a predicate
// pair, encapsulating state in the closure rather than threading it
// explicitly. Equivalent to Map+Filter with state held by the caller.
type MapClassStep struct {
	base
	fn MapClassFunc
}

// NewMapClass builds a MapClass step. Panics with *ConstructionError if
// fn is nil.
func NewMapClass(name string, fn MapClassFunc, opts ...StepOption) *MapClassStep {
	if fn == nil {
		panic(&ConstructionError{Step: name, Message: "MapClass requires a non-nil fn"})
	}
	return &MapClassStep{base: newBase(name, opts...), fn: fn}
}

func (s *MapClassStep) Do(ctx context.Context, ev *Event) (any, error) {
	if ev == nil {
		return s.doDownstream(ctx, nil)
	}
	dropped := false
	drop := func() { dropped = true }
	result, err := s.fn(ctx, s.safeEventOrBody(ev), drop)
	if err != nil {
		return nil, err
	}
	if dropped {
		return nil, nil
	}
	return s.doDownstream(ctx, s.userFnOutputToEvent(ev, result))
}
