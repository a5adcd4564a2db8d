package flowgraph

import (
	"context"
	"sync"
)

// sinkStep records every body it receives, in arrival order, for test
// assertions. It has no outlets of its own.
type sinkStep struct {
	base

	mu       sync.Mutex
	bodies   []any
	events   []*Event
	termHits int
}

func newSink(name string) *sinkStep {
	return &sinkStep{base: newBase(name)}
}

func (s *sinkStep) Do(ctx context.Context, ev *Event) (any, error) {
	if ev == nil {
		s.mu.Lock()
		s.termHits++
		s.mu.Unlock()
		return s.doDownstream(ctx, nil)
	}
	s.mu.Lock()
	s.bodies = append(s.bodies, ev.Body)
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return s.doDownstream(ctx, ev)
}

func (s *sinkStep) collected() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]any, len(s.bodies))
	copy(out, s.bodies)
	return out
}

// fakeTable is a minimal in-memory Table for tests that need a real
// key-value collaborator without pulling in a table driver package.
type fakeTable struct {
	mu   sync.Mutex
	data map[string]map[string]any
}

func newFakeTable() *fakeTable {
	return &fakeTable{data: make(map[string]map[string]any)}
}

func (f *fakeTable) GetOrLoadKey(_ context.Context, key string, _ string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if attrs, ok := f.data[key]; ok {
		return attrs, nil
	}
	return map[string]any{}, nil
}

func (f *fakeTable) Set(_ context.Context, key string, attrs map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = attrs
	return nil
}

func (f *fakeTable) Close() error { return nil }

// errStep returns err from every call, real event or sentinel.
type errStep struct {
	base
	err error
}

func newErrStep(name string, err error) *errStep {
	return &errStep{base: newBase(name), err: err}
}

func (s *errStep) Do(ctx context.Context, ev *Event) (any, error) {
	return nil, s.err
}
