package flowgraph

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeProcessor doubles an int body asynchronously, optionally with a
// per-value delay so tests can force completions to race out of order.
type fakeProcessor struct {
	mu        sync.Mutex
	delayFn   func(body int) time.Duration
	failOn    int
	cleanedUp bool
	initCalls int
}

func (p *fakeProcessor) LazyInit(ctx context.Context) error {
	p.mu.Lock()
	p.initCalls++
	p.mu.Unlock()
	return nil
}

func (p *fakeProcessor) ProcessEvent(ctx context.Context, ev *Event) (<-chan JobResult, error) {
	ch := make(chan JobResult, 1)
	body := ev.Body.(int)
	go func() {
		if p.delayFn != nil {
			time.Sleep(p.delayFn(body))
		}
		if p.failOn != 0 && body == p.failOn {
			ch <- JobResult{Err: errors.New("processing failed")}
			return
		}
		ch <- JobResult{Value: body * 2}
	}()
	return ch, nil
}

func (p *fakeProcessor) HandleCompleted(ctx context.Context, ev *Event, result any, emit Emit) error {
	return emit(ctx, ev.WithBody(result))
}

func (p *fakeProcessor) Cleanup() error {
	p.mu.Lock()
	p.cleanedUp = true
	p.mu.Unlock()
	return nil
}

func TestConcurrentJobExecution_PreservesSubmissionOrderDespiteRacingCompletions(t *testing.T) {
	sink := newSink("sink")
	proc := &fakeProcessor{
		// Earlier-submitted events take longer, so completion order is
		// reversed relative to submission order.
		delayFn: func(body int) time.Duration {
			return time.Duration(4-body) * 15 * time.Millisecond
		},
	}
	step := NewConcurrentJobExecution("double", proc, 4)
	step.To(sink)

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		if _, err := step.Do(ctx, NewEvent(i)); err != nil {
			t.Fatalf("Do(%d): %v", i, err)
		}
	}
	if _, err := step.Do(ctx, nil); err != nil {
		t.Fatalf("Do(nil): %v", err)
	}

	got := sink.collected()
	want := []any{2, 4, 6}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %v, want %v (submission order should win over completion order)", i, got[i], want[i])
		}
	}
}

func TestConcurrentJobExecution_LazyInitRunsOnce(t *testing.T) {
	sink := newSink("sink")
	proc := &fakeProcessor{}
	step := NewConcurrentJobExecution("once", proc, 2)
	step.To(sink)

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		if _, err := step.Do(ctx, NewEvent(i)); err != nil {
			t.Fatalf("Do(%d): %v", i, err)
		}
	}
	if _, err := step.Do(ctx, nil); err != nil {
		t.Fatalf("Do(nil): %v", err)
	}

	proc.mu.Lock()
	defer proc.mu.Unlock()
	if proc.initCalls != 1 {
		t.Errorf("initCalls = %d, want 1", proc.initCalls)
	}
	if !proc.cleanedUp {
		t.Error("expected Cleanup to have run on termination")
	}
}

func TestConcurrentJobExecution_WorkerFailureSurfacesAsFlowError(t *testing.T) {
	proc := &fakeProcessor{failOn: 2}
	step := NewConcurrentJobExecution("fails-on-2", proc, 4)
	step.To(newSink("sink"))

	ctx := context.Background()
	for i := 1; i <= 2; i++ {
		if _, err := step.Do(ctx, NewEvent(i)); err != nil {
			// The failing event's own submission may or may not observe the
			// error immediately depending on scheduling; either is fine.
			break
		}
	}

	// Give the worker a moment to observe the failure and exit.
	deadline := time.After(1 * time.Second)
	for {
		_, err := step.Do(ctx, NewEvent(99))
		var flowErr *FlowError
		if errors.As(err, &flowErr) {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expected a *FlowError once the worker observes the failed job")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestNewConcurrentJobExecution_NilProcessorPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected a panic for a nil Processor")
		}
	}()
	NewConcurrentJobExecution("bad", nil, 1)
}

func TestNewConcurrentJobExecution_DefaultsMaxInFlight(t *testing.T) {
	step := NewConcurrentJobExecution("defaulted", &fakeProcessor{}, 0)
	if step.maxInFlight != 8 {
		t.Errorf("maxInFlight = %d, want 8", step.maxInFlight)
	}
}
