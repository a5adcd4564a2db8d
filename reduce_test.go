package flowgraph

import (
	"context"
	"testing"
)

func TestReduceStep_FoldsElementsIntoAccumulator(t *testing.T) {
	r := NewReduce("sum", 0, func(ctx context.Context, acc, element any) (any, error) {
		return acc.(int) + element.(int), nil
	})

	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		if _, err := r.Do(ctx, NewEvent(i)); err != nil {
			t.Fatalf("Do(%d): %v", i, err)
		}
	}

	result, err := r.Do(ctx, nil)
	if err != nil {
		t.Fatalf("Do(nil): %v", err)
	}
	if result != 15 {
		t.Errorf("got %v, want 15", result)
	}
}

func TestReduceStep_ToPanics(t *testing.T) {
	r := NewReduce("sum", 0, func(ctx context.Context, acc, element any) (any, error) {
		return acc, nil
	})
	defer func() {
		if rec := recover(); rec == nil {
			t.Fatal("expected a panic piping past a terminal Reduce step")
		}
	}()
	r.To(newSink("sink"))
}

func TestReduceStep_PropagatesFnError(t *testing.T) {
	r := NewReduce("bad", 0, func(ctx context.Context, acc, element any) (any, error) {
		return nil, context.Canceled
	})
	_, err := r.Do(context.Background(), NewEvent(1))
	if err != context.Canceled {
		t.Fatalf("got %v, want %v", err, context.Canceled)
	}
}
