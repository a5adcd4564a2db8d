package flowgraph

import (
	"context"
	"errors"
	"testing"
)

func TestNewMap_NilFnPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected a panic for nil fn")
		}
	}()
	NewMap("m", nil)
}

func TestMapStep_TransformsEachElement(t *testing.T) {
	sink := newSink("sink")
	m := NewMap("double", func(ctx context.Context, element any) (any, error) {
		return element.(int) * 2, nil
	})
	m.To(sink)

	for i := 1; i <= 3; i++ {
		if _, err := m.Do(context.Background(), NewEvent(i)); err != nil {
			t.Fatalf("Do(%d): %v", i, err)
		}
	}

	got := sink.collected()
	want := []any{2, 4, 6}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMapStep_PropagatesFnError(t *testing.T) {
	wantErr := errors.New("map blew up")
	m := NewMap("bad", func(ctx context.Context, element any) (any, error) {
		return nil, wantErr
	})
	_, err := m.Do(context.Background(), NewEvent(1))
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
}

func TestFilterStep_KeepsOnlyMatching(t *testing.T) {
	sink := newSink("sink")
	f := NewFilter("evens", func(ctx context.Context, element any) (bool, error) {
		return element.(int)%2 == 0, nil
	})
	f.To(sink)

	for i := 1; i <= 5; i++ {
		if _, err := f.Do(context.Background(), NewEvent(i)); err != nil {
			t.Fatalf("Do(%d): %v", i, err)
		}
	}

	got := sink.collected()
	want := []any{2, 4}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFlatMapStep_EmitsOnePerElement(t *testing.T) {
	sink := newSink("sink")
	fm := NewFlatMap("expand", func(ctx context.Context, element any) ([]any, error) {
		n := element.(int)
		out := make([]any, n)
		for i := range out {
			out[i] = n
		}
		return out, nil
	})
	fm.To(sink)

	if _, err := fm.Do(context.Background(), NewEvent(3)); err != nil {
		t.Fatalf("Do: %v", err)
	}

	got := sink.collected()
	if len(got) != 3 {
		t.Fatalf("got %d elements, want 3: %v", len(got), got)
	}
	for _, v := range got {
		if v != 3 {
			t.Errorf("got %v, want 3", v)
		}
	}
}

func TestFlatMapStep_EmptySequenceEmitsNothing(t *testing.T) {
	sink := newSink("sink")
	fm := NewFlatMap("none", func(ctx context.Context, element any) ([]any, error) {
		return nil, nil
	})
	fm.To(sink)

	if _, err := fm.Do(context.Background(), NewEvent(0)); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got := sink.collected(); len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}

func TestExtendStep_MergesAttributesInPlace(t *testing.T) {
	sink := newSink("sink")
	ext := NewExtend("tag", func(ctx context.Context, element any) (map[string]any, error) {
		return map[string]any{"tagged": true}, nil
	})
	ext.To(sink)

	body := map[string]any{"name": "a"}
	ev := NewEvent(body)
	if _, err := ext.Do(context.Background(), ev); err != nil {
		t.Fatalf("Do: %v", err)
	}

	got := sink.collected()[0].(map[string]any)
	if got["name"] != "a" || got["tagged"] != true {
		t.Errorf("got %v, want name=a tagged=true", got)
	}
	// In-place mutation: the original body map reflects the merge too.
	if body["tagged"] != true {
		t.Errorf("expected in-place mutation of original body, got %v", body)
	}
}

func TestExtendStep_NonMapBodyErrors(t *testing.T) {
	ext := NewExtend("tag", func(ctx context.Context, element any) (map[string]any, error) {
		return map[string]any{"x": 1}, nil
	})
	_, err := ext.Do(context.Background(), NewEvent("not a map"))
	if err == nil {
		t.Fatal("expected an error for a non-map body")
	}
}
