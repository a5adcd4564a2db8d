package join

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowkit/flowgraph"
	"github.com/flowkit/flowgraph/table/memtable"
)

type sinkStep struct {
	results chan any
}

func newJoinSink() *sinkStep { return &sinkStep{results: make(chan any, 16)} }

func (s *sinkStep) Do(ctx context.Context, ev *flowgraph.Event) (any, error) {
	if ev == nil {
		return nil, nil
	}
	s.results <- ev.Body
	return nil, nil
}
func (s *sinkStep) To(outlet flowgraph.Step) flowgraph.Step { return outlet }
func (s *sinkStep) Outlets() []flowgraph.Step               { return nil }
func (s *sinkStep) Name() string                             { return "sink" }

func TestColumnKeyExtractor_ReadsStringColumn(t *testing.T) {
	ext := ColumnKeyExtractor("user_id")
	got := ext(map[string]any{"user_id": "u1"})
	if got != "u1" {
		t.Errorf("got %q, want %q", got, "u1")
	}
	if got := ext("not a map"); got != "" {
		t.Errorf("got %q, want empty string for a non-map body", got)
	}
}

func TestJoinWithTable_MergesAttributesIntoBody(t *testing.T) {
	tbl := memtable.New()
	ctx := context.Background()
	if err := tbl.Set(ctx, "u1", map[string]any{"plan": "pro"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	step := JoinWithTable("join-users", tbl, "", nil, ColumnKeyExtractor("user_id"), "*", nil, 4)
	sink := newJoinSink()
	step.To(sink)

	ev := flowgraph.NewEvent(map[string]any{"user_id": "u1"})
	if _, err := step.Do(ctx, ev); err != nil {
		t.Fatalf("Do: %v", err)
	}

	select {
	case body := <-sink.results:
		m := body.(map[string]any)
		if m["plan"] != "pro" || m["user_id"] != "u1" {
			t.Errorf("got %v, want plan=pro user_id=u1", m)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the joined event")
	}
}

func TestJoinWithTable_ResolvesTableByNameFromContext(t *testing.T) {
	tbl := memtable.New()
	ctx := context.Background()
	if err := tbl.Set(ctx, "u2", map[string]any{"plan": "free"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	flowCtx := flowgraph.NewContext()
	flowCtx.SetTable("users", tbl)

	step := JoinWithTable("join-users", nil, "users", flowCtx, ColumnKeyExtractor("user_id"), "*", nil, 4)
	sink := newJoinSink()
	step.To(sink)

	ev := flowgraph.NewEvent(map[string]any{"user_id": "u2"})
	if _, err := step.Do(ctx, ev); err != nil {
		t.Fatalf("Do: %v", err)
	}
	select {
	case body := <-sink.results:
		if body.(map[string]any)["plan"] != "free" {
			t.Errorf("got %v, want plan=free", body)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the joined event")
	}
}

func TestJoinWithTable_UnregisteredNamePanics(t *testing.T) {
	flowCtx := flowgraph.NewContext()
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected a panic for an unregistered table name")
		}
	}()
	JoinWithTable("join", nil, "missing", flowCtx, ColumnKeyExtractor("id"), "*", nil, 4)
}

func TestJoinWithTable_NoTableAndNoContextPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected a panic when neither a Table nor a Context is given")
		}
	}()
	JoinWithTable("join", nil, "users", nil, ColumnKeyExtractor("id"), "*", nil, 4)
}

func TestDefaultTableJoin_RejectsNonMapBody(t *testing.T) {
	tbl := memtable.New()
	step := JoinWithTable("join", tbl, "", nil, ColumnKeyExtractor("id"), "*", nil, 4)
	ctx := context.Background()

	if _, err := step.Do(ctx, flowgraph.NewEvent("not a map")); err != nil {
		t.Fatalf("submission should succeed; the join error surfaces on the worker: %v", err)
	}

	// The join failure happens asynchronously in the worker goroutine and
	// surfaces as a *FlowError on a subsequent Do call.
	deadline := time.After(time.Second)
	for {
		_, err := step.Do(ctx, flowgraph.NewEvent(map[string]any{"id": "x"}))
		var flowErr *flowgraph.FlowError
		if err != nil {
			if !errors.As(err, &flowErr) {
				t.Fatalf("got %v, want a *flowgraph.FlowError", err)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("expected the worker failure to surface as a *flowgraph.FlowError")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
