package join

import (
	"context"

	"github.com/flowkit/flowgraph"
)

// KeyExtractor pulls the table key from an event's body.
type KeyExtractor func(element any) string

// ColumnKeyExtractor builds a KeyExtractor that reads a key out of a
// map[string]any body by column name, the shorthand the original step
// accepted in place of a full function.
func ColumnKeyExtractor(column string) KeyExtractor {
	return func(element any) string {
		m, ok := element.(map[string]any)
		if !ok {
			return ""
		}
		v, _ := m[column].(string)
		return v
	}
}

// TableJoinFunc merges a table lookup's result into body; the default
// (used when nil is passed to JoinWithTable) merges the returned mapping
// into a map[string]any body in place, matching flow.py's default_join_fn.
type TableJoinFunc func(body any, attrs map[string]any) (any, error)

func defaultTableJoin(body any, attrs map[string]any) (any, error) {
	m, ok := body.(map[string]any)
	if !ok {
		return nil, &flowgraph.ConstructionError{Message: "JoinWithTable default join requires a map[string]any body"}
	}
	for k, v := range attrs {
		m[k] = v
	}
	return m, nil
}

// JoinWithTable builds a ConcurrentJobExecutionStep that looks up each
// event's key in table and merges the result into the event. table may be
// a concrete flowgraph.Table, or a name to resolve against flowCtx at
// construction time (flowCtx must be non-nil in that case).
func JoinWithTable(name string, table flowgraph.Table, tableName string, flowCtx *flowgraph.Context, keyExtractor KeyExtractor, attributes string, join TableJoinFunc, maxInFlight int, opts ...flowgraph.StepOption) *flowgraph.ConcurrentJobExecutionStep {
	resolved := table
	if resolved == nil {
		if tableName == "" {
			panic(&flowgraph.ConstructionError{Step: name, Message: "JoinWithTable requires either a Table or a table name"})
		}
		if flowCtx == nil {
			panic(&flowgraph.ConstructionError{Step: name, Message: "table can not be a string if no Context was provided to the step"})
		}
		t, ok := flowCtx.GetTable(tableName)
		if !ok {
			panic(&flowgraph.ConstructionError{Step: name, Message: "no table registered under name " + tableName})
		}
		resolved = t
	}
	if keyExtractor == nil {
		panic(&flowgraph.ConstructionError{Step: name, Message: "JoinWithTable requires a non-nil KeyExtractor"})
	}
	if attributes == "" {
		attributes = "*"
	}
	if join == nil {
		join = defaultTableJoin
	}

	proc := &tableProcessor{table: resolved, keyExtractor: keyExtractor, attributes: attributes, join: join}
	return flowgraph.NewConcurrentJobExecution(name, proc, maxInFlight, append(opts, flowgraph.WithCloseable(resolved))...)
}

type tableProcessor struct {
	table        flowgraph.Table
	keyExtractor KeyExtractor
	attributes   string
	join         TableJoinFunc
}

func (p *tableProcessor) LazyInit(ctx context.Context) error { return nil }
func (p *tableProcessor) Cleanup() error                     { return nil }

func (p *tableProcessor) ProcessEvent(ctx context.Context, ev *flowgraph.Event) (<-chan flowgraph.JobResult, error) {
	key := p.keyExtractor(ev.Body)
	ch := make(chan flowgraph.JobResult, 1)
	go func() {
		attrs, err := p.table.GetOrLoadKey(ctx, key, p.attributes)
		if err != nil {
			ch <- flowgraph.JobResult{Err: err}
			return
		}
		ch <- flowgraph.JobResult{Value: attrs}
	}()
	return ch, nil
}

func (p *tableProcessor) HandleCompleted(ctx context.Context, ev *flowgraph.Event, result any, emit flowgraph.Emit) error {
	attrs := result.(map[string]any)
	joined, err := p.join(ev.Body, attrs)
	if err != nil {
		return err
	}
	if joined == nil {
		return nil
	}
	return emit(ctx, ev.WithBody(joined))
}
