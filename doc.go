// Package flowgraph is an in-process streaming dataflow engine.
//
// A caller assembles a directed graph of Steps, starts it to obtain a
// Controller, and pushes Events through the graph via the Controller. Each
// Step transforms, filters, batches, or joins events with an external
// collaborator before forwarding derived events downstream. A distinguished
// termination sentinel drains the graph and folds each branch's
// termination result (for example, a Reduce step's accumulator) into a
// single value returned from Controller.AwaitTermination.
//
// # Quick Start
//
//	addOne := flowgraph.NewMap("add-one", func(ctx context.Context, body any) (any, error) {
//		return body.(int) + 1, nil
//	})
//	sum := flowgraph.NewReduce("sum", 0, func(ctx context.Context, acc, body any) (any, error) {
//		return acc.(int) + body.(int), nil
//	})
//	head := flowgraph.BuildFlow(addOne, sum)
//	ctl := flowgraph.Run(head)
//	ctx := context.Background()
//	for i := 0; i < 1000; i++ {
//		ctl.Emit(ctx, i, false)
//	}
//	ctl.Terminate(ctx)
//	result, err := ctl.AwaitTermination(ctx)
//
// # Core Types
//
//   - [Event] — the unit of data flowing through the graph.
//   - [Step] — a node with zero or more outlets and a one-event-at-a-time
//     operation (see [NewMap], [NewFilter], [NewFlatMap], [NewExtend],
//     [NewChoice], [NewMapWithState], [NewComplete], [NewReduce]).
//   - [NewBatch] — emits on size threshold or real-time timeout.
//   - [NewConcurrentJobExecution] / [NewConcurrentByKeyJobExecution] —
//     bounded in-flight pipelines for asynchronous external calls (see
//     package join for HTTP- and table-backed joins built on top of them).
//   - [Context] — process-scoped registry of named tables, parameters,
//     and secrets, passed to steps at construction.
//   - [Controller] — the caller-facing handle returned by [Run].
//
// # Included Implementations
//
// Table drivers: table/sqlite (local), table/postgres (networked),
// table/memtable (in-process, for tests). Join steps: package join
// (SendToHttp, JoinWithTable, JoinWithV3IOTable). Sources: package source
// (FileSource, ChannelSource). Observability: package observability wraps
// a graph's head step with OpenTelemetry spans and metrics.
package flowgraph
