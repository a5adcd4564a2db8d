package join

import (
	"context"
	"strings"

	"github.com/flowkit/flowgraph"
)

// V3IODriver is the raw key-value driver JoinWithV3IOTable talks to. A
// real implementation lives outside this module's scope (spec.md §1); a
// fake satisfying this interface is enough to exercise the step in tests.
type V3IODriver interface {
	GetItem(ctx context.Context, container, path, key, attributes string) (status int, item map[string]any, body string, err error)
	Close() error
}

// V3IOJoinFunc merges a V3IO item into body; a nil return drops the event.
type V3IOJoinFunc func(body any, item map[string]any) (any, error)

// splitPath splits a V3IO table_path of the form "container/path/to/table"
// into its container and the remaining path, mirroring the original
// implementation's table_path parsing: the first path segment names the
// container, everything after is the in-container path.
func splitPath(tablePath string) (container, path string) {
	trimmed := strings.TrimPrefix(tablePath, "/")
	idx := strings.IndexByte(trimmed, '/')
	if idx < 0 {
		return trimmed, ""
	}
	return trimmed[:idx], trimmed[idx+1:]
}

// JoinWithV3IOTable builds a ConcurrentJobExecutionStep that looks up
// each event's key against a raw V3IO-style driver. Completion handling
// distinguishes three response classes: 200 emits the joined event, 404
// drops the event silently, and any other status surfaces a
// *flowgraph.BackendError.
func JoinWithV3IOTable(name string, driver V3IODriver, keyExtractor KeyExtractor, join V3IOJoinFunc, tablePath string, attributes string, maxInFlight int, opts ...flowgraph.StepOption) *flowgraph.ConcurrentJobExecutionStep {
	if driver == nil || keyExtractor == nil || join == nil {
		panic(&flowgraph.ConstructionError{Step: name, Message: "JoinWithV3IOTable requires a non-nil driver, KeyExtractor, and V3IOJoinFunc"})
	}
	if attributes == "" {
		attributes = "*"
	}
	container, path := splitPath(tablePath)
	proc := &v3ioProcessor{driver: driver, keyExtractor: keyExtractor, join: join, container: container, path: path, attributes: attributes}
	return flowgraph.NewConcurrentJobExecution(name, proc, maxInFlight, opts...)
}

type v3ioResponse struct {
	status int
	item   map[string]any
	body   string
}

type v3ioProcessor struct {
	driver       V3IODriver
	keyExtractor KeyExtractor
	join         V3IOJoinFunc
	container    string
	path         string
	attributes   string
}

func (p *v3ioProcessor) LazyInit(ctx context.Context) error { return nil }
func (p *v3ioProcessor) Cleanup() error                     { return p.driver.Close() }

func (p *v3ioProcessor) ProcessEvent(ctx context.Context, ev *flowgraph.Event) (<-chan flowgraph.JobResult, error) {
	key := p.keyExtractor(ev.Body)
	ch := make(chan flowgraph.JobResult, 1)
	go func() {
		status, item, body, err := p.driver.GetItem(ctx, p.container, p.path, key, p.attributes)
		if err != nil {
			ch <- flowgraph.JobResult{Err: err}
			return
		}
		ch <- flowgraph.JobResult{Value: &v3ioResponse{status: status, item: item, body: body}}
	}()
	return ch, nil
}

func (p *v3ioProcessor) HandleCompleted(ctx context.Context, ev *flowgraph.Event, result any, emit flowgraph.Emit) error {
	resp := result.(*v3ioResponse)
	switch resp.status {
	case 200:
		joined, err := p.join(ev.Body, resp.item)
		if err != nil {
			return err
		}
		if joined == nil {
			return nil
		}
		return emit(ctx, ev.WithBody(joined))
	case 404:
		return nil
	default:
		return &flowgraph.BackendError{Step: "JoinWithV3IOTable", Status: resp.status, Body: resp.body}
	}
}
