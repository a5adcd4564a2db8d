package flowgraph

import (
	"context"
	"sync"
)

// JobResult carries the outcome of one in-flight asynchronous call. A
// Processor's ProcessEvent launches the call and returns a channel that
// receives exactly one JobResult; construct it directly (JobResult{Value:
// v} on success, JobResult{Err: err} on failure).
type JobResult struct {
	Value any
	Err   error
}

// Emit forwards a derived event downstream from inside a Processor's
// HandleCompleted callback.
type Emit func(ctx context.Context, derived *Event) error

// Processor is the pair of callbacks a ConcurrentJobExecutionStep drives:
// ProcessEvent launches the external asynchronous call for ev and returns
// a channel that receives exactly one JobResult when it completes;
// HandleCompleted is invoked, in submission order, once that result is
// available, and is responsible for any downstream emission (via emit).
type Processor interface {
	// LazyInit runs once, on the first event a step ever receives.
	LazyInit(ctx context.Context) error
	// ProcessEvent launches the external call and returns a channel that
	// will receive its single result. Must not block on the call itself.
	ProcessEvent(ctx context.Context, ev *Event) (<-chan JobResult, error)
	// HandleCompleted reacts to one call's result, in submission order.
	HandleCompleted(ctx context.Context, ev *Event, result any, emit Emit) error
	// Cleanup releases resources; runs on every exit path.
	Cleanup() error
}

type pendingJob struct {
	isTerm   bool
	event    *Event
	resultCh <-chan JobResult
}

// ConcurrentJobExecutionStep runs one external asynchronous operation per
// event with bounded concurrency while preserving per-event completion
// order matching submission order. Concrete joins (SendToHttp,
// JoinWithTable, JoinWithV3IOTable) supply a Processor; this type factors
// out the lazy init, bounded FIFO, worker loop, and failure handling
// shared by all three join steps. ConcurrentByKeyJobExecutionStep is a
// separate implementation of the same loop with per-key coalescing.
type ConcurrentJobExecutionStep struct {
	base
	proc        Processor
	maxInFlight int

	mu         sync.Mutex
	queue      chan pendingJob
	workerDone chan struct{}
	workerErr  error
}

// NewConcurrentJobExecution builds a ConcurrentJobExecutionStep driven by
// proc. maxInFlight defaults to 8 when <= 0.
func NewConcurrentJobExecution(name string, proc Processor, maxInFlight int, opts ...StepOption) *ConcurrentJobExecutionStep {
	if proc == nil {
		panic(&ConstructionError{Step: name, Message: "ConcurrentJobExecution requires a non-nil Processor"})
	}
	if maxInFlight <= 0 {
		maxInFlight = 8
	}
	return &ConcurrentJobExecutionStep{base: newBase(name, opts...), proc: proc, maxInFlight: maxInFlight}
}

func (s *ConcurrentJobExecutionStep) ensureStarted(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil {
		return nil
	}
	if err := s.proc.LazyInit(ctx); err != nil {
		return err
	}
	s.queue = make(chan pendingJob, s.maxInFlight)
	s.workerDone = make(chan struct{})
	go s.worker(ctx)
	return nil
}

func (s *ConcurrentJobExecutionStep) emit(ctx context.Context, derived *Event) error {
	_, err := s.doDownstream(ctx, derived)
	return err
}

func (s *ConcurrentJobExecutionStep) worker(ctx context.Context) {
	defer close(s.workerDone)
	defer func() {
		if err := s.proc.Cleanup(); err != nil {
			s.logger.Error("concurrent: cleanup failed", "step", s.name, "error", err)
		}
	}()
	for job := range s.queue {
		if job.isTerm {
			return
		}
		res := <-job.resultCh
		if res.Err != nil {
			s.mu.Lock()
			s.workerErr = res.Err
			s.mu.Unlock()
			return
		}
		if err := s.proc.HandleCompleted(ctx, job.event, res.Value, s.emit); err != nil {
			s.mu.Lock()
			s.workerErr = err
			s.mu.Unlock()
			return
		}
	}
}

// workerFailed reports whether the worker has exited, and if so, the
// error to surface (nil on a clean termination exit).
func (s *ConcurrentJobExecutionStep) workerFailed() (bool, error) {
	select {
	case <-s.workerDone:
		s.mu.Lock()
		err := s.workerErr
		s.mu.Unlock()
		return true, err
	default:
		return false, nil
	}
}

func (s *ConcurrentJobExecutionStep) Do(ctx context.Context, ev *Event) (any, error) {
	if err := s.ensureStarted(ctx); err != nil {
		return nil, err
	}

	if done, werr := s.workerFailed(); done && werr != nil {
		return nil, &FlowError{Step: s.name, Err: werr}
	}

	if ev == nil {
		s.queue <- pendingJob{isTerm: true}
		<-s.workerDone
		s.mu.Lock()
		werr := s.workerErr
		s.mu.Unlock()
		if werr != nil {
			return nil, &FlowError{Step: s.name, Err: werr}
		}
		return s.doDownstream(ctx, nil)
	}

	resultCh, err := s.proc.ProcessEvent(ctx, ev)
	if err != nil {
		return nil, err
	}
	s.queue <- pendingJob{event: ev, resultCh: resultCh}

	if done, werr := s.workerFailed(); done && werr != nil {
		return nil, &FlowError{Step: s.name, Err: werr}
	}
	return nil, nil
}
