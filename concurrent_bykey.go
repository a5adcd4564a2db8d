package flowgraph

import (
	"context"
	"sync"
)

// pendingEvent tracks, per key, the events whose external call is
// currently outstanding (in_flight) and the events that arrived behind it
// (pending), per spec.md §4.9.
type pendingEvent struct {
	inFlight []*Event
	pending  []*Event
}

// KeyProcessor is the batched analogue of Processor: ProcessEvent takes
// the whole coalesced batch of same-key events sharing one in-flight
// call, and HandleCompleted is invoked once per event in that batch once
// the call's single result is available.
type KeyProcessor interface {
	LazyInit(ctx context.Context) error
	// ProcessEvent launches one external call on behalf of every event in
	// batch (all of which share a key) and returns a channel receiving its
	// single result.
	ProcessEvent(ctx context.Context, batch []*Event) (<-chan JobResult, error)
	HandleCompleted(ctx context.Context, ev *Event, result any, emit Emit) error
	Cleanup() error
}

type keyedJob struct {
	isTerm   bool
	key      string
	resultCh <-chan JobResult
}

// ConcurrentByKeyJobExecutionStep is the per-key-coalescing variant of
// ConcurrentJobExecutionStep: concurrent events sharing a key are
// coalesced into the next in-flight batch for that key, preserving
// per-key ordering while capping outstanding calls across all keys via
// the same bounded FIFO.
type ConcurrentByKeyJobExecutionStep struct {
	base
	proc        KeyProcessor
	maxInFlight int

	mu           sync.Mutex
	pendingByKey map[string]*pendingEvent
	queue        chan keyedJob
	workerDone   chan struct{}
	workerErr    error
}

func NewConcurrentByKeyJobExecution(name string, proc KeyProcessor, maxInFlight int, opts ...StepOption) *ConcurrentByKeyJobExecutionStep {
	if proc == nil {
		panic(&ConstructionError{Step: name, Message: "ConcurrentByKeyJobExecution requires a non-nil KeyProcessor"})
	}
	if maxInFlight <= 0 {
		maxInFlight = 8
	}
	return &ConcurrentByKeyJobExecutionStep{
		base:         newBase(name, opts...),
		proc:         proc,
		maxInFlight:  maxInFlight,
		pendingByKey: make(map[string]*pendingEvent),
	}
}

func (s *ConcurrentByKeyJobExecutionStep) ensureStarted(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil {
		return nil
	}
	if err := s.proc.LazyInit(ctx); err != nil {
		return err
	}
	s.queue = make(chan keyedJob, s.maxInFlight)
	s.workerDone = make(chan struct{})
	go s.worker(ctx)
	return nil
}

func (s *ConcurrentByKeyJobExecutionStep) emit(ctx context.Context, derived *Event) error {
	_, err := s.doDownstream(ctx, derived)
	return err
}

func (s *ConcurrentByKeyJobExecutionStep) workerFailed() (bool, error) {
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

func (s *ConcurrentByKeyJobExecutionStep) Do(ctx context.Context, ev *Event) (any, error) {
	if err := s.ensureStarted(ctx); err != nil {
		return nil, err
	}
	if done, werr := s.workerFailed(); done && werr != nil {
		return nil, &FlowError{Step: s.name, Err: werr}
	}

	if ev == nil {
		s.queue <- keyedJob{isTerm: true}
		<-s.workerDone
		s.mu.Lock()
		werr := s.workerErr
		s.mu.Unlock()
		if werr != nil {
			return nil, &FlowError{Step: s.name, Err: werr}
		}
		return s.doDownstream(ctx, nil)
	}

	s.mu.Lock()
	pe, ok := s.pendingByKey[ev.Key]
	if !ok {
		pe = &pendingEvent{}
		s.pendingByKey[ev.Key] = pe
	}
	pe.pending = append(pe.pending, ev)

	var toDispatch []*Event
	if len(pe.inFlight) == 0 {
		toDispatch = pe.pending
		pe.inFlight = toDispatch
		pe.pending = nil
	}
	s.mu.Unlock()

	if toDispatch == nil {
		return nil, nil
	}

	resultCh, err := s.proc.ProcessEvent(ctx, toDispatch)
	if err != nil {
		return nil, err
	}
	s.queue <- keyedJob{key: ev.Key, resultCh: resultCh}

	if done, werr := s.workerFailed(); done && werr != nil {
		return nil, &FlowError{Step: s.name, Err: werr}
	}
	return nil, nil
}

func (s *ConcurrentByKeyJobExecutionStep) worker(ctx context.Context) {
	defer close(s.workerDone)
	defer func() {
		if err := s.proc.Cleanup(); err != nil {
			s.logger.Error("concurrent-by-key: cleanup failed", "step", s.name, "error", err)
		}
	}()

	for job := range s.queue {
		if job.isTerm {
			if s.drainOnTermination(ctx) {
				return
			}
			// More keys became dispatchable while draining; give the
			// worker another pass before declaring the stream finished.
			s.queue <- keyedJob{isTerm: true}
			continue
		}

		res := <-job.resultCh
		if res.Err != nil {
			s.mu.Lock()
			s.workerErr = res.Err
			s.mu.Unlock()
			return
		}

		s.mu.Lock()
		pe := s.pendingByKey[job.key]
		completed := pe.inFlight
		pe.inFlight = nil
		var nextBatch []*Event
		if len(pe.pending) > 0 {
			nextBatch = pe.pending
			pe.inFlight = nextBatch
			pe.pending = nil
		} else {
			delete(s.pendingByKey, job.key)
		}
		s.mu.Unlock()

		for _, ev := range completed {
			if err := s.proc.HandleCompleted(ctx, ev, res.Value, s.emit); err != nil {
				s.mu.Lock()
				s.workerErr = err
				s.mu.Unlock()
				return
			}
		}

		if nextBatch != nil {
			resultCh, err := s.proc.ProcessEvent(ctx, nextBatch)
			if err != nil {
				s.mu.Lock()
				s.workerErr = err
				s.mu.Unlock()
				return
			}
			s.queue <- keyedJob{key: job.key, resultCh: resultCh}
		}
	}
}

// drainOnTermination dispatches one final call for every key that never
// got a chance to (a non-empty pending list with no in_flight call — this
// happens when the sentinel arrives immediately after the only
// submission to a key fell into pending). Returns true when the queue is
// now fully drained and the worker should exit.
func (s *ConcurrentByKeyJobExecutionStep) drainOnTermination(ctx context.Context) bool {
	s.mu.Lock()
	var toDispatch []struct {
		key   string
		batch []*Event
	}
	for key, pe := range s.pendingByKey {
		if len(pe.pending) > 0 && len(pe.inFlight) == 0 {
			batch := pe.pending
			pe.inFlight = batch
			pe.pending = nil
			toDispatch = append(toDispatch, struct {
				key   string
				batch []*Event
			}{key, batch})
		}
	}
	s.mu.Unlock()

	for _, d := range toDispatch {
		resultCh, err := s.proc.ProcessEvent(ctx, d.batch)
		if err != nil {
			s.mu.Lock()
			s.workerErr = err
			s.mu.Unlock()
			return true
		}
		res := <-resultCh
		if res.Err != nil {
			s.mu.Lock()
			s.workerErr = res.Err
			s.mu.Unlock()
			return true
		}
		for _, ev := range d.batch {
			if err := s.proc.HandleCompleted(ctx, ev, res.Value, s.emit); err != nil {
				s.mu.Lock()
				s.workerErr = err
				s.mu.Unlock()
				return true
			}
		}
		s.mu.Lock()
		delete(s.pendingByKey, d.key)
		s.mu.Unlock()
	}

	return len(s.queue) == 0
}
