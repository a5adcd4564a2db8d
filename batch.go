package flowgraph

import (
	"context"
	"sync"
	"time"
)

// BatchStep batches events into lists of up to maxEvents events, emitting
// on whichever comes first: the size threshold, the real-time timeout, or
// stream termination (which always flushes any partial batch). Set
// maxEvents to 0 to emit only on timeout or termination; set timeout to 0
// to emit only on size or termination. At least one should be set in
// practice.
type BatchStep struct {
	base
	maxEvents int
	timeout   time.Duration

	mu          sync.Mutex
	batch       []any
	batchTime   time.Time
	emitCtx     context.Context
	cancelTimer chan struct{}
}

// NewBatch builds a Batch step. Panics with *ConstructionError if
// maxEvents or timeout is negative. A zero maxEvents or timeout leaves
// that trigger unset.
func NewBatch(name string, maxEvents int, timeout time.Duration, opts ...StepOption) *BatchStep {
	if maxEvents < 0 {
		panic(&ConstructionError{Step: name, Message: "Batch max events cannot be negative"})
	}
	if timeout < 0 {
		panic(&ConstructionError{Step: name, Message: "Batch timeout cannot be negative"})
	}
	return &BatchStep{base: newBase(name, opts...), maxEvents: maxEvents, timeout: timeout}
}

func (s *BatchStep) Do(ctx context.Context, ev *Event) (any, error) {
	if ev == nil {
		s.mu.Lock()
		s.cancelTimerLocked()
		toEmit, batchTime := s.takeLocked()
		s.mu.Unlock()

		if len(toEmit) > 0 {
			if _, err := s.emit(ctx, toEmit, batchTime); err != nil {
				return nil, err
			}
		}
		return s.doDownstream(ctx, nil)
	}

	s.mu.Lock()
	if len(s.batch) == 0 {
		s.batchTime = ev.Time
		s.emitCtx = ctx
		if s.timeout > 0 {
			s.scheduleTimeoutLocked()
		}
	}
	s.batch = append(s.batch, s.safeEventOrBody(ev))

	var toEmit []any
	var batchTime time.Time
	if s.maxEvents > 0 && len(s.batch) == s.maxEvents {
		s.cancelTimerLocked()
		toEmit, batchTime = s.takeLocked()
	}
	s.mu.Unlock()

	if toEmit != nil {
		return s.emit(ctx, toEmit, batchTime)
	}
	return nil, nil
}

// takeLocked detaches the current batch for emission and resets state.
// Caller must hold s.mu.
func (s *BatchStep) takeLocked() ([]any, time.Time) {
	if len(s.batch) == 0 {
		return nil, time.Time{}
	}
	batch, batchTime := s.batch, s.batchTime
	s.batch = nil
	s.batchTime = time.Time{}
	return batch, batchTime
}

// cancelTimerLocked stops any pending timeout goroutine. Caller must hold
// s.mu.
func (s *BatchStep) cancelTimerLocked() {
	if s.cancelTimer != nil {
		close(s.cancelTimer)
		s.cancelTimer = nil
	}
}

// scheduleTimeoutLocked starts a one-shot goroutine that emits the
// current batch after s.timeout unless cancelled first. Caller must hold
// s.mu.
func (s *BatchStep) scheduleTimeoutLocked() {
	cancel := make(chan struct{})
	s.cancelTimer = cancel
	timeout := s.timeout
	go func() {
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-t.C:
			s.fireTimeout(cancel)
		case <-cancel:
		}
	}()
}

// fireTimeout emits the batch on timeout expiry, unless the batch was
// already taken by a concurrent size-trigger or termination (detected by
// comparing the captured cancel channel against the live one).
func (s *BatchStep) fireTimeout(cancel chan struct{}) {
	s.mu.Lock()
	if s.cancelTimer != cancel {
		s.mu.Unlock()
		return
	}
	s.cancelTimer = nil
	toEmit, batchTime := s.takeLocked()
	ctx := s.emitCtx
	s.mu.Unlock()

	if len(toEmit) == 0 {
		return
	}
	if _, err := s.emit(ctx, toEmit, batchTime); err != nil {
		s.logger.Error("batch: timeout emission failed", "step", s.name, "error", err)
	}
}

// emit wraps batch as a single downstream event whose Time is batchTime.
func (s *BatchStep) emit(ctx context.Context, batch []any, batchTime time.Time) (any, error) {
	s.logger.Debug("batch: emitting", "step", s.name, "count", len(batch))
	return s.doDownstream(ctx, &Event{Body: batch, Time: batchTime})
}
