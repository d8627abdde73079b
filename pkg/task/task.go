// Package task wraps a query execution with a forward-only status and
// cooperative cancellation.
package task

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JayabrataBasu/veridicalql/pkg/errs"
)

// Status is the lifecycle stage of a task. Stages only move forward.
type Status uint8

const (
	// StatusPreparing is the initial stage, before the body starts.
	StatusPreparing Status = iota
	// StatusWaiting means the task is waiting for its locks.
	StatusWaiting
	// StatusRunning means the plan is executing.
	StatusRunning
	// StatusEnding means locks and temp tables are being released.
	StatusEnding
	// StatusCompleted is terminal; Outcome tells how the task ended.
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusPreparing:
		return "PREPARING"
	case StatusWaiting:
		return "WAITING"
	case StatusRunning:
		return "RUNNING"
	case StatusEnding:
		return "ENDING"
	case StatusCompleted:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// Outcome records how a completed task ended.
type Outcome uint8

const (
	OutcomePending Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "PENDING"
	case OutcomeSucceeded:
		return "SUCCEEDED"
	case OutcomeFailed:
		return "FAILED"
	case OutcomeCanceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

// Func is the body of a task. It receives the task context, which is
// canceled by Cancel, and the task itself for status changes.
type Func[R any] func(ctx context.Context, t *Task[R]) (R, error)

// Task is a single cancellable unit of work producing an R.
type Task[R any] struct {
	ID string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// mu protects the fields below
	mu        sync.RWMutex
	status    Status
	outcome   Outcome
	canceled  bool
	started   bool
	result    R
	err       error
	createdAt time.Time
	elapsed   time.Duration
}

// New creates a task in StatusPreparing whose context derives from parent.
func New[R any](parent context.Context) *Task[R] {
	ctx, cancel := context.WithCancel(parent)
	return &Task[R]{
		ID:        uuid.NewString(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
}

// Context returns the task context.
func (t *Task[R]) Context() context.Context {
	return t.ctx
}

// Status returns the current stage.
func (t *Task[R]) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Outcome returns how the task ended, or OutcomePending while it runs.
func (t *Task[R]) Outcome() Outcome {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.outcome
}

// CreatedAt returns when the task was created.
func (t *Task[R]) CreatedAt() time.Time {
	return t.createdAt
}

// Elapsed returns the run time of a completed task.
func (t *Task[R]) Elapsed() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.elapsed
}

// Advance moves the task to status. Moving to the current status is a no-op;
// moving backwards fails with ErrIllegalStateTransition.
func (t *Task[R]) Advance(status Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.advanceLocked(status)
}

func (t *Task[R]) advanceLocked(status Status) error {
	if status < t.status {
		return errs.IllegalTransition("task "+t.ID, t.status.String(), status.String())
	}
	t.status = status
	return nil
}

// Cancel requests cancellation. The task context is canceled so blocked lock
// waits and remote fetches return; the body observes it at its next poll.
func (t *Task[R]) Cancel() {
	t.mu.Lock()
	t.canceled = true
	t.mu.Unlock()
	t.cancel()
}

// Canceled reports whether Cancel was called.
func (t *Task[R]) Canceled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.canceled
}

// Start runs fn on its own goroutine. A task can be started once.
func (t *Task[R]) Start(fn Func[R]) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return errs.Syntax("task %s already started", t.ID)
	}
	t.started = true
	t.mu.Unlock()

	go t.run(fn)
	return nil
}

func (t *Task[R]) run(fn Func[R]) {
	start := time.Now()
	result, err := fn(t.ctx, t)

	t.mu.Lock()
	t.elapsed = time.Since(start)
	_ = t.advanceLocked(StatusCompleted)
	switch {
	case t.canceled || (err != nil && isContextErr(err) && t.ctx.Err() != nil):
		t.outcome = OutcomeCanceled
		if err == nil || !errors.Is(err, errs.ErrCanceled) {
			err = errs.Canceled("task " + t.ID)
		}
	case err != nil:
		t.outcome = OutcomeFailed
	default:
		t.outcome = OutcomeSucceeded
		t.result = result
	}
	t.err = err
	t.mu.Unlock()

	t.cancel()
	close(t.done)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errs.ErrCanceled)
}

// Done is closed when the task completes.
func (t *Task[R]) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task completes and returns its result. A canceled
// task reports an error wrapping ErrCanceled, distinct from a failure. If ctx
// ends first Wait returns ctx's error and the task keeps running.
func (t *Task[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.result, t.err
}
