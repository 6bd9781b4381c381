package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"claimchain/internal/logging"
	"claimchain/internal/types"
)

// Dispatcher routes tasks to registered agents. It owns the type-to-agent
// registry and the active-task map; both are guarded by a single mutex that
// is never held across an agent call.
//
// Concurrency per agent type is capped by a weighted semaphore sized from the
// agent's declared MaxConcurrentTasks. Submissions beyond the cap block until
// a slot frees or the caller's context fires.
type Dispatcher struct {
	mu     sync.Mutex
	agents map[Type]Agent
	sems   map[Type]*semaphore.Weighted
	active map[types.ID]*Task

	log *zap.Logger
}

// NewDispatcher returns a dispatcher with an empty registry.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		agents: make(map[Type]Agent),
		sems:   make(map[Type]*semaphore.Weighted),
		active: make(map[types.ID]*Task),
		log:    logging.For(logging.CategoryAgent),
	}
}

// Register binds an agent to every task type it declares. Registering a
// second agent for a type replaces the first. A declared concurrency of zero
// or below is treated as one.
func (d *Dispatcher) Register(a Agent) {
	info := a.Info()
	limit := info.MaxConcurrentTasks
	if limit < 1 {
		limit = 1
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range info.TaskTypes {
		d.agents[t] = a
		d.sems[t] = semaphore.NewWeighted(limit)
		d.log.Debug("agent registered",
			zap.String("agent", info.Name),
			zap.String("task_type", string(t)),
			zap.Int64("max_concurrent", limit))
	}
}

// Submit routes the task to the agent registered for its type and blocks
// until the agent finishes. Tasks are serviced in submission order; priority
// travels on the task as data but does not reorder execution.
//
// The task is visible in ActiveTasks for the duration of the agent call and
// removed on any outcome.
func (d *Dispatcher) Submit(ctx context.Context, task *Task) (*TaskResult, error) {
	d.mu.Lock()
	a, ok := d.agents[task.Type]
	sem := d.sems[task.Type]
	d.mu.Unlock()
	if !ok {
		return nil, newError(ErrKindUnavailable, "no agent registered for task type %q", task.Type)
	}

	canHandle, err := a.CanHandle(ctx, task)
	if err != nil {
		return nil, wrapAgentErr(ErrKindCommunication, "can_handle check failed", err)
	}
	if !canHandle {
		return nil, newError(ErrKindInvalidTask, "agent %q rejected task %s", a.Info().Name, task.ID)
	}

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, wrapAgentErr(ErrKindTimeout, "waiting for agent slot", err)
	}
	defer sem.Release(1)

	d.mu.Lock()
	d.active[task.ID] = task
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.active, task.ID)
		d.mu.Unlock()
	}()

	runCtx := ctx
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	start := time.Now()
	d.log.Info("task dispatched",
		zap.String("task", task.ID.String()),
		zap.String("task_type", string(task.Type)))

	result, err := a.Execute(runCtx, task)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, wrapAgentErr(ErrKindTimeout, "task exceeded its timeout", err)
		}
		return nil, wrapAgentErr(ErrKindTaskFailed, "task execution failed", err)
	}
	d.log.Info("task completed",
		zap.String("task", task.ID.String()),
		zap.Bool("success", result.Success),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

// Cancel delegates to the owning agent and then drops the bookkeeping entry.
// The entry is removed even when the agent's own cancellation fails, so a
// stuck agent cannot pin the active-task map; the agent's error is still
// returned so the caller knows the underlying work may not have stopped.
func (d *Dispatcher) Cancel(ctx context.Context, taskID types.ID) error {
	d.mu.Lock()
	task, ok := d.active[taskID]
	if !ok {
		d.mu.Unlock()
		return newError(ErrKindInvalidTask, "no active task %s", taskID)
	}
	a := d.agents[task.Type]
	delete(d.active, taskID)
	d.mu.Unlock()

	if err := a.Cancel(ctx, taskID); err != nil {
		d.log.Warn("agent cancellation failed, bookkeeping dropped anyway",
			zap.String("task", taskID.String()),
			zap.Error(err))
		return err
	}
	d.log.Info("task cancelled", zap.String("task", taskID.String()))
	return nil
}

// ActiveTasks returns a snapshot of tasks currently inside an agent call.
func (d *Dispatcher) ActiveTasks() []*Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Task, 0, len(d.active))
	for _, t := range d.active {
		out = append(out, t)
	}
	return out
}

// wrapAgentErr keeps an existing *Error's kind when the cause already carries
// one, otherwise tags the cause with the given kind.
func wrapAgentErr(kind ErrorKind, msg string, err error) error {
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}
