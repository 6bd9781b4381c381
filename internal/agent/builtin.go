package agent

import (
	"context"
	"sync"
	"time"

	"claimchain/internal/types"
)

// taskTracker is the bookkeeping shared by the built-in agents: which task
// IDs are running and how to cancel them.
type taskTracker struct {
	mu      sync.Mutex
	running map[types.ID]context.CancelFunc
	last    time.Time
}

func newTaskTracker() *taskTracker {
	return &taskTracker{running: make(map[types.ID]context.CancelFunc)}
}

// begin registers the task and returns a context the task runs under plus a
// cleanup func for the caller to defer.
func (t *taskTracker) begin(ctx context.Context, id types.ID) (context.Context, func()) {
	runCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.running[id] = cancel
	t.last = time.Now()
	t.mu.Unlock()
	return runCtx, func() {
		t.mu.Lock()
		delete(t.running, id)
		t.last = time.Now()
		t.mu.Unlock()
		cancel()
	}
}

func (t *taskTracker) cancel(id types.ID) error {
	t.mu.Lock()
	cancel, ok := t.running[id]
	t.mu.Unlock()
	if !ok {
		return newError(ErrKindInvalidTask, "task %s is not running", id)
	}
	cancel()
	return nil
}

func (t *taskTracker) status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{Available: true, ActiveTasks: len(t.running), LastActivity: t.last}
}

// CompileFunc performs one compile attempt. Implementations live outside
// this package (toolchain wrapper, interpreter pre-flight).
type CompileFunc func(ctx context.Context, in CompileInput) (CompileOutput, error)

// CompilationAgent services compilation tasks by delegating to an injected
// compile function.
type CompilationAgent struct {
	compile       CompileFunc
	maxConcurrent int64
	tracker       *taskTracker
}

func NewCompilationAgent(compile CompileFunc, maxConcurrent int64) *CompilationAgent {
	return &CompilationAgent{compile: compile, maxConcurrent: maxConcurrent, tracker: newTaskTracker()}
}

func (a *CompilationAgent) Info() Info {
	return Info{
		Name:               "builtin-compiler",
		Version:            "1.0",
		Description:        "compiles referenced sources via the configured toolchain",
		TaskTypes:          []Type{TypeCompilation},
		MaxConcurrentTasks: a.maxConcurrent,
	}
}

func (a *CompilationAgent) CanHandle(_ context.Context, task *Task) (bool, error) {
	return task.Type == TypeCompilation && task.Input.Compile != nil, nil
}

func (a *CompilationAgent) Execute(ctx context.Context, task *Task) (*TaskResult, error) {
	if task.Input.Compile == nil {
		return nil, newError(ErrKindInvalidTask, "compilation task %s has no compile input", task.ID)
	}
	runCtx, done := a.tracker.begin(ctx, task.ID)
	defer done()

	start := time.Now()
	out, err := a.compile(runCtx, *task.Input.Compile)
	if err != nil {
		return nil, wrapAgentErr(ErrKindTaskFailed, "compile failed", err)
	}
	return &TaskResult{
		TaskID:        task.ID,
		Success:       out.Success,
		Output:        Output{Compile: &out},
		ExecutionTime: time.Since(start),
		Usage:         ResourceUsage{FilesTouched: len(task.Input.Compile.Files)},
		CompletedAt:   time.Now(),
	}, nil
}

func (a *CompilationAgent) Cancel(_ context.Context, taskID types.ID) error {
	return a.tracker.cancel(taskID)
}

func (a *CompilationAgent) Status(context.Context) Status { return a.tracker.status() }

// TestRunFunc runs the referenced tests, typically inside a sandbox.
type TestRunFunc func(ctx context.Context, in ExecuteTestsInput) (ExecuteTestsOutput, error)

// TestExecutionAgent services test execution tasks.
type TestExecutionAgent struct {
	run           TestRunFunc
	maxConcurrent int64
	tracker       *taskTracker
}

func NewTestExecutionAgent(run TestRunFunc, maxConcurrent int64) *TestExecutionAgent {
	return &TestExecutionAgent{run: run, maxConcurrent: maxConcurrent, tracker: newTaskTracker()}
}

func (a *TestExecutionAgent) Info() Info {
	return Info{
		Name:               "builtin-test-runner",
		Version:            "1.0",
		Description:        "runs test suites in a sandboxed working directory",
		TaskTypes:          []Type{TypeTestExecution},
		MaxConcurrentTasks: a.maxConcurrent,
	}
}

func (a *TestExecutionAgent) CanHandle(_ context.Context, task *Task) (bool, error) {
	return task.Type == TypeTestExecution && task.Input.ExecuteTests != nil, nil
}

func (a *TestExecutionAgent) Execute(ctx context.Context, task *Task) (*TaskResult, error) {
	if task.Input.ExecuteTests == nil {
		return nil, newError(ErrKindInvalidTask, "test execution task %s has no input", task.ID)
	}
	runCtx, done := a.tracker.begin(ctx, task.ID)
	defer done()

	start := time.Now()
	out, err := a.run(runCtx, *task.Input.ExecuteTests)
	if err != nil {
		return nil, wrapAgentErr(ErrKindTaskFailed, "test run failed", err)
	}
	return &TaskResult{
		TaskID:        task.ID,
		Success:       len(out.Failed) == 0,
		Output:        Output{ExecuteTests: &out},
		ExecutionTime: time.Since(start),
		Usage:         ResourceUsage{FilesTouched: len(task.Input.ExecuteTests.TestFiles)},
		CompletedAt:   time.Now(),
	}, nil
}

func (a *TestExecutionAgent) Cancel(_ context.Context, taskID types.ID) error {
	return a.tracker.cancel(taskID)
}

func (a *TestExecutionAgent) Status(context.Context) Status { return a.tracker.status() }

// GenerateFunc produces code from a self-contained specification.
type GenerateFunc func(ctx context.Context, in GenerateInput) (GenerateOutput, error)

// GenerationAgent services implementation or test generation tasks. One
// instance handles exactly one of the two types so each can carry its own
// concurrency ceiling.
type GenerationAgent struct {
	name          string
	taskType      Type
	generate      GenerateFunc
	maxConcurrent int64
	tracker       *taskTracker
}

func NewGenerationAgent(name string, taskType Type, generate GenerateFunc, maxConcurrent int64) *GenerationAgent {
	return &GenerationAgent{
		name:          name,
		taskType:      taskType,
		generate:      generate,
		maxConcurrent: maxConcurrent,
		tracker:       newTaskTracker(),
	}
}

func (a *GenerationAgent) Info() Info {
	return Info{
		Name:               a.name,
		Version:            "1.0",
		Description:        "generates code from a self-contained specification",
		TaskTypes:          []Type{a.taskType},
		MaxConcurrentTasks: a.maxConcurrent,
	}
}

func (a *GenerationAgent) CanHandle(_ context.Context, task *Task) (bool, error) {
	return task.Type == a.taskType && task.Input.Generate != nil, nil
}

func (a *GenerationAgent) Execute(ctx context.Context, task *Task) (*TaskResult, error) {
	if task.Input.Generate == nil {
		return nil, newError(ErrKindInvalidTask, "generation task %s has no input", task.ID)
	}
	runCtx, done := a.tracker.begin(ctx, task.ID)
	defer done()

	start := time.Now()
	out, err := a.generate(runCtx, *task.Input.Generate)
	if err != nil {
		return nil, wrapAgentErr(ErrKindTaskFailed, "generation failed", err)
	}
	return &TaskResult{
		TaskID:        task.ID,
		Success:       true,
		Output:        Output{Generate: &out},
		ExecutionTime: time.Since(start),
		CompletedAt:   time.Now(),
	}, nil
}

func (a *GenerationAgent) Cancel(_ context.Context, taskID types.ID) error {
	return a.tracker.cancel(taskID)
}

func (a *GenerationAgent) Status(context.Context) Status { return a.tracker.status() }
