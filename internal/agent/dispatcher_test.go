package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"claimchain/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeAgent is a controllable agent for dispatcher tests. Execute blocks on
// release when set, so tests can observe in-flight bookkeeping.
type fakeAgent struct {
	info      Info
	handle    bool
	execErr   error
	cancelErr error
	release   chan struct{}

	mu        sync.Mutex
	inFlight  int32
	maxSeen   int32
	cancelled []types.ID
}

func newFakeAgent(taskType Type, maxConcurrent int64) *fakeAgent {
	return &fakeAgent{
		info: Info{
			Name:               "fake",
			TaskTypes:          []Type{taskType},
			MaxConcurrentTasks: maxConcurrent,
		},
		handle: true,
	}
}

func (f *fakeAgent) Info() Info { return f.info }

func (f *fakeAgent) CanHandle(context.Context, *Task) (bool, error) { return f.handle, nil }

func (f *fakeAgent) Execute(ctx context.Context, task *Task) (*TaskResult, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	for {
		max := atomic.LoadInt32(&f.maxSeen)
		if n <= max || atomic.CompareAndSwapInt32(&f.maxSeen, max, n) {
			break
		}
	}
	defer atomic.AddInt32(&f.inFlight, -1)

	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.execErr != nil {
		return nil, f.execErr
	}
	return &TaskResult{TaskID: task.ID, Success: true, CompletedAt: time.Now()}, nil
}

func (f *fakeAgent) Cancel(_ context.Context, id types.ID) error {
	f.mu.Lock()
	f.cancelled = append(f.cancelled, id)
	f.mu.Unlock()
	return f.cancelErr
}

func (f *fakeAgent) Status(context.Context) Status { return Status{Available: true} }

func task(t Type) *Task {
	return &Task{ID: types.NewID(), Type: t, CreatedAt: time.Now()}
}

func TestSubmitUnknownType(t *testing.T) {
	d := NewDispatcher()
	_, err := d.Submit(context.Background(), task(TypeCompilation))
	var ae *Error
	if !errors.As(err, &ae) || ae.Kind != ErrKindUnavailable {
		t.Fatalf("err = %v, want unavailable", err)
	}
}

func TestSubmitRejectedByPrecheck(t *testing.T) {
	fa := newFakeAgent(TypeCompilation, 1)
	fa.handle = false
	d := NewDispatcher()
	d.Register(fa)

	_, err := d.Submit(context.Background(), task(TypeCompilation))
	var ae *Error
	if !errors.As(err, &ae) || ae.Kind != ErrKindInvalidTask {
		t.Fatalf("err = %v, want invalid_task", err)
	}
	if len(d.ActiveTasks()) != 0 {
		t.Error("rejected task must not enter the active map")
	}
}

func TestSubmitSuccessClearsBookkeeping(t *testing.T) {
	fa := newFakeAgent(TypeTestExecution, 1)
	d := NewDispatcher()
	d.Register(fa)

	tk := task(TypeTestExecution)
	res, err := d.Submit(context.Background(), tk)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.TaskID != tk.ID || !res.Success {
		t.Errorf("result = %+v", res)
	}
	if len(d.ActiveTasks()) != 0 {
		t.Error("completed task left in active map")
	}
}

func TestSubmitFailureClearsBookkeeping(t *testing.T) {
	fa := newFakeAgent(TypeCompilation, 1)
	fa.execErr = errors.New("compiler crashed")
	d := NewDispatcher()
	d.Register(fa)

	_, err := d.Submit(context.Background(), task(TypeCompilation))
	var ae *Error
	if !errors.As(err, &ae) || ae.Kind != ErrKindTaskFailed {
		t.Fatalf("err = %v, want task_failed", err)
	}
	if len(d.ActiveTasks()) != 0 {
		t.Error("failed task left in active map")
	}
}

func TestSubmitEnforcesConcurrencyCeiling(t *testing.T) {
	fa := newFakeAgent(TypeCompilation, 2)
	fa.release = make(chan struct{})
	d := NewDispatcher()
	d.Register(fa)

	const n = 6
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.Submit(context.Background(), task(TypeCompilation)); err != nil {
				t.Errorf("Submit() error = %v", err)
			}
		}()
	}

	// Give submissions time to pile up on the semaphore, then let them all
	// drain.
	time.Sleep(50 * time.Millisecond)
	close(fa.release)
	wg.Wait()

	if max := atomic.LoadInt32(&fa.maxSeen); max > 2 {
		t.Errorf("observed %d concurrent executions, ceiling is 2", max)
	}
}

func TestSubmitTaskTimeout(t *testing.T) {
	fa := newFakeAgent(TypeCompilation, 1)
	fa.release = make(chan struct{}) // never released, Execute waits on ctx
	defer close(fa.release)
	d := NewDispatcher()
	d.Register(fa)

	tk := task(TypeCompilation)
	tk.Timeout = 20 * time.Millisecond
	_, err := d.Submit(context.Background(), tk)
	var ae *Error
	if !errors.As(err, &ae) || ae.Kind != ErrKindTimeout {
		t.Fatalf("err = %v, want timeout", err)
	}
}

func TestCancelRemovesBookkeepingEvenOnAgentError(t *testing.T) {
	fa := newFakeAgent(TypeTestExecution, 1)
	fa.release = make(chan struct{})
	fa.cancelErr = errors.New("agent cannot stop the run")
	d := NewDispatcher()
	d.Register(fa)

	tk := task(TypeTestExecution)
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Submit(context.Background(), tk)
	}()

	// Wait for the task to appear in the active map.
	deadline := time.Now().Add(time.Second)
	for len(d.ActiveTasks()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("task never became active")
		}
		time.Sleep(time.Millisecond)
	}

	err := d.Cancel(context.Background(), tk.ID)
	if !errors.Is(err, fa.cancelErr) {
		t.Errorf("Cancel() error = %v, want the agent's error surfaced", err)
	}
	if len(d.ActiveTasks()) != 0 {
		t.Error("bookkeeping entry survived cancellation")
	}

	close(fa.release)
	<-done
}

func TestCancelUnknownTask(t *testing.T) {
	d := NewDispatcher()
	err := d.Cancel(context.Background(), types.NewID())
	var ae *Error
	if !errors.As(err, &ae) || ae.Kind != ErrKindInvalidTask {
		t.Fatalf("err = %v, want invalid_task", err)
	}
}

func TestCompilationAgentRoundTrip(t *testing.T) {
	a := NewCompilationAgent(func(_ context.Context, in CompileInput) (CompileOutput, error) {
		return CompileOutput{Success: true, Artifacts: []string{"bin/out"}}, nil
	}, 2)
	d := NewDispatcher()
	d.Register(a)

	tk := task(TypeCompilation)
	tk.Input.Compile = &CompileInput{Files: []string{"main.go"}, BuildSystem: "go"}
	res, err := d.Submit(context.Background(), tk)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.Output.Compile == nil || !res.Output.Compile.Success {
		t.Errorf("output = %+v, want successful compile", res.Output)
	}
}

func TestBuiltinAgentsRejectMismatchedInput(t *testing.T) {
	a := NewTestExecutionAgent(func(context.Context, ExecuteTestsInput) (ExecuteTestsOutput, error) {
		return ExecuteTestsOutput{}, nil
	}, 1)
	d := NewDispatcher()
	d.Register(a)

	// Right type, missing input payload.
	_, err := d.Submit(context.Background(), task(TypeTestExecution))
	var ae *Error
	if !errors.As(err, &ae) || ae.Kind != ErrKindInvalidTask {
		t.Fatalf("err = %v, want invalid_task", err)
	}
}

func TestGenerationAgentCancelStopsRun(t *testing.T) {
	started := make(chan struct{})
	a := NewGenerationAgent("gen", TypeImplementation, func(ctx context.Context, _ GenerateInput) (GenerateOutput, error) {
		close(started)
		<-ctx.Done()
		return GenerateOutput{}, ctx.Err()
	}, 1)
	d := NewDispatcher()
	d.Register(a)

	tk := task(TypeImplementation)
	tk.Input.Generate = &GenerateInput{Specification: "spec"}
	errc := make(chan error, 1)
	go func() {
		_, err := d.Submit(context.Background(), tk)
		errc <- err
	}()

	<-started
	if err := d.Cancel(context.Background(), tk.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if err := <-errc; err == nil {
		t.Error("cancelled task should report an error")
	}
}
