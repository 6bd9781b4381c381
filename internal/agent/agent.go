// Package agent defines the pluggable task agents and the dispatcher that
// routes verification work to them. An Agent owns one class of task
// (compile, run tests, generate code); the Dispatcher maintains the
// type-to-agent registry and the active-task bookkeeping.
package agent

import (
	"context"
	"fmt"
	"time"

	"claimchain/internal/types"
)

// Type identifies the class of task an agent services.
type Type string

const (
	TypeCompilation    Type = "compilation"
	TypeTestExecution  Type = "test_execution"
	TypeImplementation Type = "implementation"
	TypeTestGeneration Type = "test_generation"
	TypeCodeAnalysis   Type = "code_analysis"
)

// ErrorKind classifies agent failures so callers can distinguish a bad task
// from a broken agent.
type ErrorKind string

const (
	ErrKindUnavailable   ErrorKind = "unavailable"
	ErrKindTaskFailed    ErrorKind = "task_failed"
	ErrKindInvalidTask   ErrorKind = "invalid_task"
	ErrKindCommunication ErrorKind = "communication"
	ErrKindTimeout       ErrorKind = "timeout"
)

// Error is the typed failure returned by agents and the dispatcher.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("agent %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("agent %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Priority is carried on tasks as data. The dispatcher services work in
// submission order and does not reorder by priority.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// Constraints bound what a task may consume while executing.
type Constraints struct {
	MaxExecutionTime time.Duration `json:"max_execution_time"`
	MaxMemoryMB      uint64        `json:"max_memory_mb"`
	AllowNetwork     bool          `json:"allow_network"`
	AllowedPaths     []string      `json:"allowed_paths,omitempty"`
}

// CompileInput asks for a compile of the referenced sources.
type CompileInput struct {
	Files       []string          `json:"files"`
	BuildSystem string            `json:"build_system"`
	Target      string            `json:"target,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
}

// ExecuteTestsInput asks for a run of the referenced test files against the
// referenced implementation files.
type ExecuteTestsInput struct {
	TestFiles []string `json:"test_files"`
	ImplFiles []string `json:"impl_files"`
}

// GenerateInput asks for code generation from a self-contained specification.
type GenerateInput struct {
	Specification string         `json:"specification"`
	Target        types.Location `json:"target"`
	Context       []string       `json:"context,omitempty"`
}

// AnalyzeInput asks for static analysis of the referenced sources.
type AnalyzeInput struct {
	Files    []string `json:"files"`
	Analysis string   `json:"analysis"`
}

// Input is a tagged union: exactly one field is set, matching the task type.
type Input struct {
	Compile      *CompileInput      `json:"compile,omitempty"`
	ExecuteTests *ExecuteTestsInput `json:"execute_tests,omitempty"`
	Generate     *GenerateInput     `json:"generate,omitempty"`
	Analyze      *AnalyzeInput      `json:"analyze,omitempty"`
}

// CompileOutput reports a compile attempt.
type CompileOutput struct {
	Success   bool     `json:"success"`
	Artifacts []string `json:"artifacts,omitempty"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// ExecuteTestsOutput reports a test run.
type ExecuteTestsOutput struct {
	Passed   []string `json:"passed"`
	Failed   []string `json:"failed"`
	Coverage float64  `json:"coverage,omitempty"`
}

// GenerateOutput reports generated code.
type GenerateOutput struct {
	Target       types.Location `json:"target"`
	CreatedFiles []string       `json:"created_files,omitempty"`
	Code         string         `json:"code,omitempty"`
}

// Output mirrors Input: one field set, matching the task type.
type Output struct {
	Compile      *CompileOutput      `json:"compile,omitempty"`
	ExecuteTests *ExecuteTestsOutput `json:"execute_tests,omitempty"`
	Generate     *GenerateOutput     `json:"generate,omitempty"`
}

// Task is one unit of work handed to an agent.
type Task struct {
	ID          types.ID      `json:"id"`
	Type        Type          `json:"type"`
	Description string        `json:"description"`
	Input       Input         `json:"input"`
	Constraints Constraints   `json:"constraints"`
	Priority    Priority      `json:"priority"`
	Timeout     time.Duration `json:"timeout"`
	CreatedAt   time.Time     `json:"created_at"`
}

// TaskResult is what an agent hands back on completion.
type TaskResult struct {
	TaskID        types.ID      `json:"task_id"`
	Success       bool          `json:"success"`
	Output        Output        `json:"output"`
	ExecutionTime time.Duration `json:"execution_time"`
	Usage         ResourceUsage `json:"usage"`
	Logs          []string      `json:"logs,omitempty"`
	CompletedAt   time.Time     `json:"completed_at"`
}

// ResourceUsage is the footprint observed during a task run.
type ResourceUsage struct {
	CPUTimeMs    uint64 `json:"cpu_time_ms"`
	MemoryPeakMB uint64 `json:"memory_peak_mb"`
	FilesTouched int    `json:"files_touched"`
}

// Info describes an agent's capability surface.
type Info struct {
	Name               string `json:"name"`
	Version            string `json:"version"`
	Description        string `json:"description"`
	TaskTypes          []Type `json:"task_types"`
	MaxConcurrentTasks int64  `json:"max_concurrent_tasks"`
}

// Status is a point-in-time view of an agent.
type Status struct {
	Available    bool      `json:"available"`
	ActiveTasks  int       `json:"active_tasks"`
	LastActivity time.Time `json:"last_activity"`
}

// Agent is the capability surface every pluggable executor implements.
// Execute is expected to be long-running; implementations must honor ctx
// cancellation and return promptly when it fires.
type Agent interface {
	Info() Info
	CanHandle(ctx context.Context, task *Task) (bool, error)
	Execute(ctx context.Context, task *Task) (*TaskResult, error)
	Cancel(ctx context.Context, taskID types.ID) error
	Status(ctx context.Context) Status
}
