package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"claimchain/internal/gen"
	"claimchain/internal/logging"
	"claimchain/internal/sandbox"
	"claimchain/internal/types"
)

// SandboxExecutor runs generated tests against a generated implementation
// in a fresh sandbox workdir via `go test`.
type SandboxExecutor struct {
	sb  *sandbox.Sandbox
	log *zap.Logger
}

func NewSandboxExecutor(sb *sandbox.Sandbox) *SandboxExecutor {
	return &SandboxExecutor{sb: sb, log: logging.For(logging.CategoryPipeline)}
}

func (e *SandboxExecutor) Execute(ctx context.Context, tests, impl gen.GeneratedCode) (types.ExecutionResult, error) {
	return e.ExecuteFiles(ctx, map[string]string{
		impl.FileName:  impl.Code,
		tests.FileName: tests.Code,
	})
}

// ExecuteFiles runs the given sources as one module in a fresh workdir.
// A minimal go.mod is added when the caller does not provide one.
func (e *SandboxExecutor) ExecuteFiles(ctx context.Context, files map[string]string) (types.ExecutionResult, error) {
	dir, cleanup, err := e.sb.NewWorkdir("claim-exec")
	if err != nil {
		return types.ExecutionResult{}, err
	}
	defer cleanup()

	if _, ok := files["go.mod"]; !ok {
		withMod := make(map[string]string, len(files)+1)
		for name, content := range files {
			withMod[name] = content
		}
		withMod["go.mod"] = "module claimexec\n\ngo 1.24\n"
		files = withMod
	}
	for name, content := range files {
		dest := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return types.ExecutionResult{}, fmt.Errorf("writing %s: %w", name, err)
		}
		if err := os.WriteFile(dest, []byte(content), 0o644); err != nil {
			return types.ExecutionResult{}, fmt.Errorf("writing %s: %w", name, err)
		}
	}

	run, err := e.sb.Run(ctx, sandbox.Command{
		Binary: "go",
		Args:   []string{"test", "-v", "./..."},
		Dir:    dir,
	})
	if err != nil {
		return types.ExecutionResult{}, err
	}
	if run.Killed {
		return types.ExecutionResult{
			Status:     types.ExecutionError,
			ExecutedAt: run.StartedAt,
			Duration:   run.Duration,
		}, nil
	}

	result := parseTestOutput(run.Stdout + "\n" + run.Stderr)
	result.ExecutedAt = run.StartedAt
	result.Duration = run.Duration
	if len(result.Results) == 0 && run.ExitCode != 0 {
		// Build failure or harness error, not a test outcome.
		result.Status = types.ExecutionError
		result.TotalErrors = 1
	}
	e.log.Debug("test execution finished",
		zap.String("status", string(result.Status)),
		zap.Int("passed", result.TotalPassed),
		zap.Int("failed", result.TotalFailed))
	return result, nil
}

// SuiteRunner executes an existing on-disk test suite with `go test`,
// restricted to the suite's detected test functions. It satisfies the
// verification chain's execution stage.
type SuiteRunner struct {
	sb   *sandbox.Sandbox
	root string
	log  *zap.Logger
}

func NewSuiteRunner(sb *sandbox.Sandbox, root string) *SuiteRunner {
	return &SuiteRunner{sb: sb, root: root, log: logging.For(logging.CategoryPipeline)}
}

func (r *SuiteRunner) ExecuteTests(ctx context.Context, suite types.TestSuite) (types.ExecutionResult, error) {
	names := make([]string, 0, len(suite.TestCases))
	for _, tc := range suite.TestCases {
		names = append(names, regexp.QuoteMeta(tc.Name))
	}
	if len(names) == 0 {
		return types.ExecutionResult{Status: types.ExecutionError, TotalErrors: 1}, nil
	}

	run, err := r.sb.Run(ctx, sandbox.Command{
		Binary: "go",
		Args:   []string{"test", "-v", "-run", "^(" + strings.Join(names, "|") + ")$", "./..."},
		Dir:    r.root,
	})
	if err != nil {
		return types.ExecutionResult{}, err
	}
	if run.Killed {
		return types.ExecutionResult{
			Status:     types.ExecutionError,
			ExecutedAt: run.StartedAt,
			Duration:   run.Duration,
		}, nil
	}

	result := parseTestOutput(run.Stdout + "\n" + run.Stderr)
	result.ExecutedAt = run.StartedAt
	result.Duration = run.Duration
	if len(result.Results) == 0 && run.ExitCode != 0 {
		result.Status = types.ExecutionError
		result.TotalErrors = 1
	}
	r.log.Debug("suite execution finished",
		zap.String("status", string(result.Status)),
		zap.Int("tests", len(result.Results)))
	return result, nil
}

var testLineRe = regexp.MustCompile(`(?m)^--- (PASS|FAIL): (\S+) \(([\d.]+)s\)`)

// parseTestOutput extracts per-test outcomes from `go test -v` output.
func parseTestOutput(output string) types.ExecutionResult {
	result := types.ExecutionResult{Status: types.ExecutionPassed}
	for _, m := range testLineRe.FindAllStringSubmatch(output, -1) {
		passed := m[1] == "PASS"
		var dur time.Duration
		if secs, err := time.ParseDuration(m[3] + "s"); err == nil {
			dur = secs
		}
		result.Results = append(result.Results, types.TestResult{
			TestCaseID: types.NewID(),
			Name:       m[2],
			Passed:     passed,
			Duration:   dur,
		})
		if passed {
			result.TotalPassed++
		} else {
			result.TotalFailed++
		}
	}
	if result.TotalFailed > 0 {
		result.Status = types.ExecutionFailed
	}
	return result
}
