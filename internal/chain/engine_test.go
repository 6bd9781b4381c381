package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"claimchain/internal/types"
)

// Stub checkers. Each returns canned results so tests can steer the chain to
// any gate.

type stubExtractor struct {
	reqs []types.Requirement
	err  error
}

func (s *stubExtractor) ExtractRequirements(_ context.Context, claim types.Claim) ([]types.Requirement, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.reqs == nil {
		return []types.Requirement{{ID: types.NewID(), ClaimID: claim.ID, Description: "req", Priority: 5}}, nil
	}
	return s.reqs, nil
}

type stubImplChecker struct {
	impl types.Implementation
	err  error
}

func (s *stubImplChecker) CheckImplementation(context.Context, []types.Requirement) (types.Implementation, error) {
	return s.impl, s.err
}

type stubTestChecker struct {
	suite types.TestSuite
	err   error
}

func (s *stubTestChecker) CheckTests(context.Context, types.Implementation) (types.TestSuite, error) {
	return s.suite, s.err
}

type stubRunner struct {
	result types.ExecutionResult
	err    error
}

func (s *stubRunner) ExecuteTests(context.Context, types.TestSuite) (types.ExecutionResult, error) {
	return s.result, s.err
}

type stubSemantic struct {
	result types.SemanticResult
	err    error
	calls  int
}

func (s *stubSemantic) VerifyTestCoverage(context.Context, types.Claim, types.TestSuite) (types.SemanticResult, error) {
	s.calls++
	return s.result, s.err
}

func foundImpl() types.Implementation {
	return types.Implementation{
		ID:         types.NewID(),
		Status:     types.ImplementationComplete,
		Location:   types.FileLocation("internal/auth/oauth.go", 1, 80),
		Confidence: 0.95,
	}
}

func suiteWith(n int) types.TestSuite {
	cases := make([]types.TestCase, n)
	for i := range cases {
		cases[i] = types.TestCase{ID: types.NewID(), Name: "TestOAuth", Type: types.TestUnit}
	}
	return types.TestSuite{ID: types.NewID(), TestCases: cases, Framework: "go test"}
}

func passing(n int) types.ExecutionResult {
	return types.ExecutionResult{
		Status:      types.ExecutionPassed,
		Results:     make([]types.TestResult, n),
		TotalPassed: n,
	}
}

func failing(failed, total int) types.ExecutionResult {
	return types.ExecutionResult{
		Status:      types.ExecutionFailed,
		Results:     make([]types.TestResult, total),
		TotalPassed: total - failed,
		TotalFailed: failed,
	}
}

func coverage(t *testing.T, score float64) types.SemanticResult {
	t.Helper()
	c, err := types.NewConfidence(score)
	if err != nil {
		t.Fatal(err)
	}
	return types.SemanticResult{CoverageScore: c}
}

func newEngine(impl *stubImplChecker, tests *stubTestChecker, run *stubRunner, sem *stubSemantic) *Engine {
	return NewEngine(DefaultConfig(), &stubExtractor{}, impl, tests, run, sem)
}

func claim() types.Claim {
	return types.Claim{ID: types.NewID(), Statement: "System implements OAuth2 authorization flow"}
}

func TestVerifyNoImplementation(t *testing.T) {
	e := newEngine(
		&stubImplChecker{impl: types.Implementation{Status: types.ImplementationNotFound}},
		&stubTestChecker{}, &stubRunner{}, &stubSemantic{})

	got, err := e.Verify(context.Background(), claim())
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got.Status != types.ChainNotStarted {
		t.Errorf("Status = %s, want not_started", got.Status)
	}
	if len(got.WorkItems) != 1 || got.WorkItems[0].Type != types.WorkImplementRequirements {
		t.Errorf("WorkItems = %+v, want single implement_requirements", got.WorkItems)
	}
	if got.Evidence != nil {
		t.Error("Evidence should be nil for a gap result")
	}
}

func TestVerifyNoTests(t *testing.T) {
	e := newEngine(
		&stubImplChecker{impl: foundImpl()},
		&stubTestChecker{suite: suiteWith(0)},
		&stubRunner{}, &stubSemantic{})

	got, err := e.Verify(context.Background(), claim())
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got.Status != types.ChainNeedsTests {
		t.Errorf("Status = %s, want needs_tests", got.Status)
	}
	if len(got.WorkItems) != 1 || got.WorkItems[0].Type != types.WorkCreateTests {
		t.Errorf("WorkItems = %+v, want single create_tests", got.WorkItems)
	}
}

func TestVerifyTestsFailingAbortsSemanticStage(t *testing.T) {
	sem := &stubSemantic{result: coverage(t, 1.0)}
	e := newEngine(
		&stubImplChecker{impl: foundImpl()},
		&stubTestChecker{suite: suiteWith(3)},
		&stubRunner{result: failing(1, 3)},
		sem)

	got, err := e.Verify(context.Background(), claim())
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got.Status != types.ChainTestsFailing {
		t.Errorf("Status = %s, want tests_failing", got.Status)
	}
	if len(got.WorkItems) != 1 || got.WorkItems[0].Type != types.WorkFixImplementation {
		t.Errorf("WorkItems = %+v, want single fix_implementation", got.WorkItems)
	}
	if sem.calls != 0 {
		t.Errorf("semantic verifier ran %d times after a failed gate, want 0", sem.calls)
	}
}

func TestVerifyInadequateCoverage(t *testing.T) {
	e := newEngine(
		&stubImplChecker{impl: foundImpl()},
		&stubTestChecker{suite: suiteWith(2)},
		&stubRunner{result: passing(2)},
		&stubSemantic{result: coverage(t, 0.5)})

	got, err := e.Verify(context.Background(), claim())
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got.Status != types.ChainTestsInadequate {
		t.Errorf("Status = %s, want tests_inadequate", got.Status)
	}
	if len(got.WorkItems) != 1 || got.WorkItems[0].Type != types.WorkImproveTests {
		t.Errorf("WorkItems = %+v, want single improve_tests", got.WorkItems)
	}
}

func TestVerifyLowMeasuredCoverageSkipsSemanticStage(t *testing.T) {
	// Passing tests with measured coverage 0.5 against the 0.8 floor. The
	// chain must stop at the coverage gate; the semantic checker never runs.
	cov := 0.5
	exec := passing(2)
	exec.Coverage = &cov
	sem := &stubSemantic{result: coverage(t, 1.0)}
	e := newEngine(
		&stubImplChecker{impl: foundImpl()},
		&stubTestChecker{suite: suiteWith(2)},
		&stubRunner{result: exec},
		sem)

	got, err := e.Verify(context.Background(), claim())
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got.Status != types.ChainTestsInadequate {
		t.Errorf("Status = %s, want tests_inadequate", got.Status)
	}
	if len(got.WorkItems) != 1 || got.WorkItems[0].Type != types.WorkImproveTests {
		t.Errorf("WorkItems = %+v, want single improve_tests", got.WorkItems)
	}
	if sem.calls != 0 {
		t.Errorf("semantic checker ran %d times after a failed coverage gate", sem.calls)
	}
}

func TestVerifyMeasuredCoverageAtThresholdProceeds(t *testing.T) {
	cov := 0.8
	exec := passing(2)
	exec.Coverage = &cov
	sem := &stubSemantic{result: coverage(t, 1.0)}
	e := newEngine(
		&stubImplChecker{impl: foundImpl()},
		&stubTestChecker{suite: suiteWith(2)},
		&stubRunner{result: exec},
		sem)

	got, err := e.Verify(context.Background(), claim())
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got.Status != types.ChainVerified {
		t.Errorf("Status = %s, want verified", got.Status)
	}
	if sem.calls != 1 {
		t.Errorf("semantic checker calls = %d, want 1", sem.calls)
	}
}

func TestVerifyRaisingThresholdNeverUnlocksVerified(t *testing.T) {
	// score 0.7 < threshold 0.8 → inadequate. Raising the threshold while
	// holding the score must keep the claim inadequate.
	for _, threshold := range []float64{0.8, 0.9, 0.95} {
		cfg := DefaultConfig()
		cfg.MinSemanticCoverage = threshold
		e := NewEngine(cfg, &stubExtractor{},
			&stubImplChecker{impl: foundImpl()},
			&stubTestChecker{suite: suiteWith(2)},
			&stubRunner{result: passing(2)},
			&stubSemantic{result: coverage(t, 0.7)})

		got, err := e.Verify(context.Background(), claim())
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if got.Status != types.ChainTestsInadequate {
			t.Errorf("threshold %v: Status = %s, want tests_inadequate", threshold, got.Status)
		}
	}
}

func TestVerifyFullyVerified(t *testing.T) {
	e := newEngine(
		&stubImplChecker{impl: foundImpl()},
		&stubTestChecker{suite: suiteWith(4)},
		&stubRunner{result: passing(4)},
		&stubSemantic{result: coverage(t, 0.9)})

	got, err := e.Verify(context.Background(), claim())
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got.Status != types.ChainVerified {
		t.Errorf("Status = %s, want verified", got.Status)
	}
	if len(got.WorkItems) != 0 {
		t.Errorf("WorkItems = %+v, want empty", got.WorkItems)
	}
	if got.Evidence == nil {
		t.Fatal("Evidence missing on verified result")
	}
	if got.Evidence.Confidence.Value() != 0.9 {
		t.Errorf("Evidence.Confidence = %v, want 0.9", got.Evidence.Confidence.Value())
	}
}

func TestVerifyIdempotentOnUnchangedInputs(t *testing.T) {
	e := newEngine(
		&stubImplChecker{impl: foundImpl()},
		&stubTestChecker{suite: suiteWith(3)},
		&stubRunner{result: failing(2, 3)},
		&stubSemantic{})

	c := claim()
	first, err := e.Verify(context.Background(), c)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	second, err := e.Verify(context.Background(), c)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if first.Status != second.Status {
		t.Errorf("statuses differ: %s vs %s", first.Status, second.Status)
	}
	// Identical work item set modulo generated IDs and timestamps.
	ignore := cmpopts.IgnoreFields(types.WorkItem{}, "ID", "CreatedAt")
	if diff := cmp.Diff(first.WorkItems, second.WorkItems, ignore); diff != "" {
		t.Errorf("work items differ (-first +second):\n%s", diff)
	}
}

func TestVerifyCheckerErrorsSurfaceAsStageErrors(t *testing.T) {
	boom := errors.New("service unavailable")
	tests := []struct {
		name  string
		build func() *Engine
		stage Stage
	}{
		{"extraction", func() *Engine {
			return NewEngine(DefaultConfig(), &stubExtractor{err: boom},
				&stubImplChecker{}, &stubTestChecker{}, &stubRunner{}, &stubSemantic{})
		}, StageRequirements},
		{"implementation", func() *Engine {
			return newEngine(&stubImplChecker{err: boom}, &stubTestChecker{}, &stubRunner{}, &stubSemantic{})
		}, StageImplementation},
		{"tests", func() *Engine {
			return newEngine(&stubImplChecker{impl: foundImpl()},
				&stubTestChecker{err: boom}, &stubRunner{}, &stubSemantic{})
		}, StageTests},
		{"execution", func() *Engine {
			return newEngine(&stubImplChecker{impl: foundImpl()},
				&stubTestChecker{suite: suiteWith(1)}, &stubRunner{err: boom}, &stubSemantic{})
		}, StageExecution},
		{"semantic", func() *Engine {
			return newEngine(&stubImplChecker{impl: foundImpl()},
				&stubTestChecker{suite: suiteWith(1)},
				&stubRunner{result: passing(1)}, &stubSemantic{err: boom})
		}, StageSemantic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build().Verify(context.Background(), claim())
			var stageErr *StageError
			if !errors.As(err, &stageErr) {
				t.Fatalf("err = %v, want StageError", err)
			}
			if stageErr.Stage != tt.stage {
				t.Errorf("Stage = %s, want %s", stageErr.Stage, tt.stage)
			}
			if !errors.Is(err, boom) {
				t.Error("wrapped cause lost")
			}
		})
	}
}

func TestVerifyScenarioOAuthProgression(t *testing.T) {
	c := claim()

	// Run 1: nothing implemented.
	impl := &stubImplChecker{impl: types.Implementation{Status: types.ImplementationNotFound}}
	tests := &stubTestChecker{}
	run := &stubRunner{}
	sem := &stubSemantic{}
	e := newEngine(impl, tests, run, sem)

	r1, err := e.Verify(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if r1.Status != types.ChainNotStarted || r1.WorkItems[0].Type != types.WorkImplementRequirements {
		t.Fatalf("run 1 = %s/%s", r1.Status, r1.WorkItems[0].Type)
	}

	// Run 2: implementation supplied, still no tests.
	impl.impl = foundImpl()
	r2, err := e.Verify(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if r2.Status != types.ChainNeedsTests || r2.WorkItems[0].Type != types.WorkCreateTests {
		t.Fatalf("run 2 = %s/%s", r2.Status, r2.WorkItems[0].Type)
	}

	// Run 3: tests pass, coverage 0.9 over threshold 0.8.
	tests.suite = suiteWith(3)
	run.result = passing(3)
	sem.result = coverage(t, 0.9)
	r3, err := e.Verify(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if r3.Status != types.ChainVerified || r3.Evidence == nil {
		t.Fatalf("run 3 = %s, evidence %v", r3.Status, r3.Evidence)
	}
}
