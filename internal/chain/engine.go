package chain

import (
	"context"
	"time"

	"go.uber.org/zap"

	"claimchain/internal/logging"
	"claimchain/internal/types"
	"claimchain/internal/workitem"
)

// verifiedConfidence is attached to fully verified claims. All gates already
// passed numeric thresholds, so the bundle carries a fixed high value.
const verifiedConfidence = types.Confidence(0.9)

// Config gates stage acceptance.
type Config struct {
	MinImplementationConfidence float64
	MinTestCoverage             float64
	MinSemanticCoverage         float64
	MaxExecutionTimeout         time.Duration
}

// DefaultConfig returns the historical thresholds.
func DefaultConfig() Config {
	return Config{
		MinImplementationConfidence: 0.7,
		MinTestCoverage:             0.8,
		MinSemanticCoverage:         0.8,
		MaxExecutionTimeout:         5 * time.Minute,
	}
}

// Engine runs verification chains. Checkers are externally supplied
// collaborators; the engine only sequences and gates their results.
type Engine struct {
	cfg Config

	requirements   RequirementExtractor
	implementation ImplementationChecker
	tests          TestChecker
	execution      ExecutionRunner
	semantic       SemanticVerifier

	factory *workitem.Factory
	log     *zap.Logger
}

// NewEngine wires an engine from its collaborators.
func NewEngine(cfg Config, reqs RequirementExtractor, impl ImplementationChecker, tests TestChecker, exec ExecutionRunner, sem SemanticVerifier) *Engine {
	return &Engine{
		cfg:            cfg,
		requirements:   reqs,
		implementation: impl,
		tests:          tests,
		execution:      exec,
		semantic:       sem,
		factory:        workitem.NewFactory(),
		log:            logging.For(logging.CategoryChain),
	}
}

// Verify runs the chain for one claim.
//
// The first failing gate determines the returned status and its single work
// item; later stages never run. A Verified result carries the evidence bundle
// and an empty work item list. Checker errors abort the run with a StageError.
func (e *Engine) Verify(ctx context.Context, claim types.Claim) (types.VerificationResult, error) {
	log := e.log.With(zap.String("claim_id", claim.ID.String()))

	reqs, err := e.requirements.ExtractRequirements(ctx, claim)
	if err != nil {
		return types.VerificationResult{}, &StageError{Stage: StageRequirements, Err: err}
	}

	impl, err := e.implementation.CheckImplementation(ctx, reqs)
	if err != nil {
		return types.VerificationResult{}, &StageError{Stage: StageImplementation, Err: err}
	}
	if !impl.Status.Found() || impl.Confidence.Value() < e.cfg.MinImplementationConfidence {
		log.Info("gap: no implementation", zap.Float64("confidence", impl.Confidence.Value()))
		return e.gap(claim, types.ChainNotStarted, e.factory.ImplementRequirements(claim, reqs)), nil
	}

	suite, err := e.tests.CheckTests(ctx, impl)
	if err != nil {
		return types.VerificationResult{}, &StageError{Stage: StageTests, Err: err}
	}
	if len(suite.TestCases) == 0 {
		log.Info("gap: no tests", zap.String("implementation", impl.Location.String()))
		return e.gap(claim, types.ChainNeedsTests, e.factory.CreateTests(claim, impl)), nil
	}

	execCtx := ctx
	if e.cfg.MaxExecutionTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, e.cfg.MaxExecutionTimeout)
		defer cancel()
	}
	exec, err := e.execution.ExecuteTests(execCtx, suite)
	if err != nil {
		return types.VerificationResult{}, &StageError{Stage: StageExecution, Err: err}
	}
	if exec.Status != types.ExecutionPassed {
		log.Info("gap: tests failing",
			zap.Int("failed", exec.TotalFailed), zap.Int("errors", exec.TotalErrors))
		return e.gap(claim, types.ChainTestsFailing, e.factory.FixImplementation(claim, exec)), nil
	}

	if exec.Coverage != nil && *exec.Coverage < e.cfg.MinTestCoverage {
		log.Info("gap: measured coverage below threshold",
			zap.Float64("coverage", *exec.Coverage),
			zap.Float64("threshold", e.cfg.MinTestCoverage))
		sem := types.SemanticResult{
			ClaimID:       claim.ID,
			TestSuiteID:   suite.ID,
			CoverageScore: types.Confidence(*exec.Coverage),
			Suggestions:   []string{"add tests for the uncovered statements reported by the coverage run"},
			AnalyzedAt:    time.Now(),
		}
		return e.gap(claim, types.ChainTestsInadequate, e.factory.ImproveTests(claim, sem)), nil
	}

	sem, err := e.semantic.VerifyTestCoverage(ctx, claim, suite)
	if err != nil {
		return types.VerificationResult{}, &StageError{Stage: StageSemantic, Err: err}
	}
	if sem.CoverageScore.Value() < e.cfg.MinSemanticCoverage {
		log.Info("gap: coverage inadequate",
			zap.Float64("score", sem.CoverageScore.Value()),
			zap.Float64("threshold", e.cfg.MinSemanticCoverage))
		return e.gap(claim, types.ChainTestsInadequate, e.factory.ImproveTests(claim, sem)), nil
	}

	log.Info("claim verified")
	return types.VerificationResult{
		ClaimID:   claim.ID,
		Status:    types.ChainVerified,
		WorkItems: []types.WorkItem{},
		Evidence: &types.VerificationEvidence{
			Implementation: impl,
			Tests:          suite,
			Execution:      exec,
			Semantic:       sem,
			Confidence:     verifiedConfidence,
		},
		VerifiedAt: time.Now(),
	}, nil
}

func (e *Engine) gap(claim types.Claim, status types.ChainStatus, item types.WorkItem) types.VerificationResult {
	return types.VerificationResult{
		ClaimID:    claim.ID,
		Status:     status,
		WorkItems:  []types.WorkItem{item},
		VerifiedAt: time.Now(),
	}
}
