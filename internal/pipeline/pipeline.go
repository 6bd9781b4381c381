// Package pipeline drives claims through the generation workflow: test
// specs, test code, alignment, compile gates, implementation, execution.
// Claims run as independent concurrent units; a failure in one never aborts
// its siblings. The integration phase is the join barrier where cross-claim
// conflicts are detected.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"claimchain/internal/chain"
	"claimchain/internal/compilecheck"
	"claimchain/internal/config"
	"claimchain/internal/gen"
	"claimchain/internal/logging"
	"claimchain/internal/types"
)

// Phase names one step of a claim's pipeline.
type Phase string

const (
	PhaseTestSpecs   Phase = "test_spec_generation"
	PhaseTestGen     Phase = "test_generation"
	PhaseAlignment   Phase = "test_alignment"
	PhaseTestCompile Phase = "test_compilation"
	PhaseImplGen     Phase = "implementation_generation"
	PhaseImplCompile Phase = "implementation_compilation"
	PhaseExecution   Phase = "execution"
)

// AlignmentResult reports whether generated tests match their specs.
type AlignmentResult struct {
	Aligned       bool     `json:"aligned"`
	Score         float64  `json:"score"`
	Misalignments []string `json:"misalignments,omitempty"`
}

// ClaimResult records every phase outcome for one claim, populated as far as
// the pipeline got. Success is true only when all seven phases passed.
type ClaimResult struct {
	ClaimID                 types.ID               `json:"claim_id"`
	TestSpecs               []gen.TestSpec         `json:"test_specs,omitempty"`
	GeneratedTests          *gen.GeneratedCode     `json:"generated_tests,omitempty"`
	Alignment               *AlignmentResult       `json:"test_alignment,omitempty"`
	TestCompilation         *compilecheck.Result   `json:"test_compilation,omitempty"`
	GeneratedImplementation *gen.GeneratedCode     `json:"generated_implementation,omitempty"`
	ImplCompilation         *compilecheck.Result   `json:"implementation_compilation,omitempty"`
	Execution               *types.ExecutionResult `json:"execution_result,omitempty"`
	Success                 bool                   `json:"success"`
	FailedPhase             Phase                  `json:"failed_phase,omitempty"`
	Error                   string                 `json:"error,omitempty"`
}

// RunResult is the serializable record of one batch run.
type RunResult struct {
	ID             types.ID           `json:"id"`
	Claims         []types.Claim      `json:"claims"`
	ClaimResults   []ClaimResult      `json:"claim_results"`
	Integration    *IntegrationResult `json:"integration_result,omitempty"`
	OverallSuccess bool               `json:"overall_success"`
	StartedAt      time.Time          `json:"started_at"`
	Duration       time.Duration      `json:"duration_ns"`
	CompletedAt    time.Time          `json:"completed_at"`
}

// Generator is the generation collaborator surface the pipeline consumes.
type Generator interface {
	GenerateTestSpecs(ctx context.Context, claim types.Claim, reqs []types.Requirement) ([]gen.TestSpec, error)
	GenerateTests(ctx context.Context, claim types.Claim, specs []gen.TestSpec) (gen.GeneratedCode, error)
	GenerateImplementation(ctx context.Context, specification, testCode string) (gen.GeneratedCode, error)
}

// Aligner checks generated tests against their specs before compilation.
type Aligner interface {
	VerifyAlignment(ctx context.Context, specs []gen.TestSpec, tests gen.GeneratedCode) (AlignmentResult, error)
}

// Compiler gates generated code on compilability.
type Compiler interface {
	CheckSource(ctx context.Context, files map[string]string) (*compilecheck.Result, error)
}

// Executor runs generated tests against a generated implementation.
type Executor interface {
	Execute(ctx context.Context, tests, impl gen.GeneratedCode) (types.ExecutionResult, error)
}

// Orchestrator fans claims out across worker goroutines and joins them at
// the integration barrier.
type Orchestrator struct {
	cfg       config.PipelineConfig
	extractor chain.RequirementExtractor
	generator Generator
	aligner   Aligner
	compiler  Compiler
	executor  Executor
	store     *Store
	log       *zap.Logger
}

func NewOrchestrator(
	cfg config.PipelineConfig,
	extractor chain.RequirementExtractor,
	generator Generator,
	aligner Aligner,
	compiler Compiler,
	executor Executor,
	store *Store,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		extractor: extractor,
		generator: generator,
		aligner:   aligner,
		compiler:  compiler,
		executor:  executor,
		store:     store,
		log:       logging.For(logging.CategoryPipeline),
	}
}

// Run processes every claim and then the integration phase. Per-claim
// failures are recorded on the claim's result, never returned; the only
// error cases are context cancellation and snapshot persistence.
func (o *Orchestrator) Run(ctx context.Context, claims []types.Claim) (*RunResult, error) {
	run := &RunResult{
		ID:        types.NewID(),
		Claims:    claims,
		StartedAt: time.Now(),
	}
	o.log.Info("pipeline run starting",
		zap.String("run", run.ID.String()),
		zap.Int("claims", len(claims)),
		zap.Int("max_concurrent", o.cfg.MaxConcurrentClaims))

	results := make([]ClaimResult, len(claims))
	var g errgroup.Group
	limit := o.cfg.MaxConcurrentClaims
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, claim := range claims {
		g.Go(func() error {
			results[i] = o.processClaim(ctx, claim)
			return nil
		})
	}
	// Worker funcs never return errors; Wait is purely the join barrier.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	run.ClaimResults = results

	integration := o.verifyIntegration(ctx, claims, results)
	run.Integration = &integration
	run.OverallSuccess = integration.Success
	for _, r := range results {
		if !r.Success {
			run.OverallSuccess = false
		}
	}
	run.CompletedAt = time.Now()
	run.Duration = run.CompletedAt.Sub(run.StartedAt)

	if o.store != nil {
		if err := o.store.Save(run); err != nil {
			return nil, fmt.Errorf("persisting run snapshot: %w", err)
		}
	}
	o.log.Info("pipeline run finished",
		zap.String("run", run.ID.String()),
		zap.Bool("success", run.OverallSuccess),
		zap.Duration("elapsed", run.Duration))
	return run, nil
}

// processClaim walks one claim through all seven phases. Compilation
// failures at the test or implementation gate are hard boundaries: later
// phases do not run, but everything recorded so far stays on the result.
func (o *Orchestrator) processClaim(ctx context.Context, claim types.Claim) ClaimResult {
	result := ClaimResult{ClaimID: claim.ID}
	log := o.log.With(zap.String("claim", claim.ID.String()))

	fail := func(phase Phase, err error) ClaimResult {
		result.FailedPhase = phase
		result.Error = err.Error()
		log.Warn("claim pipeline failed",
			zap.String("phase", string(phase)),
			zap.Error(err))
		return result
	}

	reqs, err := o.extractor.ExtractRequirements(ctx, claim)
	if err != nil {
		return fail(PhaseTestSpecs, fmt.Errorf("extracting requirements: %w", err))
	}

	specs, err := o.generator.GenerateTestSpecs(ctx, claim, reqs)
	if err != nil {
		return fail(PhaseTestSpecs, err)
	}
	result.TestSpecs = specs

	tests, err := o.generator.GenerateTests(ctx, claim, specs)
	if err != nil {
		return fail(PhaseTestGen, err)
	}
	result.GeneratedTests = &tests

	alignment, err := o.aligner.VerifyAlignment(ctx, specs, tests)
	if err != nil {
		return fail(PhaseAlignment, err)
	}
	result.Alignment = &alignment
	if !alignment.Aligned {
		return fail(PhaseAlignment, fmt.Errorf("generated tests diverge from specs (score %.2f): %v",
			alignment.Score, alignment.Misalignments))
	}

	testCompile, err := o.compiler.CheckSource(ctx, map[string]string{tests.FileName: tests.Code})
	if err != nil {
		return fail(PhaseTestCompile, err)
	}
	result.TestCompilation = testCompile
	if !testCompile.Success {
		return fail(PhaseTestCompile, fmt.Errorf("generated tests do not compile: %d errors", len(testCompile.Errors)))
	}

	impl, err := o.generator.GenerateImplementation(ctx, claim.Statement, tests.Code)
	if err != nil {
		return fail(PhaseImplGen, err)
	}
	result.GeneratedImplementation = &impl

	implCompile, err := o.compiler.CheckSource(ctx, map[string]string{
		impl.FileName:  impl.Code,
		tests.FileName: tests.Code,
	})
	if err != nil {
		return fail(PhaseImplCompile, err)
	}
	result.ImplCompilation = implCompile
	if !implCompile.Success {
		return fail(PhaseImplCompile, fmt.Errorf("generated implementation does not compile: %d errors", len(implCompile.Errors)))
	}

	execution, err := o.executor.Execute(ctx, tests, impl)
	if err != nil {
		return fail(PhaseExecution, err)
	}
	result.Execution = &execution
	if execution.Status != types.ExecutionPassed {
		return fail(PhaseExecution, fmt.Errorf("%d of %d tests failed",
			execution.TotalFailed+execution.TotalErrors, len(execution.Results)))
	}

	result.Success = true
	log.Info("claim pipeline succeeded", zap.Int("tests", len(execution.Results)))
	return result
}
