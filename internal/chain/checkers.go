// Package chain implements the claim verification state machine.
//
// A chain run walks a claim through five gated stages (requirement
// extraction, implementation check, test detection, execution, semantic
// verification) strictly in order. The first unmet gate aborts the remaining
// stages, classifies the gap, and yields exactly one work item. Each stage is
// a pure function of its inputs plus one external checker call, so re-running
// an unchanged claim is idempotent.
package chain

import (
	"context"
	"fmt"

	"claimchain/internal/types"
)

// Stage names one gated step of the chain.
type Stage string

const (
	StageRequirements   Stage = "requirement_extraction"
	StageImplementation Stage = "implementation_check"
	StageTests          Stage = "test_detection"
	StageExecution      Stage = "execution"
	StageSemantic       Stage = "semantic_verification"
)

// StageError wraps a checker failure with the stage it occurred in. Checker
// failures surface to the caller; they never degrade into a chain status.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// RequirementExtractor derives concrete requirements from a claim.
type RequirementExtractor interface {
	ExtractRequirements(ctx context.Context, claim types.Claim) ([]types.Requirement, error)
}

// ImplementationChecker looks for code backing a set of requirements.
type ImplementationChecker interface {
	CheckImplementation(ctx context.Context, reqs []types.Requirement) (types.Implementation, error)
}

// TestChecker looks for tests covering an implementation.
type TestChecker interface {
	CheckTests(ctx context.Context, impl types.Implementation) (types.TestSuite, error)
}

// ExecutionRunner runs a test suite and reports per-case results.
type ExecutionRunner interface {
	ExecuteTests(ctx context.Context, suite types.TestSuite) (types.ExecutionResult, error)
}

// SemanticVerifier judges whether passing tests actually verify the claim.
type SemanticVerifier interface {
	VerifyTestCoverage(ctx context.Context, claim types.Claim, suite types.TestSuite) (types.SemanticResult, error)
}
