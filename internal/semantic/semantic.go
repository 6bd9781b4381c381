// Package semantic answers the last chain question: do the passing tests
// actually verify what the claim asserts? An Analyzer produces a raw
// coverage reading plus gaps; the Verifier turns that into a scored result
// with remediation suggestions.
package semantic

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"claimchain/internal/logging"
	"claimchain/internal/types"
)

// Analysis is an analyzer's raw reading of a test suite against a claim.
type Analysis struct {
	BaseCoverage    float64             `json:"base_coverage"`
	VerifiedAspects []string            `json:"verified_aspects"`
	Gaps            []types.SemanticGap `json:"gaps"`
}

// Analyzer inspects a test suite against a claim. Implementations may call a
// model or work purely from names and assertions.
type Analyzer interface {
	Analyze(ctx context.Context, claim types.Claim, suite types.TestSuite) (Analysis, error)
}

// Verifier scores analyzer output into a SemanticResult.
type Verifier struct {
	analyzer Analyzer
	log      *zap.Logger
}

func NewVerifier(analyzer Analyzer) *Verifier {
	return &Verifier{analyzer: analyzer, log: logging.For(logging.CategorySemantic)}
}

// VerifyTestCoverage runs the analyzer and applies gap penalties to its base
// coverage. Each gap kind carries a fixed penalty; the score floors at zero.
func (v *Verifier) VerifyTestCoverage(ctx context.Context, claim types.Claim, suite types.TestSuite) (types.SemanticResult, error) {
	analysis, err := v.analyzer.Analyze(ctx, claim, suite)
	if err != nil {
		return types.SemanticResult{}, fmt.Errorf("semantic analysis: %w", err)
	}

	score := analysis.BaseCoverage
	for _, gap := range analysis.Gaps {
		score -= gapPenalty(gap.Kind)
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	coverage, err := types.NewConfidence(score)
	if err != nil {
		return types.SemanticResult{}, fmt.Errorf("coverage score: %w", err)
	}

	v.log.Debug("semantic verification complete",
		zap.String("claim", claim.ID.String()),
		zap.Float64("base", analysis.BaseCoverage),
		zap.Float64("score", score),
		zap.Int("gaps", len(analysis.Gaps)))

	return types.SemanticResult{
		ClaimID:         claim.ID,
		TestSuiteID:     suite.ID,
		CoverageScore:   coverage,
		Gaps:            analysis.Gaps,
		VerifiedAspects: analysis.VerifiedAspects,
		Suggestions:     suggestions(analysis.Gaps),
		AnalyzedAt:      time.Now(),
	}, nil
}

func gapPenalty(kind types.SemanticGapKind) float64 {
	switch kind {
	case types.GapTestNameMismatch:
		return 0.1
	case types.GapMissingAssertion:
		return 0.2
	case types.GapUncoveredEdgeCase:
		return 0.15
	case types.GapIncorrectAssumption:
		return 0.25
	}
	return 0
}

func suggestions(gaps []types.SemanticGap) []string {
	out := make([]string, 0, len(gaps))
	for _, gap := range gaps {
		switch gap.Kind {
		case types.GapTestNameMismatch:
			out = append(out, fmt.Sprintf("Rename test %q to reflect its actual behavior: %q", gap.TestName, gap.ActualBehavior))
		case types.GapMissingAssertion:
			out = append(out, fmt.Sprintf("Add an assertion verifying: %s", gap.ClaimAspect))
		case types.GapUncoveredEdgeCase:
			out = append(out, fmt.Sprintf("Add a test case for edge case: %s", gap.EdgeCase))
		case types.GapIncorrectAssumption:
			out = append(out, fmt.Sprintf("Fix assumption %q to match actual behavior %q", gap.Assumption, gap.ActualBehavior))
		}
	}
	return out
}
