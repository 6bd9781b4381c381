package semantic

import (
	"context"
	"errors"
	"math"
	"testing"

	"claimchain/internal/gen"
	"claimchain/internal/types"
)

type fixedAnalyzer struct {
	analysis Analysis
	err      error
}

func (f *fixedAnalyzer) Analyze(context.Context, types.Claim, types.TestSuite) (Analysis, error) {
	return f.analysis, f.err
}

func suiteNamed(names ...string) types.TestSuite {
	s := types.TestSuite{ID: types.NewID()}
	for _, n := range names {
		s.TestCases = append(s.TestCases, types.TestCase{ID: types.NewID(), Name: n})
	}
	return s
}

func TestVerifyAppliesGapPenalties(t *testing.T) {
	cases := []struct {
		kind types.SemanticGapKind
		want float64
	}{
		{types.GapTestNameMismatch, 0.9},
		{types.GapMissingAssertion, 0.8},
		{types.GapUncoveredEdgeCase, 0.85},
		{types.GapIncorrectAssumption, 0.75},
	}
	for _, tc := range cases {
		v := NewVerifier(&fixedAnalyzer{analysis: Analysis{
			BaseCoverage: 1.0,
			Gaps:         []types.SemanticGap{{Kind: tc.kind}},
		}})
		res, err := v.VerifyTestCoverage(context.Background(), types.Claim{ID: types.NewID()}, suiteNamed("TestX"))
		if err != nil {
			t.Fatalf("%s: error = %v", tc.kind, err)
		}
		if got := res.CoverageScore.Value(); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("%s: score = %v, want %v", tc.kind, got, tc.want)
		}
		if len(res.Suggestions) != 1 {
			t.Errorf("%s: suggestions = %v, want one per gap", tc.kind, res.Suggestions)
		}
	}
}

func TestVerifyScoreFloorsAtZero(t *testing.T) {
	gaps := make([]types.SemanticGap, 6)
	for i := range gaps {
		gaps[i] = types.SemanticGap{Kind: types.GapIncorrectAssumption}
	}
	v := NewVerifier(&fixedAnalyzer{analysis: Analysis{BaseCoverage: 0.5, Gaps: gaps}})

	res, err := v.VerifyTestCoverage(context.Background(), types.Claim{ID: types.NewID()}, suiteNamed("TestX"))
	if err != nil {
		t.Fatalf("VerifyTestCoverage() error = %v", err)
	}
	if res.CoverageScore.Value() != 0 {
		t.Errorf("score = %v, want 0", res.CoverageScore.Value())
	}
}

func TestVerifyPropagatesAnalyzerError(t *testing.T) {
	boom := errors.New("analyzer offline")
	v := NewVerifier(&fixedAnalyzer{err: boom})
	_, err := v.VerifyTestCoverage(context.Background(), types.Claim{}, types.TestSuite{})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped analyzer error", err)
	}
}

func TestHeuristicAnalyzerCoverage(t *testing.T) {
	a := NewHeuristicAnalyzer()
	claim := types.Claim{Statement: "System refreshes expired tokens before authorization"}

	full, err := a.Analyze(context.Background(), claim, suiteNamed(
		"TestRefreshesExpiredTokens", "TestAuthorizationBeforeAccess"))
	if err != nil {
		t.Fatal(err)
	}
	if full.BaseCoverage != 1.0 {
		t.Errorf("BaseCoverage = %v, want 1.0 (aspects: %v, gaps: %v)",
			full.BaseCoverage, full.VerifiedAspects, full.Gaps)
	}

	partial, err := a.Analyze(context.Background(), claim, suiteNamed("TestTokens"))
	if err != nil {
		t.Fatal(err)
	}
	if partial.BaseCoverage >= full.BaseCoverage {
		t.Errorf("partial coverage %v not below full %v", partial.BaseCoverage, full.BaseCoverage)
	}
	if len(partial.Gaps) == 0 {
		t.Error("uncovered aspects produced no gaps")
	}
	for _, g := range partial.Gaps {
		if g.Kind != types.GapMissingAssertion {
			t.Errorf("gap kind = %s, want missing_assertion", g.Kind)
		}
	}
}

func TestHeuristicAnalyzerEmptySuite(t *testing.T) {
	a := NewHeuristicAnalyzer()
	res, err := a.Analyze(context.Background(), types.Claim{Statement: "tokens refresh"}, types.TestSuite{})
	if err != nil {
		t.Fatal(err)
	}
	if res.BaseCoverage != 0 {
		t.Errorf("BaseCoverage = %v, want 0 for empty suite", res.BaseCoverage)
	}
}

func TestLLMAnalyzerDecodesResponse(t *testing.T) {
	stub := gen.NewStubClient().On("semantically cover", "```json\n"+
		`{"base_coverage": 0.9,
		  "verified_aspects": ["token refresh"],
		  "gaps": [{"kind": "uncovered_edge_case", "edge_case": "expired refresh token"}]}`+"\n```")
	a := NewLLMAnalyzer(stub)

	analysis, err := a.Analyze(context.Background(),
		types.Claim{ID: types.NewID(), Statement: "System refreshes tokens"},
		suiteNamed("TestRefresh"))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if analysis.BaseCoverage != 0.9 {
		t.Errorf("BaseCoverage = %v", analysis.BaseCoverage)
	}
	if len(analysis.Gaps) != 1 || analysis.Gaps[0].Kind != types.GapUncoveredEdgeCase {
		t.Errorf("Gaps = %+v", analysis.Gaps)
	}
}

func TestLLMAnalyzerClampsCoverage(t *testing.T) {
	stub := gen.NewStubClient().On("semantically cover", `{"base_coverage": 7.5, "gaps": []}`)
	a := NewLLMAnalyzer(stub)

	analysis, err := a.Analyze(context.Background(), types.Claim{Statement: "x"}, suiteNamed("TestX"))
	if err != nil {
		t.Fatal(err)
	}
	if analysis.BaseCoverage != 1.0 {
		t.Errorf("BaseCoverage = %v, want clamped to 1.0", analysis.BaseCoverage)
	}
}
