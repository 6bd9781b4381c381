package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"claimchain/internal/gen"
	"claimchain/internal/types"
)

// LLMAnalyzer asks a model to judge test coverage against a claim.
type LLMAnalyzer struct {
	client gen.Client
}

func NewLLMAnalyzer(client gen.Client) *LLMAnalyzer {
	return &LLMAnalyzer{client: client}
}

func (a *LLMAnalyzer) Analyze(ctx context.Context, claim types.Claim, suite types.TestSuite) (Analysis, error) {
	var sb strings.Builder
	for _, tc := range suite.TestCases {
		fmt.Fprintf(&sb, "- %s: %s\n", tc.Name, tc.Description)
		for _, assertion := range tc.Assertions {
			fmt.Fprintf(&sb, "  asserts: %s\n", assertion)
		}
	}
	prompt := fmt.Sprintf(`Judge whether these tests semantically cover the claim.
Passing tests can still verify nothing relevant; be skeptical.

Claim: %s
Tests:
%s
Respond with JSON only:
{"base_coverage": float 0-1,
 "verified_aspects": [string],
 "gaps": [{"kind": "test_name_mismatch"|"missing_assertion"|"uncovered_edge_case"|"incorrect_assumption",
           "test_name": string, "claim_aspect": string, "edge_case": string,
           "assumption": string, "actual_behavior": string}]}`,
		claim.Statement, sb.String())

	raw, err := a.client.Generate(ctx, prompt)
	if err != nil {
		return Analysis{}, err
	}
	var analysis Analysis
	if err := json.Unmarshal([]byte(stripFences(raw)), &analysis); err != nil {
		return Analysis{}, fmt.Errorf("decoding analysis: %w", err)
	}
	if analysis.BaseCoverage < 0 {
		analysis.BaseCoverage = 0
	}
	if analysis.BaseCoverage > 1 {
		analysis.BaseCoverage = 1
	}
	return analysis, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// HeuristicAnalyzer scores coverage from vocabulary overlap between the
// claim and the test names and assertions. It is the offline fallback when
// no model is configured.
type HeuristicAnalyzer struct{}

func NewHeuristicAnalyzer() *HeuristicAnalyzer { return &HeuristicAnalyzer{} }

func (a *HeuristicAnalyzer) Analyze(_ context.Context, claim types.Claim, suite types.TestSuite) (Analysis, error) {
	aspects := claimAspects(claim.Statement)
	if len(aspects) == 0 || len(suite.TestCases) == 0 {
		return Analysis{BaseCoverage: 0}, nil
	}

	testVocab := strings.ToLower(suiteVocabulary(suite))
	var analysis Analysis
	covered := 0
	for _, aspect := range aspects {
		if strings.Contains(testVocab, aspect) {
			covered++
			analysis.VerifiedAspects = append(analysis.VerifiedAspects, aspect)
			continue
		}
		analysis.Gaps = append(analysis.Gaps, types.SemanticGap{
			Kind:        types.GapMissingAssertion,
			ClaimAspect: aspect,
		})
	}
	analysis.BaseCoverage = float64(covered) / float64(len(aspects))
	return analysis, nil
}

func suiteVocabulary(suite types.TestSuite) string {
	var sb strings.Builder
	for _, tc := range suite.TestCases {
		sb.WriteString(tc.Name)
		sb.WriteByte(' ')
		sb.WriteString(tc.Description)
		sb.WriteByte(' ')
		for _, assertion := range tc.Assertions {
			sb.WriteString(assertion)
			sb.WriteByte(' ')
		}
	}
	return sb.String()
}

// claimAspects reduces a claim statement to its distinguishing terms.
func claimAspects(statement string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, word := range strings.FieldsFunc(strings.ToLower(statement), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(word) <= 3 || seen[word] || aspectStopword(word) {
			continue
		}
		seen[word] = true
		out = append(out, word)
	}
	return out
}

func aspectStopword(w string) bool {
	switch w {
	case "that", "with", "must", "should", "when", "then", "system",
		"implements", "implement", "correctly", "properly":
		return true
	}
	return false
}
