// Package workitem turns classified verification gaps into typed,
// effort-estimated work items and routes them to assignees.
//
// A work item is the single actionable output of a non-verified chain run:
// its description must be self-contained enough to hand to an automated agent
// or a human without re-querying the chain.
package workitem

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"claimchain/internal/types"
)

// TypeForStatus is the fixed gap classification table. Verified has no
// remedial type.
func TypeForStatus(status types.ChainStatus) (types.WorkItemType, bool) {
	switch status {
	case types.ChainNotStarted:
		return types.WorkImplementRequirements, true
	case types.ChainNeedsTests:
		return types.WorkCreateTests, true
	case types.ChainTestsFailing:
		return types.WorkFixImplementation, true
	case types.ChainTestsInadequate:
		return types.WorkImproveTests, true
	default:
		return "", false
	}
}

// Factory builds work items from gap evidence. Effort estimates are
// deterministic and monotonic in gap magnitude so repeated runs over unchanged
// inputs produce identical items (modulo IDs and timestamps).
type Factory struct {
	now func() time.Time
}

// NewFactory returns a production factory.
func NewFactory() *Factory {
	return &Factory{now: time.Now}
}

// ImplementRequirements builds the work item for a claim with no
// implementation at all.
func (f *Factory) ImplementRequirements(claim types.Claim, reqs []types.Requirement) types.WorkItem {
	var b strings.Builder
	fmt.Fprintf(&b, "Implement the following requirements for claim %q:\n\n", claim.Statement)
	for _, r := range reqs {
		fmt.Fprintf(&b, "- %s (acceptance: %s)\n", r.Description, strings.Join(r.AcceptanceCriteria, "; "))
	}
	fmt.Fprintf(&b, "\nSource excerpt:\n%s\n", claim.SourceExcerpt)

	return f.build(claim, types.WorkImplementRequirements,
		"Implement: "+claim.Statement,
		b.String(),
		implementEffort(len(reqs)),
		[]string{"programming", "architecture"},
		reqs)
}

// CreateTests builds the work item for an implementation with an empty suite.
func (f *Factory) CreateTests(claim types.Claim, impl types.Implementation) types.WorkItem {
	var b strings.Builder
	fmt.Fprintf(&b, "Create tests verifying claim %q.\n\n", claim.Statement)
	fmt.Fprintf(&b, "Implementation location: %s\n", impl.Location)
	if len(impl.CodeSnippets) > 0 {
		fmt.Fprintf(&b, "\nImplementation code:\n%s\n", strings.Join(impl.CodeSnippets, "\n\n"))
	}
	b.WriteString("\nTests must cover the claimed behavior, its error paths, and edge cases.\n")

	return f.build(claim, types.WorkCreateTests,
		"Create tests for: "+claim.Statement,
		b.String(),
		4,
		[]string{"testing", "programming"},
		impl)
}

// FixImplementation builds the work item for a failing execution.
func (f *Factory) FixImplementation(claim types.Claim, exec types.ExecutionResult) types.WorkItem {
	var b strings.Builder
	fmt.Fprintf(&b, "Fix the implementation so all tests for claim %q pass.\n\nFailing tests:\n", claim.Statement)
	for _, r := range exec.Results {
		if r.Passed {
			continue
		}
		msg := r.Error
		if msg == "" {
			msg = "assertion failed"
		}
		fmt.Fprintf(&b, "- %s: %s\n", r.Name, msg)
	}
	failing := exec.TotalFailed + exec.TotalErrors
	fmt.Fprintf(&b, "\n%d of %d tests failing.\n", failing, len(exec.Results))

	return f.build(claim, types.WorkFixImplementation,
		"Fix failing tests for: "+claim.Statement,
		b.String(),
		fixEffort(failing),
		[]string{"debugging", "programming"},
		exec)
}

// ImproveTests builds the work item for inadequate semantic coverage.
func (f *Factory) ImproveTests(claim types.Claim, sem types.SemanticResult) types.WorkItem {
	var b strings.Builder
	fmt.Fprintf(&b, "Improve the test suite to better verify claim %q (coverage %.2f).\n\nGaps:\n",
		claim.Statement, sem.CoverageScore.Value())
	for _, g := range sem.Gaps {
		fmt.Fprintf(&b, "- [%s] %s\n", g.Kind, describeGap(g))
	}
	if len(sem.Suggestions) > 0 {
		fmt.Fprintf(&b, "\nSuggestions:\n- %s\n", strings.Join(sem.Suggestions, "\n- "))
	}

	return f.build(claim, types.WorkImproveTests,
		"Improve test coverage for: "+claim.Statement,
		b.String(),
		improveEffort(len(sem.Gaps)),
		[]string{"testing"},
		sem)
}

func (f *Factory) build(claim types.Claim, typ types.WorkItemType, title, description string, effort int, skills []string, spec any) types.WorkItem {
	payload, err := json.Marshal(spec)
	if err != nil {
		// Spec payloads are our own serializable records; a failure here is a
		// programming error, and the item is still actionable from the prose.
		payload = nil
	}
	return types.WorkItem{
		ID:              types.NewID(),
		Type:            typ,
		ClaimID:         claim.ID,
		Title:           title,
		Description:     description,
		Status:          types.WorkPending,
		CreatedAt:       f.now(),
		EstimatedEffort: effort,
		RequiredSkills:  skills,
		Specification:   payload,
	}
}

func describeGap(g types.SemanticGap) string {
	switch g.Kind {
	case types.GapTestNameMismatch:
		return fmt.Sprintf("%s actually tests: %s", g.TestName, g.ActualBehavior)
	case types.GapMissingAssertion:
		return "no assertion covers: " + g.ClaimAspect
	case types.GapUncoveredEdgeCase:
		return "edge case not exercised: " + g.EdgeCase
	case types.GapIncorrectAssumption:
		return fmt.Sprintf("assumes %q but %s", g.Assumption, g.ActualBehavior)
	default:
		return g.ClaimAspect
	}
}

// Effort bands. Monotonic: more failures or gaps never lowers the estimate.

func implementEffort(requirements int) int {
	switch {
	case requirements <= 1:
		return 5
	case requirements <= 3:
		return 6
	default:
		return 8
	}
}

func fixEffort(failing int) int {
	switch {
	case failing <= 1:
		return 3
	case failing <= 5:
		return 5
	default:
		return 8
	}
}

func improveEffort(gaps int) int {
	switch {
	case gaps <= 2:
		return 2
	case gaps <= 5:
		return 4
	default:
		return 6
	}
}
