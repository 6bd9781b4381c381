package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"claimchain/internal/scan"
	"claimchain/internal/types"
)

// ConflictKind classifies a cross-claim conflict.
type ConflictKind string

const (
	InterfaceConflict   ConflictKind = "interface"
	ResourceConflict    ConflictKind = "resource"
	PerformanceConflict ConflictKind = "performance"
	SecurityConflict    ConflictKind = "security"
	LogicalConflict     ConflictKind = "logical"
)

// Severity grades how badly a conflict blocks integration.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Conflict is one incompatibility between two claims' generated artifacts.
type Conflict struct {
	Claim1      types.ID     `json:"claim1_id"`
	Claim2      types.ID     `json:"claim2_id"`
	Kind        ConflictKind `json:"conflict_type"`
	Description string       `json:"description"`
	Severity    Severity     `json:"severity"`
	Suggestion  string       `json:"resolution_suggestion,omitempty"`
}

// IntegrationResult is the outcome of the cross-claim join barrier.
type IntegrationResult struct {
	Success           bool             `json:"success"`
	Conflicts         []Conflict       `json:"cross_claim_conflicts"`
	OverallConfidence types.Confidence `json:"overall_confidence"`
	VerifiedAt        time.Time        `json:"verified_at"`
}

// integrationConfidence is the batch confidence when every claim succeeded
// and no conflicts were found.
const integrationConfidence = 0.95

// verifyIntegration runs after every claim pipeline has finished. It parses
// the successful claims' generated implementations and looks for symbol
// collisions and contradictory claim statements.
func (o *Orchestrator) verifyIntegration(ctx context.Context, claims []types.Claim, results []ClaimResult) IntegrationResult {
	conflicts := append(
		o.symbolConflicts(ctx, claims, results),
		statementConflicts(claims)...)

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	confidence := integrationConfidence
	if len(results) > 0 {
		confidence *= float64(succeeded) / float64(len(results))
	}
	confidence -= 0.05 * float64(len(conflicts))
	if confidence < 0 {
		confidence = 0
	}

	o.log.Info("integration phase complete",
		zap.Int("claims", len(results)),
		zap.Int("succeeded", succeeded),
		zap.Int("conflicts", len(conflicts)))

	return IntegrationResult{
		Success:           len(conflicts) == 0,
		Conflicts:         conflicts,
		OverallConfidence: types.Confidence(confidence),
		VerifiedAt:        time.Now(),
	}
}

type claimSymbol struct {
	claim types.Claim
	sym   scan.Symbol
}

// symbolConflicts compares exported symbols across claims' generated
// implementations. Two claims declaring the same exported function with
// incompatible signatures is an interface conflict; identical declarations
// collide on the shared symbol and classify by the claims' own types.
func (o *Orchestrator) symbolConflicts(ctx context.Context, claims []types.Claim, results []ClaimResult) []Conflict {
	claimsByID := make(map[types.ID]types.Claim, len(claims))
	for _, c := range claims {
		claimsByID[c.ID] = c
	}

	parser := scan.NewParser()
	defer parser.Close()

	byName := make(map[string][]claimSymbol)
	for _, r := range results {
		if r.GeneratedImplementation == nil {
			continue
		}
		syms, err := parser.ParseSource(ctx, r.GeneratedImplementation.FileName,
			[]byte(r.GeneratedImplementation.Code))
		if err != nil {
			o.log.Warn("skipping unparseable implementation in integration check",
				zap.String("claim", r.ClaimID.String()),
				zap.Error(err))
			continue
		}
		for _, sym := range syms {
			if !sym.Exported || sym.Kind == scan.SymbolMethod {
				continue
			}
			byName[sym.Name] = append(byName[sym.Name], claimSymbol{
				claim: claimsByID[r.ClaimID],
				sym:   sym,
			})
		}
	}

	var conflicts []Conflict
	for name, owners := range byName {
		for i := 0; i < len(owners); i++ {
			for j := i + 1; j < len(owners); j++ {
				a, b := owners[i], owners[j]
				if a.claim.ID == b.claim.ID {
					continue
				}
				conflicts = append(conflicts, classifySymbolConflict(name, a, b))
			}
		}
	}
	return conflicts
}

func classifySymbolConflict(name string, a, b claimSymbol) Conflict {
	c := Conflict{Claim1: a.claim.ID, Claim2: b.claim.ID}
	switch {
	case a.sym.Signature != b.sym.Signature:
		c.Kind = InterfaceConflict
		c.Severity = SeverityHigh
		c.Description = fmt.Sprintf("both claims declare exported %s %q with incompatible signatures: %q vs %q",
			a.sym.Kind, name, a.sym.Signature, b.sym.Signature)
		c.Suggestion = "unify the signature or namespace the declarations per claim"
	case a.claim.Type == types.ClaimSecurity || b.claim.Type == types.ClaimSecurity:
		c.Kind = SecurityConflict
		c.Severity = SeverityCritical
		c.Description = fmt.Sprintf("security-relevant symbol %q is declared by both claims", name)
		c.Suggestion = "consolidate the security-sensitive declaration into a single owner"
	case a.claim.Type == types.ClaimPerformance || b.claim.Type == types.ClaimPerformance:
		c.Kind = PerformanceConflict
		c.Severity = SeverityMedium
		c.Description = fmt.Sprintf("performance-relevant symbol %q is declared by both claims", name)
		c.Suggestion = "share one implementation so performance characteristics stay consistent"
	default:
		c.Kind = ResourceConflict
		c.Severity = SeverityMedium
		c.Description = fmt.Sprintf("both claims declare identical exported symbol %q; the definitions collide in one package", name)
		c.Suggestion = "extract the shared declaration into a common package"
	}
	return c
}

// statementConflicts flags claim pairs whose statements share vocabulary but
// pull in opposite directions, one asserting a behavior the other negates.
func statementConflicts(claims []types.Claim) []Conflict {
	var conflicts []Conflict
	for i := 0; i < len(claims); i++ {
		for j := i + 1; j < len(claims); j++ {
			a, b := claims[i], claims[j]
			if negates(a.Statement) == negates(b.Statement) {
				continue
			}
			if sharedTerms(a.Statement, b.Statement) < 3 {
				continue
			}
			conflicts = append(conflicts, Conflict{
				Claim1:      a.ID,
				Claim2:      b.ID,
				Kind:        LogicalConflict,
				Severity:    SeverityHigh,
				Description: fmt.Sprintf("claims assert contradictory behavior: %q vs %q", a.Statement, b.Statement),
				Suggestion:  "reconcile the claims before implementing either",
			})
		}
	}
	return conflicts
}

func negates(statement string) bool {
	s := " " + strings.ToLower(statement) + " "
	for _, marker := range []string{" not ", " never ", " must not ", " no "} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

func sharedTerms(a, b string) int {
	tokens := func(s string) map[string]bool {
		out := make(map[string]bool)
		for _, w := range strings.Fields(strings.ToLower(s)) {
			w = strings.Trim(w, ".,;:!?\"'")
			if len(w) > 3 {
				out[w] = true
			}
		}
		return out
	}
	ta, tb := tokens(a), tokens(b)
	shared := 0
	for w := range ta {
		if tb[w] {
			shared++
		}
	}
	return shared
}
