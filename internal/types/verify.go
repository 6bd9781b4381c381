package types

import "time"

// ChainStatus is the state of a claim's verification chain. The chain walks
// these states strictly in order; Verified is terminal.
type ChainStatus string

const (
	ChainNotStarted      ChainStatus = "not_started"      // no implementation exists
	ChainNeedsTests      ChainStatus = "needs_tests"      // implementation exists, no tests
	ChainTestsFailing    ChainStatus = "tests_failing"    // tests exist, execution reports failures
	ChainTestsInadequate ChainStatus = "tests_inadequate" // tests pass, semantic coverage below threshold
	ChainVerified        ChainStatus = "verified"         // all gates satisfied
)

// ImplementationStatus reports whether code backing a set of requirements
// was found. Anything other than NotFound counts as "found" for gating.
type ImplementationStatus string

const (
	ImplementationNotFound ImplementationStatus = "not_found"
	ImplementationPartial  ImplementationStatus = "partial"
	ImplementationComplete ImplementationStatus = "complete"
	ImplementationBroken   ImplementationStatus = "broken"
)

// Found reports whether any implementation exists at all.
func (s ImplementationStatus) Found() bool { return s != ImplementationNotFound && s != "" }

// Implementation describes code discovered for a set of requirements.
type Implementation struct {
	ID           ID                   `json:"id"`
	Requirements []ID                 `json:"requirements"`
	Status       ImplementationStatus `json:"status"`
	Location     Location             `json:"location"`
	CodeSnippets []string             `json:"code_snippets,omitempty"`
	DetectedAt   time.Time            `json:"detected_at"`
	Confidence   Confidence           `json:"confidence"`
}

// TestType classifies a test case.
type TestType string

const (
	TestUnit        TestType = "unit"
	TestIntegration TestType = "integration"
	TestEndToEnd    TestType = "end_to_end"
	TestPerformance TestType = "performance"
	TestSecurity    TestType = "security"
)

// TestCase is one discovered or generated test.
type TestCase struct {
	ID          ID       `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	TestCode    string   `json:"test_code,omitempty"`
	Location    Location `json:"location"`
	Type        TestType `json:"test_type"`
	Assertions  []string `json:"assertions,omitempty"`
	Expected    []string `json:"expected_outputs,omitempty"`
}

// TestSuite is the ordered set of tests covering an implementation.
type TestSuite struct {
	ID               ID         `json:"id"`
	ImplementationID ID         `json:"implementation_id"`
	TestCases        []TestCase `json:"test_cases"`
	Framework        string     `json:"framework"`
	DetectedAt       time.Time  `json:"detected_at"`
}

// ExecutionStatus summarizes a test suite run.
type ExecutionStatus string

const (
	ExecutionPassed ExecutionStatus = "passed"
	ExecutionFailed ExecutionStatus = "failed"
	ExecutionError  ExecutionStatus = "error"
)

// TestResult is the outcome of one test case.
type TestResult struct {
	TestCaseID ID            `json:"test_case_id"`
	Name       string        `json:"name"`
	Passed     bool          `json:"passed"`
	Output     string        `json:"output,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

// ExecutionResult is the outcome of running a test suite.
type ExecutionResult struct {
	TestSuiteID ID              `json:"test_suite_id"`
	Status      ExecutionStatus `json:"status"`
	Results     []TestResult    `json:"results"`
	TotalPassed int             `json:"total_passed"`
	TotalFailed int             `json:"total_failed"`
	TotalErrors int             `json:"total_errors"`
	Coverage    *float64        `json:"coverage,omitempty"` // estimate in [0,1] when known
	ExecutedAt  time.Time       `json:"executed_at"`
	Duration    time.Duration   `json:"duration_ns"`
}

// SuccessRate is the fraction of executed tests that passed.
func (r ExecutionResult) SuccessRate() float64 {
	if len(r.Results) == 0 {
		return 0
	}
	return float64(r.TotalPassed) / float64(len(r.Results))
}

// SemanticGapKind classifies why tests fail to cover a claim aspect.
type SemanticGapKind string

const (
	GapTestNameMismatch    SemanticGapKind = "test_name_mismatch"
	GapMissingAssertion    SemanticGapKind = "missing_assertion"
	GapUncoveredEdgeCase   SemanticGapKind = "uncovered_edge_case"
	GapIncorrectAssumption SemanticGapKind = "incorrect_assumption"
)

// SemanticGap is one hole between what the claim asserts and what the tests
// actually verify.
type SemanticGap struct {
	Kind           SemanticGapKind `json:"kind"`
	TestName       string          `json:"test_name,omitempty"`
	ClaimAspect    string          `json:"claim_aspect,omitempty"`
	EdgeCase       string          `json:"edge_case,omitempty"`
	Assumption     string          `json:"assumption,omitempty"`
	ActualBehavior string          `json:"actual_behavior,omitempty"`
}

// SemanticResult is the outcome of checking that tests mean what the claim says.
type SemanticResult struct {
	ClaimID         ID            `json:"claim_id"`
	TestSuiteID     ID            `json:"test_suite_id"`
	CoverageScore   Confidence    `json:"coverage_score"`
	Gaps            []SemanticGap `json:"gaps,omitempty"`
	VerifiedAspects []string      `json:"verified_aspects,omitempty"`
	Suggestions     []string      `json:"suggestions,omitempty"`
	AnalyzedAt      time.Time     `json:"analyzed_at"`
}

// VerificationEvidence aggregates the proof attached to a Verified claim.
type VerificationEvidence struct {
	Implementation Implementation  `json:"implementation"`
	Tests          TestSuite       `json:"tests"`
	Execution      ExecutionResult `json:"execution"`
	Semantic       SemanticResult  `json:"semantic_verification"`
	Confidence     Confidence      `json:"confidence"`
}

// VerificationResult is the record returned by a chain run: the status, at
// most one work item describing the first gap, and evidence only when the
// claim fully verified.
type VerificationResult struct {
	ClaimID    ID                    `json:"claim_id"`
	Status     ChainStatus           `json:"status"`
	WorkItems  []WorkItem            `json:"work_items"`
	Evidence   *VerificationEvidence `json:"evidence,omitempty"`
	VerifiedAt time.Time             `json:"verified_at"`
}
