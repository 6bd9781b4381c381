package gen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"claimchain/internal/logging"
	"claimchain/internal/types"
)

// TestSpec is one generated test specification: what a future test must
// assert, before any code exists.
type TestSpec struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Assertions  []string `json:"assertions"`
	EdgeCases   []string `json:"edge_cases,omitempty"`
	Type        string   `json:"test_type,omitempty"`
}

// GeneratedCode is the output of a code generation call.
type GeneratedCode struct {
	FileName string `json:"file_name"`
	Code     string `json:"code"`
	Language string `json:"language"`
}

// Engine drives all generation through one Client, retrying transient
// failures up to maxAttempts per call.
type Engine struct {
	client      Client
	maxAttempts int
	log         *zap.Logger
}

func NewEngine(client Client, maxAttempts int) *Engine {
	return &Engine{
		client:      client,
		maxAttempts: maxAttempts,
		log:         logging.For(logging.CategoryGen),
	}
}

// ExtractRequirements derives concrete, testable requirements from a claim.
func (e *Engine) ExtractRequirements(ctx context.Context, claim types.Claim) ([]types.Requirement, error) {
	prompt := fmt.Sprintf(`Derive concrete, testable requirements from this claim.

Claim: %s
Source excerpt: %s

Respond with a JSON array only. Each element:
{"description": string, "acceptance_criteria": [string], "priority": int 1-10}`,
		claim.Statement, claim.SourceExcerpt)

	var parsed []struct {
		Description        string   `json:"description"`
		AcceptanceCriteria []string `json:"acceptance_criteria"`
		Priority           int      `json:"priority"`
	}
	if err := e.generateJSON(ctx, prompt, &parsed); err != nil {
		return nil, fmt.Errorf("extracting requirements: %w", err)
	}

	reqs := make([]types.Requirement, 0, len(parsed))
	for _, p := range parsed {
		priority := p.Priority
		if priority < 1 || priority > 10 {
			priority = 5
		}
		reqs = append(reqs, types.Requirement{
			ID:                 types.NewID(),
			ClaimID:            claim.ID,
			Description:        p.Description,
			AcceptanceCriteria: p.AcceptanceCriteria,
			Priority:           priority,
			ExtractedAt:        time.Now(),
		})
	}
	e.log.Debug("requirements extracted",
		zap.String("claim", claim.ID.String()),
		zap.Int("count", len(reqs)))
	return reqs, nil
}

// GenerateTestSpecs produces test specifications for a claim and its
// requirements. This runs before any test code exists.
func (e *Engine) GenerateTestSpecs(ctx context.Context, claim types.Claim, reqs []types.Requirement) ([]TestSpec, error) {
	var sb strings.Builder
	for _, r := range reqs {
		fmt.Fprintf(&sb, "- %s\n", r.Description)
		for _, ac := range r.AcceptanceCriteria {
			fmt.Fprintf(&sb, "  criterion: %s\n", ac)
		}
	}
	prompt := fmt.Sprintf(`Write test specifications for the claim below. Cover every
requirement and its edge cases. Do not write code.

Claim: %s
Requirements:
%s
Respond with a JSON array only. Each element:
{"name": string, "description": string, "assertions": [string], "edge_cases": [string], "test_type": "unit"|"integration"}`,
		claim.Statement, sb.String())

	var specs []TestSpec
	if err := e.generateJSON(ctx, prompt, &specs); err != nil {
		return nil, fmt.Errorf("generating test specs: %w", err)
	}
	if len(specs) == 0 {
		return nil, Permanent(fmt.Errorf("model produced no test specs for claim %s", claim.ID))
	}
	return specs, nil
}

// GenerateTests turns test specs into Go test code.
func (e *Engine) GenerateTests(ctx context.Context, claim types.Claim, specs []TestSpec) (GeneratedCode, error) {
	payload, err := json.Marshal(specs)
	if err != nil {
		return GeneratedCode{}, fmt.Errorf("encoding test specs: %w", err)
	}
	prompt := fmt.Sprintf(`Write a complete Go test file implementing these test
specifications. Use the standard testing package. The file must compile on
its own apart from the package under test.

Claim: %s
Specifications (JSON):
%s

Respond with only the Go source, no commentary.`, claim.Statement, payload)

	return e.generateCode(ctx, prompt, "_test.go")
}

// GenerateImplementation produces implementation code satisfying the
// specification payload, with the generated tests as the contract.
func (e *Engine) GenerateImplementation(ctx context.Context, specification string, testCode string) (GeneratedCode, error) {
	prompt := fmt.Sprintf(`Write a complete Go source file satisfying this
specification. The tests below define the contract; the code must make them
pass.

Specification:
%s

Tests:
%s

Respond with only the Go source, no commentary.`, specification, testCode)

	return e.generateCode(ctx, prompt, ".go")
}

func (e *Engine) generateCode(ctx context.Context, prompt, suffix string) (GeneratedCode, error) {
	var out GeneratedCode
	err := withRetry(ctx, e.log, e.maxAttempts, func() error {
		raw, err := e.client.Generate(ctx, prompt)
		if err != nil {
			return err
		}
		code := stripFences(raw)
		if !strings.Contains(code, "package ") {
			return Permanent(fmt.Errorf("generated code has no package clause"))
		}
		out = GeneratedCode{Code: code, Language: "go", FileName: "generated" + suffix}
		return nil
	})
	return out, err
}

// generateJSON runs one prompt and decodes the response into v, retrying on
// transient failures. A response that fails to decode twice in a row is
// treated as permanent.
func (e *Engine) generateJSON(ctx context.Context, prompt string, v any) error {
	decodeFailures := 0
	return withRetry(ctx, e.log, e.maxAttempts, func() error {
		raw, err := e.client.Generate(ctx, prompt)
		if err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(stripFences(raw)), v); err != nil {
			decodeFailures++
			if decodeFailures >= 2 {
				return Permanent(fmt.Errorf("undecodable model output: %w", err))
			}
			return Transient(fmt.Errorf("decoding model output: %w", err))
		}
		return nil
	})
}
