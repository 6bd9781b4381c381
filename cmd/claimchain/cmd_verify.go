package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"claimchain/internal/chain"
	"claimchain/internal/config"
	"claimchain/internal/gen"
	"claimchain/internal/history"
	"claimchain/internal/pipeline"
	"claimchain/internal/sandbox"
	"claimchain/internal/scan"
	"claimchain/internal/semantic"
	"claimchain/internal/types"
	"claimchain/internal/workitem"
)

// verifyCmd runs the verification chain against existing code
var verifyCmd = &cobra.Command{
	Use:   "verify [claims-file]",
	Short: "Verify claims against the workspace's existing code and tests",
	Long: `Runs each claim through the verification chain:
  1. Extract requirements from the claim
  2. Find implementing code in the workspace
  3. Find tests covering that code
  4. Execute the tests in a sandbox
  5. Judge whether the tests semantically cover the claim

The first failing gate stops the chain and yields one work item routed to
an AI agent or a human per the configured assignment strategy.

Without an API key the requirement extraction and semantic analysis fall
back to keyword heuristics.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	claims, err := loadClaims(args[0])
	if err != nil {
		return err
	}

	v, err := newVerifier(ctx)
	if err != nil {
		return err
	}
	defer v.Close()

	verified, err := v.verifyAll(ctx, claims)
	if err != nil {
		return err
	}
	fmt.Printf("\n%d of %d claims verified\n", verified, len(claims))
	return nil
}

// verifier bundles the chain engine with assignment and history recording.
// Close releases the checker's parser and the history database.
type verifier struct {
	engine   *chain.Engine
	strategy *workitem.Strategy
	checker  *scan.Checker
	hist     *history.Store
}

func newVerifier(ctx context.Context) (*verifier, error) {
	sb := sandbox.New(cfg.Sandbox)
	checker := scan.NewChecker(workspace)
	runner := pipeline.NewSuiteRunner(sb, workspace)

	var (
		extractor chain.RequirementExtractor
		analyzer  semantic.Analyzer
	)
	if client, ok := llmClient(ctx); ok {
		extractor = gen.NewEngine(client, cfg.Pipeline.MaxRetries)
		analyzer = semantic.NewLLMAnalyzer(client)
	} else {
		logger.Info("no API key configured, using heuristic extraction and coverage analysis")
		extractor = heuristicExtractor{}
		analyzer = semantic.NewHeuristicAnalyzer()
	}

	hist, err := history.NewStore(historyDir())
	if err != nil {
		checker.Close()
		return nil, err
	}
	return &verifier{
		engine:   chain.NewEngine(chainConfig(cfg.Chain), extractor, checker, checker, runner, semantic.NewVerifier(analyzer)),
		strategy: assignmentStrategy(cfg),
		checker:  checker,
		hist:     hist,
	}, nil
}

func (v *verifier) Close() error {
	v.checker.Close()
	return v.hist.Close()
}

func (v *verifier) verifyAll(ctx context.Context, claims []types.Claim) (int, error) {
	verified := 0
	for _, claim := range claims {
		fmt.Println(heading("claim: %s", claim.Statement))

		result, err := v.engine.Verify(ctx, claim)
		if err != nil {
			var stageErr *chain.StageError
			if errors.As(err, &stageErr) {
				return verified, fmt.Errorf("claim %s failed at stage %s: %w", shortID(claim.ID), stageErr.Stage, stageErr.Err)
			}
			return verified, err
		}
		if err := v.hist.RecordVerification(claim, result); err != nil {
			logger.Warn("failed to record verification", zap.Error(err))
		}

		fmt.Printf("  status: %s\n", renderChainStatus(result.Status))
		if result.Status == types.ChainVerified {
			verified++
			fmt.Printf("  confidence: %.2f\n", result.Evidence.Confidence.Value())
			continue
		}
		for _, item := range result.WorkItems {
			printWorkItem(item, v.strategy)
		}
	}
	return verified, nil
}

// historyDir places the history database next to the run snapshots.
func historyDir() string {
	return filepath.Dir(cfg.Pipeline.RunDir)
}

func printWorkItem(item types.WorkItem, strategy *workitem.Strategy) {
	fmt.Printf("  work item: %s (effort %d, skills %s)\n",
		item.Title, item.EstimatedEffort, strings.Join(item.RequiredSkills, ", "))

	assignment, err := strategy.Assign(item)
	if err != nil {
		if errors.Is(err, workitem.ErrNoAvailableAssignee) {
			fmt.Printf("  %s\n", warnStyle.Render("no available assignee"))
			return
		}
		fmt.Printf("  assignment failed: %v\n", err)
		return
	}
	switch assignment.Assignee.Kind {
	case types.AssigneeAI:
		fmt.Printf("  assigned to agent %s\n", assignment.Assignee.AgentType)
	case types.AssigneeHuman:
		fmt.Printf("  assigned to %s (%s)\n", assignment.Assignee.Name, assignment.Assignee.Contact)
	}
}

// llmClient builds the Gemini client when an API key is configured.
func llmClient(ctx context.Context) (gen.Client, bool) {
	if cfg.LLM.APIKey == "" {
		return nil, false
	}
	client, err := gen.NewGeminiClient(ctx, cfg.LLM)
	if err != nil {
		logger.Warn("LLM client unavailable, falling back to heuristics", zap.Error(err))
		return nil, false
	}
	return client, true
}

func chainConfig(c config.ChainConfig) chain.Config {
	return chain.Config{
		MinImplementationConfidence: c.MinImplementationConfidence,
		MinTestCoverage:             c.MinTestCoverage,
		MinSemanticCoverage:         c.MinSemanticCoverage,
		MaxExecutionTimeout:         c.MaxExecutionTimeout,
	}
}

func assignmentStrategy(cfg *config.Config) *workitem.Strategy {
	agents := make([]workitem.AvailableAgent, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		agents = append(agents, workitem.AvailableAgent{
			Type:          a.Type,
			Capabilities:  a.Capabilities,
			MaxComplexity: a.MaxComplexity,
			Available:     a.Available,
		})
	}
	humans := make([]workitem.AvailableHuman, 0, len(cfg.Humans))
	for _, h := range cfg.Humans {
		humans = append(humans, workitem.AvailableHuman{
			Name:         h.Name,
			Contact:      h.Contact,
			Skills:       h.Skills,
			Availability: h.Availability,
		})
	}
	return workitem.NewStrategy(agents, humans, cfg.Assignment.MinHumanAvailability, cfg.Assignment.AIEffortCutoff)
}

// heuristicExtractor splits a claim statement into requirements without an
// LLM. Conjoined clauses become separate requirements.
type heuristicExtractor struct{}

func (heuristicExtractor) ExtractRequirements(_ context.Context, claim types.Claim) ([]types.Requirement, error) {
	clauses := splitClauses(claim.Statement)
	reqs := make([]types.Requirement, 0, len(clauses))
	for _, clause := range clauses {
		reqs = append(reqs, types.Requirement{
			ID:                 types.NewID(),
			ClaimID:            claim.ID,
			Description:        clause,
			AcceptanceCriteria: []string{claim.Statement},
			Priority:           5,
			ExtractedAt:        time.Now(),
		})
	}
	return reqs, nil
}

func splitClauses(statement string) []string {
	replaced := strings.NewReplacer("; ", "\n", " and ", "\n").Replace(statement)
	var clauses []string
	for _, part := range strings.Split(replaced, "\n") {
		if part = strings.TrimSpace(part); part != "" {
			clauses = append(clauses, part)
		}
	}
	if len(clauses) == 0 {
		clauses = []string{statement}
	}
	return clauses
}
