package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"claimchain/internal/compilecheck"
	"claimchain/internal/gen"
	"claimchain/internal/pipeline"
	"claimchain/internal/sandbox"
)

// alignmentMinScore is the fraction of test specs that must have a matching
// generated test function before compilation is attempted.
const alignmentMinScore = 0.8

// runCmd drives the full generation pipeline
var runCmd = &cobra.Command{
	Use:   "run [claims-file]",
	Short: "Generate, compile, and execute verification code for each claim",
	Long: `Runs every claim through the seven-phase generation pipeline:
test spec generation, test generation, spec alignment, test compilation,
implementation generation, implementation compilation, and sandboxed
execution. Claims run concurrently; one claim's failure never aborts the
others.

After all claims finish, the integration phase checks the batch for
cross-claim conflicts (colliding exported symbols, contradictory
statements) and the run snapshot is written to the configured run
directory.

Requires a Gemini API key (--api-key or GEMINI_API_KEY).`,
	Args: cobra.ExactArgs(1),
	RunE: runPipeline,
}

// runsCmd inspects persisted run snapshots
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List persisted pipeline run snapshots",
	RunE:  listRuns,
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	claims, err := loadClaims(args[0])
	if err != nil {
		return err
	}

	client, ok := llmClient(ctx)
	if !ok {
		return fmt.Errorf("the run pipeline requires a Gemini API key (--api-key or GEMINI_API_KEY)")
	}
	engine := gen.NewEngine(client, cfg.Pipeline.MaxRetries)

	sb := sandbox.New(cfg.Sandbox)
	orchestrator := pipeline.NewOrchestrator(
		cfg.Pipeline,
		engine,
		engine,
		pipeline.NewSpecAligner(alignmentMinScore),
		compilecheck.NewChecker(sb),
		pipeline.NewSandboxExecutor(sb),
		pipeline.NewStore(cfg.Pipeline.RunDir),
	)

	run, err := orchestrator.Run(ctx, claims)
	if err != nil {
		return err
	}

	fmt.Println(heading("run %s", shortID(run.ID)))
	statements := make(map[string]string, len(run.Claims))
	for _, c := range run.Claims {
		statements[c.ID.String()] = c.Statement
	}
	for _, r := range run.ClaimResults {
		fmt.Printf("  %s  %s  %s\n", renderOutcome(r.Success), shortID(r.ClaimID), statements[r.ClaimID.String()])
		if !r.Success {
			fmt.Printf("        failed at %s: %s\n", r.FailedPhase, mutedStyle.Render(r.Error))
		}
	}

	integ := run.Integration
	fmt.Printf("\nintegration: %s (confidence %.2f)\n", renderOutcome(integ.Success), integ.OverallConfidence.Value())
	for _, c := range integ.Conflicts {
		fmt.Printf("  %s conflict between %s and %s: %s\n",
			warnStyle.Render(string(c.Kind)), shortID(c.Claim1), shortID(c.Claim2), c.Description)
		if c.Suggestion != "" {
			fmt.Printf("    %s\n", mutedStyle.Render(c.Suggestion))
		}
	}
	fmt.Printf("\noverall: %s (%s)\n", renderOutcome(run.OverallSuccess), run.Duration.Round(time.Millisecond))
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	store := pipeline.NewStore(cfg.Pipeline.RunDir)
	ids, err := store.List()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	for _, id := range ids {
		run, err := store.Load(id)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s  %d claims  %s\n",
			shortID(run.ID), run.StartedAt.Format("2006-01-02 15:04:05"),
			len(run.Claims), renderOutcome(run.OverallSuccess))
	}
	return nil
}
