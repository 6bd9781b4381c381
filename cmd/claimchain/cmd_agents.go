package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"claimchain/internal/agent"
	"claimchain/internal/compilecheck"
	"claimchain/internal/gen"
	"claimchain/internal/pipeline"
	"claimchain/internal/sandbox"
)

// agentsCmd shows the configured agent pool
var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the configured task agents and their capacity",
	Long: `Builds the task dispatcher from the configured agent pool and prints
each registered agent with its task types and concurrency ceiling. Agents
whose type has no built-in backing are reported and skipped.`,
	RunE: showAgents,
}

func showAgents(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	dispatcher, registered := buildDispatcher(ctx)

	fmt.Println(heading("registered agents"))
	for _, a := range registered {
		info := a.Info()
		taskTypes := make([]string, 0, len(info.TaskTypes))
		for _, tt := range info.TaskTypes {
			taskTypes = append(taskTypes, string(tt))
		}
		fmt.Printf("  %-24s %-40s concurrency %d\n",
			info.Name, strings.Join(taskTypes, ", "), info.MaxConcurrentTasks)
	}
	if len(registered) == 0 {
		fmt.Println(mutedStyle.Render("  none"))
	}
	fmt.Printf("\nactive tasks: %d\n", len(dispatcher.ActiveTasks()))
	return nil
}

// buildDispatcher wires built-in agents for the configured pool. Compile and
// test execution run through the sandbox; generation needs the LLM client
// and degrades to an unavailable agent without one.
func buildDispatcher(ctx context.Context) (*agent.Dispatcher, []agent.Agent) {
	sb := sandbox.New(cfg.Sandbox)
	checker := compilecheck.NewChecker(sb)
	executor := pipeline.NewSandboxExecutor(sb)

	generate := func(context.Context, agent.GenerateInput) (agent.GenerateOutput, error) {
		return agent.GenerateOutput{}, fmt.Errorf("no LLM client configured")
	}
	if client, ok := llmClient(ctx); ok {
		engine := gen.NewEngine(client, cfg.Pipeline.MaxRetries)
		generate = func(ctx context.Context, in agent.GenerateInput) (agent.GenerateOutput, error) {
			code, err := engine.GenerateImplementation(ctx, in.Specification, strings.Join(in.Context, "\n"))
			if err != nil {
				return agent.GenerateOutput{}, err
			}
			out := agent.GenerateOutput{Target: in.Target, Code: code.Code}
			if in.Target.Path == "" {
				out.Target.Path = code.FileName
			}
			return out, nil
		}
	}

	dispatcher := agent.NewDispatcher()
	var registered []agent.Agent
	for _, ac := range cfg.Agents {
		if !ac.Available {
			continue
		}
		var a agent.Agent
		switch agent.Type(ac.Type) {
		case agent.TypeCompilation:
			a = agent.NewCompilationAgent(compileFunc(checker), ac.MaxConcurrentTasks)
		case agent.TypeTestExecution:
			a = agent.NewTestExecutionAgent(testRunFunc(executor), ac.MaxConcurrentTasks)
		case agent.TypeImplementation:
			a = agent.NewGenerationAgent("builtin-implementer", agent.TypeImplementation, generate, ac.MaxConcurrentTasks)
		case agent.TypeTestGeneration:
			a = agent.NewGenerationAgent("builtin-test-writer", agent.TypeTestGeneration, generate, ac.MaxConcurrentTasks)
		default:
			logger.Warn("no built-in agent for configured type", zap.String("type", ac.Type))
			continue
		}
		dispatcher.Register(a)
		registered = append(registered, a)
	}
	return dispatcher, registered
}

func compileFunc(checker *compilecheck.Checker) agent.CompileFunc {
	return func(ctx context.Context, in agent.CompileInput) (agent.CompileOutput, error) {
		files, err := readSources(in.Files)
		if err != nil {
			return agent.CompileOutput{}, err
		}
		res, err := checker.CheckSource(ctx, files)
		if err != nil {
			return agent.CompileOutput{}, err
		}
		out := agent.CompileOutput{Success: res.Success}
		for _, e := range res.Errors {
			out.Errors = append(out.Errors, e.String())
		}
		return out, nil
	}
}

func testRunFunc(executor *pipeline.SandboxExecutor) agent.TestRunFunc {
	return func(ctx context.Context, in agent.ExecuteTestsInput) (agent.ExecuteTestsOutput, error) {
		files, err := readSources(append(in.TestFiles, in.ImplFiles...))
		if err != nil {
			return agent.ExecuteTestsOutput{}, err
		}
		res, err := executor.ExecuteFiles(ctx, files)
		if err != nil {
			return agent.ExecuteTestsOutput{}, err
		}
		var out agent.ExecuteTestsOutput
		for _, tr := range res.Results {
			if tr.Passed {
				out.Passed = append(out.Passed, tr.Name)
			} else {
				out.Failed = append(out.Failed, tr.Name)
			}
		}
		if res.Coverage != nil {
			out.Coverage = *res.Coverage
		}
		return out, nil
	}
}

// readSources loads referenced files, keyed by base-name-preserving relative
// paths so packages stay intact inside the sandbox workdir.
func readSources(paths []string) (map[string]string, error) {
	files := make(map[string]string, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading source %s: %w", p, err)
		}
		files[sourceKey(p)] = string(data)
	}
	return files, nil
}

func sourceKey(path string) string {
	clean := strings.TrimLeft(path, "/")
	return strings.ReplaceAll(clean, "..", "_")
}
