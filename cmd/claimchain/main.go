package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"claimchain/internal/config"
	"claimchain/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool
	apiKey     string
	workspace  string
	timeout    time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "claimchain",
	Short: "claimchain - claim verification chains for documentation and code",
	Long: `claimchain verifies that claims made about a codebase are actually true.

Each claim runs through a verification chain: requirement extraction,
implementation detection, test detection, sandboxed test execution, and
semantic coverage analysis. The first failing gate produces a single
actionable work item; a claim is Verified only when every gate passes.

The run pipeline goes further: it generates test specs, test code, and an
implementation for each claim, compiles both, executes the tests in a
sandbox, and checks the batch for cross-claim conflicts.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if apiKey != "" {
			cfg.LLM.APIKey = apiKey
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger, err = logging.NewDevelopment(level)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.Install(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".claimchain/config.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Gemini API key (or set GEMINI_API_KEY)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "Project root to verify claims against")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Overall operation timeout")

	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
