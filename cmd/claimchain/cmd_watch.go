package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"claimchain/internal/watch"
)

var watchDebounce time.Duration

// watchCmd re-verifies claims whenever workspace sources change
var watchCmd = &cobra.Command{
	Use:   "watch [claims-file]",
	Short: "Re-verify claims whenever Go sources in the workspace change",
	Long: `Watches the workspace for .go file changes and re-runs the
verification chain for every claim once the changes settle. Useful while
working through the work items produced by a previous verify run: each
save shows which claims moved forward.

Stop with Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 2*time.Second, "Quiet period before re-verifying")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down watch mode")
		cancel()
	}()

	claims, err := loadClaims(args[0])
	if err != nil {
		return err
	}
	v, err := newVerifier(ctx)
	if err != nil {
		return err
	}
	defer v.Close()

	reverify := func(ctx context.Context, changed []string) {
		fmt.Printf("\n%s\n", heading("%d files changed, re-verifying %d claims", len(changed), len(claims)))
		verified, err := v.verifyAll(ctx, claims)
		if err != nil {
			logger.Error("re-verification failed", zap.Error(err))
			return
		}
		fmt.Printf("%d of %d claims verified\n", verified, len(claims))
	}

	w, err := watch.New(workspace, watchDebounce, reverify)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	// Initial pass so the baseline is visible before any edit.
	reverify(ctx, []string{workspace})

	<-ctx.Done()
	return nil
}
