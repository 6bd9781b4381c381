package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"claimchain/internal/history"
	"claimchain/internal/types"
)

var historyLimit int

// historyCmd inspects past verification outcomes
var historyCmd = &cobra.Command{
	Use:   "history [claim-id]",
	Short: "Show recorded verification outcomes",
	Long: `Without arguments, lists the most recent verification records and a
status tally across claims. With a claim id, shows that claim's full
progression through the chain, oldest first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: showHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum records to list")
}

func showHistory(cmd *cobra.Command, args []string) error {
	store, err := history.NewStore(historyDir())
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 1 {
		claimID, err := types.ParseID(args[0])
		if err != nil {
			return fmt.Errorf("invalid claim id %q: %w", args[0], err)
		}
		records, err := store.ForClaim(claimID)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("no records for that claim")
			return nil
		}
		fmt.Println(heading("claim: %s", records[0].Statement))
		for _, rec := range records {
			printRecord(rec)
		}
		return nil
	}

	records, err := store.Recent(historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no verification history recorded")
		return nil
	}
	for _, rec := range records {
		fmt.Printf("%s  %s\n", shortID(rec.ClaimID), rec.Statement)
		printRecord(rec)
	}

	counts, err := store.StatusCounts()
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Println(heading("latest status per claim"))
	for _, status := range []types.ChainStatus{
		types.ChainVerified,
		types.ChainTestsInadequate,
		types.ChainTestsFailing,
		types.ChainNeedsTests,
		types.ChainNotStarted,
	} {
		if n := counts[status]; n > 0 {
			fmt.Printf("  %s: %d\n", renderChainStatus(status), n)
		}
	}
	return nil
}

func printRecord(rec history.Record) {
	fmt.Printf("  %s  %s", rec.VerifiedAt.Format("2006-01-02 15:04:05"), renderChainStatus(rec.Status))
	if rec.Status == types.ChainVerified {
		fmt.Printf("  confidence %.2f", rec.Confidence)
	}
	for _, item := range rec.WorkItems {
		fmt.Printf("  -> %s", item.Title)
	}
	fmt.Println()
}
