package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// backfillCmd forces an out-of-order filing into the ledger
var backfillCmd = &cobra.Command{
	Use:   "backfill <filing-id>",
	Short: "Force a late filing into the compliance ledger",
	Long: `Inserts the verdict for a late-arriving filing regardless of
period ordering, recomputes transitions downstream of the insertion
point, supersedes alerts the reordering invalidated, and dispatches
the corrected transitions.

Example:
  go run ./cmd/screener backfill bse-500325-2025q1`,
	Args: cobra.ExactArgs(1),
	RunE: runBackfill,
}

func init() {
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	app, cleanup, err := buildApp()
	if err != nil {
		return err
	}
	defer cleanup()

	transitions, err := app.orchestrator.Backfill(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("backfill filing %s: %w", args[0], err)
	}

	fmt.Printf("Backfill of %s recomputed %d transition(s)\n", args[0], len(transitions))
	for _, t := range transitions {
		fmt.Printf("  %s: %s -> %s (effective %s)\n",
			t.SecurityID, t.From, t.To, t.EffectiveDate.Format("2006-01-02"))
	}
	return nil
}
