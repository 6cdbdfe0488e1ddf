package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// pipelineCmd groups pipeline operations
var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run the screening pipeline",
}

// pipelineRunCmd processes pending filings once
var pipelineRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Process pending filings",
	Long: `Runs extraction, screening, ledger append and alert dispatch
over all pending filings, then prints the batch report.

Example:
  go run ./cmd/screener pipeline run
  go run ./cmd/screener pipeline run --limit 100`,
	RunE: runPipeline,
}

var pipelineLimit int

func init() {
	rootCmd.AddCommand(pipelineCmd)
	pipelineCmd.AddCommand(pipelineRunCmd)

	pipelineRunCmd.Flags().IntVar(&pipelineLimit, "limit", 0, "max filings to process (0 = all)")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	app, cleanup, err := buildApp()
	if err != nil {
		return err
	}
	defer cleanup()

	// cancel cooperatively on Ctrl+C; in-flight filings complete
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := app.orchestrator.RunPending(ctx, pipelineLimit)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s finished in %s\n", report.RunID, report.FinishedAt.Sub(report.StartedAt))
	fmt.Printf("  total:                  %d\n", report.Total)
	fmt.Printf("  succeeded:              %d\n", report.Succeeded)
	fmt.Printf("  extraction failed:      %d\n", report.ExtractionFailed)
	fmt.Printf("  screening insufficient: %d\n", report.ScreeningInsufficient)
	fmt.Printf("  ledger rejected:        %d\n", report.LedgerRejected)
	fmt.Printf("  delivery failed:        %d\n", report.DeliveryFailed)
	fmt.Printf("  transitions dispatched: %d\n", len(report.Transitions))
	for _, t := range report.Transitions {
		fmt.Printf("    %s: %s -> %s (effective %s)\n",
			t.SecurityID, t.From, t.To, t.EffectiveDate.Format("2006-01-02"))
	}
	return nil
}
