package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/halallens/screener/internal/contracts"
)

// statusCmd prints the effective compliance status for a security
var statusCmd = &cobra.Command{
	Use:   "status <security-id>",
	Short: "Show the effective compliance status for a security",
	Long: `Derives the effective status from the compliance ledger and
prints the contributing ratios and citations.

Example:
  go run ./cmd/screener status BSE:500325
  go run ./cmd/screener status BSE:500325 --date 2025-06-30`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

var statusDate string

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusDate, "date", "", "as-of date (YYYY-MM-DD, default today)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	app, cleanup, err := buildApp()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	id := args[0]

	date := time.Now().UTC()
	if statusDate != "" {
		date, err = time.Parse("2006-01-02", statusDate)
		if err != nil {
			return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", statusDate)
		}
	}

	security, err := app.securities.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load security %s: %w", id, err)
	}

	verdict, err := app.ledger.VerdictAsOf(ctx, id, date)
	if err != nil {
		return fmt.Errorf("derive status: %w", err)
	}

	fmt.Printf("%s (%s)\n", security.ID, security.Name)
	if verdict == nil {
		fmt.Printf("  status as of %s: %s (no verdicts recorded)\n",
			date.Format("2006-01-02"), contracts.StatusInsufficientData)
		return nil
	}

	fmt.Printf("  status as of %s: %s (period %s)\n",
		date.Format("2006-01-02"), verdict.Status, verdict.PeriodEnd.Format("2006-01-02"))
	for _, r := range verdict.Ratios {
		if r.Insufficient {
			fmt.Printf("  %-26s insufficient (denominator %.2f)\n", r.Name, r.Denominator)
			continue
		}
		fmt.Printf("  %-26s %.4f (cap %.2f)\n", r.Name, r.Value, r.Cap)
	}
	if len(verdict.Missing) > 0 {
		fmt.Printf("  missing metrics: %v\n", verdict.Missing)
	}
	if len(verdict.Violated) > 0 {
		fmt.Printf("  violated ratios: %v\n", verdict.Violated)
	}
	for _, c := range verdict.Citations {
		fmt.Printf("  cite %s: filing %s, %s\n", c.Metric, c.FilingID, c.Locator)
	}
	return nil
}
