package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "screener",
	Short: "Halal Lens - Shariah compliance screening pipeline",
	Long: `Halal Lens screening backend

Extracts financial facts from corporate filings, screens them against
AAOIFI ratio thresholds, keeps an append-only compliance ledger and
dispatches alerts on status transitions.

Usage:
  go run ./cmd/screener [command]

Examples:
  go run ./cmd/screener api
  go run ./cmd/screener pipeline run
  go run ./cmd/screener scheduler
  go run ./cmd/screener status BSE:500325`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
