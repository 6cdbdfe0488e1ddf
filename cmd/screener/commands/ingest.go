package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/halallens/screener/internal/contracts"
	"github.com/halallens/screener/internal/extract"
)

// ingestCmd registers one filing for screening
var ingestCmd = &cobra.Command{
	Use:   "ingest <filing-id>",
	Short: "Register a filing for screening",
	Long: `Registers a crawled filing. The headline is classified for
reporting-period metadata and the filing becomes pending for the next
pipeline run. Non-financial announcements are rejected.

Example:
  go run ./cmd/screener ingest bse-500325-2025q1 \
    --security BSE:500325 \
    --category Result \
    --headline "Unaudited Standalone Financial Results (Q1 FY2026) for the quarter ended 30.06.2025" \
    --format html \
    --document filings/bse/500325/2025q1.html`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var (
	ingestSecurity string
	ingestCategory string
	ingestHeadline string
	ingestFormat   string
	ingestDocument string
	ingestPeriod   string
	ingestCurrency string
	ingestScale    string
	ingestAnnual   bool
)

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestSecurity, "security", "", "security id, e.g. BSE:500325")
	ingestCmd.Flags().StringVar(&ingestCategory, "category", "", "crawler announcement category")
	ingestCmd.Flags().StringVar(&ingestHeadline, "headline", "", "announcement headline")
	ingestCmd.Flags().StringVar(&ingestFormat, "format", "html", "source format (xbrl|html|text)")
	ingestCmd.Flags().StringVar(&ingestDocument, "document", "", "object-store key of the raw body")
	ingestCmd.Flags().StringVar(&ingestPeriod, "period-end", "", "period end (YYYY-MM-DD, default parsed from headline)")
	ingestCmd.Flags().StringVar(&ingestCurrency, "currency", "INR", "filing-declared currency")
	ingestCmd.Flags().StringVar(&ingestScale, "scale", "", "filing-declared scale (thousands|lakhs|crores|...)")
	ingestCmd.Flags().BoolVar(&ingestAnnual, "annual", false, "annual filing instead of quarterly")

	_ = ingestCmd.MarkFlagRequired("security")
	_ = ingestCmd.MarkFlagRequired("document")
}

func runIngest(cmd *cobra.Command, args []string) error {
	if !extract.IsFinancialFiling(ingestCategory, ingestHeadline) {
		return fmt.Errorf("announcement %q does not look like financial results", ingestHeadline)
	}

	periodEnd, ok := extract.ParsePeriodEnd(ingestHeadline)
	if ingestPeriod != "" {
		parsed, err := time.Parse("2006-01-02", ingestPeriod)
		if err != nil {
			return fmt.Errorf("invalid period-end %q, expected YYYY-MM-DD", ingestPeriod)
		}
		periodEnd, ok = parsed, true
	}
	if !ok {
		return fmt.Errorf("period end not found in headline, pass --period-end")
	}

	format := contracts.SourceFormat(ingestFormat)
	switch format {
	case contracts.FormatXBRL, contracts.FormatHTML, contracts.FormatText:
	default:
		return fmt.Errorf("unknown format %q", ingestFormat)
	}

	filingType := contracts.FilingQuarterly
	if ingestAnnual {
		filingType = contracts.FilingAnnual
	}

	meta := extract.ClassifyHeadline(ingestHeadline)
	meta.IngestConfidence = extract.IngestConfidence(ingestCategory, ingestHeadline)

	filing := &contracts.Filing{
		ID:          args[0],
		SecurityID:  ingestSecurity,
		Type:        filingType,
		PeriodEnd:   periodEnd,
		IngestedAt:  time.Now().UTC(),
		Format:      format,
		DocumentKey: ingestDocument,
		Currency:    ingestCurrency,
		Scale:       ingestScale,
		Headline:    ingestHeadline,
		Meta:        meta,
	}

	app, cleanup, err := buildApp()
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := app.securities.GetByID(context.Background(), ingestSecurity); err != nil {
		return fmt.Errorf("unknown security %s: %w", ingestSecurity, err)
	}

	if err := app.filings.Save(context.Background(), filing); err != nil {
		return fmt.Errorf("save filing: %w", err)
	}

	fmt.Printf("Filing %s registered for %s (period %s, confidence %s)\n",
		filing.ID, filing.SecurityID, periodEnd.Format("2006-01-02"), meta.IngestConfidence)
	return nil
}
