package contracts

import (
	"fmt"
	"time"
)

// Status is the compliance outcome for one security in one reporting
// period. InsufficientData is a first-class status, never collapsed
// into NonCompliant.
type Status string

const (
	StatusCompliant        Status = "COMPLIANT"
	StatusNonCompliant     Status = "NON_COMPLIANT"
	StatusInsufficientData Status = "INSUFFICIENT_DATA"
)

// String returns the status name
func (s Status) String() string {
	return string(s)
}

// Valid checks if the status is a known value
func (s Status) Valid() bool {
	switch s {
	case StatusCompliant, StatusNonCompliant, StatusInsufficientData:
		return true
	}
	return false
}

// SourceFormat tags how a filing body is encoded
type SourceFormat string

const (
	FormatXBRL SourceFormat = "xbrl" // tagged XML financial data
	FormatHTML SourceFormat = "html" // statement tables in HTML
	FormatText SourceFormat = "text" // free text / line-oriented tables
)

// FilingType distinguishes annual from quarterly filings
type FilingType string

const (
	FilingAnnual    FilingType = "annual"
	FilingQuarterly FilingType = "quarterly"
)

// Security identifies a listed instrument. Immutable once created;
// only the sector code may be corrected administratively.
type Security struct {
	ID       string `json:"id"` // "<exchange>:<symbol>"
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Sector   string `json:"sector"`
}

// SecurityID builds the canonical identifier from exchange and symbol
func SecurityID(exchange, symbol string) string {
	return fmt.Sprintf("%s:%s", exchange, symbol)
}

// Filing is one ingested corporate filing. Immutable after ingestion;
// reprocessing creates a new extraction attempt, never mutates this.
type Filing struct {
	ID          string       `json:"id"`
	SecurityID  string       `json:"security_id"`
	Type        FilingType   `json:"type"`
	PeriodEnd   time.Time    `json:"period_end"`
	IngestedAt  time.Time    `json:"ingested_at"`
	Format      SourceFormat `json:"format"`
	DocumentKey string       `json:"document_key"` // object-store key for the raw body
	Currency    string       `json:"currency"`     // filing-declared currency
	Scale       string       `json:"scale"`        // filing-declared scale ("", "thousands", "lakhs", ...)
	Headline    string       `json:"headline"`
	Meta        FilingMeta   `json:"meta"`
}

// FilingMeta carries classification extracted from the filing headline
// at ingest time: reporting quarter, fiscal year, audit status and
// statement basis, plus the crawler's confidence that this is a
// financial filing at all.
type FilingMeta struct {
	Quarter          string `json:"quarter,omitempty"`      // Q1..Q4
	FiscalYear       string `json:"fiscal_year,omitempty"`  // e.g. "2025"
	AuditStatus      string `json:"audit_status,omitempty"` // audited / unaudited
	Basis            string `json:"basis,omitempty"`        // standalone / consolidated
	IngestConfidence string `json:"ingest_confidence,omitempty"`
}

// Metric is a canonical financial metric name
type Metric string

const (
	MetricTotalDebt            Metric = "total_debt"
	MetricMarketCap            Metric = "market_cap" // trailing-12-month average
	MetricNonPermissibleIncome Metric = "non_permissible_income"
	MetricTotalRevenue         Metric = "total_revenue"
	MetricCashEquivalents      Metric = "cash_equivalents"
	MetricInterestSecurities   Metric = "interest_bearing_securities"
	MetricInterestIncome       Metric = "interest_income"
	MetricDividendIncome       Metric = "dividend_income"
)

// Fact is one extracted, normalized financial figure. Facts are
// immutable; a metric has at most one fact per filing
// (last-extraction-wins on re-extraction).
type Fact struct {
	FilingID      string    `json:"filing_id"`
	Metric        Metric    `json:"metric"`
	Value         float64   `json:"value"`    // absolute reporting currency
	Currency      string    `json:"currency"` // reporting currency after normalization
	Confidence    float64   `json:"confidence"`
	LowConfidence bool      `json:"low_confidence"`
	Locator       string    `json:"locator"` // page / tag / line reference into the source
	ExtractedAt   time.Time `json:"extracted_at"`
}

// WarningKind classifies non-fatal extraction problems
type WarningKind string

const (
	WarnMissingMetric  WarningKind = "MissingMetric"
	WarnAmbiguousScale WarningKind = "AmbiguousScale"
)

// ExtractionWarning is a per-metric, non-fatal extraction problem
type ExtractionWarning struct {
	FilingID string      `json:"filing_id"`
	Metric   Metric      `json:"metric"`
	Kind     WarningKind `json:"kind"`
	Detail   string      `json:"detail,omitempty"`
}

// Thresholds is the ratio cap snapshot stored on every Verdict so
// historical verdicts stay interpretable after configuration changes.
type Thresholds struct {
	DebtRatioCap            float64 `json:"debt_ratio_cap"`
	NonPermissibleIncomeCap float64 `json:"non_permissible_income_cap"`
	IlliquidAssetsCap       float64 `json:"illiquid_assets_cap"`
}

// Ratio names used in Verdict.Ratios and Verdict.Violated
const (
	RatioDebt                 = "debtRatio"
	RatioNonPermissibleIncome = "nonPermissibleIncomeRatio"
	RatioIlliquidAssets       = "illiquidAssetsRatio"
)

// RatioResult is one computed screening ratio with the figures that
// produced it, retained for audit.
type RatioResult struct {
	Name         string  `json:"name"`
	Numerator    float64 `json:"numerator"`
	Denominator  float64 `json:"denominator"`
	Value        float64 `json:"value"`
	Cap          float64 `json:"cap"`
	Satisfied    bool    `json:"satisfied"`
	Insufficient bool    `json:"insufficient"` // zero/negative denominator
}

// Citation points into the source filing substantiating a figure
type Citation struct {
	FilingID string `json:"filing_id"`
	Metric   Metric `json:"metric"`
	Locator  string `json:"locator"`
}

// Verdict is the computed compliance outcome for (security, period).
// Immutable once written; a corrected re-run appends a new Verdict
// that supersedes this one logically, ordered by ComputedAt.
type Verdict struct {
	SecurityID string        `json:"security_id"`
	PeriodEnd  time.Time     `json:"period_end"`
	Status     Status        `json:"status"`
	Ratios     []RatioResult `json:"ratios"`
	Thresholds Thresholds    `json:"thresholds"`
	Missing    []string      `json:"missing,omitempty"`  // absent required metrics
	Violated   []string      `json:"violated,omitempty"` // ratio names over their cap
	Citations  []Citation    `json:"citations,omitempty"`
	FilingID   string        `json:"filing_id"`
	ComputedAt time.Time     `json:"computed_at"`
}

// Transition is a change in effective compliance status between two
// chronologically adjacent periods. Derived, never stored on its own.
type Transition struct {
	SecurityID    string    `json:"security_id"`
	From          Status    `json:"from"`
	To            Status    `json:"to"`
	EffectiveDate time.Time `json:"effective_date"`
}

// Key returns the deduplication key for the transition
func (t Transition) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s", t.SecurityID, t.From, t.To, t.EffectiveDate.Format("2006-01-02"))
}

// AlertState tracks the delivery lifecycle of an alert
type AlertState string

const (
	AlertPending        AlertState = "pending"
	AlertDispatched     AlertState = "dispatched"
	AlertDeliveryFailed AlertState = "delivery_failed"
	AlertSuperseded     AlertState = "superseded"
)

// AlertRecord is the dispatch record for one transition. At most one
// exists per (security, from, to, effective date).
type AlertRecord struct {
	ID            string     `json:"id"`
	SecurityID    string     `json:"security_id"`
	From          Status     `json:"from"`
	To            Status     `json:"to"`
	EffectiveDate time.Time  `json:"effective_date"`
	State         AlertState `json:"state"`
	RequestID     string     `json:"request_id"` // delivery-channel request id
	Attempts      int        `json:"attempts"`
	DispatchedAt  time.Time  `json:"dispatched_at"`
}

// Transition reconstructs the transition this record was dispatched for
func (a *AlertRecord) Transition() Transition {
	return Transition{
		SecurityID:    a.SecurityID,
		From:          a.From,
		To:            a.To,
		EffectiveDate: a.EffectiveDate,
	}
}
