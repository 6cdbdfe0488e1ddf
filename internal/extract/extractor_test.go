package extract

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halallens/screener/internal/contracts"
	"github.com/halallens/screener/pkg/config"
	"github.com/halallens/screener/pkg/logger"
)

func newTestRegistry(floor float64) *Registry {
	cfg := config.ScreeningConfig{
		ExtractionConfidenceFloor: floor,
		ReportingCurrency:         "INR",
	}
	log := logger.New(&config.Config{Env: "test", LogLevel: "error", LogFormat: "json"})
	return NewRegistry(cfg, log)
}

func testFiling(format contracts.SourceFormat) *contracts.Filing {
	return &contracts.Filing{
		ID:         "filing-1",
		SecurityID: "BSE:500325",
		Type:       contracts.FilingQuarterly,
		PeriodEnd:  time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		Format:     format,
		Currency:   "INR",
	}
}

func factByMetric(facts []contracts.Fact, metric contracts.Metric) (contracts.Fact, bool) {
	for _, f := range facts {
		if f.Metric == metric {
			return f, true
		}
	}
	return contracts.Fact{}, false
}

func TestRegistryUnsupportedFormat(t *testing.T) {
	r := newTestRegistry(0.60)

	filing := testFiling("pdf")
	_, _, err := r.Extract(filing, []byte("whatever"))
	assert.True(t, errors.Is(err, contracts.ErrUnsupportedFormat))
}

func TestXBRLExtract(t *testing.T) {
	r := newTestRegistry(0.60)

	body := []byte(`<FinancialReport>
		<TotalDebt>2500000</TotalDebt>
		<MarketCapitalisation>10000000</MarketCapitalisation>
		<NonPermissibleIncome>300000</NonPermissibleIncome>
		<TotalRevenue>10000000</TotalRevenue>
		<CashAndCashEquivalents>2000000</CashAndCashEquivalents>
	</FinancialReport>`)

	facts, warnings, err := r.Extract(testFiling(contracts.FormatXBRL), body)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Len(t, facts, 5)

	debt, ok := factByMetric(facts, contracts.MetricTotalDebt)
	require.True(t, ok)
	assert.Equal(t, 2500000.0, debt.Value)
	assert.Equal(t, 1.0, debt.Confidence)
	assert.False(t, debt.LowConfidence)
	assert.Equal(t, "xbrl:TotalDebt", debt.Locator)
	assert.Equal(t, "INR", debt.Currency)
}

func TestXBRLExtractScaleAttribute(t *testing.T) {
	r := newTestRegistry(0.60)

	body := []byte(`<FinancialReport>
		<TotalDebt scale="thousands">2500</TotalDebt>
	</FinancialReport>`)

	facts, warnings, err := r.Extract(testFiling(contracts.FormatXBRL), body)
	require.NoError(t, err)

	debt, ok := factByMetric(facts, contracts.MetricTotalDebt)
	require.True(t, ok)
	assert.Equal(t, 2500000.0, debt.Value)

	// the other four required metrics are absent
	missing := 0
	for _, w := range warnings {
		if w.Kind == contracts.WarnMissingMetric {
			missing++
		}
	}
	assert.Equal(t, 4, missing)
}

func TestXBRLExtractMalformed(t *testing.T) {
	r := newTestRegistry(0.60)

	_, _, err := r.Extract(testFiling(contracts.FormatXBRL), []byte("<unclosed"))
	assert.Error(t, err)
}

func TestHTMLExtract(t *testing.T) {
	r := newTestRegistry(0.60)

	body := []byte(`<html><body>
		<p>(Rs. in lakhs)</p>
		<h3>Balance Sheet</h3>
		<table>
			<tr><td>Particulars</td><td>Current Period</td></tr>
			<tr><td>Total Borrowings</td><td>1,200</td></tr>
			<tr><td>Cash and Cash Equivalents</td><td>500</td></tr>
		</table>
		<h3>Statement of Profit and Loss</h3>
		<table>
			<tr><td>Revenue from Operations</td><td>4,000</td></tr>
			<tr><td>Interest Income</td><td>100</td></tr>
		</table>
	</body></html>`)

	facts, warnings, err := r.Extract(testFiling(contracts.FormatHTML), body)
	require.NoError(t, err)

	debt, ok := factByMetric(facts, contracts.MetricTotalDebt)
	require.True(t, ok)
	assert.Equal(t, 1200*1e5, debt.Value)
	assert.Contains(t, debt.Locator, "table:0")

	revenue, ok := factByMetric(facts, contracts.MetricTotalRevenue)
	require.True(t, ok)
	assert.Equal(t, 4000*1e5, revenue.Value)

	interest, ok := factByMetric(facts, contracts.MetricInterestIncome)
	require.True(t, ok)
	assert.Equal(t, 100*1e5, interest.Value)

	// market cap and non-permissible income are required but absent
	var missingMetrics []contracts.Metric
	for _, w := range warnings {
		if w.Kind == contracts.WarnMissingMetric {
			missingMetrics = append(missingMetrics, w.Metric)
		}
	}
	assert.Contains(t, missingMetrics, contracts.MetricMarketCap)
	assert.Contains(t, missingMetrics, contracts.MetricNonPermissibleIncome)
}

func TestTextExtract(t *testing.T) {
	r := newTestRegistry(0.60)

	body := []byte(`Statement of Profit and Loss
(Rs. in crores)
Total Revenue 1,000
Non-Permissible Income 30
Balance Sheet
Total Debt 250
Cash and Cash Equivalents 200
Market Capitalisation 1,000`)

	facts, warnings, err := r.Extract(testFiling(contracts.FormatText), body)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Len(t, facts, 5)

	debt, ok := factByMetric(facts, contracts.MetricTotalDebt)
	require.True(t, ok)
	assert.Equal(t, 250*1e7, debt.Value)
	assert.Equal(t, "line:6", debt.Locator)

	// matched inside its expected section, so the bonus applies
	assert.InDelta(t, 0.91, debt.Confidence, 0.001)
	assert.False(t, debt.LowConfidence)
}

func TestTextExtractAmbiguousScale(t *testing.T) {
	r := newTestRegistry(0.60)

	body := []byte(`(in lakhs)
Total Debt 250
(in crores)`)

	facts, warnings, err := r.Extract(testFiling(contracts.FormatText), body)
	require.NoError(t, err)
	assert.Empty(t, facts)

	// the matched metric fails with AmbiguousScale, not the whole filing
	var ambiguous []contracts.Metric
	for _, w := range warnings {
		if w.Kind == contracts.WarnAmbiguousScale {
			ambiguous = append(ambiguous, w.Metric)
		}
	}
	assert.Equal(t, []contracts.Metric{contracts.MetricTotalDebt}, ambiguous)
}

func TestTextExtractLowConfidenceRetained(t *testing.T) {
	// Raise the floor so a less specific label falls below it
	r := newTestRegistry(0.90)

	body := []byte("Borrowings 100")

	facts, _, err := r.Extract(testFiling(contracts.FormatText), body)
	require.NoError(t, err)

	debt, ok := factByMetric(facts, contracts.MetricTotalDebt)
	require.True(t, ok, "low-confidence fact must be retained, not discarded")
	assert.True(t, debt.LowConfidence)
}

func TestKeepBest(t *testing.T) {
	facts := []contracts.Fact{
		{Metric: contracts.MetricTotalDebt, Value: 1, Confidence: 0.5},
		{Metric: contracts.MetricTotalDebt, Value: 2, Confidence: 0.9},
		{Metric: contracts.MetricTotalRevenue, Value: 3, Confidence: 0.8},
	}

	out := keepBest(facts)
	assert.Len(t, out, 2)

	debt, ok := factByMetric(out, contracts.MetricTotalDebt)
	require.True(t, ok)
	assert.Equal(t, 2.0, debt.Value)
}
