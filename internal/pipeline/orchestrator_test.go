package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halallens/screener/internal/alert"
	"github.com/halallens/screener/internal/contracts"
	"github.com/halallens/screener/internal/extract"
	"github.com/halallens/screener/internal/ledger"
	"github.com/halallens/screener/internal/screen"
	"github.com/halallens/screener/internal/store/memory"
	"github.com/halallens/screener/pkg/config"
	"github.com/halallens/screener/pkg/logger"
)

// fakeFetcher serves filing bodies from a map keyed by document key
type fakeFetcher struct {
	bodies map[string][]byte
}

func (f *fakeFetcher) Fetch(_ context.Context, key string) ([]byte, error) {
	body, ok := f.bodies[key]
	if !ok {
		return nil, fmt.Errorf("document %s not found", key)
	}
	return body, nil
}

// okChannel accepts every delivery
type okChannel struct {
	mu       sync.Mutex
	requests []*alert.NotificationRequest
}

func (c *okChannel) Deliver(_ context.Context, req *alert.NotificationRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	return nil
}

// failChannel rejects every delivery
type failChannel struct{}

func (c *failChannel) Deliver(context.Context, *alert.NotificationRequest) error {
	return errors.New("endpoint unavailable")
}

type fixture struct {
	orch       *Orchestrator
	securities *memory.SecurityStore
	filings    *memory.FilingStore
	ledger     *ledger.Ledger
	alerts     *memory.AlertStore
	fetcher    *fakeFetcher
	channel    alert.DeliveryChannel
}

func newFixture(t *testing.T, channel alert.DeliveryChannel) *fixture {
	t.Helper()

	log := logger.New(&config.Config{Env: "test", LogLevel: "error", LogFormat: "json"})
	screening := config.ScreeningConfig{
		DebtRatioCap:              0.30,
		NonPermissibleIncomeCap:   0.05,
		IlliquidAssetsCap:         0.30,
		ExtractionConfidenceFloor: 0.60,
		ReportingCurrency:         "INR",
		OutOfOrderGraceDays:       93,
	}

	securities := memory.NewSecurityStore()
	filings := memory.NewFilingStore()
	facts := memory.NewFactStore()
	verdicts := memory.NewVerdictStore()
	alerts := memory.NewAlertStore()

	ldg := ledger.New(verdicts, alerts, screening, log)
	dispatcher := alert.NewDispatcher(alerts, channel, config.DeliveryConfig{
		RetryCeiling: 2,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
	}, log)

	fetcher := &fakeFetcher{bodies: map[string][]byte{}}

	orch := NewOrchestrator(
		securities,
		filings,
		facts,
		fetcher,
		extract.NewRegistry(screening, log),
		screen.NewEngine(screening, log),
		ldg,
		dispatcher,
		config.PipelineConfig{
			Workers:         3,
			ExtractTimeout:  time.Second,
			DeliveryTimeout: time.Second,
		},
		log,
	)

	return &fixture{
		orch:       orch,
		securities: securities,
		filings:    filings,
		ledger:     ldg,
		alerts:     alerts,
		fetcher:    fetcher,
		channel:    channel,
	}
}

const (
	compliantBody = `Balance Sheet
Total Debt 25
Cash and Cash Equivalents 20
Statement of Profit and Loss
Total Revenue 100
Non-Permissible Income 3
Market Capitalisation 100`

	nonCompliantBody = `Balance Sheet
Total Debt 35
Cash and Cash Equivalents 20
Statement of Profit and Loss
Total Revenue 100
Non-Permissible Income 3
Market Capitalisation 100`

	incompleteBody = `Balance Sheet
Total Debt 25
Cash and Cash Equivalents 20
Statement of Profit and Loss
Total Revenue 100
Market Capitalisation 100`
)

func (fx *fixture) addSecurity(t *testing.T, id string) {
	t.Helper()
	exchange, symbol := "BSE", id
	require.NoError(t, fx.securities.Save(context.Background(), &contracts.Security{
		ID:       contracts.SecurityID(exchange, symbol),
		Exchange: exchange,
		Symbol:   symbol,
		Currency: "INR",
	}))
}

func (fx *fixture) addFiling(t *testing.T, id, securityID string, periodEnd time.Time, body string) *contracts.Filing {
	t.Helper()
	filing := &contracts.Filing{
		ID:          id,
		SecurityID:  securityID,
		Type:        contracts.FilingQuarterly,
		PeriodEnd:   periodEnd,
		IngestedAt:  time.Now().UTC(),
		Format:      contracts.FormatText,
		DocumentKey: "docs/" + id,
		Currency:    "INR",
	}
	require.NoError(t, fx.filings.Save(context.Background(), filing))
	fx.fetcher.bodies[filing.DocumentKey] = []byte(body)
	return filing
}

var (
	pq1 = time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	pq2 = time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
)

func TestRunBatchEndToEnd(t *testing.T) {
	channel := &okChannel{}
	fx := newFixture(t, channel)
	ctx := context.Background()

	fx.addSecurity(t, "500325")
	fx.addSecurity(t, "500400")
	f1 := fx.addFiling(t, "f1", "BSE:500325", pq1, compliantBody)
	f2 := fx.addFiling(t, "f2", "BSE:500325", pq2, nonCompliantBody)
	f3 := fx.addFiling(t, "f3", "BSE:500400", pq1, incompleteBody)

	report, err := fx.orch.RunPending(ctx, 0)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.ScreeningInsufficient)
	assert.Equal(t, 0, report.ExtractionFailed)
	assert.Equal(t, 0, report.LedgerRejected)
	assert.NotEmpty(t, report.RunID)

	// two status changes for 500325, none for 500400's first
	// InsufficientData verdict
	assert.Len(t, report.Transitions, 2)
	assert.Len(t, channel.requests, 2)

	status, err := fx.ledger.StatusAsOf(ctx, "BSE:500325", pq2)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusNonCompliant, status)

	status, err = fx.ledger.StatusAsOf(ctx, "BSE:500400", pq1)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusInsufficientData, status)

	for _, f := range []*contracts.Filing{f1, f2, f3} {
		_, done := fx.filings.Outcome(f.ID)
		assert.True(t, done, "filing %s must be marked processed", f.ID)
	}
}

func TestRunBatchOrdersBySecurityPeriod(t *testing.T) {
	fx := newFixture(t, &okChannel{})
	ctx := context.Background()

	fx.addSecurity(t, "500325")
	// later period listed first; grouping must reorder by period-end
	f2 := fx.addFiling(t, "f2", "BSE:500325", pq2, nonCompliantBody)
	f1 := fx.addFiling(t, "f1", "BSE:500325", pq1, compliantBody)

	report := fx.orch.RunBatch(ctx, []*contracts.Filing{f2, f1})

	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 0, report.LedgerRejected)

	status, err := fx.ledger.StatusAsOf(ctx, "BSE:500325", pq1)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusCompliant, status)

	status, err = fx.ledger.StatusAsOf(ctx, "BSE:500325", pq2)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusNonCompliant, status)
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	fx := newFixture(t, &okChannel{})
	ctx := context.Background()

	fx.addSecurity(t, "500325")
	fx.addSecurity(t, "500400")
	broken := fx.addFiling(t, "f1", "BSE:500325", pq1, compliantBody)
	delete(fx.fetcher.bodies, broken.DocumentKey)
	ok := fx.addFiling(t, "f2", "BSE:500400", pq1, compliantBody)

	report, err := fx.orch.RunPending(ctx, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, report.ExtractionFailed)
	assert.Equal(t, 1, report.Succeeded)

	outcome, done := fx.filings.Outcome(ok.ID)
	require.True(t, done)
	assert.Equal(t, "succeeded", outcome)
}

func TestRunBatchCancelledBeforeStart(t *testing.T) {
	fx := newFixture(t, &okChannel{})

	fx.addSecurity(t, "500325")
	f := fx.addFiling(t, "f1", "BSE:500325", pq1, compliantBody)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := fx.orch.RunBatch(ctx, []*contracts.Filing{f})

	assert.Equal(t, 1, report.Total)
	assert.Equal(t, 0, report.Succeeded)
	_, done := fx.filings.Outcome(f.ID)
	assert.False(t, done, "no filing may be dequeued after cancellation")
}

func TestRunBatchDeliveryFailure(t *testing.T) {
	fx := newFixture(t, &failChannel{})
	ctx := context.Background()

	fx.addSecurity(t, "500325")
	fx.addFiling(t, "f1", "BSE:500325", pq1, nonCompliantBody)

	report, err := fx.orch.RunPending(ctx, 0)
	require.NoError(t, err)

	// the verdict stands even though delivery exhausted its retries
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.DeliveryFailed)
	assert.Empty(t, report.Transitions)

	status, err := fx.ledger.StatusAsOf(ctx, "BSE:500325", pq1)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusNonCompliant, status)

	records, err := fx.alerts.ListBySecurity(ctx, "BSE:500325")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, contracts.AlertDeliveryFailed, records[0].State)
}

func TestBackfillSupersedesAndRedispatches(t *testing.T) {
	channel := &okChannel{}
	fx := newFixture(t, channel)
	ctx := context.Background()

	fx.addSecurity(t, "500325")
	fx.addFiling(t, "f2", "BSE:500325", pq2, nonCompliantBody)

	report, err := fx.orch.RunPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, report.Transitions, 1)

	// the late q1 filing is already non-compliant, so the q2
	// transition never happened
	fx.addFiling(t, "f1", "BSE:500325", pq1, nonCompliantBody)
	transitions, err := fx.orch.Backfill(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, pq1, transitions[0].EffectiveDate)

	records, err := fx.alerts.ListBySecurity(ctx, "BSE:500325")
	require.NoError(t, err)
	require.Len(t, records, 2)

	states := map[time.Time]contracts.AlertState{}
	for _, r := range records {
		states[r.EffectiveDate] = r.State
	}
	assert.Equal(t, contracts.AlertSuperseded, states[pq2])
	assert.Equal(t, contracts.AlertDispatched, states[pq1])
}

func TestGroupBySecurity(t *testing.T) {
	filings := []*contracts.Filing{
		{ID: "a", SecurityID: "BSE:1", PeriodEnd: pq2},
		{ID: "b", SecurityID: "BSE:2", PeriodEnd: pq1},
		{ID: "c", SecurityID: "BSE:1", PeriodEnd: pq1},
	}

	groups := groupBySecurity(filings)
	require.Len(t, groups, 2)
	assert.Equal(t, "c", groups[0][0].ID, "groups are ordered by period-end")
	assert.Equal(t, "a", groups[0][1].ID)
	assert.Equal(t, "b", groups[1][0].ID)
}
