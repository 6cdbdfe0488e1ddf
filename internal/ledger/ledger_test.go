package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halallens/screener/internal/contracts"
	"github.com/halallens/screener/internal/store/memory"
	"github.com/halallens/screener/pkg/config"
	"github.com/halallens/screener/pkg/logger"
)

func newTestLedger() (*Ledger, *memory.AlertStore) {
	alerts := memory.NewAlertStore()
	cfg := config.ScreeningConfig{OutOfOrderGraceDays: 93}
	log := logger.New(&config.Config{Env: "test", LogLevel: "error", LogFormat: "json"})
	return New(memory.NewVerdictStore(), alerts, cfg, log), alerts
}

func verdictAt(status contracts.Status, periodEnd, computedAt time.Time) *contracts.Verdict {
	return &contracts.Verdict{
		SecurityID: "BSE:500325",
		PeriodEnd:  periodEnd,
		Status:     status,
		ComputedAt: computedAt,
	}
}

var (
	q1 = time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	q2 = time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	q3 = time.Date(2025, 9, 30, 0, 0, 0, 0, time.UTC)
)

func TestAppendEmitsTransitions(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	// first verdict transitions from the InsufficientData default
	tr, err := l.Append(ctx, verdictAt(contracts.StatusCompliant, q1, q1.Add(time.Hour)))
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, contracts.StatusInsufficientData, tr.From)
	assert.Equal(t, contracts.StatusCompliant, tr.To)
	assert.Equal(t, q1, tr.EffectiveDate)

	// unchanged status is not a transition
	tr, err = l.Append(ctx, verdictAt(contracts.StatusCompliant, q2, q2.Add(time.Hour)))
	require.NoError(t, err)
	assert.Nil(t, tr)

	tr, err = l.Append(ctx, verdictAt(contracts.StatusNonCompliant, q3, q3.Add(time.Hour)))
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, contracts.StatusCompliant, tr.From)
	assert.Equal(t, contracts.StatusNonCompliant, tr.To)
}

func TestAppendRejectsBeyondGraceWindow(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	_, err := l.Append(ctx, verdictAt(contracts.StatusCompliant, q3, q3.Add(time.Hour)))
	require.NoError(t, err)

	// two quarters back is outside the 93-day grace window
	_, err = l.Append(ctx, verdictAt(contracts.StatusCompliant, q1, q3.Add(2*time.Hour)))
	assert.True(t, errors.Is(err, contracts.ErrOutOfOrderVerdict))
}

func TestAppendWithinGraceWindowOrdersByPeriod(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	// q3 arrives before q2; q2 is within the grace window
	_, err := l.Append(ctx, verdictAt(contracts.StatusNonCompliant, q3, q3.Add(time.Hour)))
	require.NoError(t, err)
	_, err = l.Append(ctx, verdictAt(contracts.StatusCompliant, q2, q3.Add(2*time.Hour)))
	require.NoError(t, err)

	// statusAsOf follows period-end ordering, not submission ordering
	status, err := l.StatusAsOf(ctx, "BSE:500325", q2.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusCompliant, status)

	status, err = l.StatusAsOf(ctx, "BSE:500325", q3)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusNonCompliant, status)
}

func TestStatusAsOfEmptyLedger(t *testing.T) {
	l, _ := newTestLedger()

	status, err := l.StatusAsOf(context.Background(), "BSE:500325", q1)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusInsufficientData, status)
}

func TestStatusAsOfTieBreakByComputedAt(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	// a structured re-filing re-screens the same period later
	_, err := l.Append(ctx, verdictAt(contracts.StatusNonCompliant, q1, q1.Add(time.Hour)))
	require.NoError(t, err)
	_, err = l.Append(ctx, verdictAt(contracts.StatusCompliant, q1, q1.Add(2*time.Hour)))
	require.NoError(t, err)

	status, err := l.StatusAsOf(ctx, "BSE:500325", q1)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusCompliant, status)

	// both verdicts remain in history
	history, err := l.History(ctx, "BSE:500325", q1, q1)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestTransitionsSince(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	_, err := l.Append(ctx, verdictAt(contracts.StatusCompliant, q1, q1.Add(time.Hour)))
	require.NoError(t, err)
	_, err = l.Append(ctx, verdictAt(contracts.StatusNonCompliant, q2, q2.Add(time.Hour)))
	require.NoError(t, err)
	_, err = l.Append(ctx, verdictAt(contracts.StatusNonCompliant, q3, q3.Add(time.Hour)))
	require.NoError(t, err)

	all, err := l.TransitionsSince(ctx, "BSE:500325", time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, contracts.StatusCompliant, all[1].From)
	assert.Equal(t, contracts.StatusNonCompliant, all[1].To)

	recent, err := l.TransitionsSince(ctx, "BSE:500325", q2)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, q2, recent[0].EffectiveDate)
}

func TestBackfillSupersedesInvalidAlerts(t *testing.T) {
	l, alerts := newTestLedger()
	ctx := context.Background()

	// only q2 is known: transition InsufficientData -> NonCompliant
	tr, err := l.Append(ctx, verdictAt(contracts.StatusNonCompliant, q2, q2.Add(time.Hour)))
	require.NoError(t, err)
	require.NotNil(t, tr)

	record, created, err := alerts.CreateIfAbsent(ctx, &contracts.AlertRecord{
		SecurityID:    tr.SecurityID,
		From:          tr.From,
		To:            tr.To,
		EffectiveDate: tr.EffectiveDate,
		State:         contracts.AlertDispatched,
	})
	require.NoError(t, err)
	require.True(t, created)

	// the late q1 filing was already non-compliant, so the q2
	// transition never happened
	affected, err := l.Backfill(ctx, verdictAt(contracts.StatusNonCompliant, q1, q2.Add(2*time.Hour)))
	require.NoError(t, err)
	require.Len(t, affected, 1)
	assert.Equal(t, q1, affected[0].EffectiveDate)
	assert.Equal(t, contracts.StatusInsufficientData, affected[0].From)
	assert.Equal(t, contracts.StatusNonCompliant, affected[0].To)

	stored, err := alerts.ListBySecurity(ctx, "BSE:500325")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, record.ID, stored[0].ID)
	assert.Equal(t, contracts.AlertSuperseded, stored[0].State)
}

func TestDeriveTransitionsSkipsSupersededPeriodEntries(t *testing.T) {
	verdicts := []*contracts.Verdict{
		verdictAt(contracts.StatusNonCompliant, q1, q1.Add(time.Hour)),
		verdictAt(contracts.StatusCompliant, q1, q1.Add(2*time.Hour)),
		verdictAt(contracts.StatusCompliant, q2, q2.Add(time.Hour)),
	}

	out := deriveTransitions(verdicts)
	require.Len(t, out, 1)
	assert.Equal(t, contracts.StatusInsufficientData, out[0].From)
	assert.Equal(t, contracts.StatusCompliant, out[0].To)
	assert.Equal(t, q1, out[0].EffectiveDate)
}
