package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/halallens/screener/internal/contracts"
	"github.com/halallens/screener/pkg/config"
	"github.com/halallens/screener/pkg/logger"
)

// Ledger is the append-only compliance history for all securities.
// Current status is always derived from the verdict sequence; there is
// no mutable "current status" field that could drift from history.
//
// Callers serialize appends per security (the orchestrator holds a
// per-security key while running a filing through the pipeline), so
// the ledger itself performs no locking.
type Ledger struct {
	verdicts contracts.VerdictRepository
	alerts   contracts.AlertRepository
	grace    time.Duration
	logger   *logger.Logger
}

// New creates a ledger over the given stores
func New(verdicts contracts.VerdictRepository, alerts contracts.AlertRepository, cfg config.ScreeningConfig, log *logger.Logger) *Ledger {
	return &Ledger{
		verdicts: verdicts,
		alerts:   alerts,
		grace:    time.Duration(cfg.OutOfOrderGraceDays) * 24 * time.Hour,
		logger:   log.WithField("module", "ledger"),
	}
}

// Append records a verdict and reports the status transition it causes,
// if any. A verdict whose period-end predates the latest recorded
// period by more than the grace window is rejected with
// ErrOutOfOrderVerdict; use Backfill to insert it deliberately.
func (l *Ledger) Append(ctx context.Context, v *contracts.Verdict) (*contracts.Transition, error) {
	latest, err := l.verdicts.LatestAsOf(ctx, v.SecurityID, maxTime)
	if err != nil {
		return nil, fmt.Errorf("load latest verdict: %w", err)
	}
	if latest != nil && v.PeriodEnd.Before(latest.PeriodEnd.Add(-l.grace)) {
		return nil, fmt.Errorf("period %s predates latest %s beyond grace window: %w",
			v.PeriodEnd.Format("2006-01-02"), latest.PeriodEnd.Format("2006-01-02"),
			contracts.ErrOutOfOrderVerdict)
	}

	prev, err := l.StatusAsOf(ctx, v.SecurityID, v.PeriodEnd)
	if err != nil {
		return nil, err
	}

	if err := l.verdicts.Append(ctx, v); err != nil {
		return nil, fmt.Errorf("append verdict: %w", err)
	}

	l.logger.WithFields(map[string]interface{}{
		"security_id": v.SecurityID,
		"period_end":  v.PeriodEnd.Format("2006-01-02"),
		"status":      v.Status.String(),
	}).Info("Verdict appended")

	if prev == v.Status {
		return nil, nil
	}
	return &contracts.Transition{
		SecurityID:    v.SecurityID,
		From:          prev,
		To:            v.Status,
		EffectiveDate: v.PeriodEnd,
	}, nil
}

// Backfill inserts a verdict regardless of ordering and recomputes
// every transition from the insertion point forward, since the
// preceding-status reference has changed for all later periods.
// Alert records for transitions that no longer exist are marked
// superseded; the returned transitions are the now-valid ones at or
// after the insertion point, for the dispatcher to (re)dispatch.
func (l *Ledger) Backfill(ctx context.Context, v *contracts.Verdict) ([]contracts.Transition, error) {
	if err := l.verdicts.Append(ctx, v); err != nil {
		return nil, fmt.Errorf("append verdict: %w", err)
	}

	all, err := l.verdicts.ListBySecurity(ctx, v.SecurityID)
	if err != nil {
		return nil, fmt.Errorf("load verdict history: %w", err)
	}

	transitions := deriveTransitions(all)

	var affected []contracts.Transition
	valid := map[string]bool{}
	for _, t := range transitions {
		valid[t.Key()] = true
		if !t.EffectiveDate.Before(v.PeriodEnd) {
			affected = append(affected, t)
		}
	}

	// Dispatched alerts whose transition vanished from the recomputed
	// sequence are flagged, never deleted.
	records, err := l.alerts.ListBySecuritySince(ctx, v.SecurityID, v.PeriodEnd)
	if err != nil {
		return nil, fmt.Errorf("load alert records: %w", err)
	}
	var stale []string
	for _, r := range records {
		if r.State == contracts.AlertSuperseded {
			continue
		}
		if !valid[r.Transition().Key()] {
			stale = append(stale, r.ID)
		}
	}
	if len(stale) > 0 {
		if err := l.alerts.MarkSuperseded(ctx, stale); err != nil {
			return nil, fmt.Errorf("supersede alerts: %w", err)
		}
		l.logger.WithFields(map[string]interface{}{
			"security_id": v.SecurityID,
			"superseded":  len(stale),
		}).Warn("Backfill invalidated dispatched alerts")
	}

	return affected, nil
}

// StatusAsOf derives the effective status on a date: the latest
// verdict with period-end on or before the date, ties broken by
// computed-at. No verdict means InsufficientData, never a fault.
func (l *Ledger) StatusAsOf(ctx context.Context, securityID string, date time.Time) (contracts.Status, error) {
	v, err := l.verdicts.LatestAsOf(ctx, securityID, date)
	if err != nil {
		return "", fmt.Errorf("load verdict as of %s: %w", date.Format("2006-01-02"), err)
	}
	if v == nil {
		return contracts.StatusInsufficientData, nil
	}
	return v.Status, nil
}

// VerdictAsOf returns the full effective verdict on a date, nil when
// the ledger holds nothing at or before it.
func (l *Ledger) VerdictAsOf(ctx context.Context, securityID string, date time.Time) (*contracts.Verdict, error) {
	return l.verdicts.LatestAsOf(ctx, securityID, date)
}

// History returns the verdicts for a security within a date range,
// ordered by period-end then computed-at.
func (l *Ledger) History(ctx context.Context, securityID string, from, to time.Time) ([]*contracts.Verdict, error) {
	return l.verdicts.ListRange(ctx, securityID, from, to)
}

// TransitionsSince derives the transition sequence for a security and
// returns those effective on or after the given timestamp, in order.
func (l *Ledger) TransitionsSince(ctx context.Context, securityID string, since time.Time) ([]contracts.Transition, error) {
	all, err := l.verdicts.ListBySecurity(ctx, securityID)
	if err != nil {
		return nil, fmt.Errorf("load verdict history: %w", err)
	}

	var out []contracts.Transition
	for _, t := range deriveTransitions(all) {
		if !t.EffectiveDate.Before(since) {
			out = append(out, t)
		}
	}
	return out, nil
}

// maxTime is far enough in the future to mean "latest overall"
var maxTime = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// deriveTransitions walks the effective status sequence and emits a
// transition at every change. Input is ordered by period-end then
// computed-at; for re-screened periods the latest computed-at verdict
// is the effective one.
func deriveTransitions(verdicts []*contracts.Verdict) []contracts.Transition {
	var out []contracts.Transition

	prev := contracts.StatusInsufficientData
	for i, v := range verdicts {
		// skip superseded entries for the same period
		if i+1 < len(verdicts) && verdicts[i+1].PeriodEnd.Equal(v.PeriodEnd) {
			continue
		}
		if v.Status != prev {
			out = append(out, contracts.Transition{
				SecurityID:    v.SecurityID,
				From:          prev,
				To:            v.Status,
				EffectiveDate: v.PeriodEnd,
			})
		}
		prev = v.Status
	}
	return out
}
