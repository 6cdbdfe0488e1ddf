package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halallens/screener/internal/alert"
	"github.com/halallens/screener/internal/contracts"
	"github.com/halallens/screener/internal/extract"
	"github.com/halallens/screener/internal/ledger"
	"github.com/halallens/screener/internal/screen"
	"github.com/halallens/screener/pkg/config"
	"github.com/halallens/screener/pkg/logger"
)

// DocumentFetcher retrieves a raw filing body by its object-store key
type DocumentFetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// BatchReport summarizes one pipeline run
type BatchReport struct {
	RunID                 string                 `json:"run_id"`
	Total                 int                    `json:"total"`
	Succeeded             int                    `json:"succeeded"`
	ExtractionFailed      int                    `json:"extraction_failed"`
	ScreeningInsufficient int                    `json:"screening_insufficient"`
	LedgerRejected        int                    `json:"ledger_rejected"`
	DeliveryFailed        int                    `json:"delivery_failed"`
	Transitions           []contracts.Transition `json:"transitions"`
	StartedAt             time.Time              `json:"started_at"`
	FinishedAt            time.Time              `json:"finished_at"`
}

// Processing outcomes recorded against the filing
const (
	outcomeSucceeded        = "succeeded"
	outcomeExtractionFailed = "extraction_failed"
	outcomeInsufficient     = "screening_insufficient"
	outcomeLedgerRejected   = "ledger_rejected"
)

// Orchestrator runs pending filings through extraction, screening,
// ledger append and alert dispatch. Filings for one security are
// processed in period-end order under that security's lock; filings
// for different securities run concurrently on the worker pool. A
// failure is scoped to its filing and never aborts the batch.
type Orchestrator struct {
	securities contracts.SecurityRepository
	filings    contracts.FilingRepository
	facts      contracts.FactRepository
	fetcher    DocumentFetcher
	registry   *extract.Registry
	engine     *screen.Engine
	ledger     *ledger.Ledger
	dispatcher *alert.Dispatcher
	locks      *KeyLock
	cfg        config.PipelineConfig
	logger     *logger.Logger
}

// NewOrchestrator wires the pipeline stages together
func NewOrchestrator(
	securities contracts.SecurityRepository,
	filings contracts.FilingRepository,
	facts contracts.FactRepository,
	fetcher DocumentFetcher,
	registry *extract.Registry,
	engine *screen.Engine,
	ldg *ledger.Ledger,
	dispatcher *alert.Dispatcher,
	cfg config.PipelineConfig,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		securities: securities,
		filings:    filings,
		facts:      facts,
		fetcher:    fetcher,
		registry:   registry,
		engine:     engine,
		ledger:     ldg,
		dispatcher: dispatcher,
		locks:      NewKeyLock(),
		cfg:        cfg,
		logger:     log.WithField("module", "pipeline"),
	}
}

// RunPending loads pending filings and runs them as one batch
func (o *Orchestrator) RunPending(ctx context.Context, limit int) (*BatchReport, error) {
	pending, err := o.filings.GetPending(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load pending filings: %w", err)
	}
	return o.RunBatch(ctx, pending), nil
}

// RunBatch processes the given filings and reports per-outcome counts
// plus the transitions dispatched. Cancellation is cooperative: groups
// already dequeued run to completion so no filing is left with a
// partial fact set, but no new group starts afterwards.
func (o *Orchestrator) RunBatch(ctx context.Context, filings []*contracts.Filing) *BatchReport {
	report := &BatchReport{
		RunID:     uuid.New().String(),
		Total:     len(filings),
		StartedAt: time.Now().UTC(),
	}

	groups := groupBySecurity(filings)

	o.logger.WithFields(map[string]interface{}{
		"run_id":     report.RunID,
		"filings":    len(filings),
		"securities": len(groups),
		"workers":    o.cfg.Workers,
	}).Info("Batch run started")

	jobs := make(chan []*contracts.Filing)
	var mu sync.Mutex
	var wg sync.WaitGroup

	workers := o.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for group := range jobs {
				o.processGroup(ctx, group, report, &mu)
			}
		}()
	}

feed:
	for _, group := range groups {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			// stop dequeueing; in-flight groups complete
			break feed
		case jobs <- group:
		}
	}
	close(jobs)
	wg.Wait()

	report.FinishedAt = time.Now().UTC()

	o.logger.WithFields(map[string]interface{}{
		"run_id":                 report.RunID,
		"succeeded":              report.Succeeded,
		"extraction_failed":      report.ExtractionFailed,
		"screening_insufficient": report.ScreeningInsufficient,
		"ledger_rejected":        report.LedgerRejected,
		"delivery_failed":        report.DeliveryFailed,
		"transitions":            len(report.Transitions),
		"duration":               report.FinishedAt.Sub(report.StartedAt),
	}).Info("Batch run finished")

	return report
}

// groupBySecurity partitions filings per security, each group ordered
// by period-end so ledger appends happen chronologically.
func groupBySecurity(filings []*contracts.Filing) [][]*contracts.Filing {
	byID := map[string][]*contracts.Filing{}
	var order []string
	for _, f := range filings {
		if _, ok := byID[f.SecurityID]; !ok {
			order = append(order, f.SecurityID)
		}
		byID[f.SecurityID] = append(byID[f.SecurityID], f)
	}

	out := make([][]*contracts.Filing, 0, len(order))
	for _, id := range order {
		group := byID[id]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].PeriodEnd.Before(group[j].PeriodEnd)
		})
		out = append(out, group)
	}
	return out
}

func (o *Orchestrator) processGroup(ctx context.Context, group []*contracts.Filing, report *BatchReport, mu *sync.Mutex) {
	unlock := o.locks.Lock(group[0].SecurityID)
	defer unlock()

	for _, filing := range group {
		outcome, transition, deliveryFailed := o.processFiling(ctx, filing)

		if err := o.filings.MarkProcessed(ctx, filing.ID, outcome); err != nil {
			o.logger.WithError(err).WithField("filing_id", filing.ID).Error("Failed to record filing outcome")
		}

		mu.Lock()
		switch outcome {
		case outcomeSucceeded:
			report.Succeeded++
		case outcomeExtractionFailed:
			report.ExtractionFailed++
		case outcomeInsufficient:
			report.ScreeningInsufficient++
		case outcomeLedgerRejected:
			report.LedgerRejected++
		}
		if deliveryFailed {
			report.DeliveryFailed++
		}
		if transition != nil {
			report.Transitions = append(report.Transitions, *transition)
		}
		mu.Unlock()
	}
}

// processFiling runs one filing through the full pipeline. Returns the
// outcome, the dispatched transition if any, and whether delivery
// exhausted its retries.
func (o *Orchestrator) processFiling(ctx context.Context, filing *contracts.Filing) (string, *contracts.Transition, bool) {
	log := o.logger.WithFields(map[string]interface{}{
		"filing_id":   filing.ID,
		"security_id": filing.SecurityID,
	})

	facts, err := o.extractFiling(ctx, filing)
	if err != nil {
		log.WithError(err).Error("Extraction failed")
		return outcomeExtractionFailed, nil, false
	}

	security, err := o.securities.GetByID(ctx, filing.SecurityID)
	if err != nil {
		log.WithError(err).Error("Unknown security")
		return outcomeExtractionFailed, nil, false
	}

	verdict := o.engine.Screen(security, filing, facts)

	transition, err := o.ledger.Append(ctx, verdict)
	if err != nil {
		if errors.Is(err, contracts.ErrOutOfOrderVerdict) {
			log.WithError(err).Warn("Verdict rejected as out of order")
		} else {
			log.WithError(err).Error("Ledger append failed")
		}
		return outcomeLedgerRejected, nil, false
	}

	var dispatched *contracts.Transition
	deliveryFailed := false
	if transition != nil {
		dctx, cancel := context.WithTimeout(ctx, o.cfg.DeliveryTimeout)
		_, err := o.dispatcher.Dispatch(dctx, *transition, verdict)
		cancel()
		if err != nil {
			// the verdict stands; only delivery is degraded
			log.WithError(err).Error("Alert dispatch failed")
			deliveryFailed = true
		} else {
			dispatched = transition
		}
	}

	if verdict.Status == contracts.StatusInsufficientData {
		return outcomeInsufficient, dispatched, deliveryFailed
	}
	return outcomeSucceeded, dispatched, deliveryFailed
}

// extractFiling fetches the raw body and extracts facts under the
// per-filing extraction timeout. Extracted facts are persisted before
// screening so re-runs can skip extraction.
func (o *Orchestrator) extractFiling(ctx context.Context, filing *contracts.Filing) ([]contracts.Fact, error) {
	ectx, cancel := context.WithTimeout(ctx, o.cfg.ExtractTimeout)
	defer cancel()

	body, err := o.fetcher.Fetch(ectx, filing.DocumentKey)
	if err != nil {
		return nil, fmt.Errorf("fetch document %s: %w", filing.DocumentKey, err)
	}

	facts, warnings, err := o.registry.Extract(filing, body)
	if err != nil {
		return nil, err
	}
	if err := ectx.Err(); err != nil {
		return nil, fmt.Errorf("extraction timed out: %w", err)
	}

	for _, w := range warnings {
		o.logger.WithFields(map[string]interface{}{
			"filing_id": filing.ID,
			"metric":    string(w.Metric),
			"kind":      string(w.Kind),
			"detail":    w.Detail,
		}).Warn("Extraction warning")
	}

	if len(facts) > 0 {
		if err := o.facts.SaveBatch(ctx, facts); err != nil {
			return nil, fmt.Errorf("persist facts: %w", err)
		}
	}
	return facts, nil
}

// Backfill forces an out-of-order verdict into the ledger for one
// already-extracted filing, then re-dispatches the recomputed
// transitions. Alerts invalidated by the reordering are superseded by
// the ledger before this returns.
func (o *Orchestrator) Backfill(ctx context.Context, filingID string) ([]contracts.Transition, error) {
	filing, err := o.filings.GetByID(ctx, filingID)
	if err != nil {
		return nil, fmt.Errorf("load filing: %w", err)
	}

	unlock := o.locks.Lock(filing.SecurityID)
	defer unlock()

	facts, err := o.facts.GetByFiling(ctx, filingID)
	if err != nil {
		return nil, fmt.Errorf("load facts: %w", err)
	}
	if len(facts) == 0 {
		if facts, err = o.extractFiling(ctx, filing); err != nil {
			return nil, err
		}
	}

	security, err := o.securities.GetByID(ctx, filing.SecurityID)
	if err != nil {
		return nil, fmt.Errorf("load security: %w", err)
	}

	verdict := o.engine.Screen(security, filing, facts)

	transitions, err := o.ledger.Backfill(ctx, verdict)
	if err != nil {
		return nil, err
	}

	for _, t := range transitions {
		dctx, cancel := context.WithTimeout(ctx, o.cfg.DeliveryTimeout)
		v, verr := o.ledger.VerdictAsOf(ctx, t.SecurityID, t.EffectiveDate)
		if verr != nil {
			v = verdict
		}
		if _, err := o.dispatcher.Dispatch(dctx, t, v); err != nil {
			o.logger.WithError(err).WithField("transition_key", t.Key()).Error("Backfill dispatch failed")
		}
		cancel()
	}

	if err := o.filings.MarkProcessed(ctx, filing.ID, outcomeSucceeded); err != nil {
		o.logger.WithError(err).WithField("filing_id", filing.ID).Error("Failed to record filing outcome")
	}

	return transitions, nil
}
