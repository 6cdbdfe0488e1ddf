package jobs

import (
	"context"
	"fmt"

	"github.com/halallens/screener/internal/pipeline"
	"github.com/halallens/screener/pkg/config"
	"github.com/halallens/screener/pkg/logger"
)

// ScreeningJob runs the pipeline over pending filings on a schedule.
// The crawler ingests filings throughout the day; this job picks them
// up in batches.
type ScreeningJob struct {
	orchestrator *pipeline.Orchestrator
	config       *config.Config
	logger       *logger.Logger
}

// NewScreeningJob creates a new screening job
func NewScreeningJob(orch *pipeline.Orchestrator, cfg *config.Config, log *logger.Logger) *ScreeningJob {
	return &ScreeningJob{
		orchestrator: orch,
		config:       cfg,
		logger:       log,
	}
}

// Name returns the job name
func (j *ScreeningJob) Name() string {
	return "screening_pipeline"
}

// Schedule returns the cron schedule (every 30 minutes, with seconds)
func (j *ScreeningJob) Schedule() string {
	return "0 */30 * * * *"
}

// Run processes all pending filings
func (j *ScreeningJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled screening run")

	report, err := j.orchestrator.RunPending(ctx, 0)
	if err != nil {
		return fmt.Errorf("run pending filings: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"run_id":      report.RunID,
		"total":       report.Total,
		"succeeded":   report.Succeeded,
		"transitions": len(report.Transitions),
	}).Info("Scheduled screening run completed")

	// surface permanently failed deliveries for operator attention
	if report.DeliveryFailed > 0 {
		j.logger.WithField("delivery_failed", report.DeliveryFailed).
			Warn("Some alerts exhausted delivery retries")
	}
	return nil
}
