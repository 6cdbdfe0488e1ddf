package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/halallens/screener/internal/contracts"
	"github.com/halallens/screener/pkg/config"
	"github.com/halallens/screener/pkg/logger"
)

// Dispatcher turns status transitions into alert records and hands
// them to the delivery channel. Dispatch is idempotent on the
// transition key; delivery failures are retried with bounded backoff
// and land in a terminal delivery_failed state after exhaustion so
// they are neither dropped nor re-dispatched as new.
type Dispatcher struct {
	alerts       contracts.AlertRepository
	channel      DeliveryChannel
	retryCeiling int
	initialDelay time.Duration
	maxDelay     time.Duration
	logger       *logger.Logger
}

// NewDispatcher creates a dispatcher over the given store and channel
func NewDispatcher(alerts contracts.AlertRepository, channel DeliveryChannel, cfg config.DeliveryConfig, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		alerts:       alerts,
		channel:      channel,
		retryCeiling: cfg.RetryCeiling,
		initialDelay: cfg.InitialDelay,
		maxDelay:     cfg.MaxDelay,
		logger:       log.WithField("module", "alert"),
	}
}

// Dispatch creates and delivers the alert for one transition. A
// transition already dispatched returns the existing record without
// re-notifying. The verdict supplies the figures and citations the
// notification carries.
func (d *Dispatcher) Dispatch(ctx context.Context, transition contracts.Transition, verdict *contracts.Verdict) (*contracts.AlertRecord, error) {
	record := &contracts.AlertRecord{
		ID:            uuid.New().String(),
		SecurityID:    transition.SecurityID,
		From:          transition.From,
		To:            transition.To,
		EffectiveDate: transition.EffectiveDate,
		State:         contracts.AlertPending,
		RequestID:     uuid.New().String(),
	}

	stored, created, err := d.alerts.CreateIfAbsent(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("create alert record: %w", err)
	}
	if !created {
		d.logger.WithFields(map[string]interface{}{
			"security_id":    transition.SecurityID,
			"transition_key": transition.Key(),
			"state":          string(stored.State),
		}).Debug("Transition already dispatched")
		return stored, nil
	}

	req := &NotificationRequest{
		RequestID:  stored.RequestID,
		Transition: transition,
	}
	if verdict != nil {
		req.Ratios = verdict.Ratios
		req.Thresholds = verdict.Thresholds
		req.Citations = verdict.Citations
	}

	attempts, err := d.deliver(ctx, req)
	if err != nil {
		stored.State = contracts.AlertDeliveryFailed
		stored.Attempts = attempts
		if uerr := d.alerts.UpdateState(ctx, stored.ID, contracts.AlertDeliveryFailed, attempts); uerr != nil {
			return stored, fmt.Errorf("record delivery failure: %w", uerr)
		}
		d.logger.WithFields(map[string]interface{}{
			"security_id":    transition.SecurityID,
			"transition_key": transition.Key(),
			"attempts":       attempts,
		}).Error("Alert delivery exhausted retries")
		return stored, fmt.Errorf("transition %s after %d attempts: %w",
			transition.Key(), attempts, contracts.ErrDeliveryFailed)
	}

	stored.State = contracts.AlertDispatched
	stored.Attempts = attempts
	if err := d.alerts.UpdateState(ctx, stored.ID, contracts.AlertDispatched, attempts); err != nil {
		return stored, fmt.Errorf("record dispatch: %w", err)
	}

	d.logger.WithFields(map[string]interface{}{
		"security_id":    transition.SecurityID,
		"transition_key": transition.Key(),
		"attempts":       attempts,
	}).Info("Alert dispatched")
	return stored, nil
}

// deliver attempts the hand-off with exponential backoff up to the
// retry ceiling, returning the attempt count.
func (d *Dispatcher) deliver(ctx context.Context, req *NotificationRequest) (int, error) {
	delay := d.initialDelay

	var err error
	for attempt := 1; ; attempt++ {
		err = d.channel.Deliver(ctx, req)
		if err == nil {
			return attempt, nil
		}
		if attempt >= d.retryCeiling {
			return attempt, err
		}

		d.logger.WithFields(map[string]interface{}{
			"request_id": req.RequestID,
			"attempt":    attempt,
			"delay":      delay,
			"error":      err.Error(),
		}).Warn("Alert delivery failed, retrying")

		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > d.maxDelay {
			delay = d.maxDelay
		}
	}
}
