package alert

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/halallens/screener/internal/contracts"
	"github.com/halallens/screener/pkg/config"
	"github.com/halallens/screener/pkg/httputil"
	"github.com/halallens/screener/pkg/logger"
)

// NotificationRequest is the payload handed to the delivery channel.
// It carries everything downstream explanation generation needs: the
// transition, the contributing ratios, and a citation into the source
// filing for every figure that determined the new status.
type NotificationRequest struct {
	RequestID  string                  `json:"request_id"`
	Transition contracts.Transition    `json:"transition"`
	Ratios     []contracts.RatioResult `json:"ratios"`
	Thresholds contracts.Thresholds    `json:"thresholds"`
	Citations  []contracts.Citation    `json:"citations"`
}

// DeliveryChannel hands a notification to the external alert system.
// Delivery is hand-off only; the channel does not track alert state.
type DeliveryChannel interface {
	Deliver(ctx context.Context, req *NotificationRequest) error
}

// HTTPDelivery posts notifications to a webhook endpoint. Retries are
// owned by the dispatcher, so the underlying client only rate-limits.
type HTTPDelivery struct {
	client   *httputil.Client
	endpoint string
	logger   *logger.Logger
}

// NewHTTPDelivery creates the webhook delivery channel
func NewHTTPDelivery(cfg config.DeliveryConfig, log *logger.Logger) *HTTPDelivery {
	client := httputil.NewWithTimeout(log, 30*time.Second).
		DisableRetry().
		WithRateLimit(cfg.RatePerSecond)

	return &HTTPDelivery{
		client:   client,
		endpoint: cfg.EndpointURL,
		logger:   log.WithField("module", "alert"),
	}
}

// Deliver posts one notification. Any non-2xx response is a failed
// attempt for the dispatcher to retry.
func (d *HTTPDelivery) Deliver(ctx context.Context, req *NotificationRequest) error {
	resp, err := d.client.PostJSON(ctx, d.endpoint, req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
	}
	return nil
}
