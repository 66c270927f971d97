// Package webhook fans events out to subscriber endpoints with bounded
// retry. Delivery is best-effort relative to the triggering operation: a
// failed delivery is recorded on the subscription, never escalated.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/skuline/product-import/internal/catalog"
	"github.com/skuline/product-import/internal/metrics"
)

// Config controls Dispatcher behavior.
type Config struct {
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
}

const defaultTimeout = 5 * time.Second

// Dispatcher delivers one event to every enabled matching subscription.
type Dispatcher struct {
	subs   catalog.SubscriptionStore
	client *http.Client
	clock  catalog.Clock
	retry  retryPolicy
	logger *zap.Logger
}

// New constructs a Dispatcher. A nil client gets a timeout-bounded default.
func New(
	subs catalog.SubscriptionStore,
	client *http.Client,
	clock catalog.Clock,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		subs:   subs,
		client: client,
		clock:  clock,
		retry:  newRetryPolicy(cfg.MaxAttempts, cfg.RetryDelay),
		logger: logger,
	}
}

// Dispatch posts the payload to all enabled subscriptions for the event
// type, looked up fresh at dispatch time. Each subscription is processed
// independently; delivery failures are recorded on the subscription and
// never returned. Only the subscription lookup itself can error, so the
// queue layer may redeliver the whole dispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType catalog.EventType, payload map[string]any) error {
	subs, err := d.subs.ListEnabledByEvent(ctx, eventType)
	if err != nil {
		return fmt.Errorf("list subscriptions for %s: %w", eventType, err)
	}
	if len(subs) == 0 {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", eventType, err)
	}

	for _, sub := range subs {
		outcome := d.deliver(ctx, sub, body)
		if err := d.subs.RecordOutcome(ctx, sub.ID, outcome); err != nil {
			d.logger.Error("record delivery outcome failed",
				zap.String("subscription_id", sub.ID),
				zap.Error(err),
			)
		}
		result := "success"
		if outcome.Error != "" {
			result = "failure"
		}
		metrics.ObserveWebhookDelivery(string(eventType), result)
	}
	return nil
}

// Test posts a payload to a single subscription through the normal attempt
// chain and records the outcome, returning it to the caller.
func (d *Dispatcher) Test(ctx context.Context, sub catalog.Subscription, payload map[string]any) (catalog.DeliveryOutcome, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return catalog.DeliveryOutcome{}, fmt.Errorf("marshal test payload: %w", err)
	}
	outcome := d.deliver(ctx, sub, body)
	if err := d.subs.RecordOutcome(ctx, sub.ID, outcome); err != nil {
		d.logger.Error("record delivery outcome failed",
			zap.String("subscription_id", sub.ID),
			zap.Error(err),
		)
	}
	return outcome, nil
}

// deliver runs the bounded attempt chain for one subscription and returns
// the final outcome. Transport failures retry with a fixed delay; an HTTP
// response of any status code ends the chain.
func (d *Dispatcher) deliver(ctx context.Context, sub catalog.Subscription, body []byte) catalog.DeliveryOutcome {
	start := d.clock.Now()

	var lastErr error
	for attempt := 1; ; attempt++ {
		statusCode, err := d.post(ctx, sub.TargetURL, body)
		if err == nil {
			return catalog.DeliveryOutcome{
				StatusCode: &statusCode,
				ElapsedMs:  float64(d.clock.Now().Sub(start)) / float64(time.Millisecond),
				At:         d.clock.Now().UTC(),
			}
		}
		lastErr = err
		if !d.retry.ShouldRetry(err, attempt) {
			break
		}
		d.logger.Warn("webhook delivery attempt failed",
			zap.String("subscription_id", sub.ID),
			zap.String("target_url", sub.TargetURL),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if waitErr := d.retry.Wait(ctx); waitErr != nil {
			break
		}
	}

	return catalog.DeliveryOutcome{
		StatusCode: nil,
		ElapsedMs:  float64(d.clock.Now().Sub(start)) / float64(time.Millisecond),
		Error:      lastErr.Error(),
		At:         d.clock.Now().UTC(),
	}
}

func (d *Dispatcher) post(ctx context.Context, url string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post webhook: %w", err)
	}
	// Drain so the transport can reuse the connection.
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		d.logger.Debug("drain webhook response failed", zap.Error(err))
	}
	if err := resp.Body.Close(); err != nil {
		d.logger.Debug("close webhook response failed", zap.Error(err))
	}
	return resp.StatusCode, nil
}
