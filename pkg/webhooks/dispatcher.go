package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/workroomhq/workroom/pkg/activity"
	"github.com/workroomhq/workroom/pkg/async"
	"github.com/workroomhq/workroom/pkg/observability"
)

const (
	maxAttempts    = 3
	requestTimeout = 10 * time.Second
)

// Dispatcher delivers signed event payloads to subscribed endpoints.
// Dispatch is fire-and-forget from the caller's perspective; a bounded
// worker pool caps concurrent outbound requests.
type Dispatcher struct {
	store   *PostgresStore
	client  *http.Client
	pool    *async.WorkerPool
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewDispatcher creates a Dispatcher. The pool lives until Shutdown.
func NewDispatcher(ctx context.Context, store *PostgresStore, logger *observability.Logger, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		store:   store,
		client:  &http.Client{Timeout: requestTimeout},
		pool:    async.NewWorkerPool(ctx, 8, "webhook delivery", time.Minute),
		logger:  logger,
		metrics: metrics,
	}
}

// Shutdown drains in-flight deliveries.
func (d *Dispatcher) Shutdown(timeout time.Duration) error {
	return d.pool.Shutdown(timeout)
}

// Dispatch queues delivery of an event to every subscribed endpoint of the
// workspace. Errors finding endpoints are logged, never surfaced: webhook
// failures must not fail the operation that raised the event.
func (d *Dispatcher) Dispatch(workspaceID int64, eventType activity.EventType, data map[string]interface{}) {
	endpoints, err := d.store.ActiveEndpointsForEvent(workspaceID, string(eventType))
	if err != nil {
		d.logger.WithError(err).WithField("workspace_id", workspaceID).Error("failed to load webhook endpoints")
		return
	}
	if len(endpoints) == 0 {
		return
	}

	payload := &Payload{
		ID:          uuid.NewString(),
		Type:        eventType,
		WorkspaceID: workspaceID,
		Timestamp:   time.Now().UTC(),
		Data:        data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.WithError(err).Error("failed to encode webhook payload")
		return
	}

	for _, endpoint := range endpoints {
		endpoint := endpoint
		if err := d.pool.Submit(func(ctx context.Context) error {
			d.deliver(ctx, endpoint, payload, body)
			return nil
		}); err != nil {
			d.logger.WithError(err).WithField("endpoint_id", endpoint.ID).Warn("webhook delivery not queued")
		}
	}
}

// deliver attempts delivery with bounded retry and records one delivery row.
func (d *Dispatcher) deliver(ctx context.Context, endpoint *Endpoint, payload *Payload, body []byte) {
	delivery := &Delivery{
		ID:         uuid.NewString(),
		EndpointID: endpoint.ID,
		EventType:  payload.Type,
		Status:     DeliveryStatusPending,
		CreatedAt:  time.Now(),
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		delivery.Attempts = attempt

		statusCode, err := d.send(ctx, endpoint, payload, body)
		delivery.StatusCode = statusCode
		if err == nil {
			now := time.Now()
			delivery.Status = DeliveryStatusSuccess
			delivery.DeliveredAt = &now
			delivery.Error = ""
			break
		}

		lastErr = err
		delivery.Status = DeliveryStatusFailed
		delivery.Error = err.Error()

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				attempt = maxAttempts
			case <-time.After(time.Duration(attempt) * 2 * time.Second):
			}
		}
	}

	if d.metrics != nil {
		d.metrics.WebhookDeliveriesTotal.WithLabelValues(string(delivery.Status)).Inc()
		d.metrics.WebhookDeliveryDuration.WithLabelValues(string(delivery.Status)).Observe(time.Since(start).Seconds())
	}
	if lastErr != nil && delivery.Status == DeliveryStatusFailed {
		d.logger.WithError(lastErr).WithFields(map[string]interface{}{
			"endpoint_id": endpoint.ID,
			"event_type":  payload.Type,
			"attempts":    delivery.Attempts,
		}).Warn("webhook delivery failed")
	}

	if err := d.store.RecordDelivery(delivery); err != nil {
		d.logger.WithError(err).WithField("endpoint_id", endpoint.ID).Error("failed to record webhook delivery")
	}
}

func (d *Dispatcher) send(ctx context.Context, endpoint *Endpoint, payload *Payload, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Workroom-Event", string(payload.Type))
	req.Header.Set("X-Workroom-Event-ID", payload.ID)
	req.Header.Set("X-Workroom-Delivery", time.Now().UTC().Format(time.RFC3339))
	req.Header.Set("X-Workroom-Signature", Sign(body, endpoint.Secret))

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}

	return resp.StatusCode, nil
}

// Sign generates the HMAC-SHA256 signature header value for a payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature header against the payload.
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
