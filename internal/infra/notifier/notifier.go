package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
	"github.com/KasumiMercury/primind-remind-engine/internal/infra/authhttp"
	"github.com/KasumiMercury/primind-remind-engine/internal/observability/logging"
	"github.com/KasumiMercury/primind-remind-engine/internal/observability/tracing"
)

// LegacyPayloadHeader carries the pipe-delimited payload for receivers that only parse it.
const LegacyPayloadHeader = "X-Legacy-Payload"

const deliveryTimeout = 10 * time.Second

var ErrDeliveryFailed = errors.New("notification delivery failed")

// New returns a webhook notifier for url, or a log-only notifier when url is empty.
func New(url string) domain.Notifier {
	if url == "" {
		slog.Info("notifier URL not configured, notifications are logged only")
		return &LogNotifier{}
	}
	return NewWebhook(url, authhttp.NewClient(url, deliveryTimeout))
}

// Webhook posts each payload as JSON to a fixed URL.
type Webhook struct {
	url        string
	httpClient *http.Client
}

func NewWebhook(url string, httpClient *http.Client) *Webhook {
	return &Webhook{
		url:        url,
		httpClient: httpClient,
	}
}

func (w *Webhook) Notify(ctx context.Context, payload domain.NotificationPayload) error {
	ctx, span := tracing.StartExternalAPISpan(ctx, "notify", w.url)
	defer span.End()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(LegacyPayloadHeader, payload.Legacy())
	req.Header.Set("x-request-id", logging.ValidateAndExtractRequestID(logging.RequestIDFromContext(ctx)))
	tracing.InjectToHTTPRequest(ctx, req)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		tracing.RecordResult(span, err)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("%w: status %d", ErrDeliveryFailed, resp.StatusCode)
		tracing.RecordResult(span, err)
		return err
	}

	tracing.RecordResult(span, nil)
	slog.DebugContext(ctx, "notification delivered",
		slog.Int64("record_id", payload.RecordID),
		slog.String("action", payload.Action),
	)
	return nil
}

// LogNotifier writes each payload to the log.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, payload domain.NotificationPayload) error {
	slog.InfoContext(ctx, "notification",
		slog.Int64("record_id", payload.RecordID),
		slog.String("title", payload.Title),
		slog.String("category", payload.Category),
		slog.String("action", payload.Action),
		slog.Time("scheduled_at", payload.ScheduledInstant),
	)
	return nil
}

var (
	_ domain.Notifier = (*Webhook)(nil)
	_ domain.Notifier = LogNotifier{}
)
