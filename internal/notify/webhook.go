package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

const webhookTimeout = 10 * time.Second

// Webhook POSTs alarm lifecycle events as JSON documents to a single URL.
type Webhook struct {
	url    string
	client *http.Client
	log    *slog.Logger
}

func NewWebhook(url string, logger *slog.Logger) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: webhookTimeout},
		log:    logger,
	}
}

func (w *Webhook) AlarmStarted(ctx context.Context, e Event) {
	w.post(ctx, eventPayload{Kind: EventStarted, Event: e})
}

func (w *Webhook) AlarmEnded(ctx context.Context, e Event) {
	w.post(ctx, eventPayload{Kind: EventEnded, Event: e})
}

func (w *Webhook) AlarmChanged(ctx context.Context, prev, next Event) {
	w.post(ctx, eventPayload{Kind: EventChanged, Event: next, Previous: &prev})
}

func (w *Webhook) AlarmReminder(ctx context.Context, e Event) {
	w.post(ctx, eventPayload{Kind: EventReminder, Event: e})
}

// post delivers one payload. Failures are logged, never returned.
func (w *Webhook) post(ctx context.Context, p eventPayload) {
	body, err := json.Marshal(p)
	if err != nil {
		w.log.Error("failed to encode webhook payload", "error", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.log.Error("failed to build webhook request", "url", w.url, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.log.Error("webhook delivery failed", "url", w.url, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		w.log.Error("webhook delivery rejected", "url", w.url, "status", resp.StatusCode)
	}
}
