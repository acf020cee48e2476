package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/docbase/docbase/internal/log"
)

// WebhookEvent is posted after every indexing run. Error is empty on
// success.
type WebhookEvent struct {
	DocumentID string `json:"documentId"`
	Title      string `json:"title"`
	Error      string `json:"error,omitempty"`
}

// Webhook posts indexing outcomes to a configured endpoint. Delivery is
// fire-and-forget: a failed post is logged and dropped, never retried, and
// never fails the indexing run.
type Webhook struct {
	url        string
	secret     string
	httpClient *http.Client
	logger     log.Logger
}

// NewWebhook creates a webhook emitter. An empty url disables emission.
func NewWebhook(url, secret string, logger log.Logger) *Webhook {
	if url == "" {
		return nil
	}
	return &Webhook{
		url:        url,
		secret:     secret,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     logger,
	}
}

// Emit posts the event. Safe to call on a nil receiver.
func (w *Webhook) Emit(ctx context.Context, event WebhookEvent) {
	if w == nil {
		return
	}
	if err := w.post(ctx, event); err != nil {
		w.logger.Warn("webhook delivery failed", "document_id", event.DocumentID, "error", err)
	}
}

func (w *Webhook) post(ctx context.Context, event WebhookEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.secret != "" {
		req.Header.Set("Authorization", "Bearer "+w.secret)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
