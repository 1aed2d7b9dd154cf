// Package webhook implements an HTTP webhook notifier
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"remora/internal/core"
	"remora/internal/notifier"
)

// Webhook implements the Notifier interface for HTTP webhooks
type Webhook struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// event is the JSON envelope posted to the receiver. Exactly one of
// Strategy and Execution is set, discriminated by Type.
type event struct {
	Type      string                `json:"type"`
	Strategy  *core.Strategy        `json:"strategy,omitempty"`
	Execution *core.ExecutionResult `json:"execution,omitempty"`
	SentAt    time.Time             `json:"sent_at"`
}

// New creates a new Webhook notifier
func New(url string, headers map[string]string) *Webhook {
	return &Webhook{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Init(cfg notifier.Config) error {
	if url, ok := cfg.Params["url"].(string); ok {
		w.url = url
	}
	if headers, ok := cfg.Params["headers"].(map[string]string); ok {
		w.headers = headers
	}

	if w.url == "" {
		return fmt.Errorf("webhook: url is required")
	}

	if w.client == nil {
		w.client = &http.Client{Timeout: 30 * time.Second}
	}

	return nil
}

func (w *Webhook) SendStrategy(ctx context.Context, strategy core.Strategy) error {
	return w.post(ctx, event{
		Type:     "strategy",
		Strategy: &strategy,
		SentAt:   time.Now().UTC(),
	})
}

func (w *Webhook) SendExecution(ctx context.Context, result core.ExecutionResult) error {
	return w.post(ctx, event{
		Type:      "execution",
		Execution: &result,
		SentAt:    time.Now().UTC(),
	})
}

func (w *Webhook) post(ctx context.Context, payload event) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: server returned %d", resp.StatusCode)
	}

	return nil
}
