// Package alert posts terminal-failure notifications to a webhook.
// Delivery is best-effort: a failed alert is logged, never fatal.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/metscube/shipsync/internal/logging"
)

const (
	postRetries = 3
	postTimeout = 10 * time.Second
)

// Event is one alert payload.
type Event struct {
	RunID     string    `json:"run_id"`
	Mode      string    `json:"mode"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier sends alert events. A nil Notifier is a no-op.
type Notifier struct {
	endpoint string
	client   *http.Client
	log      *slog.Logger
}

// New creates a notifier, or nil when no webhook is configured.
func New(webhookURL string) *Notifier {
	if webhookURL == "" {
		return nil
	}
	return &Notifier{
		endpoint: webhookURL,
		client:   &http.Client{Timeout: postTimeout},
		log:      logging.Component("alert"),
	}
}

// Notify posts the event, retrying with backoff. Errors are logged and
// swallowed so an unreachable webhook never fails the caller.
func (n *Notifier) Notify(ctx context.Context, evt Event) {
	if n == nil {
		return
	}
	evt.Timestamp = time.Now().UTC()

	if err := n.postWithRetry(ctx, evt); err != nil {
		n.log.Error("alert delivery failed", "error", err, "message", evt.Message)
		return
	}
	n.log.Info("alert delivered", "severity", evt.Severity, "message", evt.Message)
}

func (n *Notifier) postWithRetry(ctx context.Context, evt Event) error {
	var lastErr error
	delay := time.Second

	for attempt := 1; attempt <= postRetries; attempt++ {
		err := n.post(ctx, evt)
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt < postRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", postRetries, lastErr)
}

func (n *Notifier) post(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody))
}
