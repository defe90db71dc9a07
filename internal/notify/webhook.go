package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WebhookNotifier POSTs events as JSON to an external dispatcher (chat
// bridge, mailer, pager). The dispatcher owns formatting and delivery.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

// NewWebhookNotifier constructs a notifier targeting url.
func NewWebhookNotifier(url string, timeout time.Duration) (*WebhookNotifier, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("webhook url is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Dispatch delivers the event. Non-2xx responses are reported as errors so
// the caller can log them.
func (n *WebhookNotifier) Dispatch(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver event: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
