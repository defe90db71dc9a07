package recovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPExecutor delegates remediation to an external backend over HTTP. The
// backend receives {action, service} and answers with {"success": bool};
// non-2xx statuses and transport errors are action failures.
type HTTPExecutor struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPExecutor constructs a client targeting the remediation backend.
// timeout caps the whole request; the orchestrator additionally bounds each
// invocation through ctx.
func NewHTTPExecutor(baseURL string, timeout time.Duration) (*HTTPExecutor, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("remediation backend URL is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPExecutor{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Execute invokes the backend for one action.
func (e *HTTPExecutor) Execute(ctx context.Context, action, service string) error {
	payload, err := json.Marshal(map[string]string{
		"action":  action,
		"service": service,
	})
	if err != nil {
		return fmt.Errorf("encode remediation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/remediate", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build remediation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remediation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remediation backend returned status %d", resp.StatusCode)
	}

	var result struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode remediation response: %w", err)
	}
	if !result.Success {
		if result.Error != "" {
			return fmt.Errorf("remediation declined: %s", result.Error)
		}
		return fmt.Errorf("remediation declined for %s", action)
	}
	return nil
}
