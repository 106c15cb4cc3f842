// Package workforce talks to the external agent service that analyzes
// market batches and returns trading decisions.
package workforce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/quantleap/polyflux/internal/domain"
)

// Client posts batch tasks to the agent service over HTTP and decodes
// the decision payload it returns.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a workforce client.
//
// endpoint is the agent service's task URL, e.g.
// "https://agents.internal/v1/tasks". apiKey may be empty for
// unauthenticated deployments.
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Process sends the task to the agent service and waits for its verdicts.
// Agent analysis is slow; callers should pass a context with a deadline
// matched to the batch size.
func (c *Client) Process(ctx context.Context, task domain.Task) (domain.TaskResult, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return domain.TaskResult{}, fmt.Errorf("workforce: marshal task %s: %w", task.TaskID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return domain.TaskResult{}, fmt.Errorf("workforce: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.TaskResult{}, fmt.Errorf("workforce: post task %s: %w", task.TaskID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.TaskResult{}, fmt.Errorf("workforce: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.TaskResult{}, fmt.Errorf("workforce: task %s: HTTP %d: %s", task.TaskID, resp.StatusCode, string(body))
	}

	var result domain.TaskResult
	if err := json.Unmarshal(body, &result); err != nil {
		return domain.TaskResult{}, fmt.Errorf("workforce: decode result for task %s: %w", task.TaskID, err)
	}
	return result, nil
}

var _ domain.Workforce = (*Client)(nil)
