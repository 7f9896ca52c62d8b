package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Payload is the body handed to the workflow engine when a lead is dispatched.
type Payload struct {
	EventType     string      `json:"eventType"`
	Timestamp     time.Time   `json:"timestamp"`
	Data          interface{} `json:"data"`
	Source        string      `json:"source"`
	CorrelationID string      `json:"correlationId"`
}

type Execution struct {
	ID     string `json:"executionId"`
	Status string `json:"status"`
}

// Executor triggers a workflow run for a dispatch event.
type Executor interface {
	ExecuteWorkflow(ctx context.Context, workflowID string, payload Payload) (Execution, error)
}

// Noop accepts every execution without contacting anything.
type Noop struct{}

func (Noop) ExecuteWorkflow(_ context.Context, workflowID string, payload Payload) (Execution, error) {
	return Execution{ID: payload.CorrelationID, Status: "skipped"}, nil
}

type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	Retries    int
	HTTPClient *http.Client
}

// Client posts executions to {BaseURL}/workflows/{id}/execute.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	timeout time.Duration
	retries int
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("workflow base url required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  client,
		timeout: timeout,
		retries: retries,
	}, nil
}

func (c *Client) ExecuteWorkflow(ctx context.Context, workflowID string, payload Payload) (Execution, error) {
	if strings.TrimSpace(workflowID) == "" {
		return Execution{}, fmt.Errorf("workflow id required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Execution{}, fmt.Errorf("workflow marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/workflows/%s/execute", c.baseURL, url.PathEscape(workflowID))

	attempts := c.retries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return Execution{}, ctx.Err()
		}
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			cancel()
			return Execution{}, fmt.Errorf("workflow build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if payload.CorrelationID != "" {
			httpReq.Header.Set("X-Correlation-ID", payload.CorrelationID)
		}
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		resp, err := c.client.Do(httpReq)
		cancel()
		if err != nil {
			lastErr = err
		} else {
			exec, parseErr := decodeExecution(resp)
			resp.Body.Close()
			if parseErr == nil {
				return exec, nil
			}
			lastErr = parseErr
		}
		if i < attempts-1 {
			time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
		}
	}
	return Execution{}, fmt.Errorf("workflow %s execute failed: %w", workflowID, lastErr)
}

func decodeExecution(resp *http.Response) (Execution, error) {
	if resp.StatusCode >= 500 {
		return Execution{}, fmt.Errorf("workflow engine unavailable: %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusCreated {
		return Execution{}, fmt.Errorf("workflow engine rejected request: %s", resp.Status)
	}
	var exec Execution
	if err := json.NewDecoder(resp.Body).Decode(&exec); err != nil {
		return Execution{}, fmt.Errorf("workflow decode response: %w", err)
	}
	return exec, nil
}
