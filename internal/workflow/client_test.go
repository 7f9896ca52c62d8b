package workflow_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/leadops/internal/workflow"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, v interface{}) *http.Response {
	body, _ := json.Marshal(v)
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestExecuteWorkflowPostsPayload(t *testing.T) {
	at := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/workflows/lead-intake/execute", r.URL.Path)
		assert.Equal(t, "corr-1", r.Header.Get("X-Correlation-ID"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var got map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "lead.routed", got["eventType"])
		assert.Equal(t, "leadops", got["source"])
		assert.Equal(t, "corr-1", got["correlationId"])
		assert.Equal(t, "2026-07-01T08:00:00Z", got["timestamp"])
		return jsonResponse(http.StatusAccepted, workflow.Execution{ID: "exec-9", Status: "running"}), nil
	})

	c, err := workflow.NewClient(workflow.ClientConfig{
		BaseURL:    "http://engine/",
		APIKey:     "secret",
		HTTPClient: &http.Client{Transport: transport},
	})
	require.NoError(t, err)

	exec, err := c.ExecuteWorkflow(context.Background(), "lead-intake", workflow.Payload{
		EventType:     "lead.routed",
		Timestamp:     at,
		Data:          map[string]string{"leadId": "lead-1"},
		Source:        "leadops",
		CorrelationID: "corr-1",
	})
	require.NoError(t, err)
	assert.Equal(t, workflow.Execution{ID: "exec-9", Status: "running"}, exec)
}

func TestExecuteWorkflowRetriesServerErrors(t *testing.T) {
	calls := 0
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return jsonResponse(http.StatusBadGateway, map[string]string{}), nil
		}
		return jsonResponse(http.StatusOK, workflow.Execution{ID: "exec-2", Status: "completed"}), nil
	})
	c, err := workflow.NewClient(workflow.ClientConfig{BaseURL: "http://engine", Retries: 1, HTTPClient: &http.Client{Transport: transport}})
	require.NoError(t, err)

	exec, err := c.ExecuteWorkflow(context.Background(), "wf", workflow.Payload{EventType: "lead.routed"})
	require.NoError(t, err)
	assert.Equal(t, "exec-2", exec.ID)
	assert.Equal(t, 2, calls)
}

func TestExecuteWorkflowGivesUp(t *testing.T) {
	calls := 0
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(http.StatusBadRequest, map[string]string{"error": "bad"}), nil
	})
	c, err := workflow.NewClient(workflow.ClientConfig{BaseURL: "http://engine", HTTPClient: &http.Client{Transport: transport}})
	require.NoError(t, err)

	_, err = c.ExecuteWorkflow(context.Background(), "wf", workflow.Payload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected request")
	assert.Equal(t, 1, calls)

	_, err = c.ExecuteWorkflow(context.Background(), " ", workflow.Payload{})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := workflow.NewClient(workflow.ClientConfig{})
	assert.Error(t, err)
}
