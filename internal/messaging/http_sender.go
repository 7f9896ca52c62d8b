package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ILLUVRSE/leadops/internal/models"
)

type HTTPSenderConfig struct {
	BaseURL    string
	Path       string
	APIKey     string
	Timeout    time.Duration
	Retries    int
	HTTPClient *http.Client
}

// HTTPSender posts messages to a delivery gateway.
type HTTPSender struct {
	baseURL string
	path    string
	apiKey  string
	client  *http.Client
	timeout time.Duration
	retries int
}

type sendRequest struct {
	Channel     models.Channel `json:"channel"`
	Destination string         `json:"destination"`
	Subject     string         `json:"subject,omitempty"`
	Content     string         `json:"content"`
}

type sendResponse struct {
	Delivered bool   `json:"delivered"`
	MessageID string `json:"messageId"`
}

func NewHTTPSender(cfg HTTPSenderConfig) (*HTTPSender, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("messaging base url required")
	}
	path := cfg.Path
	if path == "" {
		path = "/messages/send"
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
	return &HTTPSender{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		path:    path,
		apiKey:  cfg.APIKey,
		client:  client,
		timeout: timeout,
		retries: retries,
	}, nil
}

func (s *HTTPSender) Send(ctx context.Context, channel models.Channel, destination string, msg Message) (bool, error) {
	body, err := json.Marshal(sendRequest{
		Channel:     channel,
		Destination: destination,
		Subject:     msg.Subject,
		Content:     msg.Content,
	})
	if err != nil {
		return false, fmt.Errorf("messaging marshal request: %w", err)
	}

	attempts := s.retries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
		httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.baseURL+s.path, bytes.NewReader(body))
		if err != nil {
			cancel()
			return false, fmt.Errorf("messaging build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if s.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
		}
		resp, err := s.client.Do(httpReq)
		cancel()
		if err != nil {
			lastErr = err
		} else {
			out, parseErr := decodeSendResponse(resp)
			resp.Body.Close()
			if parseErr == nil {
				return out.Delivered, nil
			}
			lastErr = parseErr
		}
		if i < attempts-1 {
			time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
		}
	}
	return false, fmt.Errorf("messaging send failed: %w", lastErr)
}

func decodeSendResponse(resp *http.Response) (sendResponse, error) {
	if resp.StatusCode >= 500 {
		return sendResponse{}, fmt.Errorf("messaging gateway unavailable: %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return sendResponse{}, fmt.Errorf("messaging gateway rejected request: %s", resp.Status)
	}
	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return sendResponse{}, fmt.Errorf("messaging decode response: %w", err)
	}
	return out, nil
}
