package messaging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/leadops/internal/messaging"
	"github.com/ILLUVRSE/leadops/internal/models"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     make(http.Header),
	}
}

func TestHTTPSenderPostsMessage(t *testing.T) {
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/messages/send", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "sms", payload["channel"])
		assert.Equal(t, "+15550100", payload["destination"])
		assert.Equal(t, "see you soon", payload["content"])
		return jsonResponse(http.StatusOK, `{"delivered":true,"messageId":"m-1"}`), nil
	})

	sender, err := messaging.NewHTTPSender(messaging.HTTPSenderConfig{
		BaseURL:    "http://gateway/",
		APIKey:     "secret",
		HTTPClient: &http.Client{Transport: transport},
	})
	require.NoError(t, err)

	ok, err := sender.Send(context.Background(), models.ChannelSMS, "+15550100", messaging.Message{Content: "see you soon"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHTTPSenderRetriesServerErrors(t *testing.T) {
	var calls int32
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return jsonResponse(http.StatusBadGateway, ``), nil
		}
		return jsonResponse(http.StatusOK, `{"delivered":false}`), nil
	})
	sender, err := messaging.NewHTTPSender(messaging.HTTPSenderConfig{
		BaseURL:    "http://gateway",
		Retries:    1,
		HTTPClient: &http.Client{Transport: transport},
	})
	require.NoError(t, err)

	ok, err := sender.Send(context.Background(), models.ChannelEmail, "a@example.com", messaging.Message{Subject: "hi", Content: "x"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestHTTPSenderGivesUpAfterRetries(t *testing.T) {
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadRequest, `{}`), nil
	})
	sender, err := messaging.NewHTTPSender(messaging.HTTPSenderConfig{
		BaseURL:    "http://gateway",
		HTTPClient: &http.Client{Transport: transport},
	})
	require.NoError(t, err)

	ok, err := sender.Send(context.Background(), models.ChannelSMS, "+1", messaging.Message{Content: "x"})
	assert.False(t, ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
}

func TestNewHTTPSenderRequiresBaseURL(t *testing.T) {
	_, err := messaging.NewHTTPSender(messaging.HTTPSenderConfig{})
	assert.Error(t, err)
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	sender := messaging.NewLogSender(time.Millisecond, log.New(&buf, "", 0))

	ok, err := sender.Send(context.Background(), models.ChannelWhatsApp, "+1555", messaging.Message{Content: "hello"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, buf.String(), "whatsapp -> +1555: hello")

	ok, err = sender.Send(context.Background(), models.ChannelSMS, "", messaging.Message{Content: "hello"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLogSenderHonorsContext(t *testing.T) {
	sender := messaging.NewLogSender(time.Second, log.New(io.Discard, "", 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err := sender.Send(ctx, models.ChannelSMS, "+1", messaging.Message{Content: "x"})
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}
