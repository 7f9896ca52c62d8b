package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/leadops/internal/models"
)

func TestAPIClientSendsTokenAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tkn", r.Header.Get("Authorization"))
		assert.Equal(t, "/v1/supervisor/overrides", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "emergency_stop", req["type"])
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.SystemOverride{ID: "ov-1", Type: models.OverrideEmergencyStop, IsActive: true})
	}))
	defer srv.Close()

	c := newAPIClient(srv.URL+"/", "tkn", time.Second)
	var o models.SystemOverride
	err := c.post(context.Background(), "/v1/supervisor/overrides", map[string]string{"type": "emergency_stop"}, &o)
	require.NoError(t, err)
	assert.Equal(t, "ov-1", o.ID)
	assert.True(t, o.IsActive)
}

func TestAPIClientSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found: alert a-1"}`))
	}))
	defer srv.Close()

	err := newAPIClient(srv.URL, "", time.Second).post(context.Background(), "/v1/supervisor/alerts/a-1/ack", nil, nil)
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "404 Not Found: not found: alert a-1", err.Error())
}

func TestAnalyzeLocalUsesDefaultRules(t *testing.T) {
	d, err := analyzeLocal(context.Background(), models.LeadSnapshot{
		ID: "lead-1", Source: "referral", LeadType: models.LeadTypeCold, UrgencyLevel: 2,
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "lead-1", d.LeadID)
	assert.NotEmpty(t, d.Action.Target)
}
