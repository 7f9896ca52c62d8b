package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/leadops/internal/analytics"
	"github.com/ILLUVRSE/leadops/internal/auth"
	"github.com/ILLUVRSE/leadops/internal/campaign"
	"github.com/ILLUVRSE/leadops/internal/dispatch"
	"github.com/ILLUVRSE/leadops/internal/models"
	"github.com/ILLUVRSE/leadops/internal/optimizer"
	"github.com/ILLUVRSE/leadops/internal/routing"
	"github.com/ILLUVRSE/leadops/internal/supervisor"
)

type fakeStore struct{ err error }

func (f fakeStore) Ping(context.Context) error { return f.err }

func newTestServer(t *testing.T, store Pinger) (*Server, http.Handler) {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)
	engine := routing.New(routing.Config{}, quiet)
	scheduler := campaign.New(campaign.Config{}, nil, nil, quiet)
	mem := analytics.NewMemory()
	opt := optimizer.New(optimizer.Config{}, engine, scheduler, mem, quiet)
	sup := supervisor.New(supervisor.Config{}, supervisor.Dependencies{Rules: engine, Campaigns: scheduler, Optimizer: opt, Analytics: mem}, quiet)
	d, err := dispatch.New(dispatch.Config{}, dispatch.Dependencies{Router: engine, Campaigns: scheduler, Availability: sup, Analytics: mem}, quiet)
	require.NoError(t, err)
	verifier, err := auth.NewVerifier(auth.Config{Secret: "test-secret", DevAllowLocal: true})
	require.NoError(t, err)

	s := New(Dependencies{
		Engine:     engine,
		Scheduler:  scheduler,
		Optimizer:  opt,
		Supervisor: sup,
		Dispatcher: d,
		Verifier:   verifier,
		Store:      store,
	}, 0, quiet)
	return s, s.Router()
}

func doRequest(h http.Handler, method, path string, body interface{}, principal string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if principal != "" {
		req.Header.Set(auth.DevPrincipalHeader, principal)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealth(t *testing.T) {
	_, router := newTestServer(t, fakeStore{})
	rec := doRequest(router, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "OPERATIONAL", body["systemStatus"])

	_, router = newTestServer(t, fakeStore{err: errors.New("connection refused")})
	rec = doRequest(router, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDispatchLead(t *testing.T) {
	_, router := newTestServer(t, nil)
	rec := doRequest(router, http.MethodPost, "/v1/leads/dispatch", models.LeadSnapshot{
		ID: "lead-1", Source: "referral", LeadType: models.LeadTypeHot, UrgencyLevel: 9,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res dispatch.Result
	decode(t, rec, &res)
	assert.Equal(t, "lead-1", res.Decision.LeadID)
	assert.Equal(t, models.TargetInbound, res.Decision.Action.Target)
	assert.False(t, res.Held)
}

func TestDispatchHeldLeadReturnsAccepted(t *testing.T) {
	_, router := newTestServer(t, nil)
	rec := doRequest(router, http.MethodPost, "/v1/supervisor/overrides", supervisor.OverrideRequest{
		Type: models.OverridePauseAgent, TargetAgent: "inbound", Reason: "coaching",
	}, "ops")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doRequest(router, http.MethodPost, "/v1/leads/dispatch", models.LeadSnapshot{
		ID: "lead-2", Source: "referral", LeadType: models.LeadTypeHot, UrgencyLevel: 9,
	}, "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var res dispatch.Result
	decode(t, rec, &res)
	assert.True(t, res.Held)
}

func TestErrorMapping(t *testing.T) {
	_, router := newTestServer(t, nil)

	rec := doRequest(router, http.MethodPost, "/v1/leads/analyze", models.LeadSnapshot{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(router, http.MethodGet, "/v1/rules/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]string
	decode(t, rec, &body)
	assert.Contains(t, body["error"], "missing")

	rec = doRequest(router, http.MethodGet, "/v1/rules/cold-nurture", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(router, http.MethodGet, "/v1/appointments/upcoming?hours=-1", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s, _ := newTestServer(t, nil)
	w := httptest.NewRecorder()
	s.respondErr(w, fmt.Errorf("boom"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	w = httptest.NewRecorder()
	s.respondErr(w, fmt.Errorf("step: %w", campaign.ErrPaused))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestOperatorRoutesRequireAuth(t *testing.T) {
	_, router := newTestServer(t, nil)
	req := supervisor.OverrideRequest{Type: models.OverrideEmergencyStop, Reason: "outage"}

	rec := doRequest(router, http.MethodPost, "/v1/supervisor/overrides", req, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(router, http.MethodPost, "/v1/supervisor/overrides", req, "ops@example.com")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var o models.SystemOverride
	decode(t, rec, &o)
	assert.Equal(t, "ops@example.com", o.IssuedBy)

	rec = doRequest(router, http.MethodGet, "/v1/supervisor/alerts", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var alerts []models.SystemAlert
	decode(t, rec, &alerts)
	require.Len(t, alerts, 1)
	assert.Equal(t, supervisor.AlertEmergencyStop, alerts[0].Title)

	rec = doRequest(router, http.MethodPost, "/v1/supervisor/alerts/"+alerts[0].ID+"/ack", nil, "ops@example.com")
	require.Equal(t, http.StatusOK, rec.Code)
	var acked models.SystemAlert
	decode(t, rec, &acked)
	assert.Equal(t, "ops@example.com", acked.AcknowledgedBy)

	rec = doRequest(router, http.MethodPost, "/v1/supervisor/overrides/"+o.ID+"/cancel", nil, "ops@example.com")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(router, http.MethodGet, "/v1/supervisor/overrides?active=true", nil, "")
	var active []models.SystemOverride
	decode(t, rec, &active)
	assert.Empty(t, active)
}

func TestCampaignLifecycle(t *testing.T) {
	_, router := newTestServer(t, nil)
	rec := doRequest(router, http.MethodPost, "/v1/campaigns", createCampaignRequest{
		Name: "Warm drip",
		Type: "nurture",
		Steps: []models.CampaignStep{
			{Order: 1, Type: models.StepWait, DelayHours: 24},
		},
	}, "ops")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var c models.Campaign
	decode(t, rec, &c)

	rec = doRequest(router, http.MethodPost, "/v1/campaigns/"+c.ID+"/enroll", map[string]string{"leadId": "lead-9"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(router, http.MethodGet, "/v1/campaigns/"+c.ID+"/performance", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var perf models.CampaignPerformance
	decode(t, rec, &perf)
	assert.Equal(t, 1, perf.TotalLeads)

	rec = doRequest(router, http.MethodPost, "/v1/campaigns", createCampaignRequest{Name: "empty"}, "ops")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(router, http.MethodGet, "/v1/campaigns/nope/performance", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDashboardAndHealthScore(t *testing.T) {
	_, router := newTestServer(t, nil)
	rec := doRequest(router, http.MethodGet, "/v1/supervisor/dashboard", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var m supervisor.DashboardMetrics
	decode(t, rec, &m)
	assert.Equal(t, supervisor.StatusOperational, m.SystemStatus)
	assert.Equal(t, 5, m.Routing.Rules)

	rec = doRequest(router, http.MethodGet, "/v1/supervisor/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var h map[string]interface{}
	decode(t, rec, &h)
	assert.Equal(t, 1.0, h["score"])
}

func TestRuleManagement(t *testing.T) {
	_, router := newTestServer(t, nil)
	spec := routing.RuleSpec{
		ID:       "partner-fast",
		Priority: 2,
		When:     routing.WhenSpec{Sources: []string{"partner"}},
		Action:   routing.ActionSpec{Target: "inbound", Priority: "high", ResponseMinutes: 3},
	}

	rec := doRequest(router, http.MethodPost, "/v1/rules", spec, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(router, http.MethodPost, "/v1/rules", spec, "ops@example.com")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rule models.RoutingRule
	decode(t, rec, &rule)
	assert.Equal(t, "partner-fast", rule.ID)
	assert.Equal(t, models.TargetInbound, rule.Action.Target)

	bad := spec
	bad.Action.ResponseMinutes = 0
	rec = doRequest(router, http.MethodPost, "/v1/rules", bad, "ops@example.com")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(router, http.MethodDelete, "/v1/rules/partner-fast", nil, "ops@example.com")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = doRequest(router, http.MethodDelete, "/v1/rules/partner-fast", nil, "ops@example.com")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doRequest(router, http.MethodGet, "/v1/rules/partner-fast", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
