package routing_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/leadops/internal/models"
	"github.com/ILLUVRSE/leadops/internal/routing"
)

const sampleRules = `
source_weights:
  partner: 0.95
rules:
  - id: enterprise-demo
    name: Qualified demo request
    priority: 1
    when:
      any_signals: [requested_demo]
      min_qualification: 0.6
    action:
      target: appointment_setter
      priority: high
      response_minutes: 10
      suggested_actions: [send_calendar_link]
  - id: partner-leads
    priority: 2
    when:
      sources: [partner]
    action:
      target: inbound
      priority: medium
      response_minutes: 45
  - id: parked
    priority: 3
    enabled: false
    action:
      target: nurture
      priority: low
      response_minutes: 600
`

func TestRulesFileCompilesIntoEngine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRules), 0o600))

	file, err := routing.LoadRulesFile(path)
	require.NoError(t, err)
	require.Len(t, file.Rules, 3)

	cfg := file.Apply(routing.DefaultConfig())
	e := newEngine(t, cfg)
	ctx := context.Background()

	demo, err := e.Analyze(ctx, models.LeadSnapshot{ID: "a", Source: "website", IntentSignals: []string{"requested_demo"}, QualificationScore: 0.7})
	require.NoError(t, err)
	assert.Equal(t, "enterprise-demo", demo.RuleID)
	assert.Equal(t, 10, demo.Action.EstimatedResponseTime)
	assert.Equal(t, []string{"send_calendar_link"}, demo.Action.SuggestedActions)

	partner, err := e.Analyze(ctx, models.LeadSnapshot{ID: "b", Source: "partner"})
	require.NoError(t, err)
	assert.Equal(t, "partner-leads", partner.RuleID)
	assert.Equal(t, 0.95, partner.Analysis.SourceQuality)
	assert.Contains(t, partner.Action.Reasoning, "partner-leads")

	// the disabled catch-all never matches, so an unqualified lead falls back
	other, err := e.Analyze(ctx, models.LeadSnapshot{ID: "c", Source: "website", IntentSignals: []string{"requested_demo"}, QualificationScore: 0.2})
	require.NoError(t, err)
	assert.Empty(t, other.RuleID)
	assert.Equal(t, models.TargetOutbound, other.Action.Target)
}

func TestRulesFileValidation(t *testing.T) {
	cases := map[string]string{
		"missing id": `
rules:
  - priority: 1
    action: {target: inbound, priority: high, response_minutes: 5}
`,
		"duplicate": `
rules:
  - id: a
    priority: 1
    action: {target: inbound, priority: high, response_minutes: 5}
  - id: a
    priority: 2
    action: {target: inbound, priority: high, response_minutes: 5}
`,
		"bad target": `
rules:
  - id: a
    priority: 1
    action: {target: sales_floor, priority: high, response_minutes: 5}
`,
		"bad tier": `
rules:
  - id: a
    priority: 1
    action: {target: inbound, priority: urgent, response_minutes: 5}
`,
		"priority range": `
rules:
  - id: a
    priority: 11
    action: {target: inbound, priority: high, response_minutes: 5}
`,
		"lead type": `
rules:
  - id: a
    priority: 1
    when: {lead_types: [lukewarm]}
    action: {target: inbound, priority: high, response_minutes: 5}
`,
		"syntax": "rules: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := routing.FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadRulesFileMissing(t *testing.T) {
	_, err := routing.LoadRulesFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent.yaml")
}

func TestRuleSpecCompilesSingleRule(t *testing.T) {
	spec := routing.RuleSpec{
		ID:       "partner-fast",
		Priority: 1,
		When:     routing.WhenSpec{Sources: []string{"partner"}},
		Action:   routing.ActionSpec{Target: "inbound", Priority: "high", ResponseMinutes: 3},
	}
	require.NoError(t, spec.Validate())

	engine := routing.New(routing.DefaultConfig(), nil)
	require.NoError(t, engine.AddRoutingRule(spec.Rule()))
	d, err := engine.Analyze(context.Background(), models.LeadSnapshot{ID: "l1", Source: "partner", LeadType: models.LeadTypeCold, UrgencyLevel: 2})
	require.NoError(t, err)
	assert.Equal(t, "partner-fast", d.RuleID)
	assert.Equal(t, 3, d.Action.EstimatedResponseTime)

	spec.Action.Target = "sales_floor"
	assert.True(t, errors.Is(spec.Validate(), models.ErrValidation))
}
