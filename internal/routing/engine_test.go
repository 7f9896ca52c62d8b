package routing_test

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/leadops/internal/models"
	"github.com/ILLUVRSE/leadops/internal/routing"
)

var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, cfg routing.Config) *routing.Engine {
	t.Helper()
	e := routing.New(cfg, log.New(io.Discard, "", 0))
	e.SetClock(func() time.Time { return fixedNow })
	return e
}

func always(models.LeadSnapshot, models.LeadAnalysis) bool { return true }
func never(models.LeadSnapshot, models.LeadAnalysis) bool  { return false }

func rule(id string, priority int, target models.Target, tier models.PriorityTier, cond models.RuleCondition) models.RoutingRule {
	return models.RoutingRule{
		ID:        id,
		Name:      id,
		Priority:  priority,
		Enabled:   true,
		Condition: cond,
		Action: models.RoutingAction{
			Target:                target,
			Priority:              tier,
			EstimatedResponseTime: 100,
			Reasoning:             "rule " + id,
		},
	}
}

func TestAnalyzeRoutesUrgentAndHotLeadsInbound(t *testing.T) {
	e := newEngine(t, routing.Config{})
	ctx := context.Background()

	leads := []models.LeadSnapshot{
		{ID: "urgent", Source: "website", LeadType: models.LeadTypeWarm, UrgencyLevel: 8},
		{ID: "labeled-hot", Source: "social_media", LeadType: models.LeadTypeHot, UrgencyLevel: 4, QualificationScore: 0.5},
		{ID: "very-urgent-cold", Source: "cold_outreach", LeadType: models.LeadTypeCold, UrgencyLevel: 10},
	}
	for _, lead := range leads {
		decision, err := e.Analyze(ctx, lead)
		require.NoError(t, err, lead.ID)
		assert.Equal(t, models.TargetInbound, decision.Action.Target, lead.ID)
		assert.Equal(t, models.PriorityHigh, decision.Action.Priority, lead.ID)
		assert.Equal(t, "hot-lead-inbound", decision.RuleID, lead.ID)
		assert.Equal(t, lead.ID, decision.LeadID)
		assert.NotEmpty(t, decision.ID)
		assert.Equal(t, fixedNow, decision.DecidedAt)
	}
}

func TestAnalyzeDefaultRuleSet(t *testing.T) {
	e := newEngine(t, routing.Config{})
	ctx := context.Background()

	cases := []struct {
		name     string
		lead     models.LeadSnapshot
		ruleID   string
		target   models.Target
		response int
	}{
		{
			name:     "demo request",
			lead:     models.LeadSnapshot{ID: "l1", Source: "website", LeadType: models.LeadTypeWarm, UrgencyLevel: 3, IntentSignals: []string{"requested_demo"}},
			ruleID:   "appointment-request",
			target:   models.TargetAppointmentSetter,
			response: 15,
		},
		{
			name:     "referral",
			lead:     models.LeadSnapshot{ID: "l2", Source: "referral", LeadType: models.LeadTypeWarm, UrgencyLevel: 3},
			ruleID:   "referral-fast-track",
			target:   models.TargetInbound,
			response: 30,
		},
		{
			name:     "warm with intent",
			lead:     models.LeadSnapshot{ID: "l3", Source: "website", LeadType: models.LeadTypeWarm, UrgencyLevel: 4, IntentSignals: []string{"pricing_inquiry"}, QualificationScore: 0.5},
			ruleID:   "warm-engaged",
			target:   models.TargetInbound,
			response: 60,
		},
		{
			name:     "cold",
			lead:     models.LeadSnapshot{ID: "l4", Source: "social_media", LeadType: models.LeadTypeCold, UrgencyLevel: 2, QualificationScore: 0.2},
			ruleID:   "cold-nurture",
			target:   models.TargetNurture,
			response: 1440,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := e.Analyze(ctx, tc.lead)
			require.NoError(t, err)
			assert.Equal(t, tc.ruleID, decision.RuleID)
			assert.Equal(t, tc.target, decision.Action.Target)
			assert.Equal(t, tc.response, decision.Action.EstimatedResponseTime)
		})
	}
}

func TestLowerPriorityNumberWinsRegardlessOfRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	lead := models.LeadSnapshot{ID: "lead-1", Source: "website", UrgencyLevel: 5}

	orders := [][]models.RoutingRule{
		{rule("p10", 10, models.TargetNurture, models.PriorityLow, always), rule("p1", 1, models.TargetOutbound, models.PriorityMedium, always)},
		{rule("p1", 1, models.TargetOutbound, models.PriorityMedium, always), rule("p10", 10, models.TargetNurture, models.PriorityLow, always)},
	}
	for _, rules := range orders {
		e := newEngine(t, routing.Config{Rules: rules})
		decision, err := e.Analyze(ctx, lead)
		require.NoError(t, err)
		assert.Equal(t, "p1", decision.RuleID)
		assert.Equal(t, models.TargetOutbound, decision.Action.Target)
	}

	e := newEngine(t, routing.Config{Rules: orders[0][:1]})
	require.NoError(t, e.AddRoutingRule(orders[0][1]))
	decision, err := e.Analyze(ctx, lead)
	require.NoError(t, err)
	assert.Equal(t, "p1", decision.RuleID)
}

func TestEqualPriorityKeepsRegistrationOrder(t *testing.T) {
	e := newEngine(t, routing.Config{Rules: []models.RoutingRule{
		rule("first", 3, models.TargetInbound, models.PriorityLow, always),
		rule("second", 3, models.TargetNurture, models.PriorityLow, always),
	}})
	decision, err := e.Analyze(context.Background(), models.LeadSnapshot{ID: "x"})
	require.NoError(t, err)
	assert.Equal(t, "first", decision.RuleID)
}

func TestAnalyzeFallsBackWhenNothingMatches(t *testing.T) {
	disabled := rule("disabled", 1, models.TargetInbound, models.PriorityHigh, always)
	disabled.Enabled = false
	e := newEngine(t, routing.Config{Rules: []models.RoutingRule{
		rule("never", 1, models.TargetInbound, models.PriorityHigh, never),
		disabled,
	}})

	decision, err := e.Analyze(context.Background(), models.LeadSnapshot{ID: "lead-1", Source: "website"})
	require.NoError(t, err)
	assert.Empty(t, decision.RuleID)
	assert.Equal(t, models.TargetOutbound, decision.Action.Target)
	assert.Equal(t, models.PriorityLow, decision.Action.Priority)
	assert.Equal(t, 240, decision.Action.EstimatedResponseTime)
	assert.Contains(t, decision.Reasoning[len(decision.Reasoning)-1], "No specific routing rule matched")
}

func TestAnalyzeRejectsMissingLeadID(t *testing.T) {
	e := newEngine(t, routing.Config{})
	for _, id := range []string{"", "   "} {
		_, err := e.Analyze(context.Background(), models.LeadSnapshot{ID: id})
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrValidation))
	}
}

func TestSuccessRateAdjustsResponseEstimate(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		rate     float64
		expected int
		note     string
	}{
		{rate: 0.4, expected: 120, note: "x1.2"},
		{rate: 0.9, expected: 90, note: "x0.9"},
		{rate: 0.6, expected: 100, note: ""},
	}
	for _, tc := range cases {
		r := rule("tuned", 1, models.TargetInbound, models.PriorityMedium, always)
		rate := tc.rate
		r.SuccessRate = &rate
		e := newEngine(t, routing.Config{Rules: []models.RoutingRule{r}})

		decision, err := e.Analyze(ctx, models.LeadSnapshot{ID: "lead"})
		require.NoError(t, err)
		assert.Equal(t, tc.expected, decision.Action.EstimatedResponseTime)
		if tc.note != "" {
			assert.Contains(t, decision.Action.Reasoning, tc.note)
		} else {
			assert.Equal(t, "rule tuned", decision.Action.Reasoning)
		}

		stored, err := e.Rule("tuned")
		require.NoError(t, err)
		assert.Equal(t, 100, stored.Action.EstimatedResponseTime)
	}
}

func TestConfidenceBlendsIntentAndSource(t *testing.T) {
	e := newEngine(t, routing.Config{})
	decision, err := e.Analyze(context.Background(), models.LeadSnapshot{ID: "c", Source: "website", LeadType: models.LeadTypeWarm, UrgencyLevel: 5})
	require.NoError(t, err)
	assert.InDelta(t, 0.66, decision.Confidence, 0.001)
	assert.False(t, decision.Analysis.Reclassified)
}

func TestDecisionIsIsolatedFromEngineState(t *testing.T) {
	e := newEngine(t, routing.Config{})
	decision, err := e.Analyze(context.Background(), models.LeadSnapshot{ID: "hot", LeadType: models.LeadTypeHot, UrgencyLevel: 9})
	require.NoError(t, err)
	require.NotEmpty(t, decision.Action.SuggestedActions)
	decision.Action.SuggestedActions[0] = "mutated"

	stored, err := e.Rule("hot-lead-inbound")
	require.NoError(t, err)
	assert.Equal(t, "call_within_5_minutes", stored.Action.SuggestedActions[0])
}

func TestFeedbackNudgesRulePriority(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, routing.Config{Rules: []models.RoutingRule{
		rule("weak", 5, models.TargetInbound, models.PriorityHigh, always),
		rule("strong", 5, models.TargetNurture, models.PriorityLow, always),
	}})

	weak, err := e.Analyze(ctx, models.LeadSnapshot{ID: "lead-1"})
	require.NoError(t, err)
	require.Equal(t, "weak", weak.RuleID)

	require.NoError(t, e.ProcessPerformanceFeedback(ctx, models.PerformanceFeedback{
		LeadID:   "lead-1",
		Decision: weak,
		Outcome:  models.FeedbackOutcome{Converted: false},
	}))

	got, err := e.Rule("weak")
	require.NoError(t, err)
	assert.Equal(t, 6, got.Priority)
	require.NotNil(t, got.SuccessRate)
	assert.Equal(t, 0.0, *got.SuccessRate)
	assert.Len(t, e.Feedback("lead-1"), 1)

	// strong now sorts ahead of weak
	next, err := e.Analyze(ctx, models.LeadSnapshot{ID: "lead-2"})
	require.NoError(t, err)
	assert.Equal(t, "strong", next.RuleID)

	require.NoError(t, e.ProcessPerformanceFeedback(ctx, models.PerformanceFeedback{
		LeadID:   "lead-2",
		Decision: next,
		Outcome:  models.FeedbackOutcome{Converted: true},
	}))
	got, err = e.Rule("strong")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Priority)
}

func TestFeedbackPriorityStaysWithinBounds(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, routing.Config{Rules: []models.RoutingRule{
		rule("top", 1, models.TargetInbound, models.PriorityHigh, always),
		rule("bottom", 10, models.TargetNurture, models.PriorityLow, always),
	}})
	top, err := e.Rule("top")
	require.NoError(t, err)
	bottom, err := e.Rule("bottom")
	require.NoError(t, err)

	require.NoError(t, e.ProcessPerformanceFeedback(ctx, models.PerformanceFeedback{
		LeadID:   "a",
		Decision: models.RoutingDecision{RuleID: "top", Action: top.Action},
		Outcome:  models.FeedbackOutcome{Converted: true},
	}))
	require.NoError(t, e.ProcessPerformanceFeedback(ctx, models.PerformanceFeedback{
		LeadID:   "b",
		Decision: models.RoutingDecision{RuleID: "bottom", Action: bottom.Action},
		Outcome:  models.FeedbackOutcome{Converted: false},
	}))

	top, _ = e.Rule("top")
	bottom, _ = e.Rule("bottom")
	assert.Equal(t, 1, top.Priority)
	assert.Equal(t, 10, bottom.Priority)
}

func TestFeedbackAggregatesBySharedActionTuple(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, routing.Config{Rules: []models.RoutingRule{
		rule("a", 4, models.TargetInbound, models.PriorityHigh, always),
		rule("b", 5, models.TargetInbound, models.PriorityHigh, never),
	}})
	a, _ := e.Rule("a")
	b, _ := e.Rule("b")

	require.NoError(t, e.ProcessPerformanceFeedback(ctx, models.PerformanceFeedback{
		LeadID:   "lead-a",
		Decision: models.RoutingDecision{RuleID: "a", Action: a.Action},
		Outcome:  models.FeedbackOutcome{Converted: false},
	}))
	require.NoError(t, e.ProcessPerformanceFeedback(ctx, models.PerformanceFeedback{
		LeadID:   "lead-b",
		Decision: models.RoutingDecision{RuleID: "b", Action: b.Action},
		Outcome:  models.FeedbackOutcome{Converted: true},
	}))

	got, err := e.Rule("b")
	require.NoError(t, err)
	require.NotNil(t, got.SuccessRate)
	assert.Equal(t, 0.5, *got.SuccessRate)
	assert.Equal(t, 5, got.Priority)
}

func TestFeedbackRequiresLeadID(t *testing.T) {
	e := newEngine(t, routing.Config{})
	err := e.ProcessPerformanceFeedback(context.Background(), models.PerformanceFeedback{})
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestRuleManagement(t *testing.T) {
	e := newEngine(t, routing.Config{})
	initial := len(e.Rules())

	custom := rule("custom", 7, models.TargetOutbound, models.PriorityMedium, always)
	require.NoError(t, e.AddRoutingRule(custom))
	require.NoError(t, e.AddRoutingRule(custom))
	assert.Len(t, e.Rules(), initial+1)

	custom.Priority = 9
	require.NoError(t, e.UpdateRule(custom))
	got, err := e.Rule("custom")
	require.NoError(t, err)
	assert.Equal(t, 9, got.Priority)

	err = e.UpdateRule(rule("ghost", 1, models.TargetInbound, models.PriorityHigh, always))
	assert.True(t, errors.Is(err, models.ErrNotFound))
	assert.Contains(t, err.Error(), "ghost")

	assert.True(t, e.RemoveRoutingRule("custom"))
	assert.False(t, e.RemoveRoutingRule("custom"))
	assert.Len(t, e.Rules(), initial)

	err = e.AddRoutingRule(models.RoutingRule{ID: "no-cond"})
	assert.True(t, errors.Is(err, models.ErrValidation))

	rules := e.Rules()
	for i := 1; i < len(rules); i++ {
		assert.LessOrEqual(t, rules[i-1].Priority, rules[i].Priority)
	}
}

func TestUpdateRuleKeepsMeasuredSuccessRate(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, routing.Config{Rules: []models.RoutingRule{
		rule("weak", 5, models.TargetInbound, models.PriorityHigh, always),
	}})
	decision, err := e.Analyze(ctx, models.LeadSnapshot{ID: "lead-1"})
	require.NoError(t, err)
	require.NoError(t, e.ProcessPerformanceFeedback(ctx, models.PerformanceFeedback{
		LeadID:   "lead-1",
		Decision: decision,
		Outcome:  models.FeedbackOutcome{Converted: false},
	}))

	edited := rule("weak", 3, models.TargetInbound, models.PriorityHigh, always)
	edited.Name = "renamed"
	require.NoError(t, e.UpdateRule(edited))
	got, err := e.Rule("weak")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, 3, got.Priority)
	require.NotNil(t, got.SuccessRate)
	assert.Equal(t, 0.0, *got.SuccessRate)

	rate := 0.9
	edited.SuccessRate = &rate
	require.NoError(t, e.UpdateRule(edited))
	got, err = e.Rule("weak")
	require.NoError(t, err)
	require.NotNil(t, got.SuccessRate)
	assert.Equal(t, 0.9, *got.SuccessRate)
}

func TestTuningContract(t *testing.T) {
	e := newEngine(t, routing.Config{})

	prev, err := e.SetRulePriority("cold-nurture", 15)
	require.NoError(t, err)
	assert.Equal(t, 5, prev)
	got, _ := e.Rule("cold-nurture")
	assert.Equal(t, 10, got.Priority)

	prevMinutes, err := e.SetRuleResponseTime("hot-lead-inbound", 3)
	require.NoError(t, err)
	assert.Equal(t, 5, prevMinutes)

	_, err = e.SetRulePriority("missing", 2)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = e.SetRuleResponseTime("hot-lead-inbound", 0)
	assert.True(t, errors.Is(err, models.ErrValidation))

	assert.Equal(t, 0.7, e.SetReclassifyQualification(0.6))
	assert.Equal(t, 0.6, e.ReclassifyQualification())
}

func TestUpdateConfigKeepsRulesAndUpsertsNew(t *testing.T) {
	e := newEngine(t, routing.Config{})
	before := len(e.Rules())

	cfg := routing.DefaultConfig()
	cfg.DefaultSourceWeight = 0.2
	cfg.Rules = []models.RoutingRule{rule("extra", 8, models.TargetOutbound, models.PriorityLow, never)}
	e.UpdateConfig(cfg)

	assert.Equal(t, 0.2, e.Config().DefaultSourceWeight)
	assert.Len(t, e.Rules(), before+1)

	decision, err := e.Analyze(context.Background(), models.LeadSnapshot{ID: "x", Source: "unknown-source", LeadType: models.LeadTypeWarm, UrgencyLevel: 4})
	require.NoError(t, err)
	assert.Equal(t, 0.2, decision.Analysis.SourceQuality)
}
