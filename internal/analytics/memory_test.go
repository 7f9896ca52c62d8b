package analytics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/leadops/internal/analytics"
	"github.com/ILLUVRSE/leadops/internal/models"
)

var base = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func feedback(at time.Time, converted bool, responseMs int64, satisfaction float64, booked bool) models.PerformanceFeedback {
	return models.PerformanceFeedback{
		LeadID:    "lead",
		Timestamp: at,
		Outcome: models.FeedbackOutcome{
			Converted:         converted,
			ResponseTime:      responseMs,
			SatisfactionScore: satisfaction,
			AppointmentBooked: booked,
		},
	}
}

func TestCollectPerformanceData(t *testing.T) {
	m := analytics.NewMemory()
	m.RecordFeedback("inbound", feedback(base, true, 1000, 4, true))
	m.RecordFeedback("inbound", feedback(base.Add(time.Hour), false, 3000, 0, false))
	m.RecordFeedback("inbound", feedback(base.Add(2*time.Hour), true, 2000, 5, false))
	m.RecordFeedback("inbound", feedback(base.Add(3*time.Hour), false, 2000, 3, false))
	m.RecordFeedback("inbound", feedback(base.Add(-30*24*time.Hour), true, 1, 5, true))
	m.RecordFeedback("outbound", feedback(base, true, 1, 5, true))

	perf, err := m.CollectPerformanceData(context.Background(), "inbound", models.DateRange{Start: base.Add(-time.Hour), End: base.Add(24 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 4, perf.TotalInteractions)
	assert.InDelta(t, 0.5, perf.ConversionRate, 1e-9)
	assert.InDelta(t, 2000, perf.AverageResponseTime, 1e-9)
	assert.InDelta(t, 4.0, perf.CustomerSatisfactionScore, 1e-9)
	assert.InDelta(t, 0.25, perf.AppointmentBookingRate, 1e-9)

	empty, err := m.CollectPerformanceData(context.Background(), "nurture", models.DateRange{Start: base, End: base.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, models.PerformanceData{AgentID: "nurture"}, empty)

	_, err = m.CollectPerformanceData(context.Background(), "", models.DateRange{})
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestRecordFeedbackDefaultsAgentToTarget(t *testing.T) {
	m := analytics.NewMemory()
	fb := feedback(base, true, 10, 0, false)
	fb.Decision.Action.Target = models.TargetNurture
	m.RecordFeedback("", fb)

	perf, err := m.CollectPerformanceData(context.Background(), "nurture", models.DateRange{Start: base, End: base.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, 1, perf.TotalInteractions)
}

func TestGenerateIntelligenceReport(t *testing.T) {
	m := analytics.NewMemory()
	m.SetClock(func() time.Time { return base.Add(time.Hour) })
	for i := 0; i < 10; i++ {
		m.RecordFeedback("outbound", feedback(base.Add(-time.Duration(i)*time.Hour), i == 0, 90000, 2, false))
	}
	m.AddInsight(models.Insight{AgentID: "inbound", Title: "Seasonal dip", Impact: models.ImpactMedium, Actionable: true})

	insights, err := m.GenerateIntelligenceReport(context.Background())
	require.NoError(t, err)

	titles := map[string]models.Insight{}
	for _, in := range insights {
		titles[in.Title] = in
	}
	require.Contains(t, titles, "Low conversion rate")
	assert.Equal(t, models.ImpactHigh, titles["Low conversion rate"].Impact)
	assert.True(t, titles["Low conversion rate"].Actionable)
	require.Contains(t, titles, "Slow first response")
	assert.Equal(t, models.ImpactMedium, titles["Slow first response"].Impact)
	assert.Contains(t, titles, "Low customer satisfaction")
	require.Contains(t, titles, "Seasonal dip")
	assert.NotEmpty(t, titles["Seasonal dip"].ID)
}

func TestAnalyzeScriptPerformance(t *testing.T) {
	m := analytics.NewMemory()
	m.RegisterScript("inbound", "s-a", "current script", true)
	m.RegisterScript("inbound", "s-b", "better script", false)
	m.RegisterScript("inbound", "s-c", "tiny sample", false)
	record := func(id string, uses, conversions int) {
		for i := 0; i < uses; i++ {
			require.NoError(t, m.RecordScriptUsage(id, i < conversions))
		}
	}
	record("s-a", 30, 9)
	record("s-b", 25, 10)
	record("s-c", 5, 5)

	opts, err := m.AnalyzeScriptPerformance(context.Background())
	require.NoError(t, err)
	require.Len(t, opts, 1)
	assert.Equal(t, "s-b", opts[0].ScriptID)
	assert.Equal(t, "inbound", opts[0].AgentID)
	assert.Equal(t, "better script", opts[0].SuggestedScript)
	assert.InDelta(t, 0.3, opts[0].CurrentConversionRate, 1e-9)
	assert.InDelta(t, 0.4, opts[0].EstimatedConversion, 1e-9)
	assert.InDelta(t, 33.33, opts[0].EstimatedImprovement, 0.01)
	assert.Equal(t, 25, opts[0].SampleSize)

	prev, err := m.ActivateScript("s-b")
	require.NoError(t, err)
	assert.Equal(t, "s-a", prev)

	opts, err = m.AnalyzeScriptPerformance(context.Background())
	require.NoError(t, err)
	assert.Empty(t, opts)

	assert.True(t, errors.Is(m.RecordScriptUsage("missing", true), models.ErrNotFound))
	_, err = m.ActivateScript("missing")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestAnalyzePerformanceTrends(t *testing.T) {
	m := analytics.NewMemory()
	start := base.Truncate(24 * time.Hour)
	for day := 0; day < 4; day++ {
		for i := 0; i < 4; i++ {
			at := start.Add(time.Duration(day)*24*time.Hour + time.Duration(i)*time.Hour)
			m.RecordFeedback("inbound", feedback(at, i < 4-day, 100, 4, false))
		}
	}
	m.RecordFeedback("outbound", feedback(start, true, 100, 4, false))
	m.RecordFeedback("outbound", feedback(start.Add(24*time.Hour), false, 100, 4, false))

	trends, err := m.AnalyzePerformanceTrends(context.Background(), models.DateRange{Start: start, End: start.Add(7 * 24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, trends, 1)
	assert.Equal(t, "inbound", trends[0].AgentID)
	assert.Equal(t, models.TrendDecreasing, trends[0].Direction)
	assert.InDelta(t, -0.25, trends[0].Slope, 1e-9)
	assert.InDelta(t, 1.0, trends[0].Confidence, 1e-9)
	assert.Equal(t, 16, trends[0].Samples)
}
