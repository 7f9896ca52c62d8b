package analytics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ILLUVRSE/leadops/internal/models"
)

const (
	reportWindow     = 7 * 24 * time.Hour
	minScriptSamples = 20

	lowConversion    = 0.3
	strongConversion = 0.6
	slowResponseMs   = 60000
	lowSatisfaction  = 3.0
)

type outcome struct {
	agentID      string
	at           time.Time
	converted    bool
	responseMs   float64
	satisfaction float64
	booked       bool
}

type scriptStats struct {
	agentID     string
	content     string
	active      bool
	uses        int
	conversions int
}

// Memory is an in-process Provider fed by outcome feedback and script usage.
type Memory struct {
	mu       sync.RWMutex
	outcomes []outcome
	scripts  map[string]*scriptStats
	insights []models.Insight

	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		scripts: map[string]*scriptStats{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source; intended for tests.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) RecordFeedback(agentID string, fb models.PerformanceFeedback) {
	if agentID == "" {
		agentID = string(fb.Decision.Action.Target)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	at := fb.Timestamp
	if at.IsZero() {
		at = m.now()
	}
	m.outcomes = append(m.outcomes, outcome{
		agentID:      agentID,
		at:           at,
		converted:    fb.Outcome.Converted,
		responseMs:   float64(fb.Outcome.ResponseTime),
		satisfaction: fb.Outcome.SatisfactionScore,
		booked:       fb.Outcome.AppointmentBooked,
	})
}

// RegisterScript declares a script variant. Exactly one variant per agent should be active.
func (m *Memory) RegisterScript(agentID, scriptID, content string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.scripts[scriptID]
	if !ok {
		st = &scriptStats{}
		m.scripts[scriptID] = st
	}
	st.agentID = agentID
	st.content = content
	st.active = active
	if active {
		for id, other := range m.scripts {
			if id != scriptID && other.agentID == agentID {
				other.active = false
			}
		}
	}
}

// ActivateScript makes scriptID the agent's active variant and returns the previously active id.
func (m *Memory) ActivateScript(scriptID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.scripts[scriptID]
	if !ok {
		return "", models.NotFound("script", scriptID)
	}
	prev := ""
	for id, other := range m.scripts {
		if other.agentID == st.agentID && other.active {
			prev = id
		}
		if other.agentID == st.agentID {
			other.active = id == scriptID
		}
	}
	return prev, nil
}

func (m *Memory) RecordScriptUsage(scriptID string, converted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.scripts[scriptID]
	if !ok {
		return models.NotFound("script", scriptID)
	}
	st.uses++
	if converted {
		st.conversions++
	}
	return nil
}

// AddInsight publishes an externally produced insight alongside the generated ones.
func (m *Memory) AddInsight(in models.Insight) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = m.now()
	}
	m.insights = append(m.insights, in)
}

func (m *Memory) CollectPerformanceData(ctx context.Context, agentID string, period models.DateRange) (models.PerformanceData, error) {
	if agentID == "" {
		return models.PerformanceData{}, models.Validation("agent id is required")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return aggregate(agentID, m.outcomesLocked(agentID, period)), nil
}

func (m *Memory) GenerateIntelligenceReport(ctx context.Context) ([]models.Insight, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	period := models.DateRange{Start: now.Add(-reportWindow), End: now.Add(time.Nanosecond)}

	out := append([]models.Insight(nil), m.insights...)
	for _, agentID := range m.agentsLocked() {
		perf := aggregate(agentID, m.outcomesLocked(agentID, period))
		if perf.TotalInteractions == 0 {
			continue
		}
		mk := func(category, title, desc string, impact models.Impact, actionable bool) models.Insight {
			return models.Insight{
				ID:          uuid.NewString(),
				AgentID:     agentID,
				Category:    category,
				Title:       title,
				Description: desc,
				Impact:      impact,
				Actionable:  actionable,
				CreatedAt:   now,
			}
		}
		switch {
		case perf.ConversionRate < lowConversion:
			out = append(out, mk("conversion", "Low conversion rate",
				fmt.Sprintf("%s converts %.0f%% of %d leads", agentID, perf.ConversionRate*100, perf.TotalInteractions),
				models.ImpactHigh, true))
		case perf.ConversionRate > strongConversion:
			out = append(out, mk("conversion", "Strong conversion rate",
				fmt.Sprintf("%s converts %.0f%% of %d leads", agentID, perf.ConversionRate*100, perf.TotalInteractions),
				models.ImpactLow, false))
		}
		if perf.AverageResponseTime > slowResponseMs {
			out = append(out, mk("response_time", "Slow first response",
				fmt.Sprintf("%s averages %.0fs to respond", agentID, perf.AverageResponseTime/1000),
				models.ImpactMedium, true))
		}
		if perf.CustomerSatisfactionScore > 0 && perf.CustomerSatisfactionScore < lowSatisfaction {
			out = append(out, mk("satisfaction", "Low customer satisfaction",
				fmt.Sprintf("%s satisfaction averages %.1f/5", agentID, perf.CustomerSatisfactionScore),
				models.ImpactMedium, true))
		}
	}
	return out, nil
}

func (m *Memory) AnalyzeScriptPerformance(ctx context.Context) ([]models.ScriptOptimization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byAgent := map[string][]string{}
	for id, st := range m.scripts {
		byAgent[st.agentID] = append(byAgent[st.agentID], id)
	}
	agents := make([]string, 0, len(byAgent))
	for a := range byAgent {
		agents = append(agents, a)
	}
	sort.Strings(agents)

	var out []models.ScriptOptimization
	for _, agentID := range agents {
		ids := byAgent[agentID]
		sort.Strings(ids)
		var current, best string
		for _, id := range ids {
			st := m.scripts[id]
			if st.active {
				current = id
				continue
			}
			if st.uses < minScriptSamples {
				continue
			}
			if best == "" || rate(st) > rate(m.scripts[best]) {
				best = id
			}
		}
		if current == "" || best == "" {
			continue
		}
		cur, cand := m.scripts[current], m.scripts[best]
		if cur.uses < minScriptSamples {
			continue
		}
		curRate, candRate := rate(cur), rate(cand)
		if candRate <= curRate {
			continue
		}
		improvement := 100.0
		if curRate > 0 {
			improvement = (candRate - curRate) / curRate * 100
		}
		out = append(out, models.ScriptOptimization{
			ScriptID:              best,
			AgentID:               agentID,
			CurrentConversionRate: curRate,
			EstimatedConversion:   candRate,
			EstimatedImprovement:  improvement,
			SuggestedScript:       cand.content,
			SampleSize:            cand.uses,
		})
	}
	return out, nil
}

func (m *Memory) AnalyzePerformanceTrends(ctx context.Context, period models.DateRange) ([]models.Trend, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Trend
	for _, agentID := range m.agentsLocked() {
		if trend, ok := conversionTrend(agentID, period, m.outcomesLocked(agentID, period)); ok {
			out = append(out, trend)
		}
	}
	return out, nil
}

func (m *Memory) outcomesLocked(agentID string, period models.DateRange) []outcome {
	var out []outcome
	for _, o := range m.outcomes {
		if o.agentID == agentID && period.Contains(o.at) {
			out = append(out, o)
		}
	}
	return out
}

func (m *Memory) agentsLocked() []string {
	seen := map[string]bool{}
	var out []string
	for _, o := range m.outcomes {
		if !seen[o.agentID] {
			seen[o.agentID] = true
			out = append(out, o.agentID)
		}
	}
	sort.Strings(out)
	return out
}

func aggregate(agentID string, outcomes []outcome) models.PerformanceData {
	perf := models.PerformanceData{AgentID: agentID, TotalInteractions: len(outcomes)}
	if len(outcomes) == 0 {
		return perf
	}
	var conversions, booked, rated int
	var response, satisfaction float64
	for _, o := range outcomes {
		if o.converted {
			conversions++
		}
		if o.booked {
			booked++
		}
		response += o.responseMs
		if o.satisfaction > 0 {
			satisfaction += o.satisfaction
			rated++
		}
	}
	n := float64(len(outcomes))
	perf.ConversionRate = float64(conversions) / n
	perf.AppointmentBookingRate = float64(booked) / n
	perf.AverageResponseTime = response / n
	if rated > 0 {
		perf.CustomerSatisfactionScore = satisfaction / float64(rated)
	}
	return perf
}

func rate(st *scriptStats) float64 {
	if st.uses == 0 {
		return 0
	}
	return float64(st.conversions) / float64(st.uses)
}
