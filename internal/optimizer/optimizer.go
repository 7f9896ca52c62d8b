package optimizer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ILLUVRSE/leadops/internal/analytics"
	"github.com/ILLUVRSE/leadops/internal/events"
	"github.com/ILLUVRSE/leadops/internal/models"
)

var ErrAlreadyStarted = errors.New("optimizer already started")

// Optimizer measures downstream performance and proposes, applies, validates
// and rolls back tuning changes. It owns its recommendation and result maps and
// touches the rule engine and scheduler only through their public tuners.
type Optimizer struct {
	cfg       Config
	rules     RuleTuner
	schedule  ScheduleTuner
	analytics analytics.Provider
	logger    *log.Logger

	mu      sync.RWMutex
	recs    map[string]*models.OptimizationRecommendation
	order   []string
	results map[string]*models.OptimizationResult
	undo    map[string]undo
	applied int
	stats   cycleStats

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	now func() time.Time
}

type cycleStats struct {
	cycles    int
	failures  int
	lastAt    time.Time
	lastError string
}

func New(cfg Config, rules RuleTuner, schedule ScheduleTuner, provider analytics.Provider, logger *log.Logger) *Optimizer {
	if logger == nil {
		logger = log.New(os.Stdout, "[optimizer] ", log.LstdFlags)
	}
	return &Optimizer{
		cfg:       cfg.withDefaults(),
		rules:     rules,
		schedule:  schedule,
		analytics: provider,
		logger:    logger,
		recs:      map[string]*models.OptimizationRecommendation{},
		results:   map[string]*models.OptimizationResult{},
		undo:      map[string]undo{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source; intended for tests.
func (o *Optimizer) SetClock(now func() time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now = now
}

func (o *Optimizer) clock() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.now()
}

// CollectOptimizationFeedback snapshots each configured agent's performance over
// the lookback window together with its actionable high and medium insights.
func (o *Optimizer) CollectOptimizationFeedback(ctx context.Context) ([]models.AgentFeedback, error) {
	if o.analytics == nil {
		return nil, fmt.Errorf("no analytics provider configured")
	}
	now := o.clock()
	period := models.DateRange{Start: now.Add(-o.cfg.Lookback), End: now}

	insights, err := o.analytics.GenerateIntelligenceReport(ctx)
	if err != nil {
		return nil, fmt.Errorf("intelligence report: %w", err)
	}

	out := make([]models.AgentFeedback, 0, len(o.cfg.Agents))
	for _, agentID := range o.cfg.Agents {
		perf, err := o.analytics.CollectPerformanceData(ctx, agentID, period)
		if err != nil {
			return nil, fmt.Errorf("collect %s: %w", agentID, err)
		}
		fb := models.AgentFeedback{AgentID: agentID, Period: period, Performance: perf}
		for _, in := range insights {
			if in.AgentID != agentID || !in.Actionable {
				continue
			}
			if in.Impact == models.ImpactHigh || in.Impact == models.ImpactMedium {
				fb.Insights = append(fb.Insights, in)
			}
		}
		out = append(out, fb)
	}
	return out, nil
}

// GenerateOptimizationRecommendations derives routing, script, timing and
// threshold recommendations, registers them as pending and returns them ordered
// by priority then expected impact.
func (o *Optimizer) GenerateOptimizationRecommendations(ctx context.Context, feedback []models.AgentFeedback) ([]models.OptimizationRecommendation, error) {
	now := o.clock()
	var recs []models.OptimizationRecommendation

	for _, fb := range feedback {
		if rec, ok := o.routingRecommendation(fb); ok {
			recs = append(recs, rec)
		}
	}

	if o.analytics != nil {
		scripts, err := o.analytics.AnalyzeScriptPerformance(ctx)
		if err != nil {
			return nil, fmt.Errorf("script performance: %w", err)
		}
		for _, s := range scripts {
			if s.EstimatedImprovement <= scriptImprovementGate {
				continue
			}
			tier := models.PriorityMedium
			if s.EstimatedImprovement > 25 {
				tier = models.PriorityHigh
			}
			recs = append(recs, models.OptimizationRecommendation{
				Type:     models.RecommendationScriptUpdate,
				AgentID:  s.AgentID,
				Priority: tier,
				Description: fmt.Sprintf("Switch %s to script %s (%.0f%% -> %.0f%% over %d uses)",
					s.AgentID, s.ScriptID, s.CurrentConversionRate*100, s.EstimatedConversion*100, s.SampleSize),
				ExpectedImpact: round2(math.Min(s.EstimatedImprovement, 50)),
				Implementation: models.Implementation{ScriptID: s.ScriptID, Script: s.SuggestedScript},
				RequiresReview: true,
			})
		}

		trends, err := o.analytics.AnalyzePerformanceTrends(ctx, models.DateRange{Start: now.Add(-o.cfg.Lookback), End: now})
		if err != nil {
			return nil, fmt.Errorf("performance trends: %w", err)
		}
		if rec, ok := o.timingRecommendation(trends); ok {
			recs = append(recs, rec)
		}
	}

	if rec, ok := o.thresholdRecommendation(feedback); ok {
		recs = append(recs, rec)
	}

	for i := range recs {
		recs[i].ID = uuid.NewString()
		recs[i].ValidationCriteria = o.cfg.Criteria
		recs[i].Status = models.RecommendationPending
		recs[i].CreatedAt = now
	}
	sort.SliceStable(recs, func(i, j int) bool {
		ri, rj := recs[i].Priority.Rank(), recs[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return recs[i].ExpectedImpact > recs[j].ExpectedImpact
	})

	o.mu.Lock()
	busy := o.underTestLocked()
	kept := recs[:0]
	for _, rec := range recs {
		if key, hit := overlaps(rec, busy); hit {
			o.logger.Printf("skipping %s for %s: %s still under test", rec.Type, rec.AgentID, key)
			continue
		}
		o.supersedeLocked(rec)
		o.storeLocked(rec)
		kept = append(kept, rec)
	}
	o.mu.Unlock()
	return kept, nil
}

// settings names what an implementation changes, one key per tunable.
func settings(rec models.OptimizationRecommendation) []string {
	var keys []string
	for _, ru := range rec.Implementation.RuleUpdates {
		keys = append(keys, "rule "+ru.RuleID)
	}
	if rec.Implementation.StepDelayFactor != nil {
		keys = append(keys, "step delay factor")
	}
	if rec.Implementation.QualificationThreshold != nil {
		keys = append(keys, "qualification threshold")
	}
	if rec.Implementation.ScriptID != "" {
		keys = append(keys, "script for "+rec.AgentID)
	}
	return keys
}

// underTestLocked collects the settings of implemented recommendations that
// have not been validated yet.
func (o *Optimizer) underTestLocked() map[string]bool {
	busy := map[string]bool{}
	for _, id := range o.order {
		rec := o.recs[id]
		if rec.Status != models.RecommendationImplemented {
			continue
		}
		for _, key := range settings(*rec) {
			busy[key] = true
		}
	}
	return busy
}

func overlaps(rec models.OptimizationRecommendation, busy map[string]bool) (string, bool) {
	for _, key := range settings(rec) {
		if busy[key] {
			return key, true
		}
	}
	return "", false
}

// supersedeLocked drops older pending or held recommendations of the same type
// for the same agent.
func (o *Optimizer) supersedeLocked(rec models.OptimizationRecommendation) {
	kept := o.order[:0]
	for _, id := range o.order {
		old := o.recs[id]
		if id != rec.ID && old.Type == rec.Type && old.AgentID == rec.AgentID &&
			(old.Status == models.RecommendationPending || old.Status == models.RecommendationManualReview) {
			delete(o.recs, id)
			o.logger.Printf("recommendation %s superseded by %s", id, rec.ID)
			continue
		}
		kept = append(kept, id)
	}
	o.order = kept
}

func (o *Optimizer) routingRecommendation(fb models.AgentFeedback) (models.OptimizationRecommendation, bool) {
	perf := fb.Performance
	if perf.TotalInteractions == 0 || o.rules == nil {
		return models.OptimizationRecommendation{}, false
	}
	lowConversion := perf.ConversionRate < conversionTarget
	slow := perf.AverageResponseTime > slowResponseMs
	if !lowConversion && !slow {
		return models.OptimizationRecommendation{}, false
	}

	var updates []models.RuleUpdate
	for _, rule := range o.rules.Rules() {
		if string(rule.Action.Target) != fb.AgentID {
			continue
		}
		u := models.RuleUpdate{RuleID: rule.ID}
		if lowConversion && rule.Priority < 10 {
			p := rule.Priority + 1
			u.Priority = &p
		}
		if slow && rule.Action.EstimatedResponseTime > 1 {
			m := int(math.Max(1, math.Floor(float64(rule.Action.EstimatedResponseTime)*responseTightening)))
			u.ResponseTimeMinutes = &m
		}
		if u.Priority != nil || u.ResponseTimeMinutes != nil {
			updates = append(updates, u)
		}
	}
	if len(updates) == 0 {
		return models.OptimizationRecommendation{}, false
	}

	tier := models.PriorityMedium
	if perf.ConversionRate < 0.3 || perf.AverageResponseTime > 2*slowResponseMs {
		tier = models.PriorityHigh
	}
	for _, in := range fb.Insights {
		if in.Impact == models.ImpactHigh {
			tier = models.PriorityHigh
		}
	}

	impact := 0.0
	if lowConversion {
		impact += (conversionTarget - perf.ConversionRate) / conversionTarget * 50
	}
	if slow {
		impact += 10
	}
	return models.OptimizationRecommendation{
		Type:     models.RecommendationRoutingRule,
		AgentID:  fb.AgentID,
		Priority: tier,
		Description: fmt.Sprintf("Rebalance routing for %s: conversion %.0f%%, average response %.0fs",
			fb.AgentID, perf.ConversionRate*100, perf.AverageResponseTime/1000),
		ExpectedImpact: round2(impact),
		Implementation: models.Implementation{RuleUpdates: updates},
	}, true
}

// timingRecommendation reacts to the strongest significant declining trend.
// The step delay factor is global, so one cycle proposes at most one change.
func (o *Optimizer) timingRecommendation(trends []models.Trend) (models.OptimizationRecommendation, bool) {
	if o.schedule == nil {
		return models.OptimizationRecommendation{}, false
	}
	var worst *models.Trend
	for i := range trends {
		t := trends[i]
		if t.Direction != models.TrendDecreasing || t.Confidence < o.cfg.TrendSignificance {
			continue
		}
		if worst == nil || t.Slope < worst.Slope {
			worst = &trends[i]
		}
	}
	if worst == nil {
		return models.OptimizationRecommendation{}, false
	}
	current := o.schedule.Tuning().StepDelayFactor
	next := math.Max(minStepDelayFactor, current*stepDelayReduction)
	if next >= current {
		return models.OptimizationRecommendation{}, false
	}
	tier := models.PriorityMedium
	if worst.Slope <= -0.05 {
		tier = models.PriorityHigh
	}
	return models.OptimizationRecommendation{
		Type:     models.RecommendationTimingAdjustment,
		AgentID:  worst.AgentID,
		Priority: tier,
		Description: fmt.Sprintf("Shorten campaign step delays (x%.2f -> x%.2f): %s %s declining %.3f/day (r²=%.2f)",
			current, next, worst.AgentID, worst.Metric, worst.Slope, worst.Confidence),
		ExpectedImpact: round2(clamp(-worst.Slope*100, 5, 25)),
		Implementation: models.Implementation{StepDelayFactor: &next},
	}, true
}

// thresholdRecommendation lowers the reclassification qualification bar for the
// agent with the weakest booking rate.
func (o *Optimizer) thresholdRecommendation(feedback []models.AgentFeedback) (models.OptimizationRecommendation, bool) {
	if o.rules == nil {
		return models.OptimizationRecommendation{}, false
	}
	var weakest *models.AgentFeedback
	for i := range feedback {
		perf := feedback[i].Performance
		if perf.TotalInteractions < minBookingSamples || perf.AppointmentBookingRate >= lowBookingRate {
			continue
		}
		if weakest == nil || perf.AppointmentBookingRate < weakest.Performance.AppointmentBookingRate {
			weakest = &feedback[i]
		}
	}
	if weakest == nil {
		return models.OptimizationRecommendation{}, false
	}
	current := o.rules.ReclassifyQualification()
	next := round2(math.Max(minQualification, current-qualificationStep))
	if next >= current {
		return models.OptimizationRecommendation{}, false
	}
	rate := weakest.Performance.AppointmentBookingRate
	return models.OptimizationRecommendation{
		Type:     models.RecommendationThresholdChange,
		AgentID:  weakest.AgentID,
		Priority: models.PriorityMedium,
		Description: fmt.Sprintf("Lower reclassification qualification %.2f -> %.2f: %s books %.0f%% of %d leads",
			current, next, weakest.AgentID, rate*100, weakest.Performance.TotalInteractions),
		ExpectedImpact: round2((lowBookingRate - rate) / lowBookingRate * 30),
		Implementation: models.Implementation{QualificationThreshold: &next},
	}, true
}

// Recommendations returns every recommendation in creation order.
func (o *Optimizer) Recommendations() []models.OptimizationRecommendation {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]models.OptimizationRecommendation, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.recs[id].Clone())
	}
	return out
}

func (o *Optimizer) Recommendation(id string) (models.OptimizationRecommendation, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	rec, ok := o.recs[id]
	if !ok {
		return models.OptimizationRecommendation{}, models.NotFound("recommendation", id)
	}
	return rec.Clone(), nil
}

// Results returns every implementation result, oldest first.
func (o *Optimizer) Results() []models.OptimizationResult {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]models.OptimizationResult, 0, len(o.results))
	for _, id := range o.order {
		if res, ok := o.results[id]; ok {
			out = append(out, res.Clone())
		}
	}
	return out
}

// AddResultNote appends a resolution note. Notes are the only mutable part of a
// validated result.
func (o *Optimizer) AddResultNote(recommendationID, note string) error {
	if note == "" {
		return models.Validation("note is required")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	res, ok := o.results[recommendationID]
	if !ok {
		return models.NotFound("optimization result", recommendationID)
	}
	res.Notes = append(res.Notes, note)
	return nil
}

// Summary aggregates optimizer state for the supervisor dashboard.
type Summary struct {
	Recommendations int                                 `json:"recommendations"`
	ByStatus        map[models.RecommendationStatus]int `json:"byStatus"`
	AwaitingReview  int                                 `json:"awaitingReview"`
	Cycles          int                                 `json:"cycles"`
	FailedCycles    int                                 `json:"failedCycles"`
	LastCycleAt     *time.Time                          `json:"lastCycleAt,omitempty"`
	LastError       string                              `json:"lastError,omitempty"`
	Running         bool                                `json:"running"`
}

func (o *Optimizer) Summary() Summary {
	o.mu.RLock()
	defer o.mu.RUnlock()
	sum := Summary{
		Recommendations: len(o.recs),
		ByStatus:        map[models.RecommendationStatus]int{},
		Cycles:          o.stats.cycles,
		FailedCycles:    o.stats.failures,
		LastError:       o.stats.lastError,
		Running:         o.running,
	}
	for _, rec := range o.recs {
		sum.ByStatus[rec.Status]++
	}
	sum.AwaitingReview = sum.ByStatus[models.RecommendationManualReview]
	if !o.stats.lastAt.IsZero() {
		at := o.stats.lastAt
		sum.LastCycleAt = &at
	}
	return sum
}

func (o *Optimizer) storeLocked(rec models.OptimizationRecommendation) {
	if _, ok := o.recs[rec.ID]; !ok {
		o.order = append(o.order, rec.ID)
	}
	stored := rec.Clone()
	o.recs[rec.ID] = &stored
}

func (o *Optimizer) publish(ctx context.Context, eventType, key string, data interface{}) {
	ev := events.Event{Type: eventType, Key: key, Source: "optimizer", Timestamp: o.clock(), Data: data}
	if err := o.cfg.Events.Publish(ctx, ev); err != nil {
		o.logger.Printf("publish %s: %v", eventType, err)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
