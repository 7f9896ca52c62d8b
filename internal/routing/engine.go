package routing

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ILLUVRSE/leadops/internal/models"
)

const (
	minRulePriority = 1
	maxRulePriority = 10

	lowSuccessRate  = 0.5
	highSuccessRate = 0.8

	demoteBelow  = 0.3
	promoteAbove = 0.8
)

type ruleEntry struct {
	rule models.RoutingRule
	seq  int
}

// Engine maps lead snapshots to routing decisions. It exclusively owns the rule
// list and per-lead feedback history.
type Engine struct {
	mu       sync.RWMutex
	cfg      Config
	rules    []ruleEntry
	seq      int
	feedback map[string][]models.PerformanceFeedback

	logger *log.Logger
	now    func() time.Time
}

func New(cfg Config, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stdout, "[routing] ", log.LstdFlags)
	}
	cfg = cfg.withDefaults()
	e := &Engine{
		feedback: map[string][]models.PerformanceFeedback{},
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	rules := cfg.Rules
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	cfg.Rules = nil
	e.cfg = cfg
	for _, r := range rules {
		e.upsertLocked(r)
	}
	e.sortLocked()
	return e
}

// SetClock overrides the time source; intended for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// Analyze produces a routing decision for the lead.
func (e *Engine) Analyze(ctx context.Context, lead models.LeadSnapshot) (models.RoutingDecision, error) {
	if strings.TrimSpace(lead.ID) == "" {
		return models.RoutingDecision{}, models.Validation("lead id is required")
	}

	e.mu.RLock()
	cfg := e.cfg
	now := e.now()
	entries := make([]ruleEntry, len(e.rules))
	copy(entries, e.rules)
	e.mu.RUnlock()

	analysis := AnalyzeLead(cfg, lead, now)
	reasoning := []string{
		fmt.Sprintf("adjusted urgency %d, intent score %.2f, source quality %.2f",
			analysis.AdjustedUrgency, analysis.IntentScore, analysis.SourceQuality),
	}
	if analysis.Reclassified {
		reasoning = append(reasoning, fmt.Sprintf("lead reclassified from %s to %s", displayType(lead.LeadType), analysis.EffectiveLeadType))
	}

	decision := models.RoutingDecision{
		ID:        uuid.NewString(),
		LeadID:    lead.ID,
		Analysis:  analysis,
		DecidedAt: now,
	}

	matched := false
	for _, entry := range entries {
		rule := entry.rule
		if !rule.Enabled || rule.Condition == nil {
			continue
		}
		if !rule.Condition(lead, analysis) {
			continue
		}
		action := rule.Clone().Action
		if rule.SuccessRate != nil {
			action = adjustForSuccessRate(action, *rule.SuccessRate)
		}
		decision.RuleID = rule.ID
		decision.Action = action
		reasoning = append(reasoning, fmt.Sprintf("matched rule %s (priority %d)", rule.ID, rule.Priority), action.Reasoning)
		matched = true
		break
	}
	if !matched {
		decision.Action = cfg.Fallback
		decision.Action.SuggestedActions = append([]string(nil), cfg.Fallback.SuggestedActions...)
		reasoning = append(reasoning, cfg.Fallback.Reasoning)
	}

	decision.Reasoning = reasoning
	decision.Confidence = confidence(analysis)
	return decision.Clone(), nil
}

func adjustForSuccessRate(action models.RoutingAction, rate float64) models.RoutingAction {
	switch {
	case rate < lowSuccessRate:
		action.EstimatedResponseTime = int(math.Round(float64(action.EstimatedResponseTime) * 1.2))
		action.Reasoning = fmt.Sprintf("%s (response estimate x1.2: rule success rate %.0f%%)", action.Reasoning, rate*100)
	case rate > highSuccessRate:
		action.EstimatedResponseTime = int(math.Round(float64(action.EstimatedResponseTime) * 0.9))
		action.Reasoning = fmt.Sprintf("%s (response estimate x0.9: rule success rate %.0f%%)", action.Reasoning, rate*100)
	}
	return action
}

func confidence(a models.LeadAnalysis) float64 {
	c := 0.5 + 0.3*a.IntentScore + 0.2*a.SourceQuality
	if a.Reclassified {
		c -= 0.1
	}
	return round2(clampFloat(c, 0.1, 1))
}

func displayType(t models.LeadType) string {
	if t == "" {
		return "unlabeled"
	}
	return string(t)
}

// ProcessPerformanceFeedback records an outcome and re-tunes the rule that produced it.
//
// Success rates aggregate over every feedback whose decision shares the rule's
// (target, priority) action tuple, not its rule id, so rules with identical
// actions share statistics.
func (e *Engine) ProcessPerformanceFeedback(ctx context.Context, fb models.PerformanceFeedback) error {
	if strings.TrimSpace(fb.LeadID) == "" {
		return models.Validation("feedback lead id is required")
	}
	fb.Decision = fb.Decision.Clone()

	e.mu.Lock()
	defer e.mu.Unlock()
	if fb.Timestamp.IsZero() {
		fb.Timestamp = e.now()
	}
	e.feedback[fb.LeadID] = append(e.feedback[fb.LeadID], fb)

	if fb.Decision.RuleID == "" {
		return nil
	}
	idx := e.indexLocked(fb.Decision.RuleID)
	if idx < 0 {
		e.logger.Printf("feedback for lead %s references unknown rule %s", fb.LeadID, fb.Decision.RuleID)
		return nil
	}
	rule := &e.rules[idx].rule

	total, successes := 0, 0
	for _, history := range e.feedback {
		for _, f := range history {
			if f.Decision.Action.Target != rule.Action.Target || f.Decision.Action.Priority != rule.Action.Priority {
				continue
			}
			total++
			if f.Outcome.Converted {
				successes++
			}
		}
	}
	if total == 0 {
		return nil
	}
	rate := float64(successes) / float64(total)
	rule.SuccessRate = &rate

	before := rule.Priority
	switch {
	case rate < demoteBelow && rule.Priority < maxRulePriority:
		rule.Priority++
	case rate > promoteAbove && rule.Priority > minRulePriority:
		rule.Priority--
	}
	if rule.Priority != before {
		e.logger.Printf("rule %s priority %d -> %d (success rate %.2f over %d outcomes)", rule.ID, before, rule.Priority, rate, total)
	}
	e.sortLocked()
	return nil
}

// AddRoutingRule inserts or replaces a rule by id.
func (e *Engine) AddRoutingRule(rule models.RoutingRule) error {
	if strings.TrimSpace(rule.ID) == "" {
		return models.Validation("rule id is required")
	}
	if rule.Condition == nil {
		return models.Validation("rule %s has no condition", rule.ID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.upsertLocked(rule)
	e.sortLocked()
	return nil
}

// UpdateRule replaces an existing rule, keeping its registration sequence and,
// when the replacement carries none, its measured success rate.
func (e *Engine) UpdateRule(rule models.RoutingRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.indexLocked(rule.ID) < 0 {
		return models.NotFound("rule", rule.ID)
	}
	if rule.Condition == nil {
		return models.Validation("rule %s has no condition", rule.ID)
	}
	e.upsertLocked(rule)
	e.sortLocked()
	return nil
}

// RemoveRoutingRule deletes a rule; removing an unknown id is a no-op.
func (e *Engine) RemoveRoutingRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.indexLocked(id)
	if idx < 0 {
		return false
	}
	e.rules = append(e.rules[:idx], e.rules[idx+1:]...)
	e.sortLocked()
	return true
}

// UpdateConfig swaps the heuristics tables and upserts any rules supplied in cfg.Rules.
func (e *Engine) UpdateConfig(cfg Config) {
	rules := cfg.Rules
	cfg.Rules = nil
	cfg = cfg.withDefaults()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	for _, r := range rules {
		e.upsertLocked(r)
	}
	e.sortLocked()
}

func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Rules returns the rules in evaluation order.
func (e *Engine) Rules() []models.RoutingRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.RoutingRule, 0, len(e.rules))
	for _, entry := range e.rules {
		out = append(out, entry.rule.Clone())
	}
	return out
}

func (e *Engine) Rule(id string) (models.RoutingRule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx := e.indexLocked(id)
	if idx < 0 {
		return models.RoutingRule{}, models.NotFound("rule", id)
	}
	return e.rules[idx].rule.Clone(), nil
}

// Feedback returns the recorded history for one lead.
func (e *Engine) Feedback(leadID string) []models.PerformanceFeedback {
	e.mu.RLock()
	defer e.mu.RUnlock()
	history := e.feedback[leadID]
	out := make([]models.PerformanceFeedback, len(history))
	copy(out, history)
	return out
}

// SetRulePriority changes a rule priority, returning the previous value.
func (e *Engine) SetRulePriority(id string, priority int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.indexLocked(id)
	if idx < 0 {
		return 0, models.NotFound("rule", id)
	}
	prev := e.rules[idx].rule.Priority
	e.rules[idx].rule.Priority = clampInt(priority, minRulePriority, maxRulePriority)
	e.sortLocked()
	return prev, nil
}

// SetRuleResponseTime changes a rule's response estimate in minutes, returning the previous value.
func (e *Engine) SetRuleResponseTime(id string, minutes int) (int, error) {
	if minutes <= 0 {
		return 0, models.Validation("response time must be positive")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.indexLocked(id)
	if idx < 0 {
		return 0, models.NotFound("rule", id)
	}
	prev := e.rules[idx].rule.Action.EstimatedResponseTime
	e.rules[idx].rule.Action.EstimatedResponseTime = minutes
	return prev, nil
}

func (e *Engine) ReclassifyQualification() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.ReclassifyQualification
}

// SetReclassifyQualification returns the previous threshold.
func (e *Engine) SetReclassifyQualification(v float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.cfg.ReclassifyQualification
	if v > 0 && v <= 1 {
		e.cfg.ReclassifyQualification = v
	}
	return prev
}

func (e *Engine) upsertLocked(rule models.RoutingRule) {
	rule = rule.Clone()
	if idx := e.indexLocked(rule.ID); idx >= 0 {
		if rule.SuccessRate == nil && e.rules[idx].rule.SuccessRate != nil {
			rate := *e.rules[idx].rule.SuccessRate
			rule.SuccessRate = &rate
		}
		e.rules[idx].rule = rule
		return
	}
	e.seq++
	e.rules = append(e.rules, ruleEntry{rule: rule, seq: e.seq})
}

func (e *Engine) indexLocked(id string) int {
	for i, entry := range e.rules {
		if entry.rule.ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) sortLocked() {
	sort.SliceStable(e.rules, func(i, j int) bool {
		if e.rules[i].rule.Priority != e.rules[j].rule.Priority {
			return e.rules[i].rule.Priority < e.rules[j].rule.Priority
		}
		return e.rules[i].seq < e.rules[j].seq
	})
}
