package optimizer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ILLUVRSE/leadops/internal/campaign"
	"github.com/ILLUVRSE/leadops/internal/events"
	"github.com/ILLUVRSE/leadops/internal/models"
)

// undo holds the values a recommendation replaced. seq orders implementations.
type undo struct {
	seq           int
	priorities    map[string]int
	responses     map[string]int
	tuning        *campaign.Tuning
	qualification *float64
	script        string
}

// ImplementOptimizations applies at most MaxPerCycle high-priority
// recommendations that do not require review, snapshotting the agent's baseline
// metrics first. Recommendations not yet known to the optimizer are registered.
func (o *Optimizer) ImplementOptimizations(ctx context.Context, recs []models.OptimizationRecommendation) ([]models.OptimizationRecommendation, error) {
	var selected []models.OptimizationRecommendation
	o.mu.Lock()
	for _, rec := range recs {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.Status == "" {
			rec.Status = models.RecommendationPending
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = o.now()
		}
		if rec.ValidationCriteria == (models.ValidationCriteria{}) {
			rec.ValidationCriteria = o.cfg.Criteria
		}
		stored, known := o.recs[rec.ID]
		if !known {
			o.storeLocked(rec)
			stored = o.recs[rec.ID]
		}
		if len(selected) >= o.cfg.MaxPerCycle {
			continue
		}
		if stored.Priority != models.PriorityHigh || stored.RequiresReview || stored.Status != models.RecommendationPending {
			continue
		}
		selected = append(selected, stored.Clone())
	}
	o.mu.Unlock()

	var implemented []models.OptimizationRecommendation
	for _, rec := range selected {
		applied, err := o.implement(ctx, rec)
		if err != nil {
			o.logger.Printf("implement %s (%s): %v", rec.ID, rec.Type, err)
			continue
		}
		implemented = append(implemented, applied)
	}
	return implemented, nil
}

// ApproveRecommendation implements a recommendation held for review, or any
// pending one, regardless of its priority.
func (o *Optimizer) ApproveRecommendation(ctx context.Context, id string) (models.OptimizationRecommendation, error) {
	rec, err := o.Recommendation(id)
	if err != nil {
		return models.OptimizationRecommendation{}, err
	}
	if rec.Status != models.RecommendationPending && rec.Status != models.RecommendationManualReview {
		return models.OptimizationRecommendation{}, models.Validation("recommendation %s is %s", id, rec.Status)
	}
	return o.implement(ctx, rec)
}

// RejectRecommendation closes a pending or held recommendation without applying it.
func (o *Optimizer) RejectRecommendation(id, reason string) (models.OptimizationRecommendation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.recs[id]
	if !ok {
		return models.OptimizationRecommendation{}, models.NotFound("recommendation", id)
	}
	if rec.Status != models.RecommendationPending && rec.Status != models.RecommendationManualReview {
		return models.OptimizationRecommendation{}, models.Validation("recommendation %s is %s", id, rec.Status)
	}
	rec.Status = models.RecommendationFailed
	o.logger.Printf("recommendation %s rejected: %s", id, reason)
	return rec.Clone(), nil
}

func (o *Optimizer) implement(ctx context.Context, rec models.OptimizationRecommendation) (models.OptimizationRecommendation, error) {
	now := o.clock()
	var baseline models.PerformanceData
	if o.analytics != nil {
		perf, err := o.analytics.CollectPerformanceData(ctx, rec.AgentID, models.DateRange{Start: now.Add(-o.cfg.Lookback), End: now})
		if err != nil {
			return models.OptimizationRecommendation{}, fmt.Errorf("baseline: %w", err)
		}
		baseline = perf
	}

	u, err := o.apply(rec.Implementation)
	if err != nil {
		o.mu.Lock()
		if stored, ok := o.recs[rec.ID]; ok {
			stored.Status = models.RecommendationFailed
		}
		o.mu.Unlock()
		return models.OptimizationRecommendation{}, err
	}

	o.mu.Lock()
	stored := o.recs[rec.ID]
	stored.Status = models.RecommendationImplemented
	stored.ImplementedAt = &now
	o.applied++
	u.seq = o.applied
	o.undo[rec.ID] = u
	o.results[rec.ID] = &models.OptimizationResult{
		RecommendationID: rec.ID,
		AgentID:          rec.AgentID,
		Baseline:         baseline,
		ImplementedAt:    now,
	}
	out := stored.Clone()
	o.mu.Unlock()

	o.logger.Printf("implemented %s %s for %s: %s", out.Type, out.ID, out.AgentID, out.Description)
	o.publish(ctx, events.OptimizationApplied, out.ID, out)
	return out, nil
}

// ValidateOptimizations scores every implemented recommendation whose test
// period has elapsed. Overall improvement weighs conversion 0.4, response time
// 0.3 and satisfaction 0.3; results below -5% are reverted.
func (o *Optimizer) ValidateOptimizations(ctx context.Context) ([]models.OptimizationResult, error) {
	if o.analytics == nil {
		return nil, fmt.Errorf("no analytics provider configured")
	}
	now := o.clock()
	type due struct {
		rec models.OptimizationRecommendation
		res models.OptimizationResult
	}
	var pending []due
	o.mu.RLock()
	for _, id := range o.order {
		rec := o.recs[id]
		res, ok := o.results[id]
		if !ok || rec.Status != models.RecommendationImplemented || res.ValidatedAt != nil {
			continue
		}
		period := time.Duration(rec.ValidationCriteria.TestPeriodDays) * 24 * time.Hour
		if now.Before(res.ImplementedAt.Add(period)) {
			continue
		}
		pending = append(pending, due{rec: rec.Clone(), res: res.Clone()})
	}
	o.mu.RUnlock()

	var out []models.OptimizationResult
	for _, d := range pending {
		current, err := o.analytics.CollectPerformanceData(ctx, d.rec.AgentID, models.DateRange{Start: d.res.ImplementedAt, End: now.Add(time.Nanosecond)})
		if err != nil {
			return out, fmt.Errorf("validate %s: %w", d.rec.ID, err)
		}
		imp := improvement(d.res.Baseline, current)
		validated := imp.Overall >= d.rec.ValidationCriteria.MinimumImprovement
		rollback := !validated && imp.Overall < rollbackBelow

		status := models.RecommendationValidated
		switch {
		case rollback:
			status = models.RecommendationRolledBack
		case !validated:
			status = models.RecommendationFailed
		}
		var note string
		if rollback {
			if err := o.revert(d.rec.ID); err != nil {
				note = fmt.Sprintf("rollback incomplete: %v", err)
				o.logger.Printf("rollback %s: %v", d.rec.ID, err)
			} else {
				note = fmt.Sprintf("rolled back at %s", now.Format(time.RFC3339))
			}
		}

		o.mu.Lock()
		res := o.results[d.rec.ID]
		res.Current = current
		res.Improvement = imp
		res.Validated = validated
		res.RollbackRequired = rollback
		at := now
		res.ValidatedAt = &at
		if note != "" {
			res.Notes = append(res.Notes, note)
		}
		o.recs[d.rec.ID].Status = status
		if !rollback {
			delete(o.undo, d.rec.ID)
		}
		snapshot := res.Clone()
		o.mu.Unlock()

		o.logger.Printf("validated %s: overall %.2f%% (conversion %.2f%%, response %.2f%%, satisfaction %.2f%%) -> %s",
			d.rec.ID, imp.Overall, imp.Conversion, imp.ResponseTime, imp.Satisfaction, status)
		if rollback {
			o.publish(ctx, events.OptimizationRollback, d.rec.ID, snapshot)
		} else {
			o.publish(ctx, events.OptimizationValidated, d.rec.ID, snapshot)
		}
		out = append(out, snapshot)
	}
	return out, nil
}

func improvement(baseline, current models.PerformanceData) models.Improvement {
	imp := models.Improvement{
		Conversion:   pctChange(baseline.ConversionRate, current.ConversionRate),
		ResponseTime: -pctChange(baseline.AverageResponseTime, current.AverageResponseTime),
		Satisfaction: pctChange(baseline.CustomerSatisfactionScore, current.CustomerSatisfactionScore),
	}
	imp.Conversion = round2(imp.Conversion)
	imp.ResponseTime = round2(imp.ResponseTime)
	imp.Satisfaction = round2(imp.Satisfaction)
	imp.Overall = round2(0.4*imp.Conversion + 0.3*imp.ResponseTime + 0.3*imp.Satisfaction)
	return imp
}

// pctChange is the relative change in percent, 0 when there is no baseline.
func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}

func (o *Optimizer) apply(impl models.Implementation) (undo, error) {
	u := undo{priorities: map[string]int{}, responses: map[string]int{}}
	fail := func(err error) (undo, error) {
		o.restore(u)
		return undo{}, err
	}

	for _, ru := range impl.RuleUpdates {
		if o.rules == nil {
			return fail(fmt.Errorf("no rule tuner configured"))
		}
		if ru.Priority != nil {
			prev, err := o.rules.SetRulePriority(ru.RuleID, *ru.Priority)
			if err != nil {
				return fail(err)
			}
			u.priorities[ru.RuleID] = prev
		}
		if ru.ResponseTimeMinutes != nil {
			prev, err := o.rules.SetRuleResponseTime(ru.RuleID, *ru.ResponseTimeMinutes)
			if err != nil {
				return fail(err)
			}
			u.responses[ru.RuleID] = prev
		}
	}
	if impl.StepDelayFactor != nil {
		if o.schedule == nil {
			return fail(fmt.Errorf("no schedule tuner configured"))
		}
		t := o.schedule.Tuning()
		t.StepDelayFactor = *impl.StepDelayFactor
		prev, err := o.schedule.SetTuning(t)
		if err != nil {
			return fail(err)
		}
		u.tuning = &prev
	}
	if impl.QualificationThreshold != nil {
		if o.rules == nil {
			return fail(fmt.Errorf("no rule tuner configured"))
		}
		prev := o.rules.SetReclassifyQualification(*impl.QualificationThreshold)
		u.qualification = &prev
	}
	if impl.ScriptID != "" {
		if o.cfg.Scripts == nil {
			return fail(fmt.Errorf("no script activator configured"))
		}
		prev, err := o.cfg.Scripts.ActivateScript(impl.ScriptID)
		if err != nil {
			return fail(err)
		}
		u.script = prev
	}
	return u, nil
}

func (o *Optimizer) revert(id string) error {
	o.mu.Lock()
	u, ok := o.undo[id]
	delete(o.undo, id)
	if ok {
		u = o.handOffLocked(u)
	}
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("no rollback state for %s", id)
	}
	return o.restore(u)
}

// handOffLocked passes each value u would put back to the next implementation
// that changed the same setting after u, which still holds the live value.
// Reverting that one later then lands on the value from before u. It returns
// what u restores itself.
func (o *Optimizer) handOffLocked(u undo) undo {
	rest := undo{seq: u.seq, priorities: map[string]int{}, responses: map[string]int{}}
	for ruleID, p := range u.priorities {
		if next, ok := o.nextUndoLocked(u.seq, func(n undo) bool { _, hit := n.priorities[ruleID]; return hit }); ok {
			n := o.undo[next]
			n.priorities[ruleID] = p
		} else {
			rest.priorities[ruleID] = p
		}
	}
	for ruleID, m := range u.responses {
		if next, ok := o.nextUndoLocked(u.seq, func(n undo) bool { _, hit := n.responses[ruleID]; return hit }); ok {
			n := o.undo[next]
			n.responses[ruleID] = m
		} else {
			rest.responses[ruleID] = m
		}
	}
	if u.tuning != nil {
		if next, ok := o.nextUndoLocked(u.seq, func(n undo) bool { return n.tuning != nil }); ok {
			n := o.undo[next]
			n.tuning = u.tuning
			o.undo[next] = n
		} else {
			rest.tuning = u.tuning
		}
	}
	if u.qualification != nil {
		if next, ok := o.nextUndoLocked(u.seq, func(n undo) bool { return n.qualification != nil }); ok {
			n := o.undo[next]
			n.qualification = u.qualification
			o.undo[next] = n
		} else {
			rest.qualification = u.qualification
		}
	}
	if u.script != "" {
		if next, ok := o.nextUndoLocked(u.seq, func(n undo) bool { return n.script != "" }); ok {
			n := o.undo[next]
			n.script = u.script
			o.undo[next] = n
		} else {
			rest.script = u.script
		}
	}
	return rest
}

func (o *Optimizer) nextUndoLocked(after int, touches func(undo) bool) (string, bool) {
	best, bestSeq := "", 0
	for id, n := range o.undo {
		if n.seq > after && touches(n) && (best == "" || n.seq < bestSeq) {
			best, bestSeq = id, n.seq
		}
	}
	return best, best != ""
}

// restore puts back every recorded value, returning the first failure.
func (o *Optimizer) restore(u undo) error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	for id, p := range u.priorities {
		_, err := o.rules.SetRulePriority(id, p)
		keep(err)
	}
	for id, m := range u.responses {
		_, err := o.rules.SetRuleResponseTime(id, m)
		keep(err)
	}
	if u.tuning != nil {
		_, err := o.schedule.SetTuning(*u.tuning)
		keep(err)
	}
	if u.qualification != nil {
		o.rules.SetReclassifyQualification(*u.qualification)
	}
	if u.script != "" && o.cfg.Scripts != nil {
		_, err := o.cfg.Scripts.ActivateScript(u.script)
		keep(err)
	}
	return first
}
