package optimizer

import (
	"context"
	"fmt"
	"time"

	"github.com/ILLUVRSE/leadops/internal/models"
)

// CycleReport summarizes one optimization cycle.
type CycleReport struct {
	StartedAt       time.Time     `json:"startedAt"`
	Duration        time.Duration `json:"duration"`
	Agents          int           `json:"agents"`
	Recommendations int           `json:"recommendations"`
	Implemented     int           `json:"implemented"`
	Validated       int           `json:"validated"`
	RolledBack      int           `json:"rolledBack"`
	AwaitingReview  int           `json:"awaitingReview"`
}

// RunOptimizationCycle runs collect, recommend, implement, validate and then
// moves review-gated recommendations to the manual review queue.
func (o *Optimizer) RunOptimizationCycle(ctx context.Context) (CycleReport, error) {
	started := o.clock()
	report, err := o.cycle(ctx)
	report.StartedAt = started
	report.Duration = o.clock().Sub(started)

	o.mu.Lock()
	o.stats.cycles++
	o.stats.lastAt = started
	if err != nil {
		o.stats.failures++
		o.stats.lastError = err.Error()
	} else {
		o.stats.lastError = ""
	}
	o.mu.Unlock()

	if err != nil {
		return report, fmt.Errorf("optimization cycle: %w", err)
	}
	o.logger.Printf("cycle: %d agents, %d recommendations, %d implemented, %d validated, %d rolled back, %d awaiting review",
		report.Agents, report.Recommendations, report.Implemented, report.Validated, report.RolledBack, report.AwaitingReview)
	return report, nil
}

func (o *Optimizer) cycle(ctx context.Context) (CycleReport, error) {
	var report CycleReport
	feedback, err := o.CollectOptimizationFeedback(ctx)
	if err != nil {
		return report, err
	}
	report.Agents = len(feedback)

	recs, err := o.GenerateOptimizationRecommendations(ctx, feedback)
	if err != nil {
		return report, err
	}
	report.Recommendations = len(recs)

	implemented, err := o.ImplementOptimizations(ctx, recs)
	if err != nil {
		return report, err
	}
	report.Implemented = len(implemented)

	results, err := o.ValidateOptimizations(ctx)
	for _, res := range results {
		if res.Validated {
			report.Validated++
		}
		if res.RollbackRequired {
			report.RolledBack++
		}
	}
	if err != nil {
		return report, err
	}

	report.AwaitingReview = o.drainReviewQueue()
	return report, nil
}

// drainReviewQueue parks pending review-gated recommendations for an operator.
func (o *Optimizer) drainReviewQueue() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	held := 0
	for _, id := range o.order {
		rec := o.recs[id]
		if rec.RequiresReview && rec.Status == models.RecommendationPending {
			rec.Status = models.RecommendationManualReview
			o.logger.Printf("recommendation %s (%s) awaiting review: %s", rec.ID, rec.Type, rec.Description)
		}
		if rec.Status == models.RecommendationManualReview {
			held++
		}
	}
	return held
}

// Start runs one cycle immediately and then one per Interval until Stop or ctx
// cancellation. A failed cycle is logged and the loop continues.
func (o *Optimizer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrAlreadyStarted
	}
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	o.running = true
	o.stopCh = stopCh
	o.doneCh = doneCh
	interval := o.cfg.Interval
	o.mu.Unlock()

	o.logger.Printf("optimization loop started (interval=%s)", interval)
	go o.run(ctx, interval, stopCh, doneCh)
	return nil
}

func (o *Optimizer) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	stopCh := o.stopCh
	doneCh := o.doneCh
	o.running = false
	o.stopCh = nil
	o.doneCh = nil
	o.mu.Unlock()

	close(stopCh)
	<-doneCh
	o.logger.Printf("optimization loop stopped")
}

func (o *Optimizer) run(ctx context.Context, interval time.Duration, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	o.tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

func (o *Optimizer) tick(ctx context.Context) {
	if _, err := o.RunOptimizationCycle(ctx); err != nil {
		o.logger.Printf("%v", err)
	}
}
