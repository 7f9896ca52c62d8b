package dispatch

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ILLUVRSE/leadops/internal/analytics"
	"github.com/ILLUVRSE/leadops/internal/audit"
	"github.com/ILLUVRSE/leadops/internal/events"
	"github.com/ILLUVRSE/leadops/internal/models"
	"github.com/ILLUVRSE/leadops/internal/workflow"
)

const (
	DefaultWorkflowID = "lead-intake"
	DefaultSource     = "leadops"
)

type Router interface {
	Analyze(ctx context.Context, lead models.LeadSnapshot) (models.RoutingDecision, error)
	ProcessPerformanceFeedback(ctx context.Context, fb models.PerformanceFeedback) error
}

type Enroller interface {
	MatchCampaign(lead models.LeadSnapshot, effective models.LeadType) (models.Campaign, bool)
	EnrollLead(ctx context.Context, campaignID, leadID string) (models.LeadCampaignProgress, error)
}

type ContactRegistry interface {
	Register(leadID string, info models.ContactInfo)
}

// Availability is the supervisor's view of whether a unit accepts new leads.
type Availability interface {
	Available(agentID string) bool
	RecordActivity(agentID string)
}

type Config struct {
	WorkflowID string
	Source     string
}

func (c Config) withDefaults() Config {
	if c.WorkflowID == "" {
		c.WorkflowID = DefaultWorkflowID
	}
	if c.Source == "" {
		c.Source = DefaultSource
	}
	return c
}

// Dependencies wires the dispatcher to the rest of the loop. Only Router is
// required.
type Dependencies struct {
	Router       Router
	Campaigns    Enroller
	Contacts     ContactRegistry
	Availability Availability
	Workflow     workflow.Executor
	Events       events.Publisher
	Analytics    analytics.Recorder
	Audit        audit.InteractionRecorder
}

// Result describes what happened to one lead. Collaborator failures after the
// routing decision are reported in Warnings and never fail the dispatch.
type Result struct {
	CorrelationID string                 `json:"correlationId"`
	Decision      models.RoutingDecision `json:"decision"`
	Held          bool                   `json:"held,omitempty"`
	Execution     *workflow.Execution    `json:"execution,omitempty"`
	CampaignID    string                 `json:"campaignId,omitempty"`
	Warnings      []string               `json:"warnings,omitempty"`
}

type Dispatcher struct {
	cfg    Config
	deps   Dependencies
	logger *log.Logger
	now    func() time.Time
}

func New(cfg Config, deps Dependencies, logger *log.Logger) (*Dispatcher, error) {
	if deps.Router == nil {
		return nil, fmt.Errorf("dispatch router required")
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[dispatch] ", log.LstdFlags)
	}
	if deps.Workflow == nil {
		deps.Workflow = workflow.Noop{}
	}
	if deps.Events == nil {
		deps.Events = events.Noop{}
	}
	if deps.Audit == nil {
		deps.Audit = audit.NopSink{}
	}
	return &Dispatcher{
		cfg:    cfg.withDefaults(),
		deps:   deps,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetClock overrides the time source; intended for tests.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// Dispatch routes a lead and hands it to the downstream unit: workflow
// execution, campaign enrollment and activity tracking. Leads routed to a unit
// the supervisor has paused or stopped are held after the decision is recorded.
func (d *Dispatcher) Dispatch(ctx context.Context, lead models.LeadSnapshot) (Result, error) {
	if d.deps.Contacts != nil && lead.ID != "" {
		d.deps.Contacts.Register(lead.ID, lead.Contact)
	}
	decision, err := d.deps.Router.Analyze(ctx, lead)
	if err != nil {
		return Result{}, err
	}
	now := d.now()
	res := Result{CorrelationID: uuid.NewString(), Decision: decision}
	target := string(decision.Action.Target)

	if d.deps.Availability != nil && !d.deps.Availability.Available(target) {
		res.Held = true
		res.warn(d.logger, "lead %s held: %s is not accepting leads", lead.ID, target)
	}
	d.publish(ctx, now, res)

	if !res.Held {
		exec, err := d.deps.Workflow.ExecuteWorkflow(ctx, d.cfg.WorkflowID, workflow.Payload{
			EventType:     events.LeadRouted,
			Timestamp:     now,
			Data:          routedData{Lead: lead, Decision: decision},
			Source:        d.cfg.Source,
			CorrelationID: res.CorrelationID,
		})
		if err != nil {
			res.warn(d.logger, "workflow for lead %s: %v", lead.ID, err)
		} else {
			res.Execution = &exec
		}

		if d.deps.Campaigns != nil {
			if c, ok := d.deps.Campaigns.MatchCampaign(lead, decision.Analysis.EffectiveLeadType); ok {
				if _, err := d.deps.Campaigns.EnrollLead(ctx, c.ID, lead.ID); err != nil {
					res.warn(d.logger, "enroll lead %s in %s: %v", lead.ID, c.ID, err)
				} else {
					res.CampaignID = c.ID
				}
			}
		}
		if d.deps.Availability != nil {
			d.deps.Availability.RecordActivity(target)
		}
	}

	details := map[string]interface{}{
		"correlationId": res.CorrelationID,
		"decisionId":    decision.ID,
		"ruleId":        decision.RuleID,
		"target":        target,
		"priority":      string(decision.Action.Priority),
		"confidence":    decision.Confidence,
		"held":          res.Held,
	}
	if res.CampaignID != "" {
		details["campaignId"] = res.CampaignID
	}
	if err := d.deps.Audit.RecordInteraction(ctx, audit.Interaction{
		LeadID:    lead.ID,
		Kind:      "dispatched",
		Actor:     target,
		Details:   details,
		Timestamp: now,
	}); err != nil {
		d.logger.Printf("record dispatch of lead %s: %v", lead.ID, err)
	}

	d.logger.Printf("lead %s -> %s (%s, rule %q, confidence %.2f, held=%t)", lead.ID, target, decision.Action.Priority, decision.RuleID, decision.Confidence, res.Held)
	return res, nil
}

// RecordOutcome feeds an observed outcome back to the rule engine, the
// analytics recorder and the audit sink.
func (d *Dispatcher) RecordOutcome(ctx context.Context, fb models.PerformanceFeedback) error {
	if fb.Timestamp.IsZero() {
		fb.Timestamp = d.now()
	}
	if err := d.deps.Router.ProcessPerformanceFeedback(ctx, fb); err != nil {
		return err
	}
	target := string(fb.Decision.Action.Target)
	if d.deps.Analytics != nil {
		d.deps.Analytics.RecordFeedback(target, fb)
	}
	if err := d.deps.Audit.RecordInteraction(ctx, audit.Interaction{
		LeadID: fb.LeadID,
		Kind:   "outcome",
		Actor:  target,
		Details: map[string]interface{}{
			"ruleId":            fb.Decision.RuleID,
			"converted":         fb.Outcome.Converted,
			"responseTime":      fb.Outcome.ResponseTime,
			"satisfactionScore": fb.Outcome.SatisfactionScore,
			"appointmentBooked": fb.Outcome.AppointmentBooked,
		},
		Timestamp: fb.Timestamp,
	}); err != nil {
		d.logger.Printf("record outcome of lead %s: %v", fb.LeadID, err)
	}
	return nil
}

type routedData struct {
	Lead     models.LeadSnapshot    `json:"lead"`
	Decision models.RoutingDecision `json:"decision"`
}

func (d *Dispatcher) publish(ctx context.Context, now time.Time, res Result) {
	ev := events.Event{
		Type:      events.LeadRouted,
		Key:       res.Decision.LeadID,
		Source:    d.cfg.Source,
		Timestamp: now,
		Data: map[string]interface{}{
			"correlationId": res.CorrelationID,
			"decision":      res.Decision,
			"held":          res.Held,
		},
	}
	if err := d.deps.Events.Publish(ctx, ev); err != nil {
		d.logger.Printf("publish %s for lead %s: %v", ev.Type, res.Decision.LeadID, err)
	}
}

func (r *Result) warn(logger *log.Logger, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.Warnings = append(r.Warnings, msg)
	logger.Print(msg)
}
