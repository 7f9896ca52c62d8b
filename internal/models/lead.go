package models

import (
	"time"
)

type LeadType string

const (
	LeadTypeHot  LeadType = "hot"
	LeadTypeWarm LeadType = "warm"
	LeadTypeCold LeadType = "cold"
)

type Target string

const (
	TargetInbound           Target = "inbound"
	TargetOutbound          Target = "outbound"
	TargetAppointmentSetter Target = "appointment_setter"
	TargetNurture           Target = "nurture"
)

// AllTargets lists the downstream units a decision can route to.
var AllTargets = []Target{TargetInbound, TargetOutbound, TargetAppointmentSetter, TargetNurture}

type PriorityTier string

const (
	PriorityHigh   PriorityTier = "high"
	PriorityMedium PriorityTier = "medium"
	PriorityLow    PriorityTier = "low"
)

// Rank orders tiers so that high sorts first when compared descending.
func (p PriorityTier) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

type ContactInfo struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
}

// LeadSnapshot is the read-only view of a lead handed to the rule engine.
type LeadSnapshot struct {
	ID                 string            `json:"id"`
	Source             string            `json:"source"`
	LeadType           LeadType          `json:"leadType"`
	UrgencyLevel       int               `json:"urgencyLevel"`
	IntentSignals      []string          `json:"intentSignals,omitempty"`
	QualificationScore float64           `json:"qualificationScore"`
	Contact            ContactInfo       `json:"contact"`
	CreatedAt          time.Time         `json:"createdAt"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

type LeadAnalysis struct {
	AdjustedUrgency   int      `json:"adjustedUrgency"`
	IntentScore       float64  `json:"intentScore"`
	SourceQuality     float64  `json:"sourceQuality"`
	EffectiveLeadType LeadType `json:"effectiveLeadType"`
	Reclassified      bool     `json:"reclassified"`
}

type RoutingAction struct {
	Target                Target       `json:"target"`
	Priority              PriorityTier `json:"priority"`
	EstimatedResponseTime int          `json:"estimatedResponseTime"` // minutes
	Reasoning             string       `json:"reasoning"`
	SuggestedActions      []string     `json:"suggestedActions,omitempty"`
}

func (a RoutingAction) clone() RoutingAction {
	a.SuggestedActions = append([]string(nil), a.SuggestedActions...)
	return a
}

// RuleCondition is a predicate over the lead and its derived analysis.
type RuleCondition func(lead LeadSnapshot, analysis LeadAnalysis) bool

type RoutingRule struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Priority    int           `json:"priority"`
	Enabled     bool          `json:"enabled"`
	Condition   RuleCondition `json:"-"`
	Action      RoutingAction `json:"action"`
	SuccessRate *float64      `json:"successRate,omitempty"`
}

// Clone copies the rule so the caller cannot alias the owner's state.
func (r RoutingRule) Clone() RoutingRule {
	r.Action = r.Action.clone()
	if r.SuccessRate != nil {
		v := *r.SuccessRate
		r.SuccessRate = &v
	}
	return r
}

type RoutingDecision struct {
	ID         string        `json:"id"`
	LeadID     string        `json:"leadId"`
	RuleID     string        `json:"ruleId,omitempty"`
	Action     RoutingAction `json:"action"`
	Confidence float64       `json:"confidence"`
	Reasoning  []string      `json:"reasoning"`
	Analysis   LeadAnalysis  `json:"analysis"`
	DecidedAt  time.Time     `json:"decidedAt"`
}

// Clone returns a deep copy; decisions are never mutated after creation.
func (d RoutingDecision) Clone() RoutingDecision {
	d.Action = d.Action.clone()
	d.Reasoning = append([]string(nil), d.Reasoning...)
	return d
}

type FeedbackOutcome struct {
	Converted         bool    `json:"converted"`
	ResponseTime      int64   `json:"responseTime"` // milliseconds
	SatisfactionScore float64 `json:"satisfactionScore"`
	AppointmentBooked bool    `json:"appointmentBooked"`
}

type PerformanceFeedback struct {
	LeadID    string          `json:"leadId"`
	Decision  RoutingDecision `json:"decision"`
	Outcome   FeedbackOutcome `json:"outcome"`
	Timestamp time.Time       `json:"timestamp"`
}
