package routing

import (
	"github.com/ILLUVRSE/leadops/internal/models"
)

// DefaultRules is the stock rule set, ordered by priority.
func DefaultRules() []models.RoutingRule {
	return []models.RoutingRule{
		{
			ID:       "hot-lead-inbound",
			Name:     "Hot or urgent lead",
			Priority: 1,
			Enabled:  true,
			Condition: func(lead models.LeadSnapshot, a models.LeadAnalysis) bool {
				return lead.UrgencyLevel >= 8 || a.AdjustedUrgency >= 8 ||
					lead.LeadType == models.LeadTypeHot || a.EffectiveLeadType == models.LeadTypeHot
			},
			Action: models.RoutingAction{
				Target:                models.TargetInbound,
				Priority:              models.PriorityHigh,
				EstimatedResponseTime: 5,
				Reasoning:             "High urgency or hot lead routed to inbound team for immediate contact",
				SuggestedActions:      []string{"call_within_5_minutes", "send_sms_acknowledgement"},
			},
		},
		{
			ID:       "appointment-request",
			Name:     "Explicit meeting request",
			Priority: 2,
			Enabled:  true,
			Condition: func(lead models.LeadSnapshot, _ models.LeadAnalysis) bool {
				return hasAnySignal(lead, "requested_demo", "requested_callback")
			},
			Action: models.RoutingAction{
				Target:                models.TargetAppointmentSetter,
				Priority:              models.PriorityHigh,
				EstimatedResponseTime: 15,
				Reasoning:             "Lead asked for a demo or callback; appointment setter books the meeting",
				SuggestedActions:      []string{"offer_time_slots", "send_calendar_link"},
			},
		},
		{
			ID:       "referral-fast-track",
			Name:     "Referral source",
			Priority: 3,
			Enabled:  true,
			Condition: func(lead models.LeadSnapshot, _ models.LeadAnalysis) bool {
				return lead.Source == "referral"
			},
			Action: models.RoutingAction{
				Target:                models.TargetInbound,
				Priority:              models.PriorityMedium,
				EstimatedResponseTime: 30,
				Reasoning:             "Referral leads convert well; inbound team follows up the same hour",
				SuggestedActions:      []string{"mention_referrer", "schedule_intro_call"},
			},
		},
		{
			ID:       "warm-engaged",
			Name:     "Warm lead with intent",
			Priority: 4,
			Enabled:  true,
			Condition: func(_ models.LeadSnapshot, a models.LeadAnalysis) bool {
				return a.EffectiveLeadType == models.LeadTypeWarm && a.IntentScore >= 0.3
			},
			Action: models.RoutingAction{
				Target:                models.TargetInbound,
				Priority:              models.PriorityMedium,
				EstimatedResponseTime: 60,
				Reasoning:             "Warm lead showing buying intent",
				SuggestedActions:      []string{"send_case_study", "schedule_discovery_call"},
			},
		},
		{
			ID:       "cold-nurture",
			Name:     "Cold lead nurture",
			Priority: 5,
			Enabled:  true,
			Condition: func(_ models.LeadSnapshot, a models.LeadAnalysis) bool {
				return a.EffectiveLeadType == models.LeadTypeCold
			},
			Action: models.RoutingAction{
				Target:                models.TargetNurture,
				Priority:              models.PriorityLow,
				EstimatedResponseTime: 1440,
				Reasoning:             "Cold lead enters the nurture sequence",
				SuggestedActions:      []string{"add_to_drip_campaign"},
			},
		},
	}
}

func hasAnySignal(lead models.LeadSnapshot, signals ...string) bool {
	for _, have := range lead.IntentSignals {
		for _, want := range signals {
			if have == want {
				return true
			}
		}
	}
	return false
}
