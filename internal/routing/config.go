package routing

import (
	"time"

	"github.com/ILLUVRSE/leadops/internal/models"
)

// Config holds every tunable of the rule engine. Zero values are replaced by the
// defaults documented below when the engine is constructed or reconfigured.
type Config struct {
	// SourceModifiers adds a fixed urgency offset per lead source. Unknown sources add 0.
	SourceModifiers map[string]int
	// SourceWeights is the source-quality weight in [0,1]. Unknown sources use DefaultSourceWeight (0.5).
	SourceWeights       map[string]float64
	DefaultSourceWeight float64
	// SourcePoints feeds the reclassification point system. Unknown sources score DefaultSourcePoints (1).
	SourcePoints        map[string]int
	DefaultSourcePoints int
	// IntentWeights scores known intent signals; unknown signals score UnknownIntentWeight (0.05).
	IntentWeights       map[string]float64
	UnknownIntentWeight float64
	// MaxIntentScore caps the normalized intent score (0.95).
	MaxIntentScore float64
	// SignalBonusPerSignal and MaxSignalBonus shape the urgency bonus from intent signals (0.5, 2).
	SignalBonusPerSignal float64
	MaxSignalBonus       float64
	// FreshWindow leads younger than this get +1 urgency (1h); leads older than StaleAfter get -1 (72h).
	FreshWindow time.Duration
	StaleAfter  time.Duration
	// Reclassification triggers for leads labeled cold (urgency 7, signals 3, qualification 0.7).
	ReclassifyUrgency       int
	ReclassifySignals       int
	ReclassifyQualification float64
	// Point thresholds of the reclassification system (hot 12, warm 7).
	HotPointThreshold  int
	WarmPointThreshold int
	// Fallback is returned when no rule matches.
	Fallback models.RoutingAction
	// Rules replaces DefaultRules when non-empty.
	Rules []models.RoutingRule
}

// DefaultConfig returns the stock heuristics tables.
func DefaultConfig() Config {
	return Config{
		SourceModifiers: map[string]int{
			"referral":      2,
			"website":       1,
			"paid_ads":      1,
			"event":         1,
			"social_media":  0,
			"cold_outreach": -1,
		},
		SourceWeights: map[string]float64{
			"referral":      0.9,
			"website":       0.8,
			"event":         0.75,
			"paid_ads":      0.7,
			"social_media":  0.6,
			"cold_outreach": 0.4,
		},
		DefaultSourceWeight: 0.5,
		SourcePoints: map[string]int{
			"referral":      3,
			"website":       2,
			"event":         2,
			"paid_ads":      2,
			"social_media":  1,
			"cold_outreach": 0,
		},
		DefaultSourcePoints: 1,
		IntentWeights: map[string]float64{
			"requested_demo":       0.35,
			"pricing_inquiry":      0.3,
			"requested_callback":   0.3,
			"budget_confirmed":     0.3,
			"timeline_defined":     0.25,
			"decision_maker":       0.25,
			"visited_pricing_page": 0.2,
			"compared_competitors": 0.15,
			"downloaded_content":   0.1,
			"webinar_attended":     0.1,
			"opened_email":         0.05,
			"newsletter_signup":    0.05,
		},
		UnknownIntentWeight:     0.05,
		MaxIntentScore:          0.95,
		SignalBonusPerSignal:    0.5,
		MaxSignalBonus:          2,
		FreshWindow:             time.Hour,
		StaleAfter:              72 * time.Hour,
		ReclassifyUrgency:       7,
		ReclassifySignals:       3,
		ReclassifyQualification: 0.7,
		HotPointThreshold:       12,
		WarmPointThreshold:      7,
		Fallback: models.RoutingAction{
			Target:                models.TargetOutbound,
			Priority:              models.PriorityLow,
			EstimatedResponseTime: 240,
			Reasoning:             "No specific routing rule matched; defaulting to outbound follow-up",
			SuggestedActions:      []string{"queue_outbound_call", "send_intro_email"},
		},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SourceModifiers == nil {
		c.SourceModifiers = def.SourceModifiers
	}
	if c.SourceWeights == nil {
		c.SourceWeights = def.SourceWeights
	}
	if c.DefaultSourceWeight <= 0 {
		c.DefaultSourceWeight = def.DefaultSourceWeight
	}
	if c.SourcePoints == nil {
		c.SourcePoints = def.SourcePoints
	}
	if c.DefaultSourcePoints <= 0 {
		c.DefaultSourcePoints = def.DefaultSourcePoints
	}
	if c.IntentWeights == nil {
		c.IntentWeights = def.IntentWeights
	}
	if c.UnknownIntentWeight <= 0 {
		c.UnknownIntentWeight = def.UnknownIntentWeight
	}
	if c.MaxIntentScore <= 0 {
		c.MaxIntentScore = def.MaxIntentScore
	}
	if c.SignalBonusPerSignal <= 0 {
		c.SignalBonusPerSignal = def.SignalBonusPerSignal
	}
	if c.MaxSignalBonus <= 0 {
		c.MaxSignalBonus = def.MaxSignalBonus
	}
	if c.FreshWindow <= 0 {
		c.FreshWindow = def.FreshWindow
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = def.StaleAfter
	}
	if c.ReclassifyUrgency <= 0 {
		c.ReclassifyUrgency = def.ReclassifyUrgency
	}
	if c.ReclassifySignals <= 0 {
		c.ReclassifySignals = def.ReclassifySignals
	}
	if c.ReclassifyQualification <= 0 {
		c.ReclassifyQualification = def.ReclassifyQualification
	}
	if c.HotPointThreshold <= 0 {
		c.HotPointThreshold = def.HotPointThreshold
	}
	if c.WarmPointThreshold <= 0 {
		c.WarmPointThreshold = def.WarmPointThreshold
	}
	if c.Fallback.Target == "" {
		c.Fallback = def.Fallback
	}
	return c
}
