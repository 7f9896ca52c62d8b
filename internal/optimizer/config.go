package optimizer

import (
	"time"

	"github.com/ILLUVRSE/leadops/internal/campaign"
	"github.com/ILLUVRSE/leadops/internal/events"
	"github.com/ILLUVRSE/leadops/internal/models"
)

const (
	DefaultInterval           = 24 * time.Hour
	DefaultLookback           = 7 * 24 * time.Hour
	DefaultMaxPerCycle        = 3
	DefaultMinimumImprovement = 10.0
	DefaultTestPeriodDays     = 7
	DefaultSignificance       = 0.95
	DefaultTrendSignificance  = 0.7

	conversionTarget      = 0.6
	slowResponseMs        = 60000
	scriptImprovementGate = 10.0
	lowBookingRate        = 0.15
	minBookingSamples     = 20
	rollbackBelow         = -5.0

	minStepDelayFactor = 0.25
	minQualification   = 0.5
	qualificationStep  = 0.05
	stepDelayReduction = 0.8
	responseTightening = 0.8
)

// Config carries the optimizer tunables. Zero values take the Default* constants.
type Config struct {
	// Agents are the downstream units measured each cycle. Defaults to models.AllTargets.
	Agents []string
	// Interval between cycles of the background loop.
	Interval time.Duration
	// Lookback is the performance window collected per cycle.
	Lookback time.Duration
	// MaxPerCycle bounds how many recommendations one cycle implements.
	MaxPerCycle int
	// Criteria seeds every recommendation's validation criteria.
	Criteria models.ValidationCriteria
	// TrendSignificance is the minimum trend confidence that triggers a timing change.
	TrendSignificance float64
	// Scripts, when set, lets approved script recommendations switch the active variant.
	Scripts ScriptActivator
	Events  events.Publisher
}

func (c Config) withDefaults() Config {
	if len(c.Agents) == 0 {
		for _, t := range models.AllTargets {
			c.Agents = append(c.Agents, string(t))
		}
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Lookback <= 0 {
		c.Lookback = DefaultLookback
	}
	if c.MaxPerCycle <= 0 {
		c.MaxPerCycle = DefaultMaxPerCycle
	}
	if c.Criteria.MinimumImprovement == 0 {
		c.Criteria.MinimumImprovement = DefaultMinimumImprovement
	}
	if c.Criteria.TestPeriodDays <= 0 {
		c.Criteria.TestPeriodDays = DefaultTestPeriodDays
	}
	if c.Criteria.SignificanceThreshold <= 0 {
		c.Criteria.SignificanceThreshold = DefaultSignificance
	}
	if c.TrendSignificance <= 0 {
		c.TrendSignificance = DefaultTrendSignificance
	}
	if c.Events == nil {
		c.Events = events.Noop{}
	}
	return c
}

// RuleTuner is the slice of the rule engine's public contract the optimizer may touch.
type RuleTuner interface {
	Rules() []models.RoutingRule
	SetRulePriority(id string, priority int) (int, error)
	SetRuleResponseTime(id string, minutes int) (int, error)
	ReclassifyQualification() float64
	SetReclassifyQualification(v float64) float64
}

// ScheduleTuner exposes the scheduler's timing parameters.
type ScheduleTuner interface {
	Tuning() campaign.Tuning
	SetTuning(t campaign.Tuning) (campaign.Tuning, error)
}

type ScriptActivator interface {
	ActivateScript(scriptID string) (string, error)
}
