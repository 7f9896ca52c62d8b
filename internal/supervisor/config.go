package supervisor

import (
	"context"
	"time"

	"github.com/ILLUVRSE/leadops/internal/analytics"
	"github.com/ILLUVRSE/leadops/internal/campaign"
	"github.com/ILLUVRSE/leadops/internal/events"
	"github.com/ILLUVRSE/leadops/internal/models"
	"github.com/ILLUVRSE/leadops/internal/optimizer"
)

const (
	DefaultHighErrorCount   = 10
	DefaultHighLoad         = 0.9
	DefaultDegradedOffline  = 0.3
	DefaultSlowResponseMs   = 60000
	DefaultReportPerfWindow = 24 * time.Hour
)

// Config holds alert thresholds and the units registered at startup.
type Config struct {
	// Agents are registered as active on construction. Defaults to models.AllTargets.
	Agents []string
	// HighErrorCount raises "High Error Count" when exceeded.
	HighErrorCount int
	// HighLoad raises "High Load" when currentLoad exceeds it.
	HighLoad float64
	// DegradedOffline is the offline fraction above which the system is degraded.
	DegradedOffline float64
	// SlowResponseMs marks an agent as slow in the health score.
	SlowResponseMs float64
	// PerformanceWindow is the analytics window shown on the dashboard.
	PerformanceWindow time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.Agents) == 0 {
		for _, t := range models.AllTargets {
			c.Agents = append(c.Agents, string(t))
		}
	}
	if c.HighErrorCount <= 0 {
		c.HighErrorCount = DefaultHighErrorCount
	}
	if c.HighLoad <= 0 {
		c.HighLoad = DefaultHighLoad
	}
	if c.DegradedOffline <= 0 {
		c.DegradedOffline = DefaultDegradedOffline
	}
	if c.SlowResponseMs <= 0 {
		c.SlowResponseMs = DefaultSlowResponseMs
	}
	if c.PerformanceWindow <= 0 {
		c.PerformanceWindow = DefaultReportPerfWindow
	}
	return c
}

// Dependencies are read-only views of the other components plus the hooks
// overrides are allowed to fire. Every field is optional.
type Dependencies struct {
	Rules     RuleView
	Campaigns CampaignView
	Optimizer OptimizerView
	Analytics analytics.Provider
	Archiver  ReportArchiver
	Events    events.Publisher
	Hooks     []OverrideHook
}

type RuleView interface {
	Rules() []models.RoutingRule
}

type CampaignView interface {
	Summary() campaign.Summary
}

type OptimizerView interface {
	Summary() optimizer.Summary
}

// ReportArchiver stores a generated report and returns its object key.
type ReportArchiver interface {
	Archive(ctx context.Context, kind, id string, at time.Time, v interface{}) (string, error)
}

// OverrideHook lets other components react to operator overrides without the
// supervisor reaching into their state.
type OverrideHook interface {
	ApplyOverride(ctx context.Context, o models.SystemOverride) error
	ReleaseOverride(ctx context.Context, o models.SystemOverride) error
}

// Pauser is the scheduler surface an emergency stop acts on.
type Pauser interface {
	Pause(reason string)
	Resume()
}

// SchedulerHook pauses campaign execution for the duration of an emergency stop.
type SchedulerHook struct {
	Scheduler Pauser
}

func (h SchedulerHook) ApplyOverride(_ context.Context, o models.SystemOverride) error {
	if o.Type == models.OverrideEmergencyStop {
		h.Scheduler.Pause("emergency stop: " + o.Reason)
	}
	return nil
}

func (h SchedulerHook) ReleaseOverride(_ context.Context, o models.SystemOverride) error {
	if o.Type == models.OverrideEmergencyStop {
		h.Scheduler.Resume()
	}
	return nil
}
