package supervisor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ILLUVRSE/leadops/internal/campaign"
	"github.com/ILLUVRSE/leadops/internal/models"
	"github.com/ILLUVRSE/leadops/internal/optimizer"
)

type SystemStatus string

const (
	StatusOperational SystemStatus = "OPERATIONAL"
	StatusDegraded    SystemStatus = "DEGRADED"
	StatusCritical    SystemStatus = "CRITICAL"
	StatusMaintenance SystemStatus = "MAINTENANCE"
)

type RoutingSummary struct {
	Rules        int `json:"rules"`
	EnabledRules int `json:"enabledRules"`
}

type DashboardMetrics struct {
	GeneratedAt      time.Time                         `json:"generatedAt"`
	SystemStatus     SystemStatus                      `json:"systemStatus"`
	HealthScore      float64                           `json:"healthScore"`
	Agents           []models.AgentStatus              `json:"agents"`
	AgentsByState    map[models.AgentState]int         `json:"agentsByState"`
	OpenAlerts       int                               `json:"openAlerts"`
	CriticalAlerts   int                               `json:"criticalAlerts"`
	ActiveOverrides  int                               `json:"activeOverrides"`
	ActiveDirectives int                               `json:"activeDirectives"`
	Routing          RoutingSummary                    `json:"routing"`
	Campaigns        campaign.Summary                  `json:"campaigns"`
	Optimizer        optimizer.Summary                 `json:"optimizer"`
	Performance      map[string]models.PerformanceData `json:"performance"`
}

// GetDashboardMetrics aggregates every component's view. Missing collaborators
// and failed analytics lookups leave their section zeroed.
func (s *Supervisor) GetDashboardMetrics(ctx context.Context) DashboardMetrics {
	s.mu.RLock()
	now := s.now()
	m := DashboardMetrics{
		GeneratedAt:   now,
		SystemStatus:  s.statusLocked(),
		HealthScore:   s.healthLocked(),
		Agents:        s.agentsLocked(now),
		AgentsByState: map[models.AgentState]int{},
	}
	for _, a := range s.alerts {
		if a.Acknowledged || a.Resolved {
			continue
		}
		m.OpenAlerts++
		if a.Severity == models.SeverityCritical {
			m.CriticalAlerts++
		}
	}
	for _, o := range s.overrides {
		if o.IsActive {
			m.ActiveOverrides++
		}
	}
	m.ActiveDirectives = len(s.directivesLocked(true, now))
	s.mu.RUnlock()

	for _, a := range m.Agents {
		m.AgentsByState[a.Status]++
	}
	m.Routing = s.routingSummary()
	if s.deps.Campaigns != nil {
		m.Campaigns = s.deps.Campaigns.Summary()
	}
	if s.deps.Optimizer != nil {
		m.Optimizer = s.deps.Optimizer.Summary()
	}
	m.Performance = s.performance(ctx, models.DateRange{Start: now.Add(-s.cfg.PerformanceWindow), End: now}, m.Agents)
	return m
}

// GetSystemHealthScore starts at 1 and deducts for offline units (0.3), high
// load (0.2), open critical alerts (0.3), other open alerts (0.2) and slow
// response (0.2), floored at 0.
func (s *Supervisor) GetSystemHealthScore() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthLocked()
}

func (s *Supervisor) healthLocked() float64 {
	score := 1.0
	if n := float64(len(s.agents)); n > 0 {
		var offline, loaded, slow float64
		for _, a := range s.agents {
			if a.Status == models.AgentOffline {
				offline++
			}
			if a.CurrentLoad > s.cfg.HighLoad {
				loaded++
			}
			if a.AverageResponseTime > s.cfg.SlowResponseMs {
				slow++
			}
		}
		score -= 0.3 * offline / n
		score -= 0.2 * loaded / n
		score -= 0.2 * slow / n
	}
	var critical, general float64
	for _, a := range s.alerts {
		if a.Acknowledged || a.Resolved {
			continue
		}
		if a.Severity == models.SeverityCritical {
			critical++
		} else {
			general++
		}
	}
	score -= math.Min(0.3, 0.1*critical)
	score -= math.Min(0.2, 0.05*general)
	return math.Round(math.Max(0, score)*1000) / 1000
}

func (s *Supervisor) statusLocked() SystemStatus {
	for _, a := range s.alerts {
		if a.Severity == models.SeverityCritical && !a.Acknowledged && !a.Resolved {
			return StatusCritical
		}
	}
	var offline int
	for _, a := range s.agents {
		if a.Status == models.AgentError {
			return StatusDegraded
		}
		if a.Status == models.AgentOffline {
			offline++
		}
	}
	if len(s.agents) > 0 && float64(offline)/float64(len(s.agents)) > s.cfg.DegradedOffline {
		return StatusDegraded
	}
	for _, o := range s.overrides {
		if o.IsActive && o.Type == models.OverrideEmergencyStop {
			return StatusMaintenance
		}
	}
	return StatusOperational
}

func (s *Supervisor) SystemStatus() SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statusLocked()
}

func (s *Supervisor) routingSummary() RoutingSummary {
	var sum RoutingSummary
	if s.deps.Rules == nil {
		return sum
	}
	for _, r := range s.deps.Rules.Rules() {
		sum.Rules++
		if r.Enabled {
			sum.EnabledRules++
		}
	}
	return sum
}

func (s *Supervisor) performance(ctx context.Context, period models.DateRange, agents []models.AgentStatus) map[string]models.PerformanceData {
	out := make(map[string]models.PerformanceData, len(agents))
	for _, a := range agents {
		perf := models.PerformanceData{AgentID: a.AgentID}
		if s.deps.Analytics != nil {
			p, err := s.deps.Analytics.CollectPerformanceData(ctx, a.AgentID, period)
			if err != nil {
				s.logger.Printf("performance for %s: %v", a.AgentID, err)
			} else {
				perf = p
			}
		}
		out[a.AgentID] = perf
	}
	return out
}

type ReportType string

const (
	ReportDaily   ReportType = "daily"
	ReportWeekly  ReportType = "weekly"
	ReportMonthly ReportType = "monthly"
	ReportCustom  ReportType = "custom"
)

type AlertSummary struct {
	Raised         int                     `json:"raised"`
	BySeverity     map[models.Severity]int `json:"bySeverity"`
	Unacknowledged int                     `json:"unacknowledged"`
}

type ExecutiveReport struct {
	ID              string                      `json:"id"`
	Type            ReportType                  `json:"type"`
	Period          models.DateRange            `json:"period"`
	GeneratedAt     time.Time                   `json:"generatedAt"`
	SystemStatus    SystemStatus                `json:"systemStatus"`
	HealthScore     float64                     `json:"healthScore"`
	Totals          models.PerformanceData      `json:"totals"`
	Agents          []models.PerformanceData    `json:"agents"`
	Campaigns       campaign.Summary            `json:"campaigns"`
	Optimizer       optimizer.Summary           `json:"optimizer"`
	Alerts          AlertSummary                `json:"alerts"`
	Overrides       int                         `json:"overrides"`
	Directives      []models.StrategicDirective `json:"directives"`
	Recommendations []string                    `json:"recommendations"`
	ArchiveKey      string                      `json:"archiveKey,omitempty"`
}

// GenerateExecutiveReport compiles a report for the period, defaulting the
// period from the report type when it is empty. Archive failures are logged
// and leave ArchiveKey empty.
func (s *Supervisor) GenerateExecutiveReport(ctx context.Context, reportType ReportType, period models.DateRange) (ExecutiveReport, error) {
	now := s.clock()
	if period.Start.IsZero() && period.End.IsZero() {
		switch reportType {
		case ReportDaily:
			period = models.DateRange{Start: now.Add(-24 * time.Hour), End: now}
		case ReportWeekly:
			period = models.DateRange{Start: now.Add(-7 * 24 * time.Hour), End: now}
		case ReportMonthly:
			period = models.DateRange{Start: now.AddDate(0, -1, 0), End: now}
		case ReportCustom:
			return ExecutiveReport{}, models.Validation("custom reports need a period")
		default:
			return ExecutiveReport{}, models.Validation("unknown report type %q", reportType)
		}
	}
	switch reportType {
	case ReportDaily, ReportWeekly, ReportMonthly, ReportCustom:
	default:
		return ExecutiveReport{}, models.Validation("unknown report type %q", reportType)
	}
	if !period.End.After(period.Start) {
		return ExecutiveReport{}, models.Validation("report period end must be after start")
	}

	r := ExecutiveReport{
		ID:          uuid.NewString(),
		Type:        reportType,
		Period:      period,
		GeneratedAt: now,
		Alerts:      AlertSummary{BySeverity: map[models.Severity]int{}},
	}
	s.mu.RLock()
	r.SystemStatus = s.statusLocked()
	r.HealthScore = s.healthLocked()
	agents := s.agentsLocked(now)
	for _, a := range s.alerts {
		if !within(period, a.CreatedAt) {
			continue
		}
		r.Alerts.Raised++
		r.Alerts.BySeverity[a.Severity]++
		if !a.Acknowledged {
			r.Alerts.Unacknowledged++
		}
	}
	for _, o := range s.overrides {
		if within(period, o.IssuedAt) {
			r.Overrides++
		}
	}
	r.Directives = s.directivesLocked(true, now)
	s.mu.RUnlock()

	perf := s.performance(ctx, period, agents)
	for _, a := range agents {
		r.Agents = append(r.Agents, perf[a.AgentID])
	}
	r.Totals = totals(r.Agents)
	if s.deps.Campaigns != nil {
		r.Campaigns = s.deps.Campaigns.Summary()
	}
	if s.deps.Optimizer != nil {
		r.Optimizer = s.deps.Optimizer.Summary()
	}
	r.Recommendations = s.reportRecommendations(r)

	if s.deps.Archiver != nil {
		key, err := s.deps.Archiver.Archive(ctx, "reports", r.ID, r.GeneratedAt, r)
		if err != nil {
			s.logger.Printf("archive report %s: %v", r.ID, err)
		} else {
			r.ArchiveKey = key
		}
	}
	return r, nil
}

// within treats the report period as closed so events stamped at generation time count.
func within(period models.DateRange, t time.Time) bool {
	return !t.Before(period.Start) && !t.After(period.End)
}

// totals weights each agent's rates by its interaction count.
func totals(agents []models.PerformanceData) models.PerformanceData {
	var t models.PerformanceData
	var conv, booked, resp, sat, rated float64
	for _, p := range agents {
		n := float64(p.TotalInteractions)
		t.TotalInteractions += p.TotalInteractions
		conv += p.ConversionRate * n
		booked += p.AppointmentBookingRate * n
		resp += p.AverageResponseTime * n
		if p.CustomerSatisfactionScore > 0 {
			sat += p.CustomerSatisfactionScore * n
			rated += n
		}
	}
	if t.TotalInteractions > 0 {
		n := float64(t.TotalInteractions)
		t.ConversionRate = conv / n
		t.AppointmentBookingRate = booked / n
		t.AverageResponseTime = resp / n
	}
	if rated > 0 {
		t.CustomerSatisfactionScore = sat / rated
	}
	return t
}

func (s *Supervisor) reportRecommendations(r ExecutiveReport) []string {
	var out []string
	if r.HealthScore < 0.7 {
		out = append(out, fmt.Sprintf("System health is %.0f%%; review open alerts and offline agents", r.HealthScore*100))
	}
	for _, p := range r.Agents {
		if p.TotalInteractions == 0 {
			continue
		}
		if p.ConversionRate < 0.3 {
			out = append(out, fmt.Sprintf("%s converts %.0f%% of leads; review its routing rules and scripts", p.AgentID, p.ConversionRate*100))
		}
		if p.AverageResponseTime > s.cfg.SlowResponseMs {
			out = append(out, fmt.Sprintf("%s averages %.0fs to first response", p.AgentID, p.AverageResponseTime/1000))
		}
	}
	if r.Alerts.Unacknowledged > 0 {
		out = append(out, fmt.Sprintf("%d alerts raised in the period are still unacknowledged", r.Alerts.Unacknowledged))
	}
	if r.Optimizer.AwaitingReview > 0 {
		out = append(out, fmt.Sprintf("%d optimization recommendations await review", r.Optimizer.AwaitingReview))
	}
	return out
}
