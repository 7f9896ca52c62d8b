package supervisor

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ILLUVRSE/leadops/internal/events"
	"github.com/ILLUVRSE/leadops/internal/models"
)

const (
	AlertHighErrorCount = "High Error Count"
	AlertAgentOffline   = "Agent Offline"
	AlertHighLoad       = "High Load"
	AlertEmergencyStop  = "Emergency Stop Activated"
)

// Supervisor tracks downstream unit health, raises alerts and applies operator
// overrides. It only mutates its own maps; other components are reached through
// Dependencies.
type Supervisor struct {
	cfg    Config
	deps   Dependencies
	logger *log.Logger

	mu         sync.RWMutex
	agents     map[string]*models.AgentStatus
	alerts     map[string]*models.SystemAlert
	alertOrder []string
	overrides  map[string]*models.SystemOverride
	overOrder  []string
	restore    map[string]map[string]models.AgentState // override id -> agent -> prior state
	directives map[string]*models.StrategicDirective
	dirOrder   []string

	now func() time.Time
}

func New(cfg Config, deps Dependencies, logger *log.Logger) *Supervisor {
	if logger == nil {
		logger = log.New(os.Stdout, "[supervisor] ", log.LstdFlags)
	}
	if deps.Events == nil {
		deps.Events = events.Noop{}
	}
	s := &Supervisor{
		cfg:        cfg.withDefaults(),
		deps:       deps,
		logger:     logger,
		agents:     map[string]*models.AgentStatus{},
		alerts:     map[string]*models.SystemAlert{},
		overrides:  map[string]*models.SystemOverride{},
		restore:    map[string]map[string]models.AgentState{},
		directives: map[string]*models.StrategicDirective{},
		now:        func() time.Time { return time.Now().UTC() },
	}
	start := s.now()
	for _, id := range s.cfg.Agents {
		s.agents[id] = &models.AgentStatus{
			AgentID:      id,
			Name:         displayName(id),
			Status:       models.AgentActive,
			LastActivity: start,
			StartedAt:    start,
		}
	}
	return s
}

// SetClock overrides the time source; intended for tests.
func (s *Supervisor) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Supervisor) clock() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

// AgentStatusUpdate carries the fields to change; nil fields are left alone.
type AgentStatusUpdate struct {
	Name                *string            `json:"name,omitempty"`
	Status              *models.AgentState `json:"status,omitempty"`
	CurrentLoad         *float64           `json:"currentLoad,omitempty"`
	ErrorCount          *int               `json:"errorCount,omitempty"`
	AverageResponseTime *float64           `json:"averageResponseTime,omitempty"`
	ActiveLeads         *int               `json:"activeLeads,omitempty"`
}

// UpdateAgentStatus applies the update, registering the agent if needed, and
// evaluates alert conditions before returning.
func (s *Supervisor) UpdateAgentStatus(ctx context.Context, agentID string, u AgentStatusUpdate) (models.AgentStatus, error) {
	if strings.TrimSpace(agentID) == "" {
		return models.AgentStatus{}, models.Validation("agent id is required")
	}
	if u.Status != nil && !validState(*u.Status) {
		return models.AgentStatus{}, models.Validation("unknown agent status %q", *u.Status)
	}
	if u.CurrentLoad != nil && (*u.CurrentLoad < 0 || *u.CurrentLoad > 1) {
		return models.AgentStatus{}, models.Validation("current load must be within [0,1]")
	}
	if u.ErrorCount != nil && *u.ErrorCount < 0 {
		return models.AgentStatus{}, models.Validation("error count must not be negative")
	}

	s.mu.Lock()
	now := s.now()
	a := s.agentLocked(agentID, now)
	if u.Name != nil {
		a.Name = *u.Name
	}
	if u.Status != nil {
		if a.Status == models.AgentOffline && *u.Status != models.AgentOffline {
			a.StartedAt = now
		}
		a.Status = *u.Status
	}
	if u.CurrentLoad != nil {
		a.CurrentLoad = *u.CurrentLoad
	}
	if u.ErrorCount != nil {
		a.ErrorCount = *u.ErrorCount
	}
	if u.AverageResponseTime != nil {
		a.AverageResponseTime = *u.AverageResponseTime
	}
	if u.ActiveLeads != nil {
		a.ActiveLeads = *u.ActiveLeads
	}
	a.LastActivity = now
	raised := s.evaluateLocked(a, now)
	out := s.snapshotLocked(a, now)
	s.mu.Unlock()

	s.announce(ctx, raised)
	return out, nil
}

// RecordActivity notes a lead handed to the agent.
func (s *Supervisor) RecordActivity(agentID string) {
	if agentID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	a := s.agentLocked(agentID, now)
	a.ActiveLeads++
	a.LastActivity = now
}

// Available reports whether the agent may receive new work. Unknown agents are available.
func (s *Supervisor) Available(agentID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[agentID]
	if !ok {
		return true
	}
	return a.Status != models.AgentOffline && a.Status != models.AgentIdle && a.Status != models.AgentError
}

func (s *Supervisor) Agent(agentID string) (models.AgentStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[agentID]
	if !ok {
		return models.AgentStatus{}, models.NotFound("agent", agentID)
	}
	return s.snapshotLocked(a, s.now()), nil
}

// Agents returns every agent sorted by id.
func (s *Supervisor) Agents() []models.AgentStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agentsLocked(s.now())
}

// RaiseAlert records an alert unless an unacknowledged one with the same title
// is already open for the same agent, in which case that one is returned.
func (s *Supervisor) RaiseAlert(ctx context.Context, alert models.SystemAlert) (models.SystemAlert, error) {
	if strings.TrimSpace(alert.Title) == "" {
		return models.SystemAlert{}, models.Validation("alert title is required")
	}
	switch alert.Severity {
	case models.SeverityInfo, models.SeverityWarning, models.SeverityError, models.SeverityCritical:
	case "":
		alert.Severity = models.SeverityInfo
	default:
		return models.SystemAlert{}, models.Validation("unknown severity %q", alert.Severity)
	}
	s.mu.Lock()
	out, created := s.raiseLocked(alert.Severity, alert.Title, alert.Message, alert.AgentID, s.now())
	s.mu.Unlock()
	if created {
		s.announce(ctx, []models.SystemAlert{out})
	}
	return out, nil
}

// GetAlerts returns open alerts, newest first. With includeAcknowledged it
// returns every alert ever raised, acknowledged and resolved ones included.
func (s *Supervisor) GetAlerts(includeAcknowledged bool) []models.SystemAlert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SystemAlert, 0, len(s.alerts))
	for i := len(s.alertOrder) - 1; i >= 0; i-- {
		a := s.alerts[s.alertOrder[i]]
		if !includeAcknowledged && (a.Acknowledged || a.Resolved) {
			continue
		}
		out = append(out, *a)
	}
	return out
}

func (s *Supervisor) AcknowledgeAlert(id, by string) (models.SystemAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return models.SystemAlert{}, models.NotFound("alert", id)
	}
	if !a.Acknowledged {
		now := s.now()
		a.Acknowledged = true
		a.AcknowledgedBy = by
		a.AcknowledgedAt = &now
		s.logger.Printf("alert %s (%s) acknowledged by %s", a.ID, a.Title, by)
	}
	return *a, nil
}

func (s *Supervisor) ResolveAlert(id string) (models.SystemAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return models.SystemAlert{}, models.NotFound("alert", id)
	}
	if !a.Resolved {
		now := s.now()
		a.Resolved = true
		a.ResolvedAt = &now
	}
	return *a, nil
}

func (s *Supervisor) evaluateLocked(a *models.AgentStatus, now time.Time) []models.SystemAlert {
	var raised []models.SystemAlert
	add := func(sev models.Severity, title, msg string) {
		if alert, created := s.raiseLocked(sev, title, msg, a.AgentID, now); created {
			raised = append(raised, alert)
		}
	}
	if a.ErrorCount > s.cfg.HighErrorCount {
		add(models.SeverityWarning, AlertHighErrorCount, fmt.Sprintf("%s has reported %d errors", a.Name, a.ErrorCount))
	}
	if a.Status == models.AgentOffline {
		add(models.SeverityError, AlertAgentOffline, fmt.Sprintf("%s is offline", a.Name))
	}
	if a.CurrentLoad > s.cfg.HighLoad {
		add(models.SeverityWarning, AlertHighLoad, fmt.Sprintf("%s load is %.0f%%", a.Name, a.CurrentLoad*100))
	}
	return raised
}

func (s *Supervisor) raiseLocked(sev models.Severity, title, msg, agentID string, now time.Time) (models.SystemAlert, bool) {
	for _, id := range s.alertOrder {
		a := s.alerts[id]
		if a.Title == title && a.AgentID == agentID && !a.Acknowledged && !a.Resolved {
			return *a, false
		}
	}
	alert := &models.SystemAlert{
		ID:        uuid.NewString(),
		Severity:  sev,
		Title:     title,
		Message:   msg,
		AgentID:   agentID,
		CreatedAt: now,
	}
	s.alerts[alert.ID] = alert
	s.alertOrder = append(s.alertOrder, alert.ID)
	s.logger.Printf("alert [%s] %s: %s", sev, title, msg)
	return *alert, true
}

func (s *Supervisor) announce(ctx context.Context, alerts []models.SystemAlert) {
	for _, a := range alerts {
		s.publish(ctx, events.AlertRaised, a.ID, a)
	}
}

func (s *Supervisor) publish(ctx context.Context, eventType, key string, data interface{}) {
	ev := events.Event{Type: eventType, Key: key, Source: "supervisor", Timestamp: s.clock(), Data: data}
	if err := s.deps.Events.Publish(ctx, ev); err != nil {
		s.logger.Printf("publish %s: %v", eventType, err)
	}
}

func (s *Supervisor) agentLocked(agentID string, now time.Time) *models.AgentStatus {
	a, ok := s.agents[agentID]
	if !ok {
		a = &models.AgentStatus{
			AgentID:      agentID,
			Name:         displayName(agentID),
			Status:       models.AgentActive,
			LastActivity: now,
			StartedAt:    now,
		}
		s.agents[agentID] = a
	}
	return a
}

func (s *Supervisor) snapshotLocked(a *models.AgentStatus, now time.Time) models.AgentStatus {
	out := *a
	if out.Status != models.AgentOffline {
		out.Uptime = now.Sub(out.StartedAt).Seconds()
	}
	return out
}

func (s *Supervisor) agentsLocked(now time.Time) []models.AgentStatus {
	out := make([]models.AgentStatus, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, s.snapshotLocked(a, now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

func validState(st models.AgentState) bool {
	switch st {
	case models.AgentActive, models.AgentIdle, models.AgentBusy, models.AgentError, models.AgentOffline:
		return true
	}
	return false
}

func displayName(id string) string {
	words := strings.Split(strings.ReplaceAll(id, "-", "_"), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ") + " Agent"
}
