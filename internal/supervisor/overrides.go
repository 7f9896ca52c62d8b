package supervisor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ILLUVRSE/leadops/internal/events"
	"github.com/ILLUVRSE/leadops/internal/models"
)

type OverrideRequest struct {
	Type        models.OverrideType `json:"type"`
	TargetAgent string              `json:"targetAgent,omitempty"`
	Reason      string              `json:"reason"`
	IssuedBy    string              `json:"issuedBy"`
}

// IssueSystemOverride applies an operator override. pause_agent and
// resume_agent toggle one unit, emergency_stop takes every unit offline and
// raises a critical alert, priority_boost and redirect_leads are advisory.
func (s *Supervisor) IssueSystemOverride(ctx context.Context, req OverrideRequest) (models.SystemOverride, error) {
	if strings.TrimSpace(req.IssuedBy) == "" {
		return models.SystemOverride{}, models.Validation("issuedBy is required")
	}
	switch req.Type {
	case models.OverridePauseAgent, models.OverrideResumeAgent:
		if req.TargetAgent == "" {
			return models.SystemOverride{}, models.Validation("%s requires a target agent", req.Type)
		}
	case models.OverrideEmergencyStop, models.OverridePriorityBoost, models.OverrideRedirectLeads:
	default:
		return models.SystemOverride{}, models.Validation("unknown override type %q", req.Type)
	}

	s.mu.Lock()
	now := s.now()
	o := &models.SystemOverride{
		ID:          uuid.NewString(),
		Type:        req.Type,
		TargetAgent: req.TargetAgent,
		Reason:      req.Reason,
		IssuedBy:    req.IssuedBy,
		IssuedAt:    now,
		IsActive:    true,
	}
	var raised []models.SystemAlert
	switch req.Type {
	case models.OverridePauseAgent, models.OverrideResumeAgent:
		a, ok := s.agents[req.TargetAgent]
		if !ok {
			s.mu.Unlock()
			return models.SystemOverride{}, models.NotFound("agent", req.TargetAgent)
		}
		s.restore[o.ID] = map[string]models.AgentState{a.AgentID: a.Status}
		if req.Type == models.OverridePauseAgent {
			a.Status = models.AgentIdle
		} else {
			if a.Status == models.AgentOffline {
				a.StartedAt = now
			}
			a.Status = models.AgentActive
		}
		a.LastActivity = now
	case models.OverrideEmergencyStop:
		prior := make(map[string]models.AgentState, len(s.agents))
		for id, a := range s.agents {
			prior[id] = a.Status
			a.Status = models.AgentOffline
			a.CurrentLoad = 0
		}
		s.restore[o.ID] = prior
		msg := fmt.Sprintf("Emergency stop issued by %s: %s", req.IssuedBy, req.Reason)
		if alert, created := s.raiseLocked(models.SeverityCritical, AlertEmergencyStop, msg, "", now); created {
			raised = append(raised, alert)
		}
	default:
		s.logger.Printf("advisory override %s for %q by %s: %s", req.Type, req.TargetAgent, req.IssuedBy, req.Reason)
	}
	s.overrides[o.ID] = o
	s.overOrder = append(s.overOrder, o.ID)
	out := *o
	s.mu.Unlock()

	s.logger.Printf("override %s issued: %s target=%q by %s", out.ID, out.Type, out.TargetAgent, out.IssuedBy)
	for _, h := range s.deps.Hooks {
		if err := h.ApplyOverride(ctx, out); err != nil {
			s.logger.Printf("override hook %T: %v", h, err)
		}
	}
	s.announce(ctx, raised)
	s.publish(ctx, events.OverrideIssued, out.ID, out)
	return out, nil
}

// CancelOverride deactivates an override, keeping the record, and reverses
// pause_agent and emergency_stop for units still in the state it left them in.
// While another active override of the same kind holds the same units, they
// stay held and the release hooks do not run.
func (s *Supervisor) CancelOverride(ctx context.Context, id, by string) (models.SystemOverride, error) {
	s.mu.Lock()
	o, ok := s.overrides[id]
	if !ok {
		s.mu.Unlock()
		return models.SystemOverride{}, models.NotFound("override", id)
	}
	if !o.IsActive {
		out := *o
		s.mu.Unlock()
		return out, nil
	}
	now := s.now()
	o.IsActive = false
	o.CancelledAt = &now
	o.CancelledBy = by

	prior := s.restore[id]
	delete(s.restore, id)
	held := s.handOffLocked(o, prior)
	switch {
	case held != "":
		s.logger.Printf("override %s cancelled; %s still holds %s", id, held, o.Type)
	case o.Type == models.OverridePauseAgent:
		for agentID, st := range prior {
			if a, ok := s.agents[agentID]; ok && a.Status == models.AgentIdle {
				a.Status = st
			}
		}
	case o.Type == models.OverrideEmergencyStop:
		for agentID, st := range prior {
			if a, ok := s.agents[agentID]; ok && a.Status == models.AgentOffline && st != models.AgentOffline {
				a.Status = st
				a.StartedAt = now
			}
		}
	}
	out := *o
	s.mu.Unlock()

	s.logger.Printf("override %s (%s) cancelled by %s", out.ID, out.Type, by)
	if held == "" {
		for _, h := range s.deps.Hooks {
			if err := h.ReleaseOverride(ctx, out); err != nil {
				s.logger.Printf("override hook %T: %v", h, err)
			}
		}
	}
	s.publish(ctx, events.OverrideCancelled, out.ID, out)
	return out, nil
}

// handOffLocked finds another active override holding the same units as o. The
// states o would restore replace the held state the other one recorded, so the
// last cancellation restores what was there before either. It returns the
// holder's ID, or "" when o is the last one.
func (s *Supervisor) handOffLocked(o *models.SystemOverride, prior map[string]models.AgentState) string {
	if o.Type != models.OverridePauseAgent && o.Type != models.OverrideEmergencyStop {
		return ""
	}
	held := models.AgentIdle
	if o.Type == models.OverrideEmergencyStop {
		held = models.AgentOffline
	}
	for i := len(s.overOrder) - 1; i >= 0; i-- {
		other := s.overrides[s.overOrder[i]]
		if other.ID == o.ID || !other.IsActive || other.Type != o.Type || other.TargetAgent != o.TargetAgent {
			continue
		}
		theirs := s.restore[other.ID]
		if theirs == nil {
			theirs = map[string]models.AgentState{}
			s.restore[other.ID] = theirs
		}
		for agentID, st := range prior {
			if cur, ok := theirs[agentID]; !ok || cur == held {
				theirs[agentID] = st
			}
		}
		return other.ID
	}
	return ""
}

// GetOverrides returns overrides in issue order.
func (s *Supervisor) GetOverrides(activeOnly bool) []models.SystemOverride {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SystemOverride, 0, len(s.overOrder))
	for _, id := range s.overOrder {
		o := s.overrides[id]
		if activeOnly && !o.IsActive {
			continue
		}
		out = append(out, *o)
	}
	return out
}

type DirectiveRequest struct {
	Title        string              `json:"title"`
	Description  string              `json:"description"`
	Priority     models.PriorityTier `json:"priority"`
	TargetAgents []string            `json:"targetAgents,omitempty"`
	Parameters   map[string]string   `json:"parameters,omitempty"`
	IssuedBy     string              `json:"issuedBy"`
	ExpiresAt    *time.Time          `json:"expiresAt,omitempty"`
}

func (s *Supervisor) IssueDirective(ctx context.Context, req DirectiveRequest) (models.StrategicDirective, error) {
	if strings.TrimSpace(req.Title) == "" {
		return models.StrategicDirective{}, models.Validation("directive title is required")
	}
	if strings.TrimSpace(req.IssuedBy) == "" {
		return models.StrategicDirective{}, models.Validation("issuedBy is required")
	}
	switch req.Priority {
	case models.PriorityHigh, models.PriorityMedium, models.PriorityLow:
	case "":
		req.Priority = models.PriorityMedium
	default:
		return models.StrategicDirective{}, models.Validation("unknown priority %q", req.Priority)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return models.StrategicDirective{}, models.Validation("directive already expired")
	}
	d := models.StrategicDirective{
		ID:           uuid.NewString(),
		Title:        req.Title,
		Description:  req.Description,
		Priority:     req.Priority,
		TargetAgents: req.TargetAgents,
		Parameters:   req.Parameters,
		IssuedBy:     req.IssuedBy,
		IssuedAt:     now,
		ExpiresAt:    req.ExpiresAt,
		Active:       true,
	}.Clone()
	s.directives[d.ID] = &d
	s.dirOrder = append(s.dirOrder, d.ID)
	s.logger.Printf("directive %s issued by %s: %s", d.ID, d.IssuedBy, d.Title)
	return d.Clone(), nil
}

func (s *Supervisor) RevokeDirective(id string) (models.StrategicDirective, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.directives[id]
	if !ok {
		return models.StrategicDirective{}, models.NotFound("directive", id)
	}
	if d.Active {
		now := s.now()
		d.Active = false
		d.RevokedAt = &now
	}
	return d.Clone(), nil
}

// Directives returns directives by priority then issue time. activeOnly also
// drops expired ones.
func (s *Supervisor) Directives(activeOnly bool) []models.StrategicDirective {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.directivesLocked(activeOnly, s.now())
}

func (s *Supervisor) directivesLocked(activeOnly bool, now time.Time) []models.StrategicDirective {
	out := make([]models.StrategicDirective, 0, len(s.dirOrder))
	for _, id := range s.dirOrder {
		d := s.directives[id]
		if activeOnly && (!d.Active || (d.ExpiresAt != nil && !d.ExpiresAt.After(now))) {
			continue
		}
		out = append(out, d.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.Rank() > out[j].Priority.Rank()
	})
	return out
}
