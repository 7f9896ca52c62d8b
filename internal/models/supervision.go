package models

import (
	"time"
)

type AgentState string

const (
	AgentActive  AgentState = "active"
	AgentIdle    AgentState = "idle"
	AgentBusy    AgentState = "busy"
	AgentError   AgentState = "error"
	AgentOffline AgentState = "offline"
)

type AgentStatus struct {
	AgentID             string     `json:"agentId"`
	Name                string     `json:"name"`
	Status              AgentState `json:"status"`
	CurrentLoad         float64    `json:"currentLoad"`
	ErrorCount          int        `json:"errorCount"`
	Uptime              float64    `json:"uptime"` // seconds
	AverageResponseTime float64    `json:"averageResponseTime"`
	ActiveLeads         int        `json:"activeLeads"`
	LastActivity        time.Time  `json:"lastActivity"`
	StartedAt           time.Time  `json:"startedAt"`
}

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

type SystemAlert struct {
	ID             string     `json:"id"`
	Severity       Severity   `json:"severity"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	AgentID        string     `json:"agentId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedBy string     `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
	Resolved       bool       `json:"resolved"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
}

type OverrideType string

const (
	OverridePauseAgent    OverrideType = "pause_agent"
	OverrideResumeAgent   OverrideType = "resume_agent"
	OverrideEmergencyStop OverrideType = "emergency_stop"
	OverridePriorityBoost OverrideType = "priority_boost"
	OverrideRedirectLeads OverrideType = "redirect_leads"
)

type SystemOverride struct {
	ID          string       `json:"id"`
	Type        OverrideType `json:"type"`
	TargetAgent string       `json:"targetAgent,omitempty"`
	Reason      string       `json:"reason"`
	IssuedBy    string       `json:"issuedBy"`
	IssuedAt    time.Time    `json:"issuedAt"`
	IsActive    bool         `json:"isActive"`
	CancelledAt *time.Time   `json:"cancelledAt,omitempty"`
	CancelledBy string       `json:"cancelledBy,omitempty"`
}

type StrategicDirective struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Priority     PriorityTier      `json:"priority"`
	TargetAgents []string          `json:"targetAgents,omitempty"`
	Parameters   map[string]string `json:"parameters,omitempty"`
	IssuedBy     string            `json:"issuedBy"`
	IssuedAt     time.Time         `json:"issuedAt"`
	ExpiresAt    *time.Time        `json:"expiresAt,omitempty"`
	Active       bool              `json:"active"`
	RevokedAt    *time.Time        `json:"revokedAt,omitempty"`
}

func (d StrategicDirective) Clone() StrategicDirective {
	d.TargetAgents = append([]string(nil), d.TargetAgents...)
	if d.Parameters != nil {
		params := make(map[string]string, len(d.Parameters))
		for k, v := range d.Parameters {
			params[k] = v
		}
		d.Parameters = params
	}
	return d
}
