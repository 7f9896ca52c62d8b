package models

import (
	"time"
)

type StepType string

const (
	StepCallback    StepType = "callback"
	StepAppointment StepType = "appointment"
	StepMessage     StepType = "message"
	StepEmail       StepType = "email"
	StepWait        StepType = "wait"
)

type CampaignStatus string

const (
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

type TargetAudience struct {
	LeadTypes        []LeadType `json:"leadTypes,omitempty"`
	Sources          []string   `json:"sources,omitempty"`
	MinQualification float64    `json:"minQualification,omitempty"`
}

// Matches reports whether the lead falls inside the audience. Empty filters match everything.
func (a TargetAudience) Matches(lead LeadSnapshot, effective LeadType) bool {
	if len(a.LeadTypes) > 0 {
		found := false
		for _, t := range a.LeadTypes {
			if t == effective || t == lead.LeadType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(a.Sources) > 0 {
		found := false
		for _, s := range a.Sources {
			if s == lead.Source {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return lead.QualificationScore >= a.MinQualification
}

type CampaignStep struct {
	ID         string   `json:"id"`
	Order      int      `json:"order"`
	Type       StepType `json:"type"`
	DelayHours float64  `json:"delayHours"`
	Content    string   `json:"content"`
	Channel    Channel  `json:"channel,omitempty"`
}

type CampaignPerformance struct {
	CampaignID         string  `json:"campaignId"`
	TotalLeads         int     `json:"totalLeads"`
	CompletedSteps     int     `json:"completedSteps"`
	FailedSteps        int     `json:"failedSteps"`
	CallbacksScheduled int     `json:"callbacksScheduled"`
	AppointmentsBooked int     `json:"appointmentsBooked"`
	MessagesSent       int     `json:"messagesSent"`
	AppointmentRate    float64 `json:"appointmentRate"`
}

type Campaign struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Type           string              `json:"type"`
	TargetAudience TargetAudience      `json:"targetAudience"`
	Steps          []CampaignStep      `json:"steps"`
	Status         CampaignStatus      `json:"status"`
	Performance    CampaignPerformance `json:"performance"`
	CreatedAt      time.Time           `json:"createdAt"`
}

func (c Campaign) Clone() Campaign {
	c.Steps = append([]CampaignStep(nil), c.Steps...)
	c.TargetAudience.LeadTypes = append([]LeadType(nil), c.TargetAudience.LeadTypes...)
	c.TargetAudience.Sources = append([]string(nil), c.TargetAudience.Sources...)
	return c
}

type ProgressStatus string

const (
	ProgressActive    ProgressStatus = "active"
	ProgressCompleted ProgressStatus = "completed"
)

type LeadCampaignProgress struct {
	LeadID         string         `json:"leadId"`
	CampaignID     string         `json:"campaignId"`
	CompletedSteps []string       `json:"completedSteps"`
	CurrentStep    int            `json:"currentStep"`
	Status         ProgressStatus `json:"status"`
	EnrolledAt     time.Time      `json:"enrolledAt"`
	LastStepAt     *time.Time     `json:"lastStepAt,omitempty"`
}

type CallbackStatus string

const (
	CallbackPending   CallbackStatus = "pending"
	CallbackCompleted CallbackStatus = "completed"
	CallbackFailed    CallbackStatus = "failed"
)

type Callback struct {
	ID            string         `json:"id"`
	LeadID        string         `json:"leadId"`
	CampaignID    string         `json:"campaignId,omitempty"`
	ScheduledAt   time.Time      `json:"scheduledAt"`
	Status        CallbackStatus `json:"status"`
	Attempts      int            `json:"attempts"`
	MaxAttempts   int            `json:"maxAttempts"`
	LastAttemptAt *time.Time     `json:"lastAttemptAt,omitempty"`
	Notes         string         `json:"notes,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

type AppointmentStatus string

const (
	AppointmentScheduled   AppointmentStatus = "scheduled"
	AppointmentConfirmed   AppointmentStatus = "confirmed"
	AppointmentRescheduled AppointmentStatus = "rescheduled"
	AppointmentCancelled   AppointmentStatus = "cancelled"
	AppointmentCompleted   AppointmentStatus = "completed"
	AppointmentNoShow      AppointmentStatus = "no_show"
)

type Appointment struct {
	ID               string            `json:"id"`
	LeadID           string            `json:"leadId"`
	CampaignID       string            `json:"campaignId,omitempty"`
	Type             string            `json:"type"`
	ScheduledAt      time.Time         `json:"scheduledAt"`
	DurationMinutes  int               `json:"durationMinutes"`
	Status           AppointmentStatus `json:"status"`
	ConfirmationSent bool              `json:"confirmationSent"`
	RemindersSent    int               `json:"remindersSent"`
	Notes            []string          `json:"notes,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

func (a Appointment) Clone() Appointment {
	a.Notes = append([]string(nil), a.Notes...)
	return a
}

type Reminder struct {
	OffsetHours int        `json:"offsetHours"`
	SendAt      time.Time  `json:"sendAt"`
	Sent        bool       `json:"sent"`
	SentAt      *time.Time `json:"sentAt,omitempty"`
}

type SequenceStatus string

const (
	SequenceActive    SequenceStatus = "active"
	SequenceCompleted SequenceStatus = "completed"
	SequenceCancelled SequenceStatus = "cancelled"
)

type ReminderSequence struct {
	ID            string         `json:"id"`
	AppointmentID string         `json:"appointmentId"`
	LeadID        string         `json:"leadId"`
	Reminders     []Reminder     `json:"reminders"`
	Status        SequenceStatus `json:"status"`
	CreatedAt     time.Time      `json:"createdAt"`
}

func (s ReminderSequence) Clone() ReminderSequence {
	s.Reminders = append([]Reminder(nil), s.Reminders...)
	return s
}

type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)
