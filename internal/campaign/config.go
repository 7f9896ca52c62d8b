package campaign

import (
	"context"
	"sync"
	"time"

	"github.com/ILLUVRSE/leadops/internal/audit"
	"github.com/ILLUVRSE/leadops/internal/models"
)

const (
	defaultPollInterval    = time.Minute
	defaultMaxAttempts     = 3
	defaultDurationMinutes = 60
	defaultMaxConcurrency  = 8
)

// DefaultReminderOffsets are the hours before an appointment at which reminders fire.
var DefaultReminderOffsets = []int{24, 2}

type Config struct {
	// PollInterval drives callback and reminder processing (1 minute).
	PollInterval time.Duration
	// DefaultMaxAttempts applies when ScheduleCallback is given maxAttempts <= 0 (3).
	DefaultMaxAttempts int
	// DefaultDurationMinutes applies when an appointment has no duration (60).
	DefaultDurationMinutes int
	// ReminderOffsets in hours before scheduledAt, largest first (24, 2).
	ReminderOffsets []int
	// MaxConcurrency bounds RunCampaign fan-out (8).
	MaxConcurrency int
	// Attempter places callbacks. Defaults to an SMS callback notice through the sender.
	Attempter Attempter
	// StatusRecorder receives post-status-change records. Optional.
	StatusRecorder audit.StatusRecorder
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.DefaultMaxAttempts <= 0 {
		c.DefaultMaxAttempts = defaultMaxAttempts
	}
	if c.DefaultDurationMinutes <= 0 {
		c.DefaultDurationMinutes = defaultDurationMinutes
	}
	if len(c.ReminderOffsets) == 0 {
		c.ReminderOffsets = DefaultReminderOffsets
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = defaultMaxConcurrency
	}
	return c
}

// Tuning is the scheduling surface the optimizer may adjust.
type Tuning struct {
	// StepDelayFactor scales every step's DelayHours. 1 means as authored.
	StepDelayFactor float64 `json:"stepDelayFactor"`
}

// Attempter places one callback attempt.
type Attempter interface {
	Attempt(ctx context.Context, cb models.Callback) (bool, error)
}

type AttempterFunc func(ctx context.Context, cb models.Callback) (bool, error)

func (f AttempterFunc) Attempt(ctx context.Context, cb models.Callback) (bool, error) {
	return f(ctx, cb)
}

// ContactDirectory resolves a lead's delivery addresses.
type ContactDirectory interface {
	Contact(leadID string) (models.ContactInfo, bool)
}

// Directory is an in-memory ContactDirectory.
type Directory struct {
	mu       sync.RWMutex
	contacts map[string]models.ContactInfo
}

func NewDirectory() *Directory {
	return &Directory{contacts: map[string]models.ContactInfo{}}
}

func (d *Directory) Register(leadID string, info models.ContactInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contacts[leadID] = info
}

func (d *Directory) Contact(leadID string) (models.ContactInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	info, ok := d.contacts[leadID]
	return info, ok
}
