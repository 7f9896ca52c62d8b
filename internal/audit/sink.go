package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Interaction is emitted after a lead has been touched: dispatched, contacted or
// given an outcome.
type Interaction struct {
	ID        string                 `json:"id"`
	LeadID    string                 `json:"leadId"`
	Kind      string                 `json:"kind"`
	Actor     string                 `json:"actor,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// StatusChange is emitted after an entity moves between states.
type StatusChange struct {
	ID         string    `json:"id"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	LeadID     string    `json:"leadId,omitempty"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type InteractionRecorder interface {
	RecordInteraction(ctx context.Context, in Interaction) error
}

type StatusRecorder interface {
	RecordStatusChange(ctx context.Context, change StatusChange) error
}

// Sink is the durable persistence/CRM extension point. The core never reads back
// from it.
type Sink interface {
	InteractionRecorder
	StatusRecorder
}

func (in *Interaction) normalize() {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now().UTC()
	}
}

func (c *StatusChange) normalize() {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
}

type NopSink struct{}

func (NopSink) RecordInteraction(context.Context, Interaction) error   { return nil }
func (NopSink) RecordStatusChange(context.Context, StatusChange) error { return nil }

// MemorySink keeps records in process; used when no database is configured.
type MemorySink struct {
	mu           sync.RWMutex
	interactions []Interaction
	changes      []StatusChange
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) RecordInteraction(_ context.Context, in Interaction) error {
	in.normalize()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interactions = append(m.interactions, in)
	return nil
}

func (m *MemorySink) RecordStatusChange(_ context.Context, change StatusChange) error {
	change.normalize()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, change)
	return nil
}

// Interactions returns the interactions for a lead, oldest first. An empty leadID returns all.
func (m *MemorySink) Interactions(leadID string) []Interaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Interaction
	for _, in := range m.interactions {
		if leadID == "" || in.LeadID == leadID {
			out = append(out, in)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// StatusChanges returns the changes for an entity, oldest first. An empty entityID returns all.
func (m *MemorySink) StatusChanges(entityID string) []StatusChange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []StatusChange
	for _, c := range m.changes {
		if entityID == "" || c.EntityID == entityID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
