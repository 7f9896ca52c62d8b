package events

import (
	"context"
	"sync"
	"time"
)

// Event types emitted by the dispatch loop.
const (
	LeadRouted            = "lead.routed"
	AlertRaised           = "alert.raised"
	OverrideIssued        = "override.issued"
	OverrideCancelled     = "override.cancelled"
	OptimizationApplied   = "optimization.implemented"
	OptimizationValidated = "optimization.validated"
	OptimizationRollback  = "optimization.rolled_back"
)

// Event is the envelope published for every state change worth broadcasting.
// Key selects the partition so events for one entity stay ordered.
type Event struct {
	Type      string      `json:"eventType"`
	Key       string      `json:"key"`
	Source    string      `json:"source"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

// Memory keeps published events in order; used by tests and local runs.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Publish(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns the published events, optionally filtered by type.
func (m *Memory) Events(eventType string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, ev := range m.events {
		if eventType == "" || ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}
