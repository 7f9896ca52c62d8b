package routing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ILLUVRSE/leadops/internal/models"
)

// RulesFile models a declarative rules document:
//
//	rules:
//	  - id: enterprise-demo
//	    priority: 2
//	    when:
//	      any_signals: [requested_demo]
//	      min_qualification: 0.6
//	    action:
//	      target: appointment_setter
//	      priority: high
//	      response_minutes: 10
//
// All `when` clauses are ANDed; an empty `when` always matches.
type RulesFile struct {
	Rules           []RuleSpec         `yaml:"rules"`
	SourceModifiers map[string]int     `yaml:"source_modifiers"`
	SourceWeights   map[string]float64 `yaml:"source_weights"`
	IntentWeights   map[string]float64 `yaml:"intent_weights"`
}

// RuleSpec is one declarative rule. It is also the JSON body accepted by the
// rules API.
type RuleSpec struct {
	ID       string     `yaml:"id" json:"id"`
	Name     string     `yaml:"name" json:"name,omitempty"`
	Priority int        `yaml:"priority" json:"priority"`
	Enabled  *bool      `yaml:"enabled" json:"enabled,omitempty"`
	When     WhenSpec   `yaml:"when" json:"when"`
	Action   ActionSpec `yaml:"action" json:"action"`
}

type WhenSpec struct {
	MinUrgency       int      `yaml:"min_urgency" json:"minUrgency,omitempty"`
	LeadTypes        []string `yaml:"lead_types" json:"leadTypes,omitempty"`
	Sources          []string `yaml:"sources" json:"sources,omitempty"`
	AnySignals       []string `yaml:"any_signals" json:"anySignals,omitempty"`
	MinIntent        float64  `yaml:"min_intent" json:"minIntent,omitempty"`
	MinQualification float64  `yaml:"min_qualification" json:"minQualification,omitempty"`
}

type ActionSpec struct {
	Target           string   `yaml:"target" json:"target"`
	Priority         string   `yaml:"priority" json:"priority"`
	ResponseMinutes  int      `yaml:"response_minutes" json:"responseMinutes"`
	Reasoning        string   `yaml:"reasoning" json:"reasoning,omitempty"`
	SuggestedActions []string `yaml:"suggested_actions" json:"suggestedActions,omitempty"`
}

// Validate ensures every rule is well formed.
func (f *RulesFile) Validate() error {
	seen := map[string]bool{}
	for i, r := range f.Rules {
		if r.ID == "" {
			return fmt.Errorf("rules[%d].id is required", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate rule id %s", r.ID)
		}
		seen[r.ID] = true
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ToRules compiles the declarative specs into routing rules.
func (f *RulesFile) ToRules() []models.RoutingRule {
	out := make([]models.RoutingRule, 0, len(f.Rules))
	for _, spec := range f.Rules {
		out = append(out, spec.Rule())
	}
	return out
}

// Validate checks a single rule. Failures wrap models.ErrValidation.
func (r RuleSpec) Validate() error {
	if r.ID == "" {
		return models.Validation("rule id is required")
	}
	if r.Priority < minRulePriority || r.Priority > maxRulePriority {
		return models.Validation("rule %s priority must be between %d and %d", r.ID, minRulePriority, maxRulePriority)
	}
	if !validTarget(models.Target(r.Action.Target)) {
		return models.Validation("rule %s has unknown target %q", r.ID, r.Action.Target)
	}
	if models.PriorityTier(r.Action.Priority).Rank() == 0 {
		return models.Validation("rule %s has unknown priority tier %q", r.ID, r.Action.Priority)
	}
	if r.Action.ResponseMinutes <= 0 {
		return models.Validation("rule %s response_minutes must be positive", r.ID)
	}
	for _, lt := range r.When.LeadTypes {
		switch models.LeadType(lt) {
		case models.LeadTypeHot, models.LeadTypeWarm, models.LeadTypeCold:
		default:
			return models.Validation("rule %s has unknown lead type %q", r.ID, lt)
		}
	}
	return nil
}

// Rule compiles r into a routing rule. Call Validate first.
func (r RuleSpec) Rule() models.RoutingRule {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	name := r.Name
	if name == "" {
		name = r.ID
	}
	reasoning := r.Action.Reasoning
	if reasoning == "" {
		reasoning = fmt.Sprintf("Matched configured rule %s", r.ID)
	}
	return models.RoutingRule{
		ID:        r.ID,
		Name:      name,
		Priority:  r.Priority,
		Enabled:   enabled,
		Condition: r.When.compile(),
		Action: models.RoutingAction{
			Target:                models.Target(r.Action.Target),
			Priority:              models.PriorityTier(r.Action.Priority),
			EstimatedResponseTime: r.Action.ResponseMinutes,
			Reasoning:             reasoning,
			SuggestedActions:      append([]string(nil), r.Action.SuggestedActions...),
		},
	}
}

// Apply overlays the file's weight tables and rules onto cfg.
func (f *RulesFile) Apply(cfg Config) Config {
	if len(f.SourceModifiers) > 0 {
		cfg.SourceModifiers = f.SourceModifiers
	}
	if len(f.SourceWeights) > 0 {
		cfg.SourceWeights = f.SourceWeights
	}
	if len(f.IntentWeights) > 0 {
		cfg.IntentWeights = f.IntentWeights
	}
	if rules := f.ToRules(); len(rules) > 0 {
		cfg.Rules = rules
	}
	return cfg
}

func (w WhenSpec) compile() models.RuleCondition {
	w.LeadTypes = append([]string(nil), w.LeadTypes...)
	w.Sources = append([]string(nil), w.Sources...)
	w.AnySignals = append([]string(nil), w.AnySignals...)
	return func(lead models.LeadSnapshot, a models.LeadAnalysis) bool {
		if w.MinUrgency > 0 && a.AdjustedUrgency < w.MinUrgency {
			return false
		}
		if len(w.LeadTypes) > 0 && !contains(w.LeadTypes, string(a.EffectiveLeadType)) {
			return false
		}
		if len(w.Sources) > 0 && !contains(w.Sources, lead.Source) {
			return false
		}
		if len(w.AnySignals) > 0 && !hasAnySignal(lead, w.AnySignals...) {
			return false
		}
		if a.IntentScore < w.MinIntent {
			return false
		}
		return lead.QualificationScore >= w.MinQualification
	}
}

// FromYAML parses and validates a rules document.
func FromYAML(data []byte) (*RulesFile, error) {
	var f RulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid rules yaml: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadRulesFile reads a rules document from disk.
func LoadRulesFile(path string) (*RulesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file %s: %w", path, err)
	}
	return FromYAML(data)
}

func validTarget(t models.Target) bool {
	for _, known := range models.AllTargets {
		if t == known {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
