package models

import (
	"time"
)

// DateRange is a half-open [Start, End) window.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

type PerformanceData struct {
	AgentID                   string  `json:"agentId"`
	TotalInteractions         int     `json:"totalInteractions"`
	ConversionRate            float64 `json:"conversionRate"`
	AverageResponseTime       float64 `json:"averageResponseTime"` // milliseconds
	AppointmentBookingRate    float64 `json:"appointmentBookingRate"`
	CustomerSatisfactionScore float64 `json:"customerSatisfactionScore"`
}

type Impact string

const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
	ImpactLow    Impact = "low"
)

type Insight struct {
	ID          string    `json:"id"`
	AgentID     string    `json:"agentId,omitempty"`
	Category    string    `json:"category"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Impact      Impact    `json:"impact"`
	Actionable  bool      `json:"actionable"`
	CreatedAt   time.Time `json:"createdAt"`
}

type ScriptOptimization struct {
	ScriptID              string  `json:"scriptId"`
	AgentID               string  `json:"agentId"`
	CurrentConversionRate float64 `json:"currentConversionRate"`
	EstimatedConversion   float64 `json:"estimatedConversion"`
	EstimatedImprovement  float64 `json:"estimatedImprovement"` // percent
	SuggestedScript       string  `json:"suggestedScript"`
	SampleSize            int     `json:"sampleSize"`
}

type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

type Trend struct {
	AgentID    string         `json:"agentId"`
	Metric     string         `json:"metric"`
	Direction  TrendDirection `json:"direction"`
	Slope      float64        `json:"slope"`
	Confidence float64        `json:"confidence"`
	Samples    int            `json:"samples"`
}

// AgentFeedback is one downstream unit's snapshot used by a single optimization cycle.
type AgentFeedback struct {
	AgentID     string          `json:"agentId"`
	Period      DateRange       `json:"period"`
	Performance PerformanceData `json:"performance"`
	Insights    []Insight       `json:"insights"`
}

type RecommendationType string

const (
	RecommendationRoutingRule      RecommendationType = "routing_rule"
	RecommendationScriptUpdate     RecommendationType = "script_update"
	RecommendationTimingAdjustment RecommendationType = "timing_adjustment"
	RecommendationThresholdChange  RecommendationType = "threshold_change"
)

type RecommendationStatus string

const (
	RecommendationPending      RecommendationStatus = "pending"
	RecommendationImplemented  RecommendationStatus = "implemented"
	RecommendationValidated    RecommendationStatus = "validated"
	RecommendationFailed       RecommendationStatus = "failed"
	RecommendationRolledBack   RecommendationStatus = "rolled_back"
	RecommendationManualReview RecommendationStatus = "manual_review"
)

type ValidationCriteria struct {
	MinimumImprovement    float64 `json:"minimumImprovement"` // percent
	TestPeriodDays        int     `json:"testPeriodDays"`
	// SignificanceThreshold is carried for reporting only. Validation gates on
	// MinimumImprovement; the timing generator uses its own trend confidence.
	SignificanceThreshold float64 `json:"significanceThreshold"`
}

type RuleUpdate struct {
	RuleID              string `json:"ruleId"`
	Priority            *int   `json:"priority,omitempty"`
	ResponseTimeMinutes *int   `json:"responseTimeMinutes,omitempty"`
}

type Implementation struct {
	RuleUpdates            []RuleUpdate `json:"ruleUpdates,omitempty"`
	ScriptID               string       `json:"scriptId,omitempty"`
	Script                 string       `json:"script,omitempty"`
	StepDelayFactor        *float64     `json:"stepDelayFactor,omitempty"`
	QualificationThreshold *float64     `json:"qualificationThreshold,omitempty"`
}

type OptimizationRecommendation struct {
	ID                 string               `json:"id"`
	Type               RecommendationType   `json:"type"`
	AgentID            string               `json:"agentId"`
	Priority           PriorityTier         `json:"priority"`
	Description        string               `json:"description"`
	ExpectedImpact     float64              `json:"expectedImpact"`
	Implementation     Implementation       `json:"implementation"`
	ValidationCriteria ValidationCriteria   `json:"validationCriteria"`
	RequiresReview     bool                 `json:"requiresReview"`
	Status             RecommendationStatus `json:"status"`
	CreatedAt          time.Time            `json:"createdAt"`
	ImplementedAt      *time.Time           `json:"implementedAt,omitempty"`
}

func (r OptimizationRecommendation) Clone() OptimizationRecommendation {
	r.Implementation.RuleUpdates = append([]RuleUpdate(nil), r.Implementation.RuleUpdates...)
	return r
}

type Improvement struct {
	Conversion   float64 `json:"conversion"`
	ResponseTime float64 `json:"responseTime"`
	Satisfaction float64 `json:"satisfaction"`
	Overall      float64 `json:"overall"`
}

type OptimizationResult struct {
	RecommendationID string          `json:"recommendationId"`
	AgentID          string          `json:"agentId"`
	Baseline         PerformanceData `json:"baseline"`
	Current          PerformanceData `json:"current"`
	Improvement      Improvement     `json:"improvement"`
	Validated        bool            `json:"validated"`
	RollbackRequired bool            `json:"rollbackRequired"`
	ImplementedAt    time.Time       `json:"implementedAt"`
	ValidatedAt      *time.Time      `json:"validatedAt,omitempty"`
	Notes            []string        `json:"notes,omitempty"`
}

func (r OptimizationResult) Clone() OptimizationResult {
	r.Notes = append([]string(nil), r.Notes...)
	return r
}
