package analytics

import (
	"context"

	"github.com/ILLUVRSE/leadops/internal/models"
)

// Provider is the analytics collaborator the optimizer measures with.
type Provider interface {
	CollectPerformanceData(ctx context.Context, agentID string, period models.DateRange) (models.PerformanceData, error)
	GenerateIntelligenceReport(ctx context.Context) ([]models.Insight, error)
	AnalyzeScriptPerformance(ctx context.Context) ([]models.ScriptOptimization, error)
	AnalyzePerformanceTrends(ctx context.Context, period models.DateRange) ([]models.Trend, error)
}

// Recorder accepts outcome feedback attributed to a downstream unit.
type Recorder interface {
	RecordFeedback(agentID string, fb models.PerformanceFeedback)
}
