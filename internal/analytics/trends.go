package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/ILLUVRSE/leadops/internal/models"
)

const (
	minTrendDays   = 3
	stableSlopeEps = 0.01
)

// conversionTrend fits a least-squares line through daily conversion rates.
// Confidence is the fit's r².
func conversionTrend(agentID string, period models.DateRange, outcomes []outcome) (models.Trend, bool) {
	type bucket struct{ total, conversions int }
	days := map[int]*bucket{}
	for _, o := range outcomes {
		d := int(o.at.Sub(period.Start) / (24 * time.Hour))
		b, ok := days[d]
		if !ok {
			b = &bucket{}
			days[d] = b
		}
		b.total++
		if o.converted {
			b.conversions++
		}
	}
	if len(days) < minTrendDays {
		return models.Trend{}, false
	}

	idx := make([]int, 0, len(days))
	for d := range days {
		idx = append(idx, d)
	}
	sort.Ints(idx)
	xs := make([]float64, len(idx))
	ys := make([]float64, len(idx))
	for i, d := range idx {
		xs[i] = float64(d)
		ys[i] = float64(days[d].conversions) / float64(days[d].total)
	}
	slope, r2 := leastSquares(xs, ys)

	dir := models.TrendStable
	switch {
	case slope < -stableSlopeEps:
		dir = models.TrendDecreasing
	case slope > stableSlopeEps:
		dir = models.TrendIncreasing
	}
	return models.Trend{
		AgentID:    agentID,
		Metric:     "conversionRate",
		Direction:  dir,
		Slope:      slope,
		Confidence: r2,
		Samples:    len(outcomes),
	}, true
}

func leastSquares(xs, ys []float64) (slope, r2 float64) {
	n := float64(len(xs))
	var sx, sy float64
	for i := range xs {
		sx += xs[i]
		sy += ys[i]
	}
	mx, my := sx/n, sy/n
	var sxx, sxy, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	if sxx == 0 {
		return 0, 0
	}
	slope = sxy / sxx
	if syy == 0 {
		return slope, 1
	}
	r2 = (sxy * sxy) / (sxx * syy)
	return slope, math.Min(1, r2)
}
