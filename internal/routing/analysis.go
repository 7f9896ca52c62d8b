package routing

import (
	"math"
	"time"

	"github.com/ILLUVRSE/leadops/internal/models"
)

// AnalyzeLead derives urgency, intent, source quality and the effective
// classification from a lead snapshot. It has no side effects.
func AnalyzeLead(cfg Config, lead models.LeadSnapshot, now time.Time) models.LeadAnalysis {
	analysis := models.LeadAnalysis{
		AdjustedUrgency:   adjustedUrgency(cfg, lead, now),
		IntentScore:       intentScore(cfg, lead.IntentSignals),
		SourceQuality:     sourceQuality(cfg, lead.Source),
		EffectiveLeadType: lead.LeadType,
	}
	if classificationInconsistent(cfg, lead, analysis) {
		reclassified := reclassify(cfg, lead, analysis)
		if reclassified != lead.LeadType {
			analysis.EffectiveLeadType = reclassified
			analysis.Reclassified = true
		}
	}
	if analysis.EffectiveLeadType == "" {
		analysis.EffectiveLeadType = models.LeadTypeCold
	}
	return analysis
}

func adjustedUrgency(cfg Config, lead models.LeadSnapshot, now time.Time) int {
	score := float64(lead.UrgencyLevel)
	score += float64(cfg.SourceModifiers[lead.Source])
	score += math.Min(float64(len(lead.IntentSignals))*cfg.SignalBonusPerSignal, cfg.MaxSignalBonus)
	switch {
	case lead.QualificationScore >= 0.8:
		score += 2
	case lead.QualificationScore >= 0.6:
		score++
	}
	if !lead.CreatedAt.IsZero() {
		age := now.Sub(lead.CreatedAt)
		switch {
		case age < cfg.FreshWindow:
			score++
		case age > cfg.StaleAfter:
			score--
		}
	}
	return clampInt(int(math.Round(score)), 1, 10)
}

func intentScore(cfg Config, signals []string) float64 {
	total := 0.0
	for _, s := range signals {
		w, ok := cfg.IntentWeights[s]
		if !ok {
			w = cfg.UnknownIntentWeight
		}
		total += w
	}
	return round2(math.Max(0, math.Min(total, cfg.MaxIntentScore)))
}

func sourceQuality(cfg Config, source string) float64 {
	if w, ok := cfg.SourceWeights[source]; ok {
		return w
	}
	return cfg.DefaultSourceWeight
}

func classificationInconsistent(cfg Config, lead models.LeadSnapshot, a models.LeadAnalysis) bool {
	switch lead.LeadType {
	case models.LeadTypeCold, "":
		return a.AdjustedUrgency >= cfg.ReclassifyUrgency ||
			len(lead.IntentSignals) >= cfg.ReclassifySignals ||
			lead.QualificationScore >= cfg.ReclassifyQualification
	case models.LeadTypeHot:
		return a.AdjustedUrgency <= 3 && len(lead.IntentSignals) == 0 && lead.QualificationScore < 0.3
	}
	return false
}

// reclassify scores the lead on a weighted point system over
// source, signals, qualification, contact completeness and urgency.
func reclassify(cfg Config, lead models.LeadSnapshot, a models.LeadAnalysis) models.LeadType {
	points := cfg.DefaultSourcePoints
	if p, ok := cfg.SourcePoints[lead.Source]; ok {
		points = p
	}
	points += clampInt(2*len(lead.IntentSignals), 0, 6)
	points += int(math.Round(5 * lead.QualificationScore))
	if lead.Contact.Email != "" {
		points++
	}
	if lead.Contact.Phone != "" {
		points++
	}
	if lead.Contact.Company != "" {
		points++
	}
	switch {
	case a.AdjustedUrgency >= 8:
		points += 3
	case a.AdjustedUrgency >= 5:
		points += 2
	}
	switch {
	case points >= cfg.HotPointThreshold:
		return models.LeadTypeHot
	case points >= cfg.WarmPointThreshold:
		return models.LeadTypeWarm
	}
	return models.LeadTypeCold
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
