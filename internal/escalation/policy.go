// Package escalation decides whether a risk verdict is forwarded to the alert channel.
// Everything here is pure: no I/O, no clocks, no globals.
package escalation

import (
	"math"
	"strings"

	"github.com/example/sentinel/internal/model"
)

const (
	disagreementThreshold = 0.4
	lowConfidence         = 0.6
	// Population variance of scores in 0..4 tops out near 2.5 for realistic panels.
	varianceNormalizer = 2.5
)

// Decision is the full outcome of an escalation evaluation.
type Decision struct {
	Notify       bool            `json:"notify"`
	Level        model.RiskLevel `json:"risk_level"`
	Confidence   float64         `json:"confidence"`
	Disagreement float64         `json:"disagreement"`
}

// SeverityScore maps a severity name to 4 (critical) .. 1 (low); anything else is 0.
func SeverityScore(severity string) int {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "critical":
		return 4
	case "high":
		return 3
	case "medium":
		return 2
	case "low":
		return 1
	default:
		return 0
	}
}

// Disagreement is the population variance of the mapped consensus scores divided by 2.5, clamped to [0,1].
// Fewer than two reporting capabilities means no disagreement.
func Disagreement(consensus map[string]string) float64 {
	scores := make([]float64, 0, len(consensus))
	for _, severity := range consensus {
		if severity == "" {
			continue
		}
		scores = append(scores, float64(SeverityScore(severity)))
	}
	if len(scores) < 2 {
		return 0
	}

	var sum float64
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(len(scores))

	var variance float64
	for _, s := range scores {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(len(scores))

	return clamp01(variance / varianceNormalizer)
}

// LevelFor classifies a score, then applies the one reconciliation rule with the status string:
// a NO-GO verdict is never LOW.
func LevelFor(score int, status string) model.RiskLevel {
	var level model.RiskLevel
	switch {
	case score < 40:
		level = model.RiskCritical
	case score < 60:
		level = model.RiskHigh
	case score < 80:
		level = model.RiskMedium
	default:
		level = model.RiskLow
	}

	if strings.EqualFold(strings.TrimSpace(status), model.StatusNoGo) && level == model.RiskLow {
		level = model.RiskMedium
	}
	return level
}

// Evaluate applies the notification rules in order and returns the full decision.
func Evaluate(level model.RiskLevel, confidence float64, consensus map[string]string) Decision {
	normalized := model.RiskLevel(strings.ToUpper(strings.TrimSpace(string(level))))
	d := Decision{
		Level:        normalized,
		Confidence:   clamp01(confidence),
		Disagreement: Disagreement(consensus),
	}

	switch {
	case normalized == model.RiskHigh || normalized == model.RiskCritical:
		d.Notify = true
	case d.Disagreement > disagreementThreshold:
		d.Notify = true
	case normalized == model.RiskMedium && d.Confidence < lowConfidence:
		d.Notify = true
	}
	return d
}

// ShouldNotify reports whether the verdict must be escalated.
func ShouldNotify(level model.RiskLevel, confidence float64, consensus map[string]string) bool {
	return Evaluate(level, confidence, consensus).Notify
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
