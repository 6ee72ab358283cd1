package model

import "strings"

// Severity orders findings from critical down to info.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// ParseSeverity normalizes a free-form severity string, returning fallback when it is not recognised.
func ParseSeverity(value string, fallback Severity) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(value))) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	case SeverityLow:
		return SeverityLow
	case SeverityInfo:
		return SeverityInfo
	default:
		return fallback
	}
}

// Rank returns a comparable weight; unknown severities rank below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Finding is a single actionable observation produced by an analyzer capability.
// Values are treated as immutable: use the With* helpers to derive modified copies.
type Finding struct {
	Capability  string   `json:"agent_name"`
	Type        string   `json:"finding_type"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Location    string   `json:"location,omitempty"`
	Suggestion  string   `json:"suggestion,omitempty"`
	Provenance  string   `json:"provenance,omitempty"`
}

// WithProvenance returns a copy of f tagged with the given origin label.
func (f Finding) WithProvenance(tag string) Finding {
	f.Provenance = tag
	return f
}

// TagAll returns a new slice where every finding carries tag. An empty tag returns a plain copy.
func TagAll(findings []Finding, tag string) []Finding {
	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		if tag != "" {
			f = f.WithProvenance(tag)
		}
		out = append(out, f)
	}
	return out
}

// HighestSeverity returns the most severe value among findings, or "" when there are none.
func HighestSeverity(findings []Finding) Severity {
	var highest Severity
	for _, f := range findings {
		if f.Severity.Rank() > highest.Rank() {
			highest = f.Severity
		}
	}
	return highest
}
