package model

import "time"

const (
	StatusGo   = "GO"
	StatusNoGo = "NO-GO"
)

// RiskLevel is the coarse classification derived from a report score.
type RiskLevel string

const (
	RiskCritical RiskLevel = "CRITICAL"
	RiskHigh     RiskLevel = "HIGH"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskLow      RiskLevel = "LOW"
)

// Verdict is what the risk capability returns.
type Verdict struct {
	Score   int    `json:"overall_score"`
	Summary string `json:"summary"`
	Status  string `json:"status"`
}

// Signal is advisory statistical evidence computed locally. It never carries a severity.
type Signal struct {
	Type       string  `json:"type"`
	Subtype    string  `json:"subtype,omitempty"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence"`
}

type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type ConfidenceBucket struct {
	Range string `json:"range"`
	Count int    `json:"count"`
}

// Analytics are descriptive aggregates over a signal run; they never gate anything.
type Analytics struct {
	KeywordDistribution []KeywordCount     `json:"keyword_distribution"`
	SignalTypeBreakdown []TypeCount        `json:"signal_type_breakdown"`
	ConfidenceHistogram []ConfidenceBucket `json:"confidence_histogram"`
	TotalSignals        int                `json:"total_signals"`
	AvgConfidence       float64            `json:"avg_confidence"`
}

// SignalBundle is the output of one Local Signal Engine run.
type SignalBundle struct {
	Engine     string    `json:"engine"`
	ArtifactID string    `json:"artifact_id"`
	Signals    []Signal  `json:"signals"`
	Analytics  Analytics `json:"analytics"`
}

// Report is the terminal, write-once result of a pipeline run.
type Report struct {
	ID           string        `json:"id"`
	Timestamp    time.Time     `json:"timestamp"`
	OverallScore int           `json:"overall_score"`
	Findings     []Finding     `json:"findings"`
	Summary      string        `json:"summary"`
	Status       string        `json:"status"`
	Signals      *SignalBundle `json:"ml_signals,omitempty"`
}
