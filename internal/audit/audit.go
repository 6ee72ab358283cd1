// Package audit keeps the trail of analysed artifacts and the alerts raised for them.
package audit

import (
	"context"
	"time"
)

// ChannelSlack is the channel recorded for Slack alerts.
const ChannelSlack = "slack"

// Vulnerability is one audit record per completed analysis.
type Vulnerability struct {
	ID           string            `json:"id"`
	CreatedAt    time.Time         `json:"created_at"`
	Artifact     string            `json:"artifact"`
	Risk         string            `json:"risk"`
	Confidence   float64           `json:"confidence"`
	AgentVotes   map[string]string `json:"agent_votes"`
	ArtifactID   string            `json:"artifact_id,omitempty"`
	Summary      string            `json:"summary,omitempty"`
	Status       string            `json:"status,omitempty"`
	OverallScore int               `json:"overall_score"`
}

// Alert records a notification delivered for a vulnerability.
type Alert struct {
	ID              string    `json:"id"`
	VulnerabilityID string    `json:"vulnerability_id"`
	Channel         string    `json:"channel"`
	SentAt          time.Time `json:"sent_at"`
}

// Filter narrows a Query. A zero Limit returns everything.
type Filter struct {
	Limit int
	Risk  string
}

// Logger persists audit records.
type Logger interface {
	LogVulnerability(ctx context.Context, v Vulnerability) (string, error)
	LogAlert(ctx context.Context, vulnerabilityID, channel string) (string, error)
	Query(ctx context.Context, f Filter) ([]Vulnerability, error)
}

// Nop discards every record.
type Nop struct{}

func (Nop) LogVulnerability(context.Context, Vulnerability) (string, error) { return "", nil }
func (Nop) LogAlert(context.Context, string, string) (string, error)        { return "", nil }
func (Nop) Query(context.Context, Filter) ([]Vulnerability, error)           { return nil, nil }
