// Package notify delivers escalated risk decisions to Slack.
package notify

import (
	"fmt"
	"strings"

	"github.com/example/sentinel/internal/model"
)

const alertTitle = "🚨 Security Risk Detected"

// Alert is everything a notifier needs to describe an escalated decision.
type Alert struct {
	ArtifactID   string            `json:"artifact_id,omitempty"`
	ArtifactType string            `json:"artifact_type"`
	Level        model.RiskLevel   `json:"risk_level"`
	Confidence   float64           `json:"confidence"`
	Consensus    map[string]string `json:"consensus"`
	DerivedFrom  string            `json:"derived_from,omitempty"`
}

// TextObject is a Block Kit text element.
type TextObject struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// Block is the subset of Block Kit layout blocks used by alerts.
type Block struct {
	Type   string       `json:"type"`
	Text   *TextObject  `json:"text,omitempty"`
	Fields []TextObject `json:"fields,omitempty"`
}

// Message is a Slack message payload. Channel is only used by chat.postMessage.
type Message struct {
	Channel string  `json:"channel,omitempty"`
	Text    string  `json:"text"`
	Blocks  []Block `json:"blocks"`
}

// ConsensusSummary renders the per-capability votes as "Threat: X, Security: Y, SOC: Z".
func ConsensusSummary(consensus map[string]string) string {
	vote := func(name string) string {
		if v := consensus[name]; v != "" {
			return strings.ToUpper(v)
		}
		return "N/A"
	}
	return fmt.Sprintf("Threat: %s, Security: %s, SOC: %s", vote("threat"), vote("security"), vote("soc"))
}

func riskEmoji(level model.RiskLevel) string {
	switch model.RiskLevel(strings.ToUpper(string(level))) {
	case model.RiskCritical, model.RiskHigh:
		return "🔴"
	case model.RiskMedium:
		return "🟠"
	default:
		return "🟢"
	}
}

// BuildMessage renders an alert as a SOC-style Block Kit message.
func BuildMessage(a Alert) Message {
	artifactType := a.ArtifactType
	if artifactType == "" {
		artifactType = "Unknown"
	}
	derived := "Derived from: Text/Code/Logs"
	if a.DerivedFrom != "" {
		derived = "Derived from: " + a.DerivedFrom
	}

	return Message{
		Text: alertTitle,
		Blocks: []Block{
			{Type: "header", Text: &TextObject{Type: "plain_text", Text: alertTitle, Emoji: true}},
			{Type: "section", Fields: []TextObject{
				{Type: "mrkdwn", Text: "*Artifact Type*\n" + artifactType},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Risk Level*\n%s %s", riskEmoji(a.Level), a.Level)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Confidence*\n%d%%", int(a.Confidence*100))},
				{Type: "mrkdwn", Text: "*Source*\n" + derived},
			}},
			{Type: "divider"},
			{Type: "section", Text: &TextObject{Type: "mrkdwn", Text: "*Agent Consensus Summary*\n" + ConsensusSummary(a.Consensus)}},
		},
	}
}

// SampleAlert is the canned alert used to check a Slack setup end to end.
func SampleAlert() Alert {
	return Alert{
		ArtifactID:   "test-alert",
		ArtifactType: "PDF_DOCUMENT",
		Level:        model.RiskHigh,
		Confidence:   0.82,
		Consensus:    map[string]string{"threat": "HIGH", "security": "MEDIUM", "soc": "LOW"},
		DerivedFrom:  "PDF_DOCUMENT",
	}
}
