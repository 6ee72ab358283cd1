package analyzer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/example/sentinel/internal/model"
)

const (
	defaultVerdictSummary = "Risk assessment complete."
	// FailedVerdictSummary is the summary of the verdict used when the risk capability fails.
	FailedVerdictSummary = "Risk analysis failed due to error."
)

// ErrNoVerdict is returned when a risk answer carries no usable object.
var ErrNoVerdict = errors.New("risk response contained no verdict")

// FailedVerdict is the conservative verdict used when risk analysis is unavailable.
func FailedVerdict() model.Verdict {
	return model.Verdict{Score: 0, Summary: FailedVerdictSummary, Status: model.StatusNoGo}
}

func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// decodeItems turns a model answer into a list of objects. A single object is wrapped, and an object
// carrying a "findings" list is unwrapped to that list.
func decodeItems(raw string) ([]map[string]any, error) {
	var data any
	if err := json.Unmarshal([]byte(stripFences(raw)), &data); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}

	var items []map[string]any
	switch v := data.(type) {
	case map[string]any:
		items = []map[string]any{v}
	case []any:
		for _, el := range v {
			if m, ok := el.(map[string]any); ok {
				items = append(items, m)
			}
		}
	default:
		return nil, fmt.Errorf("unexpected response shape %T", data)
	}

	if len(items) > 0 {
		if nested, ok := items[0]["findings"]; ok {
			list, _ := nested.([]any)
			out := make([]map[string]any, 0, len(list))
			for _, el := range list {
				if m, ok := el.(map[string]any); ok {
					out = append(out, m)
				}
			}
			return out, nil
		}
	}
	return items, nil
}

func stringField(item map[string]any, key, fallback string) string {
	v, ok := item[key]
	if !ok || v == nil {
		return fallback
	}
	switch s := v.(type) {
	case string:
		if s == "" {
			return fallback
		}
		return s
	default:
		return fmt.Sprint(s)
	}
}

func parseFindings(p Profile, items []map[string]any) []model.Finding {
	findings := make([]model.Finding, 0, len(items))
	for _, item := range items {
		findings = append(findings, model.Finding{
			Capability:  p.DisplayName,
			Type:        stringField(item, "finding_type", p.DefaultType),
			Description: stringField(item, "description", ""),
			Severity:    model.ParseSeverity(stringField(item, "severity", string(p.DefaultSeverity)), p.DefaultSeverity),
			Location:    stringField(item, "location", p.DefaultLocation),
			Suggestion:  stringField(item, "suggestion", ""),
		})
	}
	return findings
}

func parseVerdict(items []map[string]any) (model.Verdict, error) {
	if len(items) == 0 {
		return model.Verdict{}, ErrNoVerdict
	}
	item := items[0]

	v := model.Verdict{
		Score:   scoreField(item["overall_score"]),
		Summary: stringField(item, "summary", defaultVerdictSummary),
		Status:  model.StatusNoGo,
	}
	if strings.EqualFold(strings.TrimSpace(stringField(item, "status", "")), model.StatusGo) {
		v.Status = model.StatusGo
	}
	return v, nil
}

func scoreField(raw any) int {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, f))))
}
