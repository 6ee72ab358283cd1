package analyzer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/sentinel/internal/model"
)

// Completer sends one system/user prompt pair to a language model and returns the raw answer.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// LLM is a capability backed by a language model and configured by a Profile.
type LLM struct {
	profile   Profile
	completer Completer
	budget    Budget
}

// NewLLM builds a model-backed capability.
func NewLLM(p Profile, c Completer, b Budget) *LLM {
	return &LLM{profile: p, completer: c, budget: b}
}

// Name implements Analyzer.
func (a *LLM) Name() string {
	return a.profile.Name
}

// Analyze implements Analyzer.
func (a *LLM) Analyze(ctx context.Context, req Request) (Result, error) {
	if a.completer == nil {
		return Result{}, fmt.Errorf("%s: no language model configured", a.profile.Name)
	}

	var input string
	switch a.profile.input {
	case inputFindings:
		if len(req.Findings) == 0 && !a.profile.verdict {
			return Result{}, nil
		}
		findings := req.Findings
		if findings == nil {
			findings = []model.Finding{}
		}
		encoded, err := json.Marshal(findings)
		if err != nil {
			return Result{}, fmt.Errorf("%s: encode findings: %w", a.profile.Name, err)
		}
		input = string(encoded)
	default:
		input = a.budget.Clip(req.Content)
	}

	raw, err := a.completer.Complete(ctx, SystemPrompt(a.profile), UserPrompt(input))
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", a.profile.Name, err)
	}

	items, err := decodeItems(raw)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", a.profile.Name, err)
	}

	if a.profile.verdict {
		v, err := parseVerdict(items)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", a.profile.Name, err)
		}
		return Result{Verdict: &v}, nil
	}
	return Result{Findings: parseFindings(a.profile, items)}, nil
}

// SystemPrompt renders the profile prompt together with its output contract.
func SystemPrompt(p Profile) string {
	return p.Prompt + "\n\nOUTPUT FORMAT:\nThe output must be valid JSON matching this schema:\n" + p.Schema +
		"\n\nProvide ONLY the JSON output. Do not include markdown formatting."
}

// UserPrompt wraps the material handed to the model.
func UserPrompt(content string) string {
	return "CONTENT TO ANALYZE:\n" + content
}

// NewRegistry returns a Registry with every built-in profile bound to the given model.
func NewRegistry(c Completer, b Budget) Registry {
	r := Registry{}
	for name, p := range Profiles {
		r[name] = func() Analyzer { return NewLLM(p, c, b) }
	}
	return r
}
