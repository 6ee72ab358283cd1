// Package analyzer defines the analysis capabilities the pipeline fans out to.
package analyzer

import (
	"context"

	"github.com/example/sentinel/internal/model"
)

// Capability short names. The first three make up wave 1.
const (
	Threat      = "threat"
	Security    = "security"
	SOC         = "soc"
	Remediation = "remediation"
	Risk        = "risk"
)

// Request is the input of one capability call. Content-driven capabilities read Content,
// findings-driven ones (remediation, risk) read Findings.
type Request struct {
	Content  string
	Findings []model.Finding
}

// Result is what a capability returns. Verdict is only set by the risk capability.
type Result struct {
	Findings []model.Finding
	Verdict  *model.Verdict
}

// Analyzer is implemented by every analysis capability.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, req Request) (Result, error)
}
