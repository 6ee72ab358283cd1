package analyzer

import "github.com/example/sentinel/internal/model"

type inputKind int

const (
	inputContent inputKind = iota
	inputFindings
)

// Profile configures one LLM-backed capability: its prompt, the JSON schema it must answer with,
// and the defaults applied to missing fields of the answer.
type Profile struct {
	Name        string
	DisplayName string
	Prompt      string
	Schema      string

	DefaultType     string
	DefaultLocation string
	DefaultSeverity model.Severity

	input   inputKind
	verdict bool
}

const findingsSchema = `{
  "findings": [
    {
      "finding_type": "string",
      "description": "string",
      "severity": "string",
      "location": "string",
      "suggestion": "string"
    }
  ]
}`

// Profiles holds the five built-in capabilities keyed by short name.
var Profiles = map[string]Profile{
	Threat: {
		Name:        Threat,
		DisplayName: "Threat Modeler",
		Prompt: `You are an expert Threat Modeling Agent (The Architect).
Your goal is to analyze system architecture descriptions and identify security design flaws.
Focus on:
- Trust Boundaries: Where data moves between trusted and untrusted zones.
- Data Flow: Unvalidated data entering sensitive components.
- Authentication/Authorization gaps.
- Lack of encryption or security controls.

For each finding, provide:
- finding_type: Short descriptive title (e.g. "Trust Boundary Violation")
- description: Explanation of the risk
- severity: "critical", "high", "medium", "low", or "info"
- location: The component or flow involved
- suggestion: Architectural recommendation to fix it`,
		Schema:          findingsSchema,
		DefaultType:     "Unknown Threat",
		DefaultLocation: "Architecture",
		DefaultSeverity: model.SeverityMedium,
	},
	Security: {
		Name:        Security,
		DisplayName: "Logic Auditor",
		Prompt: `You are an expert Security Audit Agent (The Logic Auditor).
Your goal is to analyze code snippets and identify security vulnerabilities.
Focus on:
- Injection attacks (SQLi, NoSQLi, Command Injection)
- Broken Access Control
- Business Logic Flaws (e.g. race conditions, price manipulation)
- Hardcoded secrets
- Insecure configuration

For each finding, provide:
- finding_type: Short descriptive title
- description: Technical explanation of the vulnerability
- severity: "critical", "high", "medium", "low", or "info"
- location: Specific function or line of code
- suggestion: Concrete code fix or logical remediation`,
		Schema:          findingsSchema,
		DefaultType:     "Security Vulnerability",
		DefaultLocation: "Codebase",
		DefaultSeverity: model.SeverityMedium,
	},
	SOC: {
		Name:        SOC,
		DisplayName: "SOC Intelligence",
		Prompt: `You are an expert SOC Analyst Agent (The Detective).
Your goal is to analyze logs, alert streams, and network traffic data to identify security incidents.
Focus on:
- Anomalous patterns (spikes in traffic, timing anomalies).
- Attack signatures (Brute force, DDoS, Port scanning).
- Correlation between seemingly unrelated events.
- Indicators of Compromise (IoCs).

For each finding, provide:
- finding_type: Short descriptive title (e.g. "Brute Force Attack Detected")
- description: Explanation of the evidence found in logs
- severity: "critical", "high", "medium", "low", or "info"
- location: The log source or service affected
- suggestion: Immediate response action (e.g. block IP, rotate credentials)`,
		Schema:          findingsSchema,
		DefaultType:     "Security Incident",
		DefaultLocation: "Logs",
		DefaultSeverity: model.SeverityMedium,
	},
	Remediation: {
		Name:        Remediation,
		DisplayName: "Remediation Engineer",
		Prompt: `You are an expert Security Engineer Agent (The Fixer).
Your goal is to review security findings and generate concrete, actionable remediation plans.
Focus on:
- Root cause analysis.
- Code-level fixes (provide sanitized code examples).
- Configuration hardening.
- Prioritization of fixes based on impact/effort.

For each finding provided, generate a detailed remediation entry.`,
		Schema: `{
  "findings": [
    {
      "finding_type": "string (Remediation Plan: [Original Finding Name])",
      "description": "string (Actionable steps to fix)",
      "severity": "string (Same as original)",
      "location": "string (Same as original)",
      "suggestion": "string (Code snippet or configuration block)"
    }
  ]
}`,
		DefaultType:     "Remediation Plan",
		DefaultLocation: "System",
		DefaultSeverity: model.SeverityInfo,
		input:           inputFindings,
	},
	Risk: {
		Name:        Risk,
		DisplayName: "Risk Strategist",
		Prompt: `You are an expert Risk Management Agent (the Strategist).
Analyze the list of security findings to determine the overall security posture.

1. Calculate a Security Score (0-100), where 100 is perfectly secure and 0 is compromised.
   - Critical severities reduce score significantly (-25 each).
   - High severities reduce score moderately (-15 each).
   - Medium severities reduce score slightly (-5 each).

2. Provide a 2-3 sentence executive summary of the risk state.

3. Determine a GO/NO-GO status for deployment.`,
		Schema: `{
  "overall_score": integer,
  "summary": "string",
  "status": "string (GO / NO-GO)"
}`,
		input:   inputFindings,
		verdict: true,
	},
}

// WaveOne lists the content-driven capabilities in merge order.
var WaveOne = []string{Threat, Security, SOC}

// DisplayName returns the human name of a capability, or the short name when unknown.
func DisplayName(name string) string {
	if p, ok := Profiles[name]; ok {
		return p.DisplayName
	}
	return name
}

// ShortName maps a display name (as carried on findings) back to its capability short name.
func ShortName(display string) string {
	for name, p := range Profiles {
		if p.DisplayName == display {
			return name
		}
	}
	return display
}
