package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/sentinel/internal/events"
	"github.com/example/sentinel/internal/model"
)

func writeSampleReport(t *testing.T, dir string) string {
	t.Helper()
	report := model.Report{
		ID:           "7d1c1f0e-report",
		Timestamp:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		OverallScore: 45,
		Status:       model.StatusNoGo,
		Summary:      "Two injection paths reach the database.",
		Findings: []model.Finding{
			{Capability: "Logic Auditor", Type: "SQL Injection", Severity: model.SeverityCritical, Location: "db.go:10"},
			{Capability: "Logic Auditor", Type: "Hardcoded Secret", Severity: model.SeverityHigh, Location: "config.go:3"},
			{Capability: "Threat Modeler", Type: "Spoofing", Severity: model.SeverityHigh, Location: "auth"},
		},
	}
	path := filepath.Join(dir, "report.json")
	if err := writeJSONFile(path, report); err != nil {
		t.Fatalf("write report: %v", err)
	}
	return path
}

func TestReportCommandSummarizes(t *testing.T) {
	dir := t.TempDir()
	input := writeSampleReport(t, dir)
	summary := filepath.Join(dir, "summary.json")

	stdout, _, err := execute(t, newReportCmd(), "--input", input, "--summary-file", summary)
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}

	var evt events.Event
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &evt); err != nil {
		t.Fatalf("expected one NDJSON event, got %q: %v", stdout, err)
	}
	if evt.Type != "report" || evt.RunID != "7d1c1f0e-report" {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if evt.Fields["risk"] != string(model.RiskHigh) || evt.Fields["findings"] != float64(3) {
		t.Fatalf("unexpected stats: %v", evt.Fields)
	}

	data, err := os.ReadFile(summary)
	if err != nil {
		t.Fatalf("summary not written: %v", err)
	}
	var stats struct {
		BySeverity   map[string]int `json:"bySeverity"`
		ByCapability map[string]int `json:"byCapability"`
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatalf("parse summary: %v", err)
	}
	if stats.BySeverity["high"] != 2 || stats.BySeverity["critical"] != 1 {
		t.Fatalf("unexpected severity counts: %v", stats.BySeverity)
	}
	if stats.ByCapability["Logic Auditor"] != 2 {
		t.Fatalf("unexpected capability counts: %v", stats.ByCapability)
	}
}

func TestReportCommandRendersPDF(t *testing.T) {
	dir := t.TempDir()
	input := writeSampleReport(t, dir)
	pdfPath := filepath.Join(dir, "out", "report.pdf")

	stdout, _, err := execute(t, newReportCmd(), "--input", input, "--pdf", pdfPath, "--artifact-type", "code")
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}

	data, err := os.ReadFile(pdfPath)
	if err != nil {
		t.Fatalf("pdf not written: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("output is not a PDF: %q", data[:min(len(data), 16)])
	}
	if !strings.Contains(stdout, events.TypeReportWritten) {
		t.Fatalf("expected report_written event, got:\n%s", stdout)
	}
}

func TestReportCommandErrors(t *testing.T) {
	dir := t.TempDir()
	noID := filepath.Join(dir, "noid.json")
	if err := os.WriteFile(noID, []byte(`{"overall_score": 10}`), 0o644); err != nil {
		t.Fatal(err)
	}
	garbage := filepath.Join(dir, "garbage.json")
	if err := os.WriteFile(garbage, []byte(`not json`), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "missing input flag", args: nil, wantErr: "input"},
		{name: "missing file", args: []string{"--input", filepath.Join(dir, "absent.json")}, wantErr: "no such file"},
		{name: "not a report", args: []string{"--input", noID}, wantErr: "missing id"},
		{name: "invalid json", args: []string{"--input", garbage}, wantErr: "parse report"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, newReportCmd(), tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
