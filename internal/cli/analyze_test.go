package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/sentinel/internal/events"
	"github.com/example/sentinel/internal/ingest"
	"github.com/example/sentinel/internal/model"
)

const riskyFindings = `[{"finding_type":"SQL Injection","description":"query built from request input","severity":"CRITICAL","location":"db.go:12","suggestion":"use placeholders"}]`

func parseEvents(t *testing.T, stdout string) []events.Event {
	t.Helper()
	var out []events.Event
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var evt events.Event
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			t.Fatalf("stdout line is not an event: %q: %v", line, err)
		}
		out = append(out, evt)
	}
	return out
}

func findEvent(evts []events.Event, typ string) (events.Event, bool) {
	for _, evt := range evts {
		if evt.Type == typ {
			return evt, true
		}
	}
	return events.Event{}, false
}

func readReportFile(t *testing.T, path string) model.Report {
	t.Helper()
	report, err := readReport(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	return report
}

func TestAnalyzeCommandCleanRun(t *testing.T) {
	loader, dir := testLoader(t)
	completer := &fakeCompleter{findings: "[]"}
	notifier := &recordingNotifier{sent: true}
	stubCollaborators(t, completer, notifier, nil)
	output := filepath.Join(dir, "out", "report.json")

	stdout, _, err := execute(t, newAnalyzeCmd(loader),
		"--text", "func main() { fmt.Println(\"hello\") }",
		"--data-dir", dir,
		"--output", output,
	)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	evts := parseEvents(t, stdout)
	if _, ok := findEvent(evts, events.TypeRunStarted); !ok {
		t.Fatalf("expected run_started event, got:\n%s", stdout)
	}
	written, ok := findEvent(evts, events.TypeReportWritten)
	if !ok {
		t.Fatalf("expected report_written event, got:\n%s", stdout)
	}
	if written.Fields["path"] != output || written.Fields["status"] != model.StatusGo {
		t.Fatalf("unexpected report_written fields: %v", written.Fields)
	}
	if written.Fields["risk"] != string(model.RiskLow) {
		t.Fatalf("expected LOW risk, got %v", written.Fields["risk"])
	}

	report := readReportFile(t, output)
	if report.Status != model.StatusGo || report.OverallScore != 100 || len(report.Findings) != 0 {
		t.Fatalf("unexpected clean report: %+v", report)
	}
	if report.Signals == nil {
		t.Fatal("expected local signals on the report")
	}
	if written.RunID != report.ID {
		t.Fatalf("event run id %q does not match report id %q", written.RunID, report.ID)
	}

	if _, err := os.Stat(filepath.Join(dir, "sentinel.db")); err != nil {
		t.Fatalf("expected audit database in data dir: %v", err)
	}
	if len(notifier.alerts) != 0 {
		t.Fatalf("clean run should not alert, got %d alerts", len(notifier.alerts))
	}
}

func TestAnalyzeCommandDefaultOutputPath(t *testing.T) {
	loader, dir := testLoader(t)
	stubCollaborators(t, &fakeCompleter{findings: "[]"}, &recordingNotifier{}, nil)

	stdout, _, err := execute(t, newAnalyzeCmd(loader), "--text", "GET /health", "--type", "logs", "--data-dir", dir, "--no-audit")
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	written, ok := findEvent(parseEvents(t, stdout), events.TypeReportWritten)
	if !ok {
		t.Fatal("expected report_written event")
	}
	want := filepath.Join(dir, "reports", "report_"+written.RunID+".json")
	if written.Fields["path"] != want {
		t.Fatalf("expected default path %s, got %v", want, written.Fields["path"])
	}
	readReportFile(t, want)

	if _, err := os.Stat(filepath.Join(dir, "sentinel.db")); !os.IsNotExist(err) {
		t.Fatalf("--no-audit should not create the database, stat err = %v", err)
	}
}

func TestAnalyzeCommandEscalatesRiskyArtifact(t *testing.T) {
	loader, dir := testLoader(t)
	completer := &fakeCompleter{
		findings: riskyFindings,
		verdict:  `{"overall_score": 20, "summary": "Injection reachable from the public API.", "status": "NO-GO"}`,
	}
	notifier := &recordingNotifier{sent: true}
	stubCollaborators(t, completer, notifier, nil)
	output := filepath.Join(dir, "report.json")

	stdout, _, err := execute(t, newAnalyzeCmd(loader),
		"--text", `db.Query("SELECT * FROM users WHERE id = " + id)`,
		"--origin", "unit-test",
		"--data-dir", dir,
		"--output", output,
	)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	report := readReportFile(t, output)
	if report.Status != model.StatusNoGo || report.OverallScore != 20 {
		t.Fatalf("unexpected verdict on report: %+v", report)
	}
	if len(report.Findings) == 0 {
		t.Fatal("expected findings on the report")
	}

	written, _ := findEvent(parseEvents(t, stdout), events.TypeReportWritten)
	if written.Fields["risk"] != string(model.RiskCritical) {
		t.Fatalf("expected CRITICAL risk, got %v", written.Fields["risk"])
	}

	if len(notifier.alerts) != 1 {
		t.Fatalf("expected one alert, got %d", len(notifier.alerts))
	}
	alert := notifier.alerts[0]
	if alert.Level != model.RiskCritical || alert.ArtifactID != report.ID {
		t.Fatalf("unexpected alert: %+v", alert)
	}
	if alert.ArtifactType != "CODE" {
		t.Fatalf("expected CODE artifact type, got %q", alert.ArtifactType)
	}
}

func TestAnalyzeCommandReadsStdin(t *testing.T) {
	loader, dir := testLoader(t)
	stubCollaborators(t, &fakeCompleter{findings: "[]"}, &recordingNotifier{}, nil)
	output := filepath.Join(dir, "report.json")

	cmd := newAnalyzeCmd(loader)
	cmd.SetIn(strings.NewReader("openapi: 3.0.0\npaths: {}\n"))
	if _, _, err := execute(t, cmd, "--file", "-", "--type", "api_spec", "--data-dir", dir, "--no-audit", "--output", output); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	readReportFile(t, output)
}

func TestAnalyzeCommandReadsFile(t *testing.T) {
	loader, dir := testLoader(t)
	stubCollaborators(t, &fakeCompleter{findings: "[]"}, &recordingNotifier{}, nil)
	input := filepath.Join(dir, "design.md")
	if err := os.WriteFile(input, []byte("Gateway -> Auth -> DB"), 0o644); err != nil {
		t.Fatal(err)
	}
	output := filepath.Join(dir, "report.json")

	if _, _, err := execute(t, newAnalyzeCmd(loader), "--file", input, "--type", "architecture", "--data-dir", dir, "--no-audit", "--output", output); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	readReportFile(t, output)
}

func TestAnalyzeCommandSourceValidation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "no source", args: nil, wantErr: "is required"},
		{name: "two sources", args: []string{"--text", "x", "--github", "https://github.com/a/b"}, wantErr: "only one"},
		{name: "unknown type", args: []string{"--text", "x", "--type", "spreadsheet"}, wantErr: "spreadsheet"},
		{name: "missing file", args: []string{"--file", "/does/not/exist.txt"}, wantErr: "exist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader, dir := testLoader(t)
			completer := &fakeCompleter{findings: "[]"}
			stubCollaborators(t, completer, &recordingNotifier{}, nil)

			args := append([]string{"--data-dir", dir, "--no-audit"}, tt.args...)
			_, _, err := execute(t, newAnalyzeCmd(loader), args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
			if completer.calls != 0 {
				t.Fatalf("no capability should run, got %d calls", completer.calls)
			}
		})
	}
}

func TestAnalyzeCommandRejectsBlankText(t *testing.T) {
	loader, dir := testLoader(t)
	stubCollaborators(t, &fakeCompleter{findings: "[]"}, &recordingNotifier{}, nil)

	stdout, _, err := execute(t, newAnalyzeCmd(loader), "--text", "   \n\t", "--data-dir", dir, "--no-audit")
	if !ingest.IsInputError(err) {
		t.Fatalf("expected input error, got %v", err)
	}

	evt, ok := findEvent(parseEvents(t, stdout), events.TypeIngestFailure)
	if !ok {
		t.Fatalf("expected ingest_failed event, got:\n%s", stdout)
	}
	if evt.Fields["source"] != "text" || evt.Status != events.StatusFailed {
		t.Fatalf("unexpected ingest failure event: %+v", evt)
	}
}

func TestAnalyzeCommandCloneFailure(t *testing.T) {
	loader, dir := testLoader(t)
	gitErr := errors.New("git clone exited with status 128")
	stubCollaborators(t, &fakeCompleter{findings: "[]"}, &recordingNotifier{}, gitErr)

	stdout, _, err := execute(t, newAnalyzeCmd(loader),
		"--github", "https://github.com/example/app",
		"--fetch-mode", "clone",
		"--data-dir", dir,
		"--no-audit",
	)
	if err == nil {
		t.Fatal("expected clone failure")
	}

	evt, ok := findEvent(parseEvents(t, stdout), events.TypeIngestFailure)
	if !ok || evt.Fields["source"] != "github" {
		t.Fatalf("expected github ingest failure event, got:\n%s", stdout)
	}
}

func TestAnalyzeFlagsSource(t *testing.T) {
	tests := []struct {
		flags analyzeFlags
		want  string
	}{
		{flags: analyzeFlags{text: "x"}, want: "text"},
		{flags: analyzeFlags{file: "-"}, want: "text"},
		{flags: analyzeFlags{pdf: "a.pdf"}, want: "pdf"},
		{flags: analyzeFlags{pdfURL: "https://x/a.pdf"}, want: "pdf"},
		{flags: analyzeFlags{github: "https://github.com/a/b"}, want: "github"},
	}

	for _, tt := range tests {
		if got := tt.flags.source(); got != tt.want {
			t.Errorf("source() for %+v = %q, want %q", tt.flags, got, tt.want)
		}
	}
}
