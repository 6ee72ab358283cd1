package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/sentinel/internal/escalation"
	"github.com/example/sentinel/internal/events"
	"github.com/example/sentinel/internal/model"
	"github.com/example/sentinel/internal/reporting"
)

func newReportCmd() *cobra.Command {
	var inputPath, pdfPath, summaryPath, artifactType string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize a report JSON and optionally render it as PDF",
		RunE: func(cmd *cobra.Command, args []string) error {
			if inputPath == "" {
				return errors.New("--input is required")
			}

			report, err := readReport(inputPath)
			if err != nil {
				return err
			}

			stats := reportStats(inputPath, report)
			emitter := events.NewEmitter(cmd.OutOrStdout())
			if err := emitter.Emit(events.Event{Type: "report", RunID: report.ID, Message: "Report summarized", Fields: stats}); err != nil {
				return err
			}

			if summaryPath != "" {
				if err := writeJSONFile(summaryPath, stats); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Summary written to %s\n", summaryPath)
			}

			if pdfPath != "" {
				data, err := reporting.NewPDFGenerator().Generate(reporting.ReportData{
					Report:       report,
					ArtifactType: artifactType,
					GeneratedAt:  time.Now(),
				})
				if err != nil {
					return err
				}
				if dir := filepath.Dir(pdfPath); dir != "." {
					if err := ensureOutputDir(dir); err != nil {
						return err
					}
				}
				if err := os.WriteFile(pdfPath, data, 0o644); err != nil {
					return err
				}
				return emitter.Emit(events.Event{Type: events.TypeReportWritten, RunID: report.ID, Message: "PDF written", Fields: map[string]interface{}{"path": pdfPath, "bytes": len(data)}})
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "", "Path to a report JSON written by analyze")
	cmd.Flags().StringVar(&pdfPath, "pdf", "", "Render the report to this PDF path")
	cmd.Flags().StringVar(&summaryPath, "summary-file", "", "Optional path to store summary JSON")
	cmd.Flags().StringVar(&artifactType, "artifact-type", "", "Artifact type printed on the PDF cover")
	if err := cmd.MarkFlagRequired("input"); err != nil {
		panic(err)
	}

	return cmd
}

func readReport(path string) (model.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Report{}, err
	}
	var r model.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return model.Report{}, fmt.Errorf("parse report %s: %w", path, err)
	}
	if r.ID == "" {
		return model.Report{}, fmt.Errorf("%s is not a sentinel report: missing id", path)
	}
	return r, nil
}

func reportStats(path string, r model.Report) map[string]interface{} {
	bySeverity := map[string]int{}
	byCapability := map[string]int{}
	for _, f := range r.Findings {
		bySeverity[string(f.Severity)]++
		byCapability[f.Capability]++
	}
	stats := map[string]interface{}{
		"input":        path,
		"generatedAt":  time.Now().UTC().Format(time.RFC3339),
		"status":       r.Status,
		"score":        r.OverallScore,
		"risk":         string(escalation.LevelFor(r.OverallScore, r.Status)),
		"findings":     len(r.Findings),
		"bySeverity":   bySeverity,
		"byCapability": byCapability,
	}
	if r.Signals != nil {
		stats["signals"] = r.Signals.Analytics.TotalSignals
	}
	return stats
}
