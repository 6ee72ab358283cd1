package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/sentinel/internal/config"
	"github.com/example/sentinel/internal/events"
	"github.com/example/sentinel/internal/ingest"
	"github.com/example/sentinel/internal/model"
)

type analyzeFlags struct {
	text         string
	file         string
	artifactType string
	pdf          string
	pdfURL       string
	github       string
	origin       string
	output       string
}

func newAnalyzeCmd(loader *config.Loader) *cobra.Command {
	flags := &runtimeFlagSet{}
	in := &analyzeFlags{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze one artifact, streaming stage events as NDJSON",
		Long: `Analyze normalizes one artifact, runs every analysis capability over it and writes the report JSON.
Exactly one source is required: --text, --file (use - for stdin), --pdf, --pdf-url or --github.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := in.validate(); err != nil {
				return err
			}
			cfg, err := loadRuntime(cmd, loader, flags)
			if err != nil {
				return err
			}

			emitter := events.NewEmitter(cmd.OutOrStdout())
			a, err := newApp(cmd.Context(), cfg, emitter)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			artifact, err := in.normalize(cmd, a)
			if err != nil {
				a.metrics.IngestError(in.source())
				_ = emitter.Emit(events.Event{Type: events.TypeIngestFailure, Status: events.StatusFailed, Message: err.Error(), Fields: map[string]interface{}{"source": in.source()}})
				return err
			}

			origin := in.origin
			if origin == "" {
				origin = ingest.Origin(artifact)
			}
			out := a.orchestrator.Run(cmd.Context(), artifact, origin)

			path := in.output
			if path == "" {
				path = filepath.Join(cfg.DataDir, "reports", fmt.Sprintf("report_%s.json", artifact.ID))
			}
			if err := writeJSONFile(path, out.Report); err != nil {
				return err
			}
			return emitter.Emit(events.Event{
				Type:    events.TypeReportWritten,
				RunID:   artifact.ID,
				Message: "Report written",
				Fields: map[string]interface{}{
					"path":   path,
					"status": out.Report.Status,
					"score":  out.Report.OverallScore,
					"risk":   string(out.Decision.Level),
				},
			})
		},
	}

	cmd.Flags().StringVar(&in.text, "text", "", "Artifact content given inline")
	cmd.Flags().StringVar(&in.file, "file", "", "Read artifact content from a file (- for stdin)")
	cmd.Flags().StringVar(&in.artifactType, "type", string(model.KindCode), "Artifact type for --text/--file: code, architecture, logs or api_spec")
	cmd.Flags().StringVar(&in.pdf, "pdf", "", "Analyze a local PDF document")
	cmd.Flags().StringVar(&in.pdfURL, "pdf-url", "", "Download and analyze a PDF document")
	cmd.Flags().StringVar(&in.github, "github", "", "Fetch and analyze a GitHub repository URL")
	cmd.Flags().StringVar(&in.origin, "origin", "", "Provenance label stamped on every finding")
	cmd.Flags().StringVar(&in.output, "output", "", "Report JSON path (default <data-dir>/reports/report_<id>.json)")
	bindRuntimeFlags(cmd, flags)

	return cmd
}

func (f *analyzeFlags) validate() error {
	n := 0
	for _, v := range []string{f.text, f.file, f.pdf, f.pdfURL, f.github} {
		if v != "" {
			n++
		}
	}
	switch n {
	case 0:
		return errors.New("one of --text, --file, --pdf, --pdf-url or --github is required")
	case 1:
		return nil
	default:
		return errors.New("only one artifact source may be given")
	}
}

func (f *analyzeFlags) source() string {
	switch {
	case f.pdf != "", f.pdfURL != "":
		return "pdf"
	case f.github != "":
		return "github"
	default:
		return "text"
	}
}

func (f *analyzeFlags) normalize(cmd *cobra.Command, a *app) (model.Artifact, error) {
	ctx := cmd.Context()
	switch {
	case f.pdf != "":
		data, err := os.ReadFile(f.pdf)
		if err != nil {
			return model.Artifact{}, err
		}
		return a.pdf.FromBytes(ctx, data, filepath.Base(f.pdf))
	case f.pdfURL != "":
		return a.pdf.FromURL(ctx, f.pdfURL)
	case f.github != "":
		return a.repos.Fetch(ctx, f.github)
	}

	kind, err := model.ParseKind(f.artifactType)
	if err != nil {
		return model.Artifact{}, err
	}
	text := f.text
	meta := model.Metadata{Source: "cli"}
	if f.file != "" {
		var data []byte
		if f.file == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(f.file)
			meta.Source = f.file
		}
		if err != nil {
			return model.Artifact{}, err
		}
		text = string(data)
	}
	return ingest.FromText(kind, text, meta)
}
