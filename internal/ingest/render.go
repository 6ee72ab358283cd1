package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/example/sentinel/internal/model"
)

// Provenance labels attached to findings derived from normalized documents and repositories.
const (
	OriginPDF    = "Derived from PDF Artifact"
	OriginGitHub = "Derived from GitHub Artifact"
)

const (
	renderedSections   = 20
	renderedRawChars   = 15_000
	renderedFileChars  = 8000
	defaultRepoPreface = "[GitHub Repository: %s]"
)

// AgentContent renders an artifact into the text sent to content-driven capabilities.
func AgentContent(a model.Artifact) string {
	switch a.Kind {
	case model.KindPDF:
		return renderPDF(a)
	case model.KindRepository:
		return renderRepository(a)
	default:
		return a.Text()
	}
}

// Origin returns the provenance label for artifacts produced by a normalizer, or "" for plain submissions.
func Origin(a model.Artifact) string {
	switch a.Kind {
	case model.KindPDF:
		return OriginPDF
	case model.KindRepository:
		if a.Metadata.Source == "github" {
			return OriginGitHub
		}
	}
	return ""
}

func renderPDF(a model.Artifact) string {
	parts := []string{
		"[ARTIFACT TYPE: PDF_DOCUMENT]",
		"What can be inferred: Text content, section structure, tables (best-effort).",
		"What cannot be inferred: Images, diagrams, scanned content without OCR.",
		fmt.Sprintf("[PDF Document - %d pages, confidence: %s]", a.Metadata.PageCount,
			strconv.FormatFloat(a.Metadata.ExtractionConfidence, 'f', -1, 64)),
		"\n\n--- SECTIONS ---\n",
	}
	for i, s := range a.Content.Sections {
		if i == renderedSections {
			break
		}
		parts = append(parts, fmt.Sprintf("## %s\n%s\n", s.Title, s.Text))
	}
	parts = append(parts, "\n--- RAW TEXT (excerpt) ---\n", truncate(a.Content.RawText, renderedRawChars))
	return strings.Join(parts, "\n") + "\n\n[" + OriginPDF + "]"
}

func renderRepository(a model.Artifact) string {
	parts := []string{fmt.Sprintf(defaultRepoPreface, a.Metadata.Repo)}
	for _, f := range a.Content.Files {
		parts = append(parts,
			fmt.Sprintf("\n--- FILE: %s (%s) ---\n", f.Path, f.Language),
			truncate(f.Content, renderedFileChars))
	}
	return strings.Join(parts, "\n") + "\n\n[" + OriginGitHub + "]"
}
