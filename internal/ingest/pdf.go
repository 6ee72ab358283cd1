package ingest

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/documentloaders"

	"github.com/example/sentinel/internal/model"
)

const (
	maxSections          = 50
	maxRawChars          = 100_000
	fallbackSectionChars = 5000
	defaultMaxPDFBytes   = 50 << 20
)

// PDFExtractor turns PDF documents into pdf_document artifacts.
type PDFExtractor struct {
	client   *http.Client
	maxBytes int64
}

// NewPDFExtractor builds an extractor with an optional custom HTTP client for URL fetches.
func NewPDFExtractor(client *http.Client) *PDFExtractor {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &PDFExtractor{client: client, maxBytes: defaultMaxPDFBytes}
}

// FromBytes extracts text and sections from a PDF held in memory.
func (e *PDFExtractor) FromBytes(ctx context.Context, data []byte, source string) (model.Artifact, error) {
	if len(data) == 0 {
		return model.Artifact{}, inputErrorf("pdf", "empty document")
	}

	docs, err := documentloaders.NewPDF(bytes.NewReader(data), int64(len(data))).Load(ctx)
	if err != nil {
		return model.Artifact{}, &InputError{Op: "pdf", Err: fmt.Errorf("extract text: %w", err)}
	}

	pages := make([]string, 0, len(docs))
	totalChars := 0
	for _, d := range docs {
		pages = append(pages, d.PageContent)
		totalChars += len([]rune(d.PageContent))
	}

	raw := strings.Join(pages, "\n\n")
	sections := splitSections(pages)
	if len(sections) == 0 {
		sections = []model.Section{{Title: "Document", Text: truncate(raw, fallbackSectionChars)}}
	}
	if len(sections) > maxSections {
		sections = sections[:maxSections]
	}

	meta := model.Metadata{
		Source:               source,
		PageCount:            len(docs),
		ExtractionConfidence: extractionConfidence(totalChars),
		SourceType:           inferSourceType(raw),
	}
	a, err := model.NewArtifact(uuid.NewString(), model.KindPDF, model.Content{
		RawText:  truncate(raw, maxRawChars),
		Sections: sections,
	}, meta)
	if errors.Is(err, model.ErrEmptyContent) {
		return model.Artifact{}, inputErrorf("pdf", "no text could be extracted")
	}
	if err != nil {
		return model.Artifact{}, err
	}

	log.Debug().Str("artifact_id", a.ID).Int("pages", meta.PageCount).Int("sections", len(sections)).Msg("pdf extracted")
	return a, nil
}

// FromURL downloads a PDF and extracts it. The response must look like a PDF by content type or URL suffix.
func (e *PDFExtractor) FromURL(ctx context.Context, url string) (model.Artifact, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return model.Artifact{}, inputErrorf("pdf url", "unsupported url %q", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.Artifact{}, &InputError{Op: "pdf url", Err: err}
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return model.Artifact{}, &InputError{Op: "pdf url", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Artifact{}, inputErrorf("pdf url", "failed to fetch URL: %d", resp.StatusCode)
	}
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(ct, "pdf") && !strings.HasSuffix(strings.ToLower(url), ".pdf") {
		return model.Artifact{}, inputErrorf("pdf url", "URL does not appear to point to a PDF")
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes))
	if err != nil {
		return model.Artifact{}, err
	}
	return e.FromBytes(ctx, data, url)
}

// FromBase64 decodes a standard base64 payload and extracts it.
func (e *PDFExtractor) FromBase64(ctx context.Context, payload, filename string) (model.Artifact, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return model.Artifact{}, inputErrorf("pdf base64", "invalid base64: %v", err)
	}
	if filename == "" {
		filename = "document.pdf"
	}
	return e.FromBytes(ctx, data, filename)
}

// splitSections treats short lines without a trailing period as headers and folds the following lines into them.
func splitSections(pages []string) []model.Section {
	var sections []model.Section
	for _, page := range pages {
		for _, line := range strings.Split(page, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			n := len([]rune(line))
			if n < 80 && n > 2 && !strings.HasSuffix(line, ".") {
				sections = append(sections, model.Section{Title: line})
				continue
			}
			if len(sections) > 0 {
				last := &sections[len(sections)-1]
				last.Text = strings.TrimSpace(last.Text + " " + line)
			}
		}
	}
	return sections
}

func extractionConfidence(chars int) float64 {
	if chars == 0 {
		return 0.5
	}
	tokens := float64(chars / 4)
	c := math.Min(1, 0.7+(tokens/10000)*0.1)
	return math.Round(c*100) / 100
}

func inferSourceType(text string) string {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "architecture", "microservice", "api gateway", "data flow"):
		return "architecture"
	case containsAny(lower, "error", "exception", "log", "trace", "debug"):
		return "logs"
	case containsAny(lower, "endpoint", "request", "response", "openapi", "swagger"):
		return "documentation"
	default:
		return "unknown"
	}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
