package model

import (
	"errors"
	"fmt"
	"strings"
)

// Kind enumerates the artifact types accepted by the pipeline.
type Kind string

const (
	KindCode         Kind = "code"
	KindArchitecture Kind = "architecture"
	KindLogs         Kind = "logs"
	KindAPISpec      Kind = "api_spec"
	KindPDF          Kind = "pdf_document"
	KindRepository   Kind = "code_repository"
)

var kinds = []Kind{KindCode, KindArchitecture, KindLogs, KindAPISpec, KindPDF, KindRepository}

// ErrEmptyContent is returned when an artifact would be built without any usable content.
var ErrEmptyContent = errors.New("artifact has no usable content")

// ParseKind accepts the lower-case kind name, tolerating upper case and dashes.
func ParseKind(value string) (Kind, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "-", "_")
	for _, k := range kinds {
		if string(k) == normalized {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown artifact type %q", value)
}

// Section is a titled block of document text.
type Section struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// File is a single source file of a fetched repository.
type File struct {
	Path     string `json:"path"`
	Language string `json:"language"`
	Content  string `json:"content"`
}

// Content holds the normalized payload. Documents may carry both sections and the raw text they were cut from.
type Content struct {
	RawText  string    `json:"raw_text,omitempty"`
	Sections []Section `json:"sections,omitempty"`
	Files    []File    `json:"files,omitempty"`
}

func (c Content) empty() bool {
	if strings.TrimSpace(c.RawText) != "" {
		return false
	}
	for _, s := range c.Sections {
		if strings.TrimSpace(s.Text) != "" {
			return false
		}
	}
	for _, f := range c.Files {
		if strings.TrimSpace(f.Content) != "" {
			return false
		}
	}
	return true
}

// Metadata carries descriptive facts about where an artifact came from.
type Metadata struct {
	Source               string            `json:"source,omitempty"`
	PageCount            int               `json:"page_count,omitempty"`
	ExtractionConfidence float64           `json:"extraction_confidence,omitempty"`
	SourceType           string            `json:"source_type,omitempty"`
	Repo                 string            `json:"repo,omitempty"`
	Commit               string            `json:"commit,omitempty"`
	FileCount            int               `json:"file_count,omitempty"`
	Extra                map[string]string `json:"extra,omitempty"`
}

// Artifact is the normalized unit of content submitted for analysis.
type Artifact struct {
	ID       string   `json:"artifact_id"`
	Kind     Kind     `json:"artifact_type"`
	Content  Content  `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// NewArtifact validates and builds an artifact. It fails with ErrEmptyContent when nothing usable was extracted.
func NewArtifact(id string, kind Kind, content Content, meta Metadata) (Artifact, error) {
	if id == "" {
		return Artifact{}, errors.New("artifact id is required")
	}
	if content.empty() {
		return Artifact{}, ErrEmptyContent
	}
	return Artifact{ID: id, Kind: kind, Content: content, Metadata: meta}, nil
}

// Text returns the full text of the artifact: file contents joined by newlines for repositories,
// otherwise the raw text.
func (a Artifact) Text() string {
	if len(a.Content.Files) > 0 {
		parts := make([]string, 0, len(a.Content.Files))
		for _, f := range a.Content.Files {
			parts = append(parts, f.Content)
		}
		return strings.Join(parts, "\n")
	}
	return a.Content.RawText
}
