package ingest

import (
	"github.com/example/sentinel/internal/model"
)

// FromText normalizes a raw text submission of the given kind.
func FromText(kind model.Kind, text string, meta model.Metadata) (model.Artifact, error) {
	return newArtifact("text", kind, model.Content{RawText: text}, meta)
}
