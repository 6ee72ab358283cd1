// Package ingest normalizes raw submissions (text, PDF documents, repositories) into artifacts
// and renders artifacts into the text handed to analysis capabilities.
package ingest

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/sentinel/internal/model"
)

// InputError reports a submission the caller has to fix. Request surfaces map it to a 400.
type InputError struct {
	Op  string
	Err error
}

func (e *InputError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// IsInputError reports whether err is, or wraps, an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

func inputErrorf(op, format string, args ...any) error {
	return &InputError{Op: op, Err: fmt.Errorf(format, args...)}
}

// newArtifact builds an artifact, reporting content that is empty after normalization as an input error.
func newArtifact(op string, kind model.Kind, content model.Content, meta model.Metadata) (model.Artifact, error) {
	a, err := model.NewArtifact(uuid.NewString(), kind, content, meta)
	if errors.Is(err, model.ErrEmptyContent) {
		return model.Artifact{}, &InputError{Op: op, Err: err}
	}
	return a, err
}
