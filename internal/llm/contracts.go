package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/joseph-ayodele/claims-processor/constants"
)

// ErrUnauthorized marks a rejected API key or similar misconfiguration. Callers abort the claim
// instead of degrading, since every following call would fail the same way.
var ErrUnauthorized = errors.New("llm: unauthorized")

// Classifier labels a document's text with one of the known document types.
type Classifier interface {
	Classify(ctx context.Context, text string) (constants.DocType, error)
}

// FieldExtractor returns the structured fields for a document of the given type as a JSON object
// that validates against SchemaFor(docType).
type FieldExtractor interface {
	ExtractFields(ctx context.Context, text string, docType constants.DocType) (json.RawMessage, error)
}

// Stage is both halves of the model-backed pipeline step.
type Stage interface {
	Classifier
	FieldExtractor
}
