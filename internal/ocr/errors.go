package ocr

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the document-level failures that cross the extractor boundary.
type ErrorKind string

const (
	KindMalformedDocument    ErrorKind = "MALFORMED_DOCUMENT"
	KindNoExtractableContent ErrorKind = "NO_EXTRACTABLE_CONTENT"
)

var (
	ErrMalformedDocument    = errors.New("malformed document")
	ErrNoExtractableContent = errors.New("no extractable content")
)

// ExtractionError is returned by Extract when no text can be recovered from a document.
// Per-page render and recognition failures never surface as an ExtractionError.
type ExtractionError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("pdf extraction failed: %s: %v", e.Message, e.Cause)
	}
	return "pdf extraction failed: " + e.Message
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

// Is matches the sentinel for the error's kind, so callers can use errors.Is(err, ErrMalformedDocument).
func (e *ExtractionError) Is(target error) bool {
	switch e.Kind {
	case KindMalformedDocument:
		return target == ErrMalformedDocument
	case KindNoExtractableContent:
		return target == ErrNoExtractableContent
	}
	return false
}

func malformed(cause error) *ExtractionError {
	return &ExtractionError{Kind: KindMalformedDocument, Message: "cannot parse pdf", Cause: cause}
}

func noContent() *ExtractionError {
	return &ExtractionError{Kind: KindNoExtractableContent, Message: "no text extracted, even with OCR fallback"}
}

// PageStage names the per-page step that degraded.
type PageStage string

const (
	StageTextLayer PageStage = "text_layer"
	StageRender    PageStage = "render"
	StageRecognize PageStage = "recognize"
)

// PageError records a recovered per-page failure. It is only reported through Result.Warnings.
type PageError struct {
	Page  int // zero-based
	Stage PageStage
	Err   error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %s: %v", e.Page, e.Stage, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }
