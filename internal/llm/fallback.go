package llm

import (
	"context"
	"encoding/json"

	"github.com/joseph-ayodele/claims-processor/constants"
	"github.com/joseph-ayodele/claims-processor/internal/retrieval"
)

// FallbackSummaryChars is how much raw text the fallback keeps as a summary.
const FallbackSummaryChars = 100

// Fallback is used when no model is configured, and as the degraded result when a model call
// fails. It never errors.
type Fallback struct{}

func (Fallback) Classify(ctx context.Context, _ string) (constants.DocType, error) {
	return constants.Other, nil
}

func (Fallback) ExtractFields(ctx context.Context, text string, _ constants.DocType) (json.RawMessage, error) {
	return FallbackDocument(text), nil
}

// FallbackDocument is an "other" document whose summary is the head of text.
func FallbackDocument(text string) json.RawMessage {
	b, _ := json.Marshal(map[string]any{
		"type":            constants.Other,
		"content_summary": retrieval.Head(text, FallbackSummaryChars),
	})
	return b
}

// OtherDocument wraps a model reply for an "other" document. A JSON reply with a
// content_summary is used as is; anything else becomes the summary verbatim.
func OtherDocument(content string) json.RawMessage {
	var m struct {
		Title   *string `json:"document_title"`
		Summary *string `json:"content_summary"`
	}
	out := map[string]any{"type": constants.Other, "content_summary": content}
	if err := json.Unmarshal([]byte(StripCodeFences(content)), &m); err == nil && m.Summary != nil {
		out["content_summary"] = *m.Summary
		if m.Title != nil && *m.Title != "" {
			out["document_title"] = *m.Title
		}
	}
	b, _ := json.Marshal(out)
	return b
}
