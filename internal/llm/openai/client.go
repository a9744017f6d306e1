package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	oai "github.com/sashabaranov/go-openai"

	"github.com/joseph-ayodele/claims-processor/constants"
	"github.com/joseph-ayodele/claims-processor/internal/common"
	"github.com/joseph-ayodele/claims-processor/internal/llm"
	"github.com/joseph-ayodele/claims-processor/internal/retrieval"
)

var _ llm.Stage = (*Client)(nil)

// Classify implements llm.Classifier. The prompt carries the chunk of text most similar to the
// whole document rather than the document itself.
func (c *Client) Classify(ctx context.Context, text string) (constants.DocType, error) {
	rid := uuid.New().String()
	start := time.Now()
	log := common.LoggerFromContext(ctx, c.log).With("llm_req_id", rid)

	indexed := retrieval.MostRelevant(ctx, c.emb, text, llm.PromptTextChars)
	log.Info("llm.classify.start", "model", c.cfg.Model, "text_len", len(text), "context_len", len(indexed))

	content, err := c.complete(ctx, c.cfg.ClassifyTimeout, c.cfg.ClassifyMaxTokens,
		llm.BuildClassifySystemPrompt(indexed), llm.ClassifyPrompt)
	if err != nil {
		log.Error("llm.classify.http_error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return constants.Other, err
	}

	dt := llm.ParseDocType(content)
	log.Info("llm.classify.ok", "doc_type", dt, "reply", content, "elapsed_ms", time.Since(start).Milliseconds())
	return dt, nil
}

// ExtractFields implements llm.FieldExtractor.
func (c *Client) ExtractFields(ctx context.Context, text string, docType constants.DocType) (json.RawMessage, error) {
	rid := uuid.New().String()
	start := time.Now()
	log := common.LoggerFromContext(ctx, c.log).With("llm_req_id", rid)

	log.Info("llm.extract.start", "model", c.cfg.Model, "doc_type", docType, "text_len", len(text))

	content, err := c.complete(ctx, c.cfg.ExtractTimeout, c.cfg.ExtractMaxTokens,
		llm.SystemPrompt, llm.BuildExtractPrompt(text, docType))
	if err != nil {
		log.Error("llm.extract.http_error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	if docType != constants.Bill && docType != constants.DischargeSummary && docType != constants.IDCard {
		out := llm.OtherDocument(content)
		log.Info("llm.extract.ok", "doc_type", constants.Other, "elapsed_ms", time.Since(start).Milliseconds())
		return out, nil
	}

	cleaned, _, err := llm.SanitizeFields([]byte(content), docType, log)
	if err != nil {
		log.Error("llm.extract.sanitize_failed", "error", err, "content", content,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, fmt.Errorf("sanitize failed: %w", err)
	}
	if err := llm.ValidateJSONAgainstSchema(llm.SchemaFor(docType), cleaned); err != nil {
		log.Error("llm.extract.schema_validation_failed", "error", err, "content", string(cleaned),
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	log.Info("llm.extract.ok", "doc_type", docType, "bytes", len(cleaned), "elapsed_ms", time.Since(start).Milliseconds())
	return cleaned, nil
}

func (c *Client) complete(ctx context.Context, timeout time.Duration, maxTokens int, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	temp := c.cfg.Temperature
	if temp == 0 {
		// go-openai tags Temperature with omitempty, so 0 would be dropped and the provider
		// default (usually 1) used instead. The smallest float32 serializes as 1e-45.
		temp = math.SmallestNonzeroFloat32
	}
	resp, err := c.api.CreateChatCompletion(ctx, oai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []oai.ChatCompletionMessage{
			{Role: oai.ChatMessageRoleSystem, Content: system},
			{Role: oai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: temp,
		N:           1,
	})
	if err != nil {
		if isUnauthorized(err) {
			return "", fmt.Errorf("%w: %v", llm.ErrUnauthorized, err)
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in completion response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func isUnauthorized(err error) bool {
	var apiErr *oai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden
	}
	var reqErr *oai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusUnauthorized || reqErr.HTTPStatusCode == http.StatusForbidden
	}
	return false
}
