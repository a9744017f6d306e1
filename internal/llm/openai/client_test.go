package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/claims-processor/constants"
	"github.com/joseph-ayodele/claims-processor/internal/llm"
)

type capturedRequest struct {
	Path          string
	Authorization string
	Body          struct {
		Model       string   `json:"model"`
		MaxTokens   int      `json:"max_tokens"`
		Temperature *float64 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
}

// fakeRouter answers chat/completions with the queued replies in order.
type fakeRouter struct {
	mu       sync.Mutex
	replies  []string
	status   int
	requests []capturedRequest
}

func (f *fakeRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var cr capturedRequest
	cr.Path = r.URL.Path
	cr.Authorization = r.Header.Get("Authorization")
	b, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(b, &cr.Body)
	f.requests = append(f.requests, cr)

	w.Header().Set("Content-Type", "application/json")
	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"error":{"message":"No auth credentials found","code":401}}`))
		return
	}
	reply := ""
	if len(f.replies) > 0 {
		reply, f.replies = f.replies[0], f.replies[1:]
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     "gen-1",
		"object": "chat.completion",
		"model":  "openai/gpt-4o",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": reply},
		}},
	})
}

func newTestClient(t *testing.T, router *fakeRouter) *Client {
	t.Helper()
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/api/v1"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClassify(t *testing.T) {
	router := &fakeRouter{replies: []string{" Discharge_Summary\n", "prescription"}}
	c := newTestClient(t, router)
	ctx := context.Background()

	dt, err := c.Classify(ctx, "Discharge summary for Jane Roe. Admitted 2024-04-01.")
	require.NoError(t, err)
	assert.Equal(t, constants.DischargeSummary, dt)

	dt, err = c.Classify(ctx, "Take two tablets daily.")
	require.NoError(t, err)
	assert.Equal(t, constants.Other, dt)

	require.Len(t, router.requests, 2)
	req := router.requests[0]
	assert.Equal(t, "/api/v1/chat/completions", req.Path)
	assert.Equal(t, "Bearer sk-test", req.Authorization)
	assert.Equal(t, DefaultModel, req.Body.Model)
	assert.Equal(t, DefaultClassifyMaxTokens, req.Body.MaxTokens)
	require.NotNil(t, req.Body.Temperature, "a zero temperature must still be sent")
	assert.InDelta(t, 0, *req.Body.Temperature, 1e-9)
	require.Len(t, req.Body.Messages, 2)
	assert.Equal(t, "system", req.Body.Messages[0].Role)
	assert.Contains(t, req.Body.Messages[0].Content, "--- Indexed PDF Content ---\nDischarge summary for Jane Roe.")
	assert.Equal(t, llm.ClassifyPrompt, req.Body.Messages[1].Content)
}

func TestExtractFields_Bill(t *testing.T) {
	router := &fakeRouter{replies: []string{"```json\n{\"type\":\"bill\",\"hospital_name\":\"City Hospital\",\"total_amount\":\"1,250.00\",\"date_of_service\":\"2024-04-10\",\"notes\":\"x\"}\n```"}}
	c := newTestClient(t, router)

	raw, err := c.ExtractFields(context.Background(), "City Hospital invoice ...", constants.Bill)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"bill","hospital_name":"City Hospital","total_amount":1250,"date_of_service":"2024-04-10"}`, string(raw))

	req := router.requests[0]
	assert.Equal(t, DefaultExtractMaxTokens, req.Body.MaxTokens)
	assert.Equal(t, llm.SystemPrompt, req.Body.Messages[0].Content)
	assert.True(t, strings.HasSuffix(req.Body.Messages[1].Content, "Document:\nCity Hospital invoice ..."))
}

func TestExtractFields_OtherKeepsReply(t *testing.T) {
	router := &fakeRouter{replies: []string{"A referral letter from Dr. Smith."}}
	c := newTestClient(t, router)

	raw, err := c.ExtractFields(context.Background(), "Dear colleague ...", constants.Other)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"other","content_summary":"A referral letter from Dr. Smith."}`, string(raw))
}

func TestExtractFields_InvalidReply(t *testing.T) {
	router := &fakeRouter{replies: []string{"Sorry, I cannot help with that."}}
	c := newTestClient(t, router)

	_, err := c.ExtractFields(context.Background(), "text", constants.IDCard)
	require.Error(t, err)
	assert.False(t, errors.Is(err, llm.ErrUnauthorized))
}

func TestUnauthorizedIsSurfaced(t *testing.T) {
	router := &fakeRouter{status: http.StatusUnauthorized}
	c := newTestClient(t, router)

	_, err := c.Classify(context.Background(), "text")
	assert.ErrorIs(t, err, llm.ErrUnauthorized)
	_, err = c.ExtractFields(context.Background(), "text", constants.Bill)
	assert.ErrorIs(t, err, llm.ErrUnauthorized)
}

func TestServerErrorIsNotUnauthorized(t *testing.T) {
	router := &fakeRouter{status: http.StatusBadGateway}
	c := newTestClient(t, router)

	_, err := c.Classify(context.Background(), "text")
	require.Error(t, err)
	assert.NotErrorIs(t, err, llm.ErrUnauthorized)
}
