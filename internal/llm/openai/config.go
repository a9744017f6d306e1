package openai

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	oai "github.com/sashabaranov/go-openai"

	"github.com/joseph-ayodele/claims-processor/internal/retrieval"
)

const (
	DefaultBaseURL           = "https://openrouter.ai/api/v1"
	DefaultModel             = "openai/gpt-4o"
	DefaultClassifyMaxTokens = 10
	DefaultExtractMaxTokens  = 512
	DefaultClassifyTimeout   = 30 * time.Second
	DefaultExtractTimeout    = 60 * time.Second
)

// Config for the OpenAI-compatible client. OpenRouter is the default endpoint.
type Config struct {
	APIKey            string
	BaseURL           string // API base, e.g. https://openrouter.ai/api/v1
	Model             string
	Temperature       float32
	ClassifyMaxTokens int
	ExtractMaxTokens  int
	ClassifyTimeout   time.Duration
	ExtractTimeout    time.Duration
	HTTPClient        *http.Client
}

// chatAPI is the slice of *oai.Client we use.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, request oai.ChatCompletionRequest) (oai.ChatCompletionResponse, error)
}

type Client struct {
	cfg Config
	api chatAPI
	emb retrieval.Embedder
	log *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithEmbedder sets the embedder used to pick the classification context.
func WithEmbedder(e retrieval.Embedder) Option {
	return func(c *Client) { c.emb = e }
}

func NewClient(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.ClassifyMaxTokens <= 0 {
		cfg.ClassifyMaxTokens = DefaultClassifyMaxTokens
	}
	if cfg.ExtractMaxTokens <= 0 {
		cfg.ExtractMaxTokens = DefaultExtractMaxTokens
	}
	if cfg.ClassifyTimeout <= 0 {
		cfg.ClassifyTimeout = DefaultClassifyTimeout
	}
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = DefaultExtractTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	transportCfg := oai.DefaultConfig(cfg.APIKey)
	transportCfg.BaseURL = cfg.BaseURL
	if cfg.HTTPClient != nil {
		transportCfg.HTTPClient = cfg.HTTPClient
	}

	c := &Client{
		cfg: cfg,
		api: oai.NewClientWithConfig(transportCfg),
		emb: retrieval.NewHashEmbedder(retrieval.DefaultDimensions),
		log: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
