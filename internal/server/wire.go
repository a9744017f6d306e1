package server

import (
	"log/slog"
	"os"

	"github.com/joseph-ayodele/claims-processor/internal/claims"
	"github.com/joseph-ayodele/claims-processor/internal/common"
	"github.com/joseph-ayodele/claims-processor/internal/llm"
	"github.com/joseph-ayodele/claims-processor/internal/llm/openai"
	"github.com/joseph-ayodele/claims-processor/internal/ocr"
)

// LoadConfig reads the environment, applies CLAIMS_CONFIG_FILE when set and validates.
func LoadConfig() (*common.Config, error) {
	cfg := common.LoadConfig()
	if path := os.Getenv("CLAIMS_CONFIG_FILE"); path != "" {
		if err := common.LoadConfigFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewLogger is the JSON slog logger every command uses.
func NewLogger(cfg *common.Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	return logger
}

// NewPipeline builds the text extractor and the claim processor. Without an API key the
// processor runs on the fallback stage.
func NewPipeline(cfg *common.Config, logger *slog.Logger) (*claims.Processor, *ocr.Extractor) {
	extractor := ocr.NewExtractor(cfg.OCR.Extractor(), logger)

	var stage llm.Stage
	if cfg.LLM.APIKey != "" {
		stage = openai.NewClient(openai.Config{
			APIKey:          cfg.LLM.APIKey,
			BaseURL:         cfg.LLM.BaseURL,
			Model:           cfg.LLM.Model,
			Temperature:     cfg.LLM.Temperature,
			ClassifyTimeout: cfg.LLM.ClassifyTimeout,
			ExtractTimeout:  cfg.LLM.ExtractTimeout,
		}, logger)
		logger.Info("llm client initialized", "model", cfg.LLM.Model, "base_url", cfg.LLM.BaseURL)
	} else {
		logger.Warn("OPENROUTER_API_KEY not configured, documents will be classified as other")
	}

	return claims.NewProcessor(logger, extractor, stage, cfg.Claims.Workers), extractor
}
