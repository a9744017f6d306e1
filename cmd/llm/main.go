package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joseph-ayodele/claims-processor/internal/ingest"
	svc "github.com/joseph-ayodele/claims-processor/internal/server"
)

// runllm pushes the same document through extraction, classification and field
// extraction several times to check how stable the model output is.
func main() {
	cfg, err := svc.LoadConfig()
	if err != nil {
		_, _ = os.Stderr.WriteString("invalid configuration: " + err.Error() + "\n")
		os.Exit(2)
	}
	logger := svc.NewLogger(cfg)

	if len(os.Args) < 2 {
		logger.Error("usage: runllm <file.pdf> [times]")
		os.Exit(2)
	}
	path := os.Args[1]
	times := 10
	if len(os.Args) >= 3 {
		if n, err := strconv.Atoi(os.Args[2]); err == nil && n > 0 {
			times = n
		}
	}
	if cfg.LLM.APIKey == "" {
		logger.Error("OPENROUTER_API_KEY env var is required")
		os.Exit(2)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read file", "path", path, "error", err)
		os.Exit(1)
	}
	base := filepath.Base(path)
	if err := ingest.CheckPDF(base, data); err != nil {
		logger.Error("not a pdf", "path", path, "error", err)
		os.Exit(1)
	}

	processor, _ := svc.NewPipeline(cfg, logger)
	uploads := []ingest.Upload{{Name: base, Data: data}}

	for i := 1; i <= times; i++ {
		runCtx, cancelRun := context.WithTimeout(context.Background(), cfg.Claims.Timeout)
		start := time.Now()
		logger.Info("pipeline.run.start", "iter", i, "basename", base)

		res, err := processor.ProcessClaim(runCtx, uploads)
		cancelRun()

		if err != nil {
			logger.Error("pipeline.run.error", "iter", i, "err", err)
		} else {
			for _, doc := range res.Documents {
				fields, _ := json.Marshal(doc)
				logger.Info("pipeline.run.ok",
					"iter", i,
					"type", doc.Type,
					"fields", string(fields),
					"skipped", len(res.Skipped),
					"elapsed_ms", time.Since(start).Milliseconds())
			}
		}

		time.Sleep(750 * time.Millisecond)
	}

	logger.Info("done", "file", base, "times", times)
}
