package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/claims-processor/internal/ingest"
	"github.com/joseph-ayodele/claims-processor/internal/ocr"
	svc "github.com/joseph-ayodele/claims-processor/internal/server"
)

func main() {
	cfg, err := svc.LoadConfig()
	if err != nil {
		_, _ = os.Stderr.WriteString("invalid configuration: " + err.Error() + "\n")
		os.Exit(2)
	}
	logger := svc.NewLogger(cfg)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "runocr <file.pdf>")
		os.Exit(2)
	}
	path := os.Args[1]

	doc, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read file", "path", path, "error", err)
		os.Exit(1)
	}
	if err := ingest.CheckPDF(filepath.Base(path), doc); err != nil {
		logger.Error("not a pdf", "path", path, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	extractor := ocr.NewExtractor(cfg.OCR.Extractor(), logger)
	start := time.Now()
	res, err := extractor.ExtractResult(ctx, doc)
	dur := time.Since(start)
	if err != nil {
		logger.Error("text extraction failed", "path", path, "error", err, "duration_ms", dur.Milliseconds())
		os.Exit(1)
	}

	logger.Info("text extraction OK",
		"path", path,
		"method", res.Method,
		"pages", res.Pages,
		"page_methods", res.PageMethods,
		"warnings", len(res.Warnings),
		"bytes", len(res.Text),
		"duration_ms", dur.Milliseconds(),
	)
	fmt.Println(res.Text)
}
