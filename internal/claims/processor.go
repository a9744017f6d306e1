package claims

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/claims-processor/constants"
	"github.com/joseph-ayodele/claims-processor/internal/common"
	"github.com/joseph-ayodele/claims-processor/internal/ingest"
	"github.com/joseph-ayodele/claims-processor/internal/llm"
)

// TextExtractor turns PDF bytes into text.
type TextExtractor interface {
	Extract(ctx context.Context, doc []byte) (string, error)
}

// Processor runs a claim through text extraction, classification, field extraction,
// validation and the decision.
type Processor struct {
	logger    *slog.Logger
	extractor TextExtractor
	stage     llm.Stage
	workers   int
	now       func() time.Time
	warnOnce  sync.Once
	fallback  bool
}

// NewProcessor wires a processor. A nil stage means no model is configured and the
// fallback classifier/extractor is used.
func NewProcessor(logger *slog.Logger, extractor TextExtractor, stage llm.Stage, workers int) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	p := &Processor{
		logger:    logger,
		extractor: extractor,
		stage:     stage,
		workers:   workers,
		now:       time.Now,
	}
	if stage == nil {
		p.stage = llm.Fallback{}
		p.fallback = true
	}
	return p
}

// ProcessClaim processes uploads as one claim. Input errors (no files, non-PDF) are returned
// before any work wraps common.ErrInvalidInput. A document whose text cannot be extracted is
// skipped and listed in ClaimResult.Skipped. Errors matching llm.ErrUnauthorized abort the claim.
func (p *Processor) ProcessClaim(ctx context.Context, uploads []ingest.Upload) (ClaimResult, error) {
	if len(uploads) == 0 {
		return ClaimResult{}, common.NewAppError("INVALID_INPUT", "At least one file is required", common.ErrInvalidInput)
	}
	for _, u := range uploads {
		if err := ingest.CheckPDF(u.Name, u.Data); err != nil {
			return ClaimResult{}, err
		}
	}
	if p.fallback {
		p.warnOnce.Do(func() {
			p.logger.Warn("claims.llm.not_configured", "hint", "set OPENROUTER_API_KEY; documents will be classified as other")
		})
	}

	claimID := uuid.New().String()
	ctx = common.WithClaimID(ctx, claimID)
	log := common.LoggerFromContext(ctx, p.logger)
	start := time.Now()
	log.Info("claims.process.start", "files", len(uploads), "workers", p.workers)

	texts, errs, err := p.extractAll(ctx, uploads)
	if err != nil {
		log.Error("claims.process.extract_aborted", "error", err)
		return ClaimResult{}, err
	}

	res := ClaimResult{
		ClaimID:   claimID,
		Documents: []Document{},
		Skipped:   []SkippedDocument{},
	}
	for i, u := range uploads {
		if errs[i] != nil {
			log.Warn("claims.document.skipped", "file", u.Name, "index", i, "error", errs[i])
			res.Skipped = append(res.Skipped, SkippedDocument{Name: u.Name, Reason: errs[i].Error()})
			continue
		}
		doc, err := p.analyze(ctx, log, u.Name, texts[i])
		if err != nil {
			log.Error("claims.process.aborted", "file", u.Name, "error", err)
			return ClaimResult{}, err
		}
		res.Documents = append(res.Documents, doc)
	}

	res.ProcessedAt = p.now().UTC()
	res.DocumentValidations = Validate(res.Documents, res.ProcessedAt)
	res.Validation = CheckClaim(res.Documents)
	res.Decision = Decide(res.Validation)

	log.Info("claims.process.ok",
		"documents", len(res.Documents),
		"skipped", len(res.Skipped),
		"missing", res.Validation.MissingDocuments,
		"status", res.Decision.Status,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// extractAll extracts every upload's text concurrently. Per-document failures land in errs;
// only cancellation of ctx is returned as err.
func (p *Processor) extractAll(ctx context.Context, uploads []ingest.Upload) ([]string, []error, error) {
	texts := make([]string, len(uploads))
	errs := make([]error, len(uploads))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, u := range uploads {
		i, u := i, u
		g.Go(func() error {
			text, err := p.extractor.Extract(gctx, u.Data)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				errs[i] = err
				return nil
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return texts, errs, nil
}

// analyze classifies one document and extracts its fields. Model failures degrade the
// document; only ErrUnauthorized and cancellation are returned.
func (p *Processor) analyze(ctx context.Context, log *slog.Logger, name, text string) (Document, error) {
	docType, err := p.stage.Classify(ctx, text)
	if err != nil {
		if fatal(ctx, err) {
			return Document{}, fmt.Errorf("classify %s: %w", name, err)
		}
		log.Warn("claims.classify.degraded", "file", name, "error", err)
		docType = constants.Other
	}

	raw, err := p.stage.ExtractFields(ctx, text, docType)
	if err != nil {
		if fatal(ctx, err) {
			return Document{}, fmt.Errorf("extract fields %s: %w", name, err)
		}
		log.Warn("claims.extract.degraded", "file", name, "doc_type", docType, "error", err)
		return p.degraded(name, text, docType), nil
	}

	doc, err := DecodeDocument(raw)
	if err != nil {
		log.Warn("claims.extract.decode_failed", "file", name, "doc_type", docType, "error", err)
		return p.degraded(name, text, docType), nil
	}
	if doc.Type != docType {
		log.Warn("claims.extract.type_mismatch", "file", name, "classified", docType, "extracted", doc.Type)
	}
	doc.Source = name
	return doc, nil
}

// degraded keeps the classified type with empty fields, or a text summary for "other".
func (p *Processor) degraded(name, text string, docType constants.DocType) Document {
	var doc Document
	if docType == constants.Other {
		doc, _ = DecodeDocument(llm.FallbackDocument(text))
	} else {
		doc = EmptyDocument(docType)
	}
	doc.Source = name
	return doc
}

func fatal(ctx context.Context, err error) bool {
	return errors.Is(err, llm.ErrUnauthorized) || ctx.Err() != nil
}
