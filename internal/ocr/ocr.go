package ocr

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

type Config struct {
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	TessdataDir   string
	PSM           int // e.g., 6 is good for uniform block of text
	OEM           int // 1 = LSTM; leave 0 to use default

	DPI          int // rasterization DPI for the OCR fallback, default 200
	MinTextChars int // an embedded text layer must be longer than this, default 20

	Preprocess PreprocessConfig
}

const (
	DefaultDPI          = 200
	DefaultMinTextChars = 20
)

const (
	MethodText  = "pdf-text"
	MethodOCR   = "pdf-ocr"
	MethodMixed = "pdf-mixed"
	MethodNone  = "none"
)

type Result struct {
	Text        string
	Pages       int
	PageMethods []string // per page: "pdf-text" | "pdf-ocr" | "none"
	Method      string   // "pdf-text" | "pdf-ocr" | "pdf-mixed"
	Language    string
	Duration    time.Duration
	Warnings    []string
}

// Extractor turns PDF bytes into text, choosing per page between the embedded
// text layer and OCR over a rendered image. It holds no per-call state and is
// safe for concurrent use.
type Extractor struct {
	cfg        Config
	runner     Runner
	parser     PageParser
	renderer   PageRenderer
	recognizer TextRecognizer
	pre        *Preprocessor
	logger     *slog.Logger
}

type Option func(*Extractor)

// WithRunner replaces the process runner used by the default renderer and recognizer.
func WithRunner(r Runner) Option {
	return func(e *Extractor) {
		if r != nil {
			e.runner = r
		}
	}
}

func WithParser(p PageParser) Option {
	return func(e *Extractor) {
		if p != nil {
			e.parser = p
		}
	}
}

func WithRenderer(r PageRenderer) Option {
	return func(e *Extractor) {
		if r != nil {
			e.renderer = r
		}
	}
}

func WithRecognizer(r TextRecognizer) Option {
	return func(e *Extractor) {
		if r != nil {
			e.recognizer = r
		}
	}
}

func NewExtractor(cfg Config, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = DefaultDPI
	}
	if cfg.MinTextChars <= 0 {
		cfg.MinTextChars = DefaultMinTextChars
	}
	cfg.Preprocess = cfg.Preprocess.withDefaults()

	e := &Extractor{cfg: cfg, logger: logger, pre: NewPreprocessor(cfg.Preprocess)}
	for _, o := range opts {
		o(e)
	}
	if e.runner == nil {
		e.runner = execRunner{logger: logger}
	}
	if e.parser == nil {
		e.parser = pdfTextParser{}
	}
	if e.renderer == nil {
		e.renderer = popplerRenderer{bin: cfg.Pdftoppm, dpi: cfg.DPI, runner: e.runner}
	}
	if e.recognizer == nil {
		e.recognizer = tesseractRecognizer{
			bin:         cfg.Tesseract,
			lang:        cfg.TesseractLang,
			tessdataDir: cfg.TessdataDir,
			psm:         cfg.PSM,
			oem:         cfg.OEM,
			runner:      e.runner,
		}
	}
	return e
}

// Extract returns the text of every page joined by newlines.
// It fails with *ExtractionError when the bytes are not a PDF or no page yields any text.
func (e *Extractor) Extract(ctx context.Context, doc []byte) (string, error) {
	res, err := e.ExtractResult(ctx, doc)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// ExtractResult is Extract with per-page diagnostics.
func (e *Extractor) ExtractResult(ctx context.Context, doc []byte) (Result, error) {
	start := time.Now()
	e.logger.Debug("starting pdf extraction", "bytes", len(doc), "min_text_chars", e.cfg.MinTextChars, "dpi", e.cfg.DPI)

	layers, err := e.parser.ParsePages(doc)
	if err != nil {
		e.logger.Error("ocr.parse_failed", "bytes", len(doc), "error", err)
		return Result{}, malformed(err)
	}

	res := Result{
		Pages:       len(layers),
		PageMethods: make([]string, len(layers)),
		Language:    e.cfg.TesseractLang,
	}
	texts := make([]string, len(layers))
	for i, layer := range layers {
		if layer.Err != nil {
			e.warn(&res, &PageError{Page: i, Stage: StageTextLayer, Err: layer.Err})
		}
		txt := strings.TrimSpace(layer.Text)
		if e.sufficient(txt) {
			texts[i] = txt
			res.PageMethods[i] = MethodText
			continue
		}
		texts[i], res.PageMethods[i] = e.ocrPage(ctx, doc, i, &res)
	}
	res.Duration = time.Since(start)

	// a caller-imposed deadline is not the document's fault
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	full := strings.TrimSpace(strings.Join(texts, "\n"))
	if full == "" {
		e.logger.Warn("ocr.no_text", "pages", res.Pages, "warnings", len(res.Warnings))
		return res, noContent()
	}
	res.Text = full
	res.Method = summarize(res.PageMethods)

	e.logger.Info("ocr.extract.ok",
		"pages", res.Pages,
		"method", res.Method,
		"chars", len(res.Text),
		"warnings", len(res.Warnings),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// sufficient reports whether an embedded text layer is trusted over OCR.
// Short layers are usually stray watermarks or page numbers.
func (e *Extractor) sufficient(trimmed string) bool {
	return trimmed != "" && utf8.RuneCountInString(trimmed) > e.cfg.MinTextChars
}

func (e *Extractor) ocrPage(ctx context.Context, doc []byte, page int, res *Result) (string, string) {
	img, err := e.renderer.RenderPage(ctx, doc, page)
	if err == nil && img == nil {
		err = errors.New("renderer returned no image")
	}
	if err != nil {
		e.warn(res, &PageError{Page: page, Stage: StageRender, Err: err})
		return "", MethodNone
	}

	txt, err := e.recognizer.Recognize(ctx, e.pre.Apply(img))
	if err != nil {
		e.warn(res, &PageError{Page: page, Stage: StageRecognize, Err: err})
		return "", MethodNone
	}
	return strings.TrimSpace(txt), MethodOCR
}

func (e *Extractor) warn(res *Result, perr *PageError) {
	e.logger.Warn("ocr.page.degraded", "page", perr.Page, "stage", string(perr.Stage), "error", perr.Err)
	res.Warnings = append(res.Warnings, perr.Error())
}

func summarize(methods []string) string {
	var text, ocr int
	for _, m := range methods {
		switch m {
		case MethodText:
			text++
		case MethodOCR:
			ocr++
		}
	}
	switch {
	case ocr == 0:
		return MethodText
	case text == 0:
		return MethodOCR
	default:
		return MethodMixed
	}
}
