package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeParser struct {
	pages []TextLayer
	err   error
}

func (f fakeParser) ParsePages([]byte) ([]TextLayer, error) { return f.pages, f.err }

// fakeRenderer encodes the page index in the image width so the recognizer can tell pages apart.
type fakeRenderer struct {
	fail  map[int]bool
	calls atomic.Int32
}

func (f *fakeRenderer) RenderPage(_ context.Context, _ []byte, page int) (image.Image, error) {
	f.calls.Add(1)
	if f.fail[page] {
		return nil, errors.New("render boom")
	}
	img := image.NewGray(image.Rect(0, 0, 10+page, 10))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img, nil
}

type fakeRecognizer struct {
	byPage map[int]string
	fail   map[int]bool
	calls  atomic.Int32
}

func (f *fakeRecognizer) Recognize(_ context.Context, img image.Image) (string, error) {
	f.calls.Add(1)
	page := img.Bounds().Dx() - 10
	if f.fail[page] {
		return "", errors.New("tesseract exploded")
	}
	return f.byPage[page], nil
}

func newTestExtractor(p PageParser, r PageRenderer, rec TextRecognizer) *Extractor {
	return NewExtractor(Config{}, quietLogger(), WithParser(p), WithRenderer(r), WithRecognizer(rec))
}

const richPage1 = "CITY HOSPITAL  Invoice #4411  Total due: 1,250.00"
const richPage2 = "Patient: Jane Roe  Admission 2024-04-01 Discharge 2024-04-10"

func TestExtract_RichTextLayerSkipsOCR(t *testing.T) {
	rend := &fakeRenderer{}
	rec := &fakeRecognizer{}
	e := newTestExtractor(fakeParser{pages: []TextLayer{
		{Text: "  " + richPage1 + "\n"},
		{Text: richPage2},
	}}, rend, rec)

	got, err := e.Extract(context.Background(), []byte("%PDF-"))
	require.NoError(t, err)
	assert.Equal(t, richPage1+"\n"+richPage2, got)
	assert.Zero(t, rend.calls.Load())
	assert.Zero(t, rec.calls.Load())
}

func TestExtract_ScannedDocumentIsOCRDerived(t *testing.T) {
	rec := &fakeRecognizer{byPage: map[int]string{0: " first scan \n", 1: "second scan", 2: "third scan"}}
	e := newTestExtractor(fakeParser{pages: make([]TextLayer, 3)}, &fakeRenderer{}, rec)

	res, err := e.ExtractResult(context.Background(), []byte("%PDF-"))
	require.NoError(t, err)
	assert.Equal(t, "first scan\nsecond scan\nthird scan", res.Text)
	assert.Len(t, strings.Split(res.Text, "\n"), res.Pages)
	assert.Equal(t, MethodOCR, res.Method)
	assert.Equal(t, []string{MethodOCR, MethodOCR, MethodOCR}, res.PageMethods)
	assert.EqualValues(t, 3, rec.calls.Load())
}

func TestExtract_MixedModeKeepsPageOrder(t *testing.T) {
	rec := &fakeRecognizer{byPage: map[int]string{1: "   "}}
	e := newTestExtractor(fakeParser{pages: []TextLayer{{Text: richPage1}, {}}}, &fakeRenderer{}, rec)

	res, err := e.ExtractResult(context.Background(), []byte("%PDF-"))
	require.NoError(t, err)
	// the blank second page contributes an empty fragment, which the final trim removes
	assert.Equal(t, richPage1, res.Text)
	assert.Equal(t, []string{MethodText, MethodOCR}, res.PageMethods)
	assert.Equal(t, MethodMixed, res.Method)
}

func TestExtract_MixedModeSecondPageText(t *testing.T) {
	rec := &fakeRecognizer{byPage: map[int]string{1: "stamped: PAID"}}
	e := newTestExtractor(fakeParser{pages: []TextLayer{{Text: richPage1}, {Text: "p.2"}}}, &fakeRenderer{}, rec)

	got, err := e.Extract(context.Background(), []byte("%PDF-"))
	require.NoError(t, err)
	parts := strings.Split(got, "\n")
	require.Len(t, parts, 2)
	assert.Equal(t, richPage1, parts[0])
	assert.Equal(t, "stamped: PAID", parts[1])
}

func TestExtract_MinTextCharsBoundary(t *testing.T) {
	tests := []struct {
		name    string
		layer   string
		wantOCR bool
	}{
		{name: "exactly 20 falls to OCR", layer: strings.Repeat("a", 20), wantOCR: true},
		{name: "21 keeps text layer", layer: strings.Repeat("a", 21), wantOCR: false},
		{name: "surrounding whitespace not counted", layer: "  " + strings.Repeat("b", 20) + "\n\n", wantOCR: true},
		{name: "runes not bytes", layer: strings.Repeat("é", 20), wantOCR: true},
		{name: "empty", layer: "", wantOCR: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecognizer{byPage: map[int]string{0: "from ocr"}}
			e := newTestExtractor(fakeParser{pages: []TextLayer{{Text: tt.layer}}}, &fakeRenderer{}, rec)

			got, err := e.Extract(context.Background(), []byte("%PDF-"))
			require.NoError(t, err)
			if tt.wantOCR {
				assert.Equal(t, "from ocr", got)
				assert.EqualValues(t, 1, rec.calls.Load())
			} else {
				assert.Equal(t, strings.TrimSpace(tt.layer), got)
				assert.Zero(t, rec.calls.Load())
			}
		})
	}
}

func TestExtract_ConfigurableMinTextChars(t *testing.T) {
	rec := &fakeRecognizer{byPage: map[int]string{0: "from ocr"}}
	e := NewExtractor(Config{MinTextChars: 5}, quietLogger(),
		WithParser(fakeParser{pages: []TextLayer{{Text: "123456"}}}),
		WithRenderer(&fakeRenderer{}), WithRecognizer(rec))

	got, err := e.Extract(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "123456", got)
}

func TestExtract_BlankScansYieldNoExtractableContent(t *testing.T) {
	e := newTestExtractor(fakeParser{pages: make([]TextLayer, 4)}, &fakeRenderer{}, &fakeRecognizer{})

	_, err := e.Extract(context.Background(), []byte("%PDF-"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoExtractableContent)
	assert.NotErrorIs(t, err, ErrMalformedDocument)

	var xerr *ExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, KindNoExtractableContent, xerr.Kind)
	assert.Contains(t, err.Error(), "no text extracted, even with OCR fallback")
}

func TestExtract_ZeroPagesIsNoContent(t *testing.T) {
	e := newTestExtractor(fakeParser{}, &fakeRenderer{}, &fakeRecognizer{})
	_, err := e.Extract(context.Background(), []byte("%PDF-"))
	assert.ErrorIs(t, err, ErrNoExtractableContent)
}

func TestExtract_MalformedDocument(t *testing.T) {
	cause := errors.New("xref table not found")
	e := newTestExtractor(fakeParser{err: cause}, &fakeRenderer{}, &fakeRecognizer{})

	got, err := e.Extract(context.Background(), []byte("garbage"))
	assert.Empty(t, got)
	assert.ErrorIs(t, err, ErrMalformedDocument)
	assert.ErrorIs(t, err, cause)
}

func TestExtract_RealParserRejectsTruncatedHeader(t *testing.T) {
	e := NewExtractor(Config{}, quietLogger(), WithRenderer(&fakeRenderer{}), WithRecognizer(&fakeRecognizer{}))

	for _, in := range [][]byte{nil, []byte("%PD"), []byte("this is not a pdf at all")} {
		_, err := e.Extract(context.Background(), in)
		assert.ErrorIs(t, err, ErrMalformedDocument, "input %q", in)
	}
}

func TestExtract_RenderFailureDegradesOnlyThatPage(t *testing.T) {
	rend := &fakeRenderer{fail: map[int]bool{0: true}}
	rec := &fakeRecognizer{byPage: map[int]string{1: "page two ocr"}}
	e := newTestExtractor(fakeParser{pages: make([]TextLayer, 2)}, rend, rec)

	res, err := e.ExtractResult(context.Background(), []byte("%PDF-"))
	require.NoError(t, err)
	assert.Equal(t, "page two ocr", res.Text)
	assert.Equal(t, []string{MethodNone, MethodOCR}, res.PageMethods)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "page 0: render")
}

func TestExtract_RecognitionFailureDegradesOnlyThatPage(t *testing.T) {
	rec := &fakeRecognizer{
		byPage: map[int]string{0: "first", 2: "third"},
		fail:   map[int]bool{1: true},
	}
	e := newTestExtractor(fakeParser{pages: make([]TextLayer, 3)}, &fakeRenderer{}, rec)

	res, err := e.ExtractResult(context.Background(), []byte("%PDF-"))
	require.NoError(t, err)
	assert.Equal(t, "first\n\nthird", res.Text)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "page 1: recognize")
}

func TestExtract_TextLayerDecodeErrorFallsBackToOCR(t *testing.T) {
	rec := &fakeRecognizer{byPage: map[int]string{0: "ocr rescue"}}
	e := newTestExtractor(fakeParser{pages: []TextLayer{{Err: errors.New("bad font")}}}, &fakeRenderer{}, rec)

	res, err := e.ExtractResult(context.Background(), []byte("%PDF-"))
	require.NoError(t, err)
	assert.Equal(t, "ocr rescue", res.Text)
	assert.Len(t, res.Warnings, 1)
}

func TestExtract_Idempotent(t *testing.T) {
	rec := &fakeRecognizer{byPage: map[int]string{1: "scan"}}
	e := newTestExtractor(fakeParser{pages: []TextLayer{{Text: richPage1}, {}}}, &fakeRenderer{}, rec)

	a, err := e.Extract(context.Background(), []byte("%PDF-"))
	require.NoError(t, err)
	b, err := e.Extract(context.Background(), []byte("%PDF-"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

// docParser looks pages up by document content, standing in for a real parser.
type docParser map[string][]TextLayer

func (d docParser) ParsePages(doc []byte) ([]TextLayer, error) {
	pages, ok := d[string(doc)]
	if !ok {
		return nil, errors.New("unknown doc")
	}
	return pages, nil
}

func TestExtract_ConcurrentCallsDoNotInterfere(t *testing.T) {
	parser := docParser{
		"doc-a": {{Text: "Document A page one has plenty of text"}},
		"doc-b": {{Text: "Document B page one has plenty of text"}, {Text: "Document B page two has plenty of text"}},
	}
	e := newTestExtractor(parser, &fakeRenderer{}, &fakeRecognizer{})

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 50; i++ {
		for _, doc := range []string{"doc-a", "doc-b"} {
			wg.Add(1)
			go func(doc string) {
				defer wg.Done()
				got, err := e.Extract(context.Background(), []byte(doc))
				if err != nil {
					errs <- err
					return
				}
				want := strings.ToUpper(doc[4:])
				if !strings.HasPrefix(got, "Document "+want) || strings.Contains(got, "Document "+other(want)) {
					errs <- fmt.Errorf("%s: unexpected text %q", doc, got)
				}
			}(doc)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func other(s string) string {
	if s == "A" {
		return "B"
	}
	return "A"
}

func TestExtract_CancelledContextSurfacesAsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := newTestExtractor(fakeParser{pages: make([]TextLayer, 1)}, &fakeRenderer{}, &fakeRecognizer{})

	_, err := e.Extract(ctx, []byte("%PDF-"))
	assert.ErrorIs(t, err, context.Canceled)
}

// scriptedRunner answers pdftoppm with a PNG and tesseract with fixed text.
type scriptedRunner struct {
	mu    sync.Mutex
	calls [][]string
	stdin [][]byte
}

func (r *scriptedRunner) Run(_ context.Context, stdin []byte, name string, args ...string) ([]byte, []byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string{name}, args...))
	r.stdin = append(r.stdin, stdin)
	r.mu.Unlock()

	switch name {
	case "pdftoppm":
		img := image.NewRGBA(image.Rect(0, 0, 8, 8))
		for i := range img.Pix {
			img.Pix[i] = 255
		}
		img.Set(3, 3, color.Black)
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, nil, err
		}
		return buf.Bytes(), nil, nil
	case "tesseract":
		return []byte("Discharge Summary\n"), nil, nil
	}
	return nil, []byte("unknown command"), errors.New("exit status 127")
}

func TestExtract_DefaultRendererAndRecognizerCommandLines(t *testing.T) {
	run := &scriptedRunner{}
	doc := []byte("%PDF-1.7 scanned")
	e := NewExtractor(Config{DPI: 150, PSM: 6, TessdataDir: "/opt/tessdata"}, quietLogger(),
		WithRunner(run),
		WithParser(fakeParser{pages: []TextLayer{{Text: richPage1}, {}}}))

	got, err := e.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, richPage1+"\nDischarge Summary", got)

	require.Len(t, run.calls, 2)
	assert.Equal(t, []string{"pdftoppm", "-r", "150", "-png", "-f", "2", "-l", "2", "-singlefile", "-"}, run.calls[0])
	assert.Equal(t, doc, run.stdin[0])
	assert.Equal(t, []string{"tesseract", "stdin", "stdout", "-l", "eng", "--psm", "6", "--tessdata-dir", "/opt/tessdata"}, run.calls[1])

	decoded, err := png.Decode(bytes.NewReader(run.stdin[1]))
	require.NoError(t, err)
	_, isGray := decoded.(*image.Gray)
	assert.True(t, isGray, "tesseract should receive the preprocessed grayscale page")
}

func TestExtract_MissingBinariesDegradeToNoContent(t *testing.T) {
	e := NewExtractor(Config{Pdftoppm: "no-such-pdftoppm"}, quietLogger(),
		WithRunner(&scriptedRunner{}),
		WithParser(fakeParser{pages: make([]TextLayer, 2)}))

	res, err := e.ExtractResult(context.Background(), []byte("%PDF-"))
	assert.ErrorIs(t, err, ErrNoExtractableContent)
	assert.Len(t, res.Warnings, 2)
}
