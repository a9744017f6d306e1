package ocr

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF writes a minimal PDF with a correct xref table. Object 1 is the catalog,
// object 2 the page tree, object 3 the font; objs follow from object 4.
func buildPDF(pagesDict string, objs ...string) []byte {
	all := append([]string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		pagesDict,
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}, objs...)

	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(all))
	for i, o := range all {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", len(all)+1)
	b.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(all)+1, xref)
	return b.Bytes()
}

func textStream(text string) string {
	content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
	return fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content)
}

const pageObj = "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents 5 0 R >>"

func onePagePDF(declaredCount int, text string) []byte {
	return buildPDF(fmt.Sprintf("<< /Type /Pages /Kids [4 0 R] /Count %d >>", declaredCount), pageObj, textStream(text))
}

func TestPdfTextParser_ReadsTextLayer(t *testing.T) {
	pages, err := pdfTextParser{}.ParsePages(onePagePDF(1, richPage1))
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.NoError(t, pages[0].Err)
	assert.Equal(t, richPage1, strings.TrimSpace(pages[0].Text))
}

func TestExtract_DefaultParserKeepsTextLayer(t *testing.T) {
	rend := &fakeRenderer{}
	rec := &fakeRecognizer{}
	e := NewExtractor(Config{}, quietLogger(), WithRenderer(rend), WithRecognizer(rec))

	res, err := e.ExtractResult(context.Background(), onePagePDF(1, richPage1))
	require.NoError(t, err)
	assert.Equal(t, richPage1, res.Text)
	assert.Equal(t, 1, res.Pages)
	assert.Equal(t, MethodText, res.Method)
	assert.Zero(t, rend.calls.Load())
	assert.Zero(t, rec.calls.Load())
}

func TestExtract_DeclaredCountBeyondPageTreeIsIgnored(t *testing.T) {
	rend := &fakeRenderer{}
	e := NewExtractor(Config{}, quietLogger(), WithRenderer(rend), WithRecognizer(&fakeRecognizer{}))

	res, err := e.ExtractResult(context.Background(), onePagePDF(2000, richPage1))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pages)
	assert.Equal(t, []string{MethodText}, res.PageMethods)
	assert.Zero(t, rend.calls.Load())
}

func TestExtract_TooManyPagesIsMalformed(t *testing.T) {
	// one page object listed MaxPages+1 times
	kids := strings.TrimSpace(strings.Repeat("4 0 R ", MaxPages+1))
	doc := buildPDF(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, MaxPages+1),
		pageObj, textStream(richPage1))

	rend := &fakeRenderer{}
	e := NewExtractor(Config{}, quietLogger(), WithRenderer(rend), WithRecognizer(&fakeRecognizer{}))
	_, err := e.Extract(context.Background(), doc)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedDocument)
	assert.ErrorIs(t, err, errTooManyPages)
	assert.Zero(t, rend.calls.Load())
}
