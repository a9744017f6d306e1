package ocr

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// MaxPages bounds how many pages one document may resolve to. Every page without a usable
// text layer costs a pdftoppm and a tesseract run.
const MaxPages = 2000

// maxTreeDepth bounds /Kids nesting; real page trees are a handful of levels deep.
const maxTreeDepth = 32

var errTooManyPages = fmt.Errorf("document has more than %d pages", MaxPages)

// PageParser exposes the embedded text layer of every page.
type PageParser interface {
	// ParsePages returns one entry per page, in order. A page without a text layer yields "".
	// The error is non-nil only when the document itself cannot be parsed.
	ParsePages(doc []byte) ([]TextLayer, error)
}

// TextLayer is the embedded text of one page. Err is set when the page's content stream
// could not be decoded; the page then falls back to OCR.
type TextLayer struct {
	Text string
	Err  error
}

type pdfTextParser struct{}

func (pdfTextParser) ParsePages(doc []byte) (pages []TextLayer, err error) {
	// the reader panics on some truncated xref tables
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		return nil, err
	}
	root := r.Trailer().Key("Root").Key("Pages")
	if root.Kind() != pdf.Dict {
		return nil, errors.New("document has no page tree")
	}

	// /Count is only a hint; the pages are the leaves that actually resolve under /Kids.
	var leaves []pdf.Value
	if err := collectPages(root, 0, &leaves); err != nil {
		return nil, err
	}
	pages = make([]TextLayer, len(leaves))
	for i, v := range leaves {
		txt, perr := pdf.Page{V: v}.GetPlainText(nil)
		pages[i] = TextLayer{Text: txt, Err: perr}
	}
	return pages, nil
}

// collectPages appends the /Page leaves under node in document order. Null and unknown
// kids are skipped.
func collectPages(node pdf.Value, depth int, out *[]pdf.Value) error {
	if depth > maxTreeDepth {
		return errors.New("page tree too deep")
	}
	typ := node.Key("Type").Name()
	kids := node.Key("Kids")
	switch {
	case typ == "Page", typ == "" && kids.Kind() == pdf.Null && node.Key("Contents").Kind() != pdf.Null:
		if len(*out) >= MaxPages {
			return errTooManyPages
		}
		*out = append(*out, node)
		return nil
	case kids.Kind() == pdf.Array:
		for i := 0; i < kids.Len(); i++ {
			kid := kids.Index(i)
			if kid.Kind() != pdf.Dict {
				continue
			}
			if err := collectPages(kid, depth+1, out); err != nil {
				return err
			}
		}
	}
	return nil
}
