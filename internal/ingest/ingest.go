package ingest

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/joseph-ayodele/claims-processor/constants"
	"github.com/joseph-ayodele/claims-processor/internal/common"
)

// magicWindow is how far into a file the PDF header may start.
const magicWindow = 1024

// Upload is one document of a claim, already read into memory.
type Upload struct {
	Name string
	Data []byte
}

// ClaimDir is a directory whose PDFs form one claim.
type ClaimDir struct {
	Name  string   // directory base name
	Path  string   // absolute directory path
	Files []string // absolute PDF paths, sorted
}

// DirStats summarizes a directory scan.
type DirStats struct {
	Scanned uint32
	Matched uint32
	Claims  uint32
	Failed  uint32
}

// UnsupportedFileError rejects a non-PDF upload before any processing.
type UnsupportedFileError struct {
	Name string
}

func (e *UnsupportedFileError) Error() string {
	return fmt.Sprintf("Only PDF files are supported. Got: %s", e.Name)
}

func (e *UnsupportedFileError) Unwrap() error { return common.ErrInvalidInput }

// CheckPDF accepts a file only if its name ends in .pdf and a %PDF- header appears in the first KiB.
// A nil data slice skips the content sniff.
func CheckPDF(name string, data []byte) error {
	if !constants.IsPDFExt(filepath.Ext(name)) {
		return &UnsupportedFileError{Name: name}
	}
	if data == nil {
		return nil
	}
	head := data
	if len(head) > magicWindow {
		head = head[:magicWindow]
	}
	if !bytes.Contains(head, []byte(constants.PDFMagic)) {
		return &UnsupportedFileError{Name: name}
	}
	return nil
}
