package constants

import "strings"

const PDF = "PDF"

// PDFMagic is the header every PDF starts with (possibly after a few junk bytes).
const PDFMagic = "%PDF-"

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsPDFExt reports whether ext (with or without the dot) names a PDF.
func IsPDFExt(ext string) bool {
	return NormalizeExt(ext) == "pdf"
}
