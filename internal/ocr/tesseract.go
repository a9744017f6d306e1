package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strconv"
)

// TextRecognizer is the OCR primitive. Implementations keep no state between calls.
type TextRecognizer interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

type tesseractRecognizer struct {
	bin         string
	lang        string
	tessdataDir string
	psm         int
	oem         int
	runner      Runner
}

func (t tesseractRecognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode page image: %w", err)
	}

	// tesseract stdin stdout -l <lang>
	args := []string{"stdin", "stdout", "-l", t.lang}
	if t.psm > 0 {
		args = append(args, "--psm", strconv.Itoa(t.psm))
	}
	if t.oem > 0 {
		args = append(args, "--oem", strconv.Itoa(t.oem))
	}
	if t.tessdataDir != "" {
		args = append(args, "--tessdata-dir", t.tessdataDir)
	}

	out, errb, err := t.runner.Run(ctx, buf.Bytes(), t.bin, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 512))
	}
	return string(out), nil
}
