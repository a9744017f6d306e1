package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strconv"
)

// PageRenderer rasterizes a single page on demand.
type PageRenderer interface {
	RenderPage(ctx context.Context, doc []byte, page int) (image.Image, error)
}

// popplerRenderer shells out to pdftoppm. The document is fed on stdin and the PNG is read
// from stdout, so nothing touches the disk.
type popplerRenderer struct {
	bin    string
	dpi    int
	runner Runner
}

func (r popplerRenderer) RenderPage(ctx context.Context, doc []byte, page int) (image.Image, error) {
	// pdftoppm pages are 1-based
	n := strconv.Itoa(page + 1)
	// pdftoppm -r 200 -png -f N -l N -singlefile -
	out, errb, err := r.runner.Run(ctx, doc, r.bin,
		"-r", strconv.Itoa(r.dpi), "-png", "-f", n, "-l", n, "-singlefile", "-")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 512))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no image")
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode rendered page: %w", err)
	}
	return img, nil
}
