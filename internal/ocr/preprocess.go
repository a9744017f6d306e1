package ocr

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
)

// PreprocessConfig holds the image enhancement knobs applied before OCR.
// Zero values are replaced by the defaults below. SharpenThreshold is a pointer because
// 0 (sharpen every pixel) is a valid setting; nil means the default.
type PreprocessConfig struct {
	Threshold        int     `yaml:"threshold"`        // 1..255, pixels below become black; default 180
	Contrast         float64 `yaml:"contrast"`         // multiplicative contrast factor; default 2.0
	SharpenRadius    float64 `yaml:"sharpenRadius"`    // unsharp mask blur radius; default 2
	SharpenPercent   int     `yaml:"sharpenPercent"`   // unsharp mask strength; default 150
	SharpenThreshold *int    `yaml:"sharpenThreshold"` // minimum difference to sharpen; default 3
}

const (
	DefaultThreshold        = 180
	DefaultContrast         = 2.0
	DefaultSharpenRadius    = 2
	DefaultSharpenPercent   = 150
	DefaultSharpenThreshold = 3
)

func (c PreprocessConfig) withDefaults() PreprocessConfig {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Threshold > math.MaxUint8 {
		c.Threshold = math.MaxUint8
	}
	if c.Contrast <= 0 {
		c.Contrast = DefaultContrast
	}
	if c.SharpenRadius <= 0 {
		c.SharpenRadius = DefaultSharpenRadius
	}
	if c.SharpenPercent <= 0 {
		c.SharpenPercent = DefaultSharpenPercent
	}
	if c.SharpenThreshold == nil || *c.SharpenThreshold < 0 {
		v := DefaultSharpenThreshold
		c.SharpenThreshold = &v
	}
	return c
}

// Preprocessor prepares a rendered page for recognition. It is stateless and safe for concurrent use.
type Preprocessor struct {
	cfg PreprocessConfig
}

func NewPreprocessor(cfg PreprocessConfig) *Preprocessor {
	return &Preprocessor{cfg: cfg.withDefaults()}
}

// Apply runs grayscale -> contrast -> threshold -> grayscale -> unsharp mask.
// Each stage expects the output distribution of the previous one, so the order is fixed.
func (p *Preprocessor) Apply(img image.Image) *image.Gray {
	g := toGray(img)
	g = enhanceContrast(g, p.cfg.Contrast)
	bw := binarize(g, uint8(p.cfg.Threshold))
	g = toGray(bw)
	return unsharpMask(g, p.cfg.SharpenRadius, p.cfg.SharpenPercent, *p.cfg.SharpenThreshold)
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	g := image.NewGray(b)
	draw.Draw(g, b, img, b.Min, draw.Src)
	return g
}

// enhanceContrast blends every pixel away from the image's mean gray level by factor.
func enhanceContrast(g *image.Gray, factor float64) *image.Gray {
	b := g.Bounds()
	out := image.NewGray(b)
	if b.Empty() {
		return out
	}

	var sum uint64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sum += uint64(g.GrayAt(x, y).Y)
		}
	}
	mean := math.Floor(float64(sum)/float64(b.Dx()*b.Dy()) + 0.5)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := mean + factor*(float64(g.GrayAt(x, y).Y)-mean)
			out.SetGray(x, y, color.Gray{Y: clamp8(v)})
		}
	}
	return out
}

var bilevel = color.Palette{color.Gray{Y: 0}, color.Gray{Y: 255}}

// binarize produces a 1-bit image: intensity < threshold is black, everything else white.
func binarize(g *image.Gray, threshold uint8) *image.Paletted {
	b := g.Bounds()
	out := image.NewPaletted(b, bilevel)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if g.GrayAt(x, y).Y >= threshold {
				out.SetColorIndex(x, y, 1)
			}
		}
	}
	return out
}

// unsharpMask adds percent of (original - blurred) wherever that difference reaches threshold.
func unsharpMask(g *image.Gray, radius float64, percent, threshold int) *image.Gray {
	b := g.Bounds()
	out := image.NewGray(b)
	if b.Empty() {
		return out
	}
	// imaging returns an NRGBA anchored at (0,0)
	blurred := imaging.Blur(g, radius)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := (y - b.Min.Y) * blurred.Stride
		for x := b.Min.X; x < b.Max.X; x++ {
			orig := int(g.GrayAt(x, y).Y)
			diff := orig - int(blurred.Pix[row+(x-b.Min.X)*4])
			if diff >= threshold || -diff >= threshold {
				out.SetGray(x, y, color.Gray{Y: clamp8(float64(orig + diff*percent/100))})
				continue
			}
			out.SetGray(x, y, color.Gray{Y: uint8(orig)})
		}
	}
	return out
}

func clamp8(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
