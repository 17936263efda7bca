// Package watermark composites a logo onto generated images.
//
// The logo is scaled to a fraction of the base width (capped at MaxWidth),
// fitted into a transparent box that keeps its aspect ratio, and blended into
// the top-right corner at a fixed padding and opacity. Apply is a pure
// function of its inputs: identical inputs yield byte-identical output.
package watermark

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"math"
	"os"

	"github.com/disintegration/imaging"
)

// ErrMissingAsset is returned when the logo file does not exist.
var ErrMissingAsset = errors.New("watermark: logo asset missing")

// Spec holds the sizing and blending parameters.
type Spec struct {
	WidthFraction float64 // logo width as a fraction of base width
	MaxWidth      int     // absolute cap in pixels
	Padding       int     // distance from the top and right edges
	Opacity       float64 // 0..1
}

// DefaultSpec returns the production watermark parameters.
func DefaultSpec() Spec {
	return Spec{WidthFraction: 0.4, MaxWidth: 100, Padding: 10, Opacity: 0.7}
}

// Layout returns the rectangle the logo occupies on a baseW-wide image.
// The x coordinate clamps to 0 on very narrow bases.
func Layout(baseW, logoW, logoH int, s Spec) image.Rectangle {
	tw := int(math.Round(float64(baseW) * s.WidthFraction))
	if s.MaxWidth > 0 && tw > s.MaxWidth {
		tw = s.MaxWidth
	}
	if tw < 1 {
		tw = 1
	}
	th := 1
	if logoW > 0 {
		th = int(math.Round(float64(tw) * float64(logoH) / float64(logoW)))
	}
	if th < 1 {
		th = 1
	}
	x := baseW - tw - s.Padding
	if x < 0 {
		x = 0
	}
	return image.Rect(x, s.Padding, x+tw, s.Padding+th)
}

// LoadLogo decodes the logo at path.
func LoadLogo(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingAsset, path)
		}
		return nil, fmt.Errorf("watermark: open logo: %w", err)
	}
	defer f.Close()

	img, err := imaging.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("watermark: decode logo: %w", err)
	}
	return img, nil
}

// Apply overlays logo onto base and re-encodes in the base's format.
func Apply(base []byte, logo image.Image, s Spec) ([]byte, error) {
	if logo == nil {
		return nil, ErrMissingAsset
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(base))
	if err != nil {
		return nil, fmt.Errorf("watermark: detect base format: %w", err)
	}
	src, err := imaging.Decode(bytes.NewReader(base))
	if err != nil {
		return nil, fmt.Errorf("watermark: decode base: %w", err)
	}

	lb := logo.Bounds()
	if lb.Empty() {
		return nil, errors.New("watermark: logo has no pixels")
	}
	rect := Layout(src.Bounds().Dx(), lb.Dx(), lb.Dy(), s)

	box := imaging.New(rect.Dx(), rect.Dy(), color.NRGBA{})
	box = imaging.PasteCenter(box, fitInto(logo, rect.Dx(), rect.Dy()))

	out := imaging.Overlay(src, box, rect.Min, s.Opacity)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, outputFormat(format), imaging.JPEGQuality(95)); err != nil {
		return nil, fmt.Errorf("watermark: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// fitInto scales img up or down so it fits inside w x h while keeping its
// aspect ratio.
func fitInto(img image.Image, w, h int) *image.NRGBA {
	b := img.Bounds()
	scale := math.Min(float64(w)/float64(b.Dx()), float64(h)/float64(b.Dy()))
	fw := max(1, int(math.Round(float64(b.Dx())*scale)))
	fh := max(1, int(math.Round(float64(b.Dy())*scale)))
	return imaging.Resize(img, min(fw, w), min(fh, h), imaging.Lanczos)
}

// outputFormat maps an image.DecodeConfig format name to an encoder.
// Formats without an encoder fall back to PNG.
func outputFormat(name string) imaging.Format {
	switch name {
	case "jpeg":
		return imaging.JPEG
	case "gif":
		return imaging.GIF
	default:
		return imaging.PNG
	}
}

// ContentType returns the MIME type for the encoded bytes.
func ContentType(img []byte) string {
	_, format, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return "application/octet-stream"
	}
	switch outputFormat(format) {
	case imaging.JPEG:
		return "image/jpeg"
	case imaging.GIF:
		return "image/gif"
	default:
		return "image/png"
	}
}
