// Package encoder turns raw rasters into encoded image bytes.
package encoder

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/hyperjump/yomu/internal/models"
)

// Format is an output image format.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
)

// ParseFormat maps a config value to a Format. Empty means PNG.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png":
		return PNG, nil
	case "jpeg", "jpg":
		return JPEG, nil
	}
	return "", fmt.Errorf("%w: unsupported image format %q", models.ErrInvalidArgument, s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == JPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// Encoder encodes images. It holds no per-call state and is safe for concurrent use.
type Encoder struct {
	format      Format
	jpegQuality int
}

// New returns an encoder for format. jpegQuality is ignored for PNG and defaults to 85.
func New(format Format, jpegQuality int) *Encoder {
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = 85
	}
	if format == "" {
		format = PNG
	}
	return &Encoder{format: format, jpegQuality: jpegQuality}
}

// Format returns the encoder's output format.
func (e *Encoder) Format() Format {
	return e.format
}

// Encode encodes img. Images whose bounds do not start at the origin (tiles) are re-based
// first, so the output is always width x height of the input bounds.
func (e *Encoder) Encode(img image.Image) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", models.ErrEncode)
	}
	if img.Bounds().Min != (image.Point{}) {
		img = imaging.Clone(img)
	}
	var buf bytes.Buffer
	var err error
	switch e.format {
	case JPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(e.jpegQuality))
	default:
		err = imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestSpeed))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrEncode, e.format, err)
	}
	return buf.Bytes(), nil
}

// Thumbnail downscales img to width pixels wide with Lanczos resampling, keeping the aspect
// ratio.
func Thumbnail(img image.Image, width int) image.Image {
	if width <= 0 || img.Bounds().Dx() <= width {
		return img
	}
	return imaging.Resize(img, width, 0, imaging.Lanczos)
}
