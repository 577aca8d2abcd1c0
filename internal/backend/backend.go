// Package backend defines the rendering capability consumed by the workers and provides the
// PDF implementation built on ledongthuc/pdf and golang.org/x/image.
package backend

import (
	"image"

	"github.com/hyperjump/yomu/internal/models"
)

// Backend loads documents. Load may be called from any goroutine; the Document it returns is
// not safe for concurrent use and must stay with the goroutine that loaded it.
type Backend interface {
	Load(path string) (Document, error)
}

// Document is a loaded native document. Page indices are zero-based.
type Document interface {
	PageCount() int
	// PageSize returns the page size in points.
	PageSize(page int) (width, height float64, err error)
	// Rasterize draws the page scaled to opts.Width x opts.Height pixels. The returned image has
	// opts.Clip as its bounds when the clip is non-empty, so only that region is drawn.
	Rasterize(page int, opts RasterOptions) (*image.RGBA, error)
	// Chars returns the page's characters in content order.
	Chars(page int) ([]Char, error)
	Bookmarks() ([]models.Bookmark, error)
	Annotations(page int) ([]RawAnnotation, error)
	Close() error
}

// RasterOptions controls rasterization.
type RasterOptions struct {
	Width  int
	Height int
	Clip   image.Rectangle
}

// Box is a rectangle in PDF page space: origin bottom-left, y upward.
type Box struct {
	Left   float64
	Bottom float64
	Right  float64
	Top    float64
}

// Width returns the horizontal extent of b.
func (b Box) Width() float64 { return b.Right - b.Left }

// Height returns the vertical extent of b.
func (b Box) Height() float64 { return b.Top - b.Bottom }

// Char is one glyph of a page. Rune is 0 when no Unicode value could be resolved.
// HasBounds is false when the glyph's bounding box could not be computed.
type Char struct {
	Rune      rune
	Bounds    Box
	HasBounds bool
}

// Annotation flag bits (PDF 32000-1, 12.5.3).
const (
	FlagHidden   = 1 << 1
	FlagPrint    = 1 << 2
	FlagReadOnly = 1 << 6
	FlagLocked   = 1 << 7
)

// RawAnnotation is an annotation dictionary as read from the page, before any filtering.
type RawAnnotation struct {
	Subtype      string
	Rect         Box
	QuadPoints   []float64
	Author       string
	Contents     string
	CreationDate string
	ModifiedDate string
	Flags        int
}
