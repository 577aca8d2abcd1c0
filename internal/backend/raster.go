package backend

import (
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/ledongthuc/pdf"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Glyphs smaller than this many pixels are not drawn.
const minGlyphPixels = 1.0

var (
	strokeColor = image.NewUniform(color.Gray{Y: 0xB0})

	regularOnce sync.Once
	regularFont *opentype.Font
	regularErr  error
)

// goRegular parses the embedded Go Regular font once. The parsed font is immutable; faces
// derived from it are not and belong to a single document.
func goRegular() (*opentype.Font, error) {
	regularOnce.Do(func() {
		regularFont, regularErr = opentype.Parse(goregular.TTF)
	})
	return regularFont, regularErr
}

// faceCache holds sized faces for one document, keyed by half-pixel size.
type faceCache struct {
	faces map[int]font.Face
}

func newFaceCache() *faceCache {
	return &faceCache{faces: make(map[int]font.Face)}
}

func (c *faceCache) face(size float64) font.Face {
	if size < minGlyphPixels || math.IsNaN(size) || math.IsInf(size, 0) {
		return nil
	}
	key := int(math.Round(size * 2))
	if f, ok := c.faces[key]; ok {
		return f
	}
	base, err := goRegular()
	if err != nil {
		return nil
	}
	f, err := opentype.NewFace(base, &opentype.FaceOptions{
		Size:    float64(key) / 2,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil
	}
	c.faces[key] = f
	return f
}

// paintPage rasterizes page content onto a white canvas. The canvas bounds are the clip
// rectangle (or the full page), and everything outside it is discarded by the draw calls.
func paintPage(content pdf.Content, box Box, opts RasterOptions, faces *faceCache) *image.RGBA {
	bounds := image.Rect(0, 0, opts.Width, opts.Height)
	if !opts.Clip.Empty() {
		bounds = opts.Clip
	}
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, image.White, image.Point{}, draw.Src)

	sx := float64(opts.Width) / box.Width()
	sy := float64(opts.Height) / box.Height()
	toPixel := func(x, y float64) (float64, float64) {
		return (x - box.Left) * sx, (box.Top - y) * sy
	}

	for _, r := range content.Rect {
		x0, y0 := toPixel(r.Min.X, r.Max.Y)
		x1, y1 := toPixel(r.Max.X, r.Min.Y)
		strokeRect(dst, image.Rect(int(x0), int(y0), int(math.Ceil(x1)), int(math.Ceil(y1))))
	}

	for _, t := range content.Text {
		if t.S == "" {
			continue
		}
		size := t.FontSize * sy
		face := faces.face(size)
		if face == nil {
			continue
		}
		x, y := toPixel(t.X, t.Y)
		extent := math.Max(t.W*sx, size)
		glyphBox := image.Rect(int(x)-1, int(y-size)-1, int(x+extent)+1, int(y+size/3)+1)
		if !glyphBox.Overlaps(bounds) {
			continue
		}
		d := font.Drawer{
			Dst:  dst,
			Src:  image.Black,
			Face: face,
			Dot:  fixed.Point26_6{X: fixed.Int26_6(x * 64), Y: fixed.Int26_6(y * 64)},
		}
		d.DrawString(t.S)
	}
	return dst
}

func strokeRect(dst *image.RGBA, r image.Rectangle) {
	r = r.Canon()
	if r.Empty() {
		return
	}
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1),
		image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y),
		image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), strokeColor, image.Point{}, draw.Src)
	}
}

func (c *faceCache) close() {
	for k, f := range c.faces {
		_ = f.Close()
		delete(c.faces, k)
	}
}
