package backend

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/hyperjump/yomu/internal/models"
	"golang.org/x/image/draw"
)

// MockPage describes one page of a MockDocument.
type MockPage struct {
	Width       float64
	Height      float64
	Chars       []Char
	Annotations []RawAnnotation
	// PanicOnRender makes Rasterize panic, for exercising worker recovery.
	PanicOnRender bool
}

// MockSpec describes a document served by MockBackend.
type MockSpec struct {
	Pages     []MockPage
	Bookmarks []models.Bookmark
	// Fill is the background colour of rasterized pages; glyph boxes are drawn in black.
	Fill color.RGBA
	// Gate, when set, holds Load and every Rasterize until it is closed.
	Gate chan struct{}
}

// MockBackend is a deterministic in-memory backend for tests. Paths must be registered with
// Add before they can be loaded.
type MockBackend struct {
	mu     sync.Mutex
	specs  map[string]MockSpec
	loads  map[string]int
	live   map[string]int
	failed map[string]error
}

// NewMockBackend returns an empty mock backend.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		specs:  make(map[string]MockSpec),
		loads:  make(map[string]int),
		live:   make(map[string]int),
		failed: make(map[string]error),
	}
}

// Add registers a document under path.
func (b *MockBackend) Add(path string, spec MockSpec) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.specs[path] = spec
}

// FailLoad makes every Load of path return err.
func (b *MockBackend) FailLoad(path string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failed[path] = err
}

// Loads returns how many times path was loaded.
func (b *MockBackend) Loads(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loads[path]
}

// Live returns how many loaded documents for path have not been closed.
func (b *MockBackend) Live(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.live[path]
}

// Load implements Backend.
func (b *MockBackend) Load(path string) (Document, error) {
	b.mu.Lock()
	spec, ok := b.specs[path]
	b.mu.Unlock()
	if ok && spec.Gate != nil {
		<-spec.Gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err, ok := b.failed[path]; ok {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrLoad, path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s: not a registered document", models.ErrLoad, path)
	}
	b.loads[path]++
	b.live[path]++
	return &mockDocument{backend: b, path: path, spec: spec}, nil
}

type mockDocument struct {
	backend *MockBackend
	path    string
	spec    MockSpec
	closed  bool
}

func (d *mockDocument) page(index int) (MockPage, error) {
	if d.closed {
		return MockPage{}, fmt.Errorf("%w: document closed", models.ErrRender)
	}
	if index < 0 || index >= len(d.spec.Pages) {
		return MockPage{}, fmt.Errorf("%w: page %d out of range (%d pages)", models.ErrInvalidArgument, index, len(d.spec.Pages))
	}
	return d.spec.Pages[index], nil
}

func (d *mockDocument) PageCount() int { return len(d.spec.Pages) }

func (d *mockDocument) PageSize(index int) (float64, float64, error) {
	p, err := d.page(index)
	if err != nil {
		return 0, 0, err
	}
	return p.Width, p.Height, nil
}

func (d *mockDocument) Rasterize(index int, opts RasterOptions) (*image.RGBA, error) {
	p, err := d.page(index)
	if err != nil {
		return nil, err
	}
	if d.spec.Gate != nil {
		<-d.spec.Gate
	}
	if p.PanicOnRender {
		panic("mock rasterizer fault")
	}
	bounds := image.Rect(0, 0, opts.Width, opts.Height)
	if !opts.Clip.Empty() {
		bounds = opts.Clip
	}
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, image.NewUniform(d.spec.Fill), image.Point{}, draw.Src)
	sx := float64(opts.Width) / p.Width
	sy := float64(opts.Height) / p.Height
	for _, c := range p.Chars {
		if !c.HasBounds {
			continue
		}
		r := image.Rect(
			int(c.Bounds.Left*sx), int((p.Height-c.Bounds.Top)*sy),
			int(c.Bounds.Right*sx), int((p.Height-c.Bounds.Bottom)*sy),
		)
		draw.Draw(dst, r.Intersect(bounds), image.Black, image.Point{}, draw.Src)
	}
	return dst, nil
}

func (d *mockDocument) Chars(index int) ([]Char, error) {
	p, err := d.page(index)
	if err != nil {
		return nil, err
	}
	return append([]Char(nil), p.Chars...), nil
}

func (d *mockDocument) Bookmarks() ([]models.Bookmark, error) {
	if d.closed {
		return nil, fmt.Errorf("%w: document closed", models.ErrRender)
	}
	return append([]models.Bookmark{}, d.spec.Bookmarks...), nil
}

func (d *mockDocument) Annotations(index int) ([]RawAnnotation, error) {
	p, err := d.page(index)
	if err != nil {
		return nil, err
	}
	return append([]RawAnnotation(nil), p.Annotations...), nil
}

func (d *mockDocument) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.backend.mu.Lock()
	d.backend.live[d.path]--
	d.backend.mu.Unlock()
	return nil
}

// TextChars lays s out on one line starting at (x, baseline) with fixed advance and height.
// A space rune still occupies an advance. It is a helper for building MockPage.Chars.
func TextChars(s string, x, baseline, advance, height float64) []Char {
	var chars []Char
	for _, r := range s {
		chars = append(chars, Char{
			Rune:      r,
			Bounds:    Box{Left: x, Bottom: baseline, Right: x + advance, Top: baseline + height},
			HasBounds: true,
		})
		x += advance
	}
	return chars
}
