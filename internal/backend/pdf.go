package backend

import (
	"fmt"
	"image"
	"os"
	"unicode/utf8"

	"github.com/hyperjump/yomu/internal/models"
	"github.com/ledongthuc/pdf"
)

// US Letter, used when a page has no usable MediaBox.
const (
	defaultPageWidth  = 612.0
	defaultPageHeight = 792.0
)

// PDFBackend loads PDF files with ledongthuc/pdf.
type PDFBackend struct{}

// NewPDFBackend returns a PDF backend.
func NewPDFBackend() *PDFBackend {
	return &PDFBackend{}
}

// Load opens the PDF at path. The file stays open until the document is closed.
func (b *PDFBackend) Load(path string) (doc Document, err error) {
	defer recoverAs(models.ErrLoad, "load "+path, &err)

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrLoad, path, err)
	}
	return &pdfDocument{
		file:   f,
		reader: r,
		faces:  newFaceCache(),
	}, nil
}

type pdfDocument struct {
	file   *os.File
	reader *pdf.Reader
	faces  *faceCache
	// page dictionary fingerprint -> zero-based index, built on first outline lookup
	pageKeys map[string]int
}

// recoverAs turns a panic from the PDF reader into an error wrapping kind.
func recoverAs(kind error, op string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %s: pdf reader panic: %v", kind, op, r)
	}
}

func (d *pdfDocument) PageCount() int {
	return d.reader.NumPage()
}

func (d *pdfDocument) page(index int) (pdf.Page, error) {
	if index < 0 || index >= d.reader.NumPage() {
		return pdf.Page{}, fmt.Errorf("%w: page %d out of range (%d pages)", models.ErrInvalidArgument, index, d.reader.NumPage())
	}
	p := d.reader.Page(index + 1)
	if p.V.IsNull() {
		return pdf.Page{}, fmt.Errorf("%w: page %d has no dictionary", models.ErrRender, index)
	}
	return p, nil
}

// mediaBox returns the page box, following Parent links for inherited values.
func mediaBox(p pdf.Page) Box {
	v := p.V
	for depth := 0; depth < 32 && !v.IsNull(); depth++ {
		mb := v.Key("MediaBox")
		if mb.Kind() == pdf.Array && mb.Len() == 4 {
			b := Box{
				Left:   mb.Index(0).Float64(),
				Bottom: mb.Index(1).Float64(),
				Right:  mb.Index(2).Float64(),
				Top:    mb.Index(3).Float64(),
			}
			if b.Left > b.Right {
				b.Left, b.Right = b.Right, b.Left
			}
			if b.Bottom > b.Top {
				b.Bottom, b.Top = b.Top, b.Bottom
			}
			if b.Width() > 0 && b.Height() > 0 {
				return b
			}
			break
		}
		v = v.Key("Parent")
	}
	return Box{Right: defaultPageWidth, Top: defaultPageHeight}
}

func (d *pdfDocument) PageSize(index int) (w, h float64, err error) {
	defer recoverAs(models.ErrRender, "page size", &err)
	p, err := d.page(index)
	if err != nil {
		return 0, 0, err
	}
	box := mediaBox(p)
	return box.Width(), box.Height(), nil
}

func (d *pdfDocument) Chars(index int) (chars []Char, err error) {
	defer recoverAs(models.ErrRender, "extract text", &err)
	p, err := d.page(index)
	if err != nil {
		return nil, err
	}
	box := mediaBox(p)
	for _, t := range p.Content().Text {
		chars = appendTextChars(chars, t, box)
	}
	return chars, nil
}

// appendTextChars splits one text run into characters. Runs that decode to several runes
// (ligatures) share the run's advance width evenly.
func appendTextChars(chars []Char, t pdf.Text, box Box) []Char {
	n := utf8.RuneCountInString(t.S)
	if n == 0 {
		return append(chars, Char{})
	}
	hasBounds := t.W > 0 || t.FontSize > 0
	step := t.W / float64(n)
	i := 0
	for _, r := range t.S {
		if r == utf8.RuneError {
			r = 0
		}
		left := t.X - box.Left + step*float64(i)
		bottom := t.Y - box.Bottom
		chars = append(chars, Char{
			Rune: r,
			Bounds: Box{
				Left:   left,
				Bottom: bottom,
				Right:  left + step,
				Top:    bottom + t.FontSize,
			},
			HasBounds: hasBounds,
		})
		i++
	}
	return chars
}

func (d *pdfDocument) Rasterize(index int, opts RasterOptions) (img *image.RGBA, err error) {
	defer recoverAs(models.ErrRender, "rasterize", &err)
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("%w: raster size %dx%d", models.ErrInvalidArgument, opts.Width, opts.Height)
	}
	p, err := d.page(index)
	if err != nil {
		return nil, err
	}
	box := mediaBox(p)
	return paintPage(p.Content(), box, opts, d.faces), nil
}

func (d *pdfDocument) Annotations(index int) (out []RawAnnotation, err error) {
	defer recoverAs(models.ErrRender, "annotations", &err)
	p, err := d.page(index)
	if err != nil {
		return nil, err
	}
	box := mediaBox(p)
	annots := p.V.Key("Annots")
	for i := 0; i < annots.Len(); i++ {
		a := annots.Index(i)
		if a.Kind() != pdf.Dict {
			continue
		}
		raw := RawAnnotation{
			Subtype:      a.Key("Subtype").Name(),
			Author:       a.Key("T").Text(),
			Contents:     a.Key("Contents").Text(),
			CreationDate: a.Key("CreationDate").Text(),
			ModifiedDate: a.Key("M").Text(),
			Flags:        int(a.Key("F").Int64()),
		}
		if rect := a.Key("Rect"); rect.Len() == 4 {
			raw.Rect = Box{
				Left:   rect.Index(0).Float64(),
				Bottom: rect.Index(1).Float64(),
				Right:  rect.Index(2).Float64(),
				Top:    rect.Index(3).Float64(),
			}
		}
		qp := a.Key("QuadPoints")
		for j := 0; j < qp.Len(); j++ {
			raw.QuadPoints = append(raw.QuadPoints, qp.Index(j).Float64())
		}
		out = append(out, shiftToOrigin(raw, box))
	}
	return out, nil
}

// shiftToOrigin moves annotation geometry into the page space used by Chars, where the
// MediaBox's lower-left corner is (0, 0).
func shiftToOrigin(raw RawAnnotation, box Box) RawAnnotation {
	if raw.Rect != (Box{}) {
		raw.Rect.Left -= box.Left
		raw.Rect.Right -= box.Left
		raw.Rect.Bottom -= box.Bottom
		raw.Rect.Top -= box.Bottom
	}
	for j := range raw.QuadPoints {
		if j%2 == 0 {
			raw.QuadPoints[j] -= box.Left
		} else {
			raw.QuadPoints[j] -= box.Bottom
		}
	}
	return raw
}

func (d *pdfDocument) Bookmarks() (items []models.Bookmark, err error) {
	defer recoverAs(models.ErrRender, "bookmarks", &err)
	root := d.reader.Trailer().Key("Root")
	first := root.Key("Outlines").Key("First")
	budget := maxOutlineNodes
	return d.outlineLevel(root, first, 0, &budget), nil
}

func (d *pdfDocument) Close() error {
	if d.file == nil {
		return nil
	}
	d.faces.close()
	err := d.file.Close()
	d.file = nil
	return err
}
