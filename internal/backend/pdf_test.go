package backend

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/yomu/internal/models"
)

// writeSamplePDF writes a one-page PDF with the text "Hi" in Helvetica 24pt at (72, 300), an
// outline entry pointing at the page and one highlight annotation. The MediaBox (300x400) is
// inherited from the page tree root.
func writeSamplePDF(t *testing.T) string {
	t.Helper()
	return writeSamplePDFAt(t, 0, 0)
}

// writeSamplePDFAt writes the same page with its MediaBox and all content moved by (dx, dy).
func writeSamplePDFAt(t *testing.T, dx, dy float64) string {
	t.Helper()
	widths := make([]string, 105-72+1)
	for i := range widths {
		widths[i] = "0"
	}
	widths[0] = "722"             // H
	widths[len(widths)-1] = "222" // i
	content := fmt.Sprintf("BT /F1 24 Tf %g %g Td (Hi) Tj ET", 72+dx, 300+dy)

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R /Outlines 6 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [%g %g %g %g] >>", dx, dy, 300+dx, 400+dy),
		"<< /Type /Page /Parent 2 0 R /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R /Annots [8 0 R] >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding /FirstChar 72 /LastChar 105 /Widths [" + strings.Join(widths, " ") + "] >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Outlines /First 7 0 R /Last 7 0 R /Count 1 >>",
		"<< /Title (Intro) /Parent 6 0 R /Dest [3 0 R /XYZ 0 400 0] >>",
		fmt.Sprintf("<< /Type /Annot /Subtype /Highlight /Rect [%g %g %g %g] /QuadPoints [%g %g %g %g %g %g %g %g] /T (alice) /Contents (note) /F 4 >>",
			70+dx, 295+dy, 120+dx, 330+dy,
			70+dx, 330+dy, 120+dx, 330+dy, 70+dx, 295+dy, 120+dx, 295+dy),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	path := filepath.Join(t.TempDir(), "sample.pdf")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func loadSample(t *testing.T) Document {
	t.Helper()
	doc, err := NewPDFBackend().Load(writeSamplePDF(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { _ = doc.Close() })
	return doc
}

func TestPDFBackend_PageCountAndSize(t *testing.T) {
	doc := loadSample(t)
	if doc.PageCount() != 1 {
		t.Fatalf("PageCount = %d, want 1", doc.PageCount())
	}
	w, h, err := doc.PageSize(0)
	if err != nil {
		t.Fatal(err)
	}
	if w != 300 || h != 400 {
		t.Errorf("PageSize = %vx%v, want 300x400", w, h)
	}
	if _, _, err := doc.PageSize(1); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("PageSize(1) err = %v, want ErrInvalidArgument", err)
	}
}

func TestPDFBackend_Chars(t *testing.T) {
	doc := loadSample(t)
	chars, err := doc.Chars(0)
	if err != nil {
		t.Fatal(err)
	}
	var runes []rune
	for _, c := range chars {
		if c.Rune != 0 {
			runes = append(runes, c.Rune)
		}
	}
	if string(runes) != "Hi" {
		t.Fatalf("runes = %q, want %q", string(runes), "Hi")
	}
	h := chars[0].Bounds
	if math.Abs(h.Left-72) > 0.01 || math.Abs(h.Bottom-300) > 0.01 {
		t.Errorf("H bounds = %+v", h)
	}
	if math.Abs(h.Width()-24*0.722) > 0.01 {
		t.Errorf("H width = %v, want %v", h.Width(), 24*0.722)
	}
	if math.Abs(chars[1].Bounds.Left-h.Right) > 0.01 {
		t.Errorf("i should start where H ends: %v vs %v", chars[1].Bounds.Left, h.Right)
	}
}

func TestPDFBackend_Bookmarks(t *testing.T) {
	doc := loadSample(t)
	items, err := doc.Bookmarks()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Title != "Intro" {
		t.Fatalf("bookmarks = %+v", items)
	}
	if items[0].PageIndex == nil || *items[0].PageIndex != 0 {
		t.Errorf("page index = %v, want 0", items[0].PageIndex)
	}
}

func TestPDFBackend_Annotations(t *testing.T) {
	doc := loadSample(t)
	annots, err := doc.Annotations(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(annots) != 1 {
		t.Fatalf("got %d annotations", len(annots))
	}
	a := annots[0]
	if a.Subtype != "Highlight" || a.Author != "alice" || a.Contents != "note" {
		t.Errorf("annotation = %+v", a)
	}
	if len(a.QuadPoints) != 8 || a.Rect.Right != 120 || a.Flags != FlagPrint {
		t.Errorf("geometry = %+v", a)
	}
}

func TestPDFBackend_OffsetMediaBox(t *testing.T) {
	doc, err := NewPDFBackend().Load(writeSamplePDFAt(t, 50, 100))
	if err != nil {
		t.Fatal(err)
	}
	defer doc.Close()

	w, h, err := doc.PageSize(0)
	if err != nil || w != 300 || h != 400 {
		t.Fatalf("PageSize = %vx%v, %v", w, h, err)
	}
	chars, err := doc.Chars(0)
	if err != nil || len(chars) == 0 {
		t.Fatalf("chars = %+v, %v", chars, err)
	}
	if b := chars[0].Bounds; math.Abs(b.Left-72) > 0.01 || math.Abs(b.Bottom-300) > 0.01 {
		t.Errorf("H bounds = %+v, want origin-relative (72, 300)", b)
	}
	annots, err := doc.Annotations(0)
	if err != nil || len(annots) != 1 {
		t.Fatalf("annotations = %+v, %v", annots, err)
	}
	a := annots[0]
	if a.Rect != (Box{Left: 70, Bottom: 295, Right: 120, Top: 330}) {
		t.Errorf("rect = %+v", a.Rect)
	}
	want := []float64{70, 330, 120, 330, 70, 295, 120, 295}
	for i, v := range want {
		if math.Abs(a.QuadPoints[i]-v) > 0.01 {
			t.Errorf("quad[%d] = %v, want %v", i, a.QuadPoints[i], v)
		}
	}
}

func TestPDFBackend_Rasterize(t *testing.T) {
	doc := loadSample(t)
	img, err := doc.Rasterize(0, RasterOptions{Width: 150, Height: 200})
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds() != image.Rect(0, 0, 150, 200) {
		t.Fatalf("bounds = %v", img.Bounds())
	}
	inked := false
	for y := 0; y < 200 && !inked; y++ {
		for x := 0; x < 150; x++ {
			if r, _, _, _ := img.At(x, y).RGBA(); r < 0x8000 {
				inked = true
				break
			}
		}
	}
	if !inked {
		t.Error("expected glyph pixels on the page")
	}

	tile, err := doc.Rasterize(0, RasterOptions{Width: 150, Height: 200, Clip: image.Rect(100, 150, 140, 190)})
	if err != nil {
		t.Fatal(err)
	}
	if tile.Bounds() != image.Rect(100, 150, 140, 190) {
		t.Errorf("tile bounds = %v", tile.Bounds())
	}
}

func TestPDFBackend_LoadRejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("plain text"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := NewPDFBackend().Load(path)
	if !errors.Is(err, models.ErrLoad) {
		t.Errorf("err = %v, want ErrLoad", err)
	}
}
