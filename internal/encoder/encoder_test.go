package encoder

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/hyperjump/yomu/internal/models"
)

func solid(r image.Rectangle, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(r)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestEncode_PNG(t *testing.T) {
	enc := New(PNG, 0)
	data, err := enc.Encode(solid(image.Rect(0, 0, 8, 4), color.RGBA{R: 255, A: 255}))
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 4 {
		t.Errorf("bounds = %v", img.Bounds())
	}
	again, _ := enc.Encode(solid(image.Rect(0, 0, 8, 4), color.RGBA{R: 255, A: 255}))
	if !bytes.Equal(data, again) {
		t.Error("PNG encoding should be deterministic")
	}
}

func TestEncode_OffsetTileIsRebased(t *testing.T) {
	data, err := New(PNG, 0).Encode(solid(image.Rect(100, 200, 110, 205), color.RGBA{G: 255, A: 255}))
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds() != image.Rect(0, 0, 10, 5) {
		t.Errorf("bounds = %v", img.Bounds())
	}
}

func TestEncode_JPEG(t *testing.T) {
	data, err := New(JPEG, 70).Encode(solid(image.Rect(0, 0, 16, 16), color.RGBA{B: 255, A: 255}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Fatal(err)
	}
}

func TestEncode_Empty(t *testing.T) {
	_, err := New(PNG, 0).Encode(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	if !errors.Is(err, models.ErrEncode) {
		t.Errorf("err = %v, want ErrEncode", err)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", PNG, false},
		{"PNG", PNG, false},
		{"jpg", JPEG, false},
		{"webp", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestThumbnail(t *testing.T) {
	img := solid(image.Rect(0, 0, 200, 300), color.RGBA{A: 255})
	th := Thumbnail(img, 100)
	if th.Bounds().Dx() != 100 || th.Bounds().Dy() != 150 {
		t.Errorf("thumbnail bounds = %v", th.Bounds())
	}
	if Thumbnail(img, 400) != image.Image(img) {
		t.Error("thumbnail should not upscale")
	}
}
