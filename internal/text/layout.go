// Package text reconstructs text fragments from character geometry and searches page text.
package text

import (
	"math"

	"github.com/hyperjump/yomu/internal/backend"
	"github.com/hyperjump/yomu/internal/models"
)

const (
	// DefaultLineEpsilon is the largest top-edge difference, in points, of two characters on
	// the same line.
	DefaultLineEpsilon = 0.1
	// DefaultMergeTolerance is how far, in points, a character's left edge may sit from the
	// fragment's right edge and still be merged into it.
	DefaultMergeTolerance = 2.0
)

// LayoutOptions tunes fragment merging. Zero values select the defaults.
type LayoutOptions struct {
	LineEpsilon    float64
	MergeTolerance float64
}

func (o LayoutOptions) withDefaults() LayoutOptions {
	if o.LineEpsilon <= 0 {
		o.LineEpsilon = DefaultLineEpsilon
	}
	if o.MergeTolerance <= 0 {
		o.MergeTolerance = DefaultMergeTolerance
	}
	return o
}

// flip converts a bottom-left box to a top-left rectangle on a page of the given height.
// Characters without bounds get a zero-sized box at the page origin.
func flip(c backend.Char, pageHeight float64) models.Rect {
	b := c.Bounds
	if !c.HasBounds {
		b = backend.Box{}
	}
	return models.Rect{
		X: b.Left,
		Y: pageHeight - b.Top,
		W: b.Width(),
		H: b.Height(),
	}
}

// BuildPageText groups characters into fragments. Characters are visited in content order;
// a character joins the current fragment when it is on the same line and starts within the
// merge tolerance of the fragment's right edge. Characters without a Unicode value are
// skipped and do not break a fragment.
func BuildPageText(chars []backend.Char, width, height float64, opts LayoutOptions) models.PageText {
	opts = opts.withDefaults()
	items := []models.TextItem{}
	var current *models.TextItem

	for _, c := range chars {
		if c.Rune == 0 {
			continue
		}
		r := flip(c, height)
		if current != nil {
			right := current.X + current.Width
			sameLine := math.Abs(r.Y-current.Y) < opts.LineEpsilon
			near := r.X >= right-opts.MergeTolerance && r.X <= right+opts.MergeTolerance
			if sameLine && near {
				current.Text += string(c.Rune)
				current.Width = math.Max(right, r.X+r.W) - current.X
				continue
			}
			items = append(items, *current)
		}
		current = &models.TextItem{
			Text:   string(c.Rune),
			X:      r.X,
			Y:      r.Y,
			Width:  r.W,
			Height: r.H,
		}
	}
	if current != nil {
		items = append(items, *current)
	}
	return models.PageText{Items: items, Width: width, Height: height}
}
