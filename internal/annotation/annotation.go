// Package annotation extracts text markup annotations from pages and validates annotation
// edits.
package annotation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hyperjump/yomu/internal/backend"
	"github.com/hyperjump/yomu/internal/models"
)

// Placeholder appearance for extracted annotations. The native colour is not read.
const (
	PlaceholderColor   = "#FF0000"
	PlaceholderOpacity = 150.0 / 255.0
)

var prefixes = map[models.AnnotationType]string{
	models.AnnotationHighlight: "hl",
	models.AnnotationUnderline: "ul",
	models.AnnotationSquiggly:  "sq",
	models.AnnotationStrikeout: "so",
}

var idPattern = regexp.MustCompile(`^([a-z]+)-(\d+)-(\d+)$`)

// SubtypeOf maps a PDF /Subtype name to an AnnotationType.
func SubtypeOf(name string) models.AnnotationType {
	switch strings.ToLower(name) {
	case "text":
		return models.AnnotationText
	case "link":
		return models.AnnotationLink
	case "freetext":
		return models.AnnotationFreeText
	case "line":
		return models.AnnotationLine
	case "square":
		return models.AnnotationSquare
	case "circle":
		return models.AnnotationCircle
	case "polygon":
		return models.AnnotationPolygon
	case "polyline":
		return models.AnnotationPolyline
	case "highlight":
		return models.AnnotationHighlight
	case "underline":
		return models.AnnotationUnderline
	case "squiggly":
		return models.AnnotationSquiggly
	case "strikeout":
		return models.AnnotationStrikeout
	case "stamp":
		return models.AnnotationStamp
	case "ink":
		return models.AnnotationInk
	}
	return models.AnnotationUnknown
}

// StableID returns the id of the index-th annotation on page. The index counts every
// annotation on the page, not only markup ones, so ids stay put when other kinds are present.
func StableID(subtype models.AnnotationType, page, index int) string {
	prefix, ok := prefixes[subtype]
	if !ok {
		prefix = "ann"
	}
	return fmt.Sprintf("%s-%d-%d", prefix, page, index)
}

// ParseID splits a stable id into its prefix, page index and in-page index.
func ParseID(id string) (prefix string, page, index int, err error) {
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return "", 0, 0, fmt.Errorf("%w: malformed annotation id %q", models.ErrInvalidArgument, id)
	}
	page, err = strconv.Atoi(m[2])
	if err != nil {
		return "", 0, 0, fmt.Errorf("%w: annotation id %q: %v", models.ErrInvalidArgument, id, err)
	}
	index, err = strconv.Atoi(m[3])
	if err != nil {
		return "", 0, 0, fmt.Errorf("%w: annotation id %q: %v", models.ErrInvalidArgument, id, err)
	}
	return m[1], page, index, nil
}

// Extract converts the raw annotations of one page. Only markup subtypes with at least one
// complete quadrilateral are returned.
func Extract(page int, raws []backend.RawAnnotation) []models.Annotation {
	out := []models.Annotation{}
	for i, raw := range raws {
		subtype := SubtypeOf(raw.Subtype)
		if !subtype.IsMarkup() {
			continue
		}
		quads := quadsOf(raw.QuadPoints)
		if len(quads) == 0 {
			continue
		}
		out = append(out, models.Annotation{
			ID:        StableID(subtype, page, i),
			PageIndex: page,
			Subtype:   subtype,
			Rect: models.PdfRect{
				Left:   raw.Rect.Left,
				Top:    raw.Rect.Top,
				Right:  raw.Rect.Right,
				Bottom: raw.Rect.Bottom,
			},
			Geometry: models.Geometry{Type: models.GeometryQuadPoints, Quads: quads},
			Appearance: models.Appearance{
				Color:   PlaceholderColor,
				Opacity: PlaceholderOpacity,
			},
			Metadata: models.AnnotationMetadata{
				Author:       raw.Author,
				Contents:     raw.Contents,
				CreationDate: raw.CreationDate,
				ModifiedDate: raw.ModifiedDate,
			},
			Flags: models.AnnotationFlags{
				Hidden:    raw.Flags&backend.FlagHidden != 0,
				Locked:    raw.Flags&backend.FlagLocked != 0,
				Printable: raw.Flags&backend.FlagPrint != 0,
				ReadOnly:  raw.Flags&backend.FlagReadOnly != 0,
			},
		})
	}
	return out
}

// quadsOf groups a /QuadPoints array into quadrilaterals. A trailing partial group is dropped.
func quadsOf(v []float64) []models.Quad {
	var quads []models.Quad
	for i := 0; i+8 <= len(v); i += 8 {
		quads = append(quads, models.Quad{
			P1: models.Point{X: v[i], Y: v[i+1]},
			P2: models.Point{X: v[i+2], Y: v[i+3]},
			P3: models.Point{X: v[i+4], Y: v[i+5]},
			P4: models.Point{X: v[i+6], Y: v[i+7]},
		})
	}
	return quads
}
