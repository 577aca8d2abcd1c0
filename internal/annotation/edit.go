package annotation

import (
	"fmt"
	"math"

	"github.com/hyperjump/yomu/internal/models"
	"go.uber.org/zap"
)

// Validate checks that a is well formed for a document with pageCount pages.
func Validate(a models.Annotation, pageCount int) error {
	if a.PageIndex < 0 || a.PageIndex >= pageCount {
		return fmt.Errorf("%w: annotation page %d out of range (%d pages)", models.ErrInvalidArgument, a.PageIndex, pageCount)
	}
	if a.Subtype == "" || a.Subtype == models.AnnotationUnknown {
		return fmt.Errorf("%w: annotation subtype is required", models.ErrInvalidArgument)
	}
	if SubtypeOf(string(a.Subtype)) == models.AnnotationUnknown {
		return fmt.Errorf("%w: unknown annotation subtype %q", models.ErrInvalidArgument, a.Subtype)
	}
	if err := validateRect(a.Rect); err != nil {
		return err
	}
	if err := validateGeometry(a.Geometry); err != nil {
		return err
	}
	if a.Subtype.IsMarkup() && a.Geometry.Type != models.GeometryQuadPoints {
		return fmt.Errorf("%w: %s annotations need quadpoints geometry", models.ErrInvalidArgument, a.Subtype)
	}
	if op := a.Appearance.Opacity; math.IsNaN(op) || op < 0 || op > 1 {
		return fmt.Errorf("%w: opacity %v outside [0, 1]", models.ErrInvalidArgument, op)
	}
	if bw := a.Appearance.BorderWidth; bw != nil && *bw < 0 {
		return fmt.Errorf("%w: negative border width", models.ErrInvalidArgument)
	}
	return nil
}

func validateRect(r models.PdfRect) error {
	for _, v := range []float64{r.Left, r.Top, r.Right, r.Bottom} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: annotation rect is not finite", models.ErrInvalidArgument)
		}
	}
	if r.Right < r.Left || r.Top < r.Bottom {
		return fmt.Errorf("%w: annotation rect is inverted", models.ErrInvalidArgument)
	}
	return nil
}

func validateGeometry(g models.Geometry) error {
	ok := false
	switch g.Type {
	case models.GeometryRect:
		ok = g.Rect != nil && validateRect(*g.Rect) == nil
	case models.GeometryQuadPoints:
		ok = len(g.Quads) > 0
	case models.GeometryInk:
		ok = len(g.Ink) > 0
		for _, path := range g.Ink {
			if len(path) == 0 {
				ok = false
			}
		}
	case models.GeometryLine:
		ok = g.Line != nil
	case models.GeometryPoints:
		ok = len(g.Points) > 0
	default:
		return fmt.Errorf("%w: unknown geometry type %q", models.ErrInvalidArgument, g.Type)
	}
	if !ok {
		return fmt.Errorf("%w: %s geometry is empty", models.ErrInvalidArgument, g.Type)
	}
	return nil
}

// Editor implements annotation add and remove. It validates requests and then returns
// success WITHOUT changing the document: annotations are never written back.
type Editor struct {
	logger *zap.Logger
}

// EditorOption configures an Editor.
type EditorOption func(*Editor)

// WithLogger sets the logger. Accepted edits are logged at debug level.
func WithLogger(l *zap.Logger) EditorOption {
	return func(e *Editor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEditor returns an Editor.
func NewEditor(opts ...EditorOption) *Editor {
	e := &Editor{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Add validates a and discards it.
func (e *Editor) Add(id models.DocumentID, a models.Annotation, pageCount int) error {
	if err := Validate(a, pageCount); err != nil {
		return err
	}
	e.logger.Debug("annotation add accepted without write-back",
		zap.String("document_id", id.String()),
		zap.Int("page", a.PageIndex),
		zap.String("subtype", string(a.Subtype)))
	return nil
}

// Remove validates the removal of annotationID from page and discards it.
func (e *Editor) Remove(id models.DocumentID, page int, annotationID string, pageCount int) error {
	if page < 0 || page >= pageCount {
		return fmt.Errorf("%w: page %d out of range (%d pages)", models.ErrInvalidArgument, page, pageCount)
	}
	_, idPage, _, err := ParseID(annotationID)
	if err != nil {
		return err
	}
	if idPage != page {
		return fmt.Errorf("%w: annotation %s is not on page %d", models.ErrInvalidArgument, annotationID, page)
	}
	e.logger.Debug("annotation remove accepted without write-back",
		zap.String("document_id", id.String()),
		zap.Int("page", page),
		zap.String("annotation_id", annotationID))
	return nil
}
