package models

// AnnotationType is the PDF annotation subtype, lowercased.
type AnnotationType string

const (
	AnnotationUnknown   AnnotationType = "unknown"
	AnnotationText      AnnotationType = "text"
	AnnotationLink      AnnotationType = "link"
	AnnotationFreeText  AnnotationType = "freetext"
	AnnotationLine      AnnotationType = "line"
	AnnotationSquare    AnnotationType = "square"
	AnnotationCircle    AnnotationType = "circle"
	AnnotationPolygon   AnnotationType = "polygon"
	AnnotationPolyline  AnnotationType = "polyline"
	AnnotationHighlight AnnotationType = "highlight"
	AnnotationUnderline AnnotationType = "underline"
	AnnotationSquiggly  AnnotationType = "squiggly"
	AnnotationStrikeout AnnotationType = "strikeout"
	AnnotationStamp     AnnotationType = "stamp"
	AnnotationInk       AnnotationType = "ink"
)

// IsMarkup reports whether t is one of the text markup subtypes.
func (t AnnotationType) IsMarkup() bool {
	switch t {
	case AnnotationHighlight, AnnotationUnderline, AnnotationSquiggly, AnnotationStrikeout:
		return true
	}
	return false
}

// GeometryType selects which field of Geometry is populated.
type GeometryType string

const (
	GeometryRect       GeometryType = "rect"
	GeometryQuadPoints GeometryType = "quadpoints"
	GeometryInk        GeometryType = "ink"
	GeometryLine       GeometryType = "line"
	GeometryPoints     GeometryType = "points"
)

// Point is a position in PDF page space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Quad is one quadrilateral of a text markup annotation.
type Quad struct {
	P1 Point `json:"p1"`
	P2 Point `json:"p2"`
	P3 Point `json:"p3"`
	P4 Point `json:"p4"`
}

// Line is the geometry of a line annotation.
type Line struct {
	Start Point `json:"start"`
	End   Point `json:"end"`
}

// PdfRect is a rectangle in PDF page space (origin bottom-left).
type PdfRect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Geometry is the subtype-dependent shape of an annotation. Exactly one of the shape fields
// is set, matching Type.
type Geometry struct {
	Type   GeometryType `json:"type"`
	Rect   *PdfRect     `json:"rect,omitempty"`
	Quads  []Quad       `json:"quads,omitempty"`
	Ink    [][]Point    `json:"ink,omitempty"`
	Line   *Line        `json:"line,omitempty"`
	Points []Point      `json:"points,omitempty"`
}

// Appearance holds visual styling.
type Appearance struct {
	Color       string   `json:"color"`
	Opacity     float64  `json:"opacity"`
	BorderWidth *float64 `json:"border_width,omitempty"`
}

// AnnotationMetadata holds authoring information.
type AnnotationMetadata struct {
	Author       string `json:"author,omitempty"`
	Contents     string `json:"contents,omitempty"`
	CreationDate string `json:"creation_date,omitempty"`
	ModifiedDate string `json:"modified_date,omitempty"`
}

// AnnotationFlags mirrors the behaviour bits of the annotation dictionary.
type AnnotationFlags struct {
	Hidden    bool `json:"hidden"`
	Locked    bool `json:"locked"`
	Printable bool `json:"printable"`
	ReadOnly  bool `json:"read_only"`
}

// Annotation is a page annotation as exposed to clients.
type Annotation struct {
	ID         string             `json:"id"`
	PageIndex  int                `json:"page_index"`
	Subtype    AnnotationType     `json:"subtype"`
	Rect       PdfRect            `json:"rect"`
	Geometry   Geometry           `json:"geometry"`
	Appearance Appearance         `json:"appearance"`
	Metadata   AnnotationMetadata `json:"metadata"`
	Flags      AnnotationFlags    `json:"flags"`
}
