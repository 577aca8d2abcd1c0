package models

// TextItem is a reconstructed word or line fragment. X and Y are the top-left corner in
// page space with y measured downward from the top of the page.
type TextItem struct {
	Text   string  `json:"text"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PageText is the text layer of a single page.
type PageText struct {
	Items  []TextItem `json:"items"`
	Width  float64    `json:"width"`
	Height float64    `json:"height"`
}

// Rect is an axis-aligned rectangle in top-left page coordinates.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// SearchHit is one match of a query. Start and End are character offsets into the page's
// linear text; Rects holds one rectangle per matched character.
type SearchHit struct {
	Page  int    `json:"page"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Rects []Rect `json:"rects"`
}
