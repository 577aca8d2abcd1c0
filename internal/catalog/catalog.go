// Package catalog keeps a full-text index of the page text of library documents, so a
// document can be found by what it says rather than by its file name.
package catalog

import (
	"context"
)

// Document identifies one library document being indexed.
type Document struct {
	LibraryID string
	Path      string
	Title     string
}

// SearchOptions optional parameters for catalog search. Nil means use defaults.
type SearchOptions struct {
	// TitleBoost multiplies the score of matches in the title. Values <= 1 mean no boost.
	TitleBoost float64
	// FuzzyEnabled enables typo-tolerant matching.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance for fuzzy matching (1 or 2). Default 2.
	Fuzziness int
}

// Hit is one matching page.
type Hit struct {
	LibraryID string   `json:"library_id"`
	Path      string   `json:"path"`
	Title     string   `json:"title"`
	Page      int      `json:"page"`
	Score     float64  `json:"score"`
	Fragments []string `json:"fragments,omitempty"`
}

// Catalog defines page text indexing and search.
type Catalog interface {
	// IndexDocument replaces everything indexed for doc with pages, one entry per non-empty page.
	IndexDocument(ctx context.Context, doc Document, pages []string) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]Hit, error)
	// DeleteDocument removes every page of the document.
	DeleteDocument(ctx context.Context, libraryID string) error
	// DocCount returns the number of indexed pages.
	DocCount() (uint64, error)
	Close() error
}
