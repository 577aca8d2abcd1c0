// Package models defines the core data structures exchanged between the manager, the workers
// and the command layer.
package models

import "time"

// DocumentID identifies one open document session. It is minted by Open and never reused.
type DocumentID string

// String returns the textual form of the id.
func (id DocumentID) String() string {
	return string(id)
}

// Info describes a loaded document. Width and Height are the size of the first page in points.
type Info struct {
	PageCount int     `json:"page_count"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
}

// Bookmark is one node of a document outline.
type Bookmark struct {
	Title     string     `json:"title"`
	PageIndex *int       `json:"page_index"`
	Children  []Bookmark `json:"children"`
}

// Bookmarks wraps the outline roots.
type Bookmarks struct {
	Items []Bookmark `json:"items"`
}

// Session is an open document as seen by the manager.
type Session struct {
	ID       DocumentID `json:"id"`
	Path     string     `json:"path"`
	OpenedAt time.Time  `json:"opened_at"`
}

// LibraryEntry is a persisted record of a document that has been opened at least once.
// ID is derived from the absolute path, so it survives across sessions.
type LibraryEntry struct {
	ID           string    `json:"id" db:"id"`
	Path         string    `json:"path" db:"path"`
	Title        string    `json:"title" db:"title"`
	PageCount    int       `json:"page_count" db:"page_count"`
	PreviewPath  string    `json:"preview_path,omitempty" db:"preview_path"`
	LastOpenedAt time.Time `json:"last_opened_at" db:"last_opened_at"`
	ModifiedAt   time.Time `json:"modified_at" db:"modified_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
