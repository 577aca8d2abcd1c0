// Package library persists the set of documents the user has opened: where they live, what
// they are called, how many pages they have and where their preview image is.
package library

import (
	"context"
	"errors"

	"github.com/hyperjump/yomu/internal/models"
)

// ErrEntryNotFound is returned when no entry matches the requested key.
var ErrEntryNotFound = errors.New("library entry not found")

// Store defines library persistence operations.
type Store interface {
	// Upsert inserts entry or updates the existing entry with the same ID. CreatedAt of an
	// existing entry is kept.
	Upsert(ctx context.Context, entry *models.LibraryEntry) error
	Get(ctx context.Context, id string) (*models.LibraryEntry, error)
	GetByPath(ctx context.Context, path string) (*models.LibraryEntry, error)
	// List returns entries, most recently opened first.
	List(ctx context.Context, offset, limit int) ([]*models.LibraryEntry, error)
	SetPreviewPath(ctx context.Context, id, previewPath string) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)

	Close() error
}
