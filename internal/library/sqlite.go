package library

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/yomu/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS library (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL DEFAULT '',
		page_count INTEGER NOT NULL DEFAULT 0,
		preview_path TEXT NOT NULL DEFAULT '',
		last_opened_at TIMESTAMP,
		modified_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_library_last_opened ON library(last_opened_at);
	`
	_, err := db.Exec(schema)
	return err
}

const entryColumns = `id, path, title, page_count, preview_path, last_opened_at, modified_at, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*models.LibraryEntry, error) {
	var e models.LibraryEntry
	var lastOpened, modified sql.NullTime
	if err := row.Scan(&e.ID, &e.Path, &e.Title, &e.PageCount, &e.PreviewPath, &lastOpened, &modified, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.LastOpenedAt = lastOpened.Time
	e.ModifiedAt = modified.Time
	return &e, nil
}

// Upsert inserts or updates an entry keyed by ID.
func (s *SQLiteStore) Upsert(ctx context.Context, entry *models.LibraryEntry) error {
	if entry.ID == "" || entry.Path == "" {
		return fmt.Errorf("library entry needs an id and a path")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO library (`+entryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			title = excluded.title,
			page_count = excluded.page_count,
			preview_path = CASE WHEN excluded.preview_path = '' THEN library.preview_path ELSE excluded.preview_path END,
			last_opened_at = excluded.last_opened_at,
			modified_at = excluded.modified_at`,
		entry.ID, entry.Path, entry.Title, entry.PageCount, entry.PreviewPath,
		entry.LastOpenedAt, entry.ModifiedAt, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert library entry: %w", err)
	}
	return nil
}

// Get returns an entry by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.LibraryEntry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM library WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return e, err
}

// GetByPath returns the entry for an absolute document path.
func (s *SQLiteStore) GetByPath(ctx context.Context, path string) (*models.LibraryEntry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM library WHERE path = ?`, path))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, path)
	}
	return e, err
}

// List returns entries with offset and limit, most recently opened first.
func (s *SQLiteStore) List(ctx context.Context, offset, limit int) ([]*models.LibraryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM library
		 ORDER BY last_opened_at DESC, created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*models.LibraryEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SetPreviewPath records where the preview of entry id was written.
func (s *SQLiteStore) SetPreviewPath(ctx context.Context, id, previewPath string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE library SET preview_path = ? WHERE id = ?`, previewPath, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return nil
}

// Delete removes an entry by ID. Deleting a missing entry is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM library WHERE id = ?`, id)
	return err
}

// Count returns the number of entries.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM library`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
