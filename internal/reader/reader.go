// Package reader ties the document manager to the persistent side of the application: the
// library of recently opened documents, the cross-document text catalog, stored previews and
// file change tracking. Document operations not listed here are served by the embedded
// manager unchanged.
package reader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/yomu/internal/catalog"
	"github.com/hyperjump/yomu/internal/fileid"
	"github.com/hyperjump/yomu/internal/library"
	"github.com/hyperjump/yomu/internal/manager"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/watcher"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// refreshTimeout bounds the work done in response to one file change.
const refreshTimeout = 2 * time.Minute

// Service is the application facade used by the command layer.
type Service struct {
	*manager.Manager

	library     library.Store
	catalog     catalog.Catalog
	previewDir  string
	indexOnOpen bool
	dbPath      string
	indexPath   string
	logger      *zap.Logger

	indexing errgroup.Group
	// entries serializes library entry writes so a concurrent preview path is never lost.
	entries sync.Mutex

	mu      sync.Mutex
	watcher *watcher.Watcher
}

// Option configures a Service.
type Option func(*Service)

// WithLibrary records opened documents in store. The service closes it in Close.
func WithLibrary(store library.Store) Option {
	return func(s *Service) { s.library = store }
}

// WithCatalog indexes document text into c. The service closes it in Close.
func WithCatalog(c catalog.Catalog) Option {
	return func(s *Service) { s.catalog = c }
}

// WithPreviewDir stores previews under dir, one file per library document.
func WithPreviewDir(dir string) Option {
	return func(s *Service) { s.previewDir = dir }
}

// WithIndexOnOpen controls whether opening a document indexes its text in the catalog.
func WithIndexOnOpen(enabled bool) Option {
	return func(s *Service) { s.indexOnOpen = enabled }
}

// WithUsagePaths sets the database file and index directory reported by Stats.
func WithUsagePaths(databasePath, indexPath string) Option {
	return func(s *Service) {
		s.dbPath = databasePath
		s.indexPath = indexPath
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a service around m. The service owns m and shuts it down in Close.
func New(m *manager.Manager, opts ...Option) *Service {
	s := &Service{
		Manager:     m,
		indexOnOpen: true,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens the document at path. The document is loaded, recorded in the library, watched
// and indexed in the background, so Open costs no more than the manager's lazy open. Failures
// of that background work are logged; only the open itself can fail the call.
func (s *Service) Open(ctx context.Context, path string) (models.DocumentID, error) {
	id, err := s.Manager.Open(ctx, path)
	if err != nil {
		return "", err
	}
	if s.library == nil {
		return id, nil
	}
	session, _ := s.Session(id)
	bg := context.WithoutCancel(ctx)
	s.indexing.Go(func() error {
		s.record(bg, id, session.Path)
		return nil
	})
	return id, nil
}

// record stores the library entry of the open document id, then watches and indexes it.
func (s *Service) record(ctx context.Context, id models.DocumentID, path string) {
	info, err := s.Info(ctx, id)
	if err != nil {
		// Unloadable or already closed; the caller sees load errors on its own operations.
		s.logger.Debug("skipping library update", zap.String("path", path), zap.Error(err))
		return
	}
	entry, err := s.remember(ctx, path, info)
	if err != nil {
		s.logger.Warn("failed to update library", zap.String("path", path), zap.Error(err))
		return
	}
	s.track(path)
	if !s.indexOnOpen || s.catalog == nil {
		return
	}
	if err := s.indexSession(ctx, id, entry); err != nil {
		s.logger.Warn("failed to index document text", zap.String("path", path), zap.Error(err))
	}
}

// WaitIdle blocks until the background work of every Open so far has finished.
func (s *Service) WaitIdle() {
	_ = s.indexing.Wait()
}

// remember upserts the library entry for the document at absPath.
func (s *Service) remember(ctx context.Context, absPath string, info models.Info) (*models.LibraryEntry, error) {
	if s.library == nil {
		return nil, nil
	}
	now := time.Now().UTC()
	entry := &models.LibraryEntry{
		ID:           fileid.LibraryID(absPath),
		Path:         absPath,
		Title:        titleOf(absPath),
		PageCount:    info.PageCount,
		LastOpenedAt: now,
	}
	if st, err := os.Stat(absPath); err == nil {
		entry.ModifiedAt = st.ModTime().UTC()
	}
	s.entries.Lock()
	defer s.entries.Unlock()
	if existing, err := s.library.Get(ctx, entry.ID); err == nil {
		entry.CreatedAt = existing.CreatedAt
		entry.PreviewPath = existing.PreviewPath
	}
	if entry.PreviewPath == "" && s.previewDir != "" {
		// A preview may have been stored before the entry existed.
		if p := fileid.PreviewPath(s.previewDir, absPath); fileExists(p) {
			entry.PreviewPath = p
		}
	}
	if err := s.library.Upsert(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func titleOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// indexSession replaces the catalog pages of entry with the text of the open document id.
func (s *Service) indexSession(ctx context.Context, id models.DocumentID, entry *models.LibraryEntry) error {
	info, err := s.Info(ctx, id)
	if err != nil {
		return err
	}
	pages := make([]string, info.PageCount)
	for i := range pages {
		pt, err := s.TextByPage(ctx, id, i)
		if err != nil {
			return fmt.Errorf("page %d: %w", i, err)
		}
		pages[i] = pageString(pt)
	}
	doc := catalog.Document{LibraryID: entry.ID, Path: entry.Path, Title: entry.Title}
	if err := s.catalog.IndexDocument(ctx, doc, pages); err != nil {
		return err
	}
	s.logger.Debug("document text indexed", zap.String("path", entry.Path), zap.Int("pages", len(pages)))
	return nil
}

func pageString(pt models.PageText) string {
	parts := make([]string, 0, len(pt.Items))
	for _, item := range pt.Items {
		parts = append(parts, item.Text)
	}
	return strings.Join(parts, " ")
}

// Preview renders the preview of id. When a preview directory is configured the image is also
// stored there and its path recorded in the library.
func (s *Service) Preview(ctx context.Context, id models.DocumentID, width int) (models.RenderedPage, error) {
	session, ok := s.Session(id)
	if !ok || s.previewDir == "" {
		return s.Manager.Preview(ctx, id, width, "")
	}
	savePath := fileid.PreviewPath(s.previewDir, session.Path)
	page, err := s.Manager.Preview(ctx, id, width, savePath)
	if err != nil {
		return models.RenderedPage{}, err
	}
	if s.library != nil {
		s.entries.Lock()
		err := s.library.SetPreviewPath(ctx, fileid.LibraryID(session.Path), savePath)
		s.entries.Unlock()
		if err != nil && !errors.Is(err, library.ErrEntryNotFound) {
			s.logger.Warn("failed to record preview path", zap.String("path", savePath), zap.Error(err))
		}
	}
	return page, nil
}

// Recent lists library entries, most recently opened first.
func (s *Service) Recent(ctx context.Context, offset, limit int) ([]*models.LibraryEntry, error) {
	if s.library == nil {
		return []*models.LibraryEntry{}, nil
	}
	if offset < 0 || limit < 0 {
		return nil, fmt.Errorf("%w: offset and limit must not be negative", models.ErrInvalidArgument)
	}
	if limit == 0 {
		limit = 50
	}
	return s.library.List(ctx, offset, limit)
}

// Forget removes a library entry together with its catalog pages and stored preview.
func (s *Service) Forget(ctx context.Context, libraryID string) error {
	if s.library == nil {
		return fmt.Errorf("%w: library is disabled", models.ErrNotFound)
	}
	entry, err := s.library.Get(ctx, libraryID)
	if err != nil {
		if errors.Is(err, library.ErrEntryNotFound) {
			return fmt.Errorf("%w: %w", models.ErrNotFound, err)
		}
		return err
	}
	s.untrack(entry.Path)
	return s.drop(ctx, entry)
}

func (s *Service) drop(ctx context.Context, entry *models.LibraryEntry) error {
	if s.catalog != nil {
		if err := s.catalog.DeleteDocument(ctx, entry.ID); err != nil {
			return err
		}
	}
	if entry.PreviewPath != "" {
		if err := os.Remove(entry.PreviewPath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove preview", zap.String("path", entry.PreviewPath), zap.Error(err))
		}
	}
	if err := s.library.Delete(ctx, entry.ID); err != nil {
		return err
	}
	s.logger.Debug("library entry removed", zap.String("path", entry.Path))
	return nil
}

// SearchLibrary finds pages across every indexed document.
func (s *Service) SearchLibrary(ctx context.Context, query string, limit int, opts *catalog.SearchOptions) ([]catalog.Hit, error) {
	if s.catalog == nil {
		return []catalog.Hit{}, nil
	}
	return s.catalog.Search(ctx, query, limit, opts)
}

// Reindex reloads the library document at path and refreshes its entry and catalog pages.
// Paths that are not in the library are ignored.
func (s *Service) Reindex(ctx context.Context, path string) error {
	if s.library == nil {
		return nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := s.library.GetByPath(ctx, abs); err != nil {
		if errors.Is(err, library.ErrEntryNotFound) {
			return nil
		}
		return err
	}
	id, err := s.Manager.Open(ctx, abs)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.CloseDocument(ctx, id); err != nil {
			s.logger.Debug("failed to close reindex session", zap.Error(err))
		}
	}()
	info, err := s.Info(ctx, id)
	if err != nil {
		return err
	}
	entry, err := s.remember(ctx, abs, info)
	if err != nil {
		return err
	}
	if s.catalog == nil {
		return nil
	}
	return s.indexSession(ctx, id, entry)
}

// Watch starts tracking every library document for changes. Modified documents are reindexed;
// deleted or moved ones are dropped from the library.
func (s *Service) Watch(ctx context.Context) error {
	if s.library == nil {
		return nil
	}
	s.mu.Lock()
	if s.watcher != nil {
		s.mu.Unlock()
		return nil
	}
	w := watcher.New(s.handleChanged, s.handleRemoved, watcher.WithLogger(s.logger))
	s.watcher = w
	s.mu.Unlock()

	n, err := s.library.Count(ctx)
	if err != nil {
		return err
	}
	entries, err := s.library.List(ctx, 0, int(n))
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := w.Track(e.Path); err != nil {
			s.logger.Debug("not watching library document", zap.String("path", e.Path), zap.Error(err))
		}
	}
	return w.Start(ctx)
}

func (s *Service) track(path string) {
	s.mu.Lock()
	w := s.watcher
	s.mu.Unlock()
	if w == nil {
		return
	}
	if err := w.Track(path); err != nil {
		s.logger.Debug("not watching document", zap.String("path", path), zap.Error(err))
	}
}

func (s *Service) untrack(path string) {
	s.mu.Lock()
	w := s.watcher
	s.mu.Unlock()
	if w != nil {
		w.Untrack(path)
	}
}

func (s *Service) handleChanged(path string) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	if err := s.Reindex(ctx, path); err != nil {
		s.logger.Warn("failed to reindex changed document", zap.String("path", path), zap.Error(err))
	}
}

func (s *Service) handleRemoved(path string) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	entry, err := s.library.GetByPath(ctx, path)
	if err != nil {
		return
	}
	if err := s.drop(ctx, entry); err != nil {
		s.logger.Warn("failed to drop removed document", zap.String("path", path), zap.Error(err))
	}
}

// Stats summarizes the state of the service.
type Stats struct {
	OpenDocuments  int           `json:"open_documents"`
	LibraryEntries int64         `json:"library_entries"`
	CatalogPages   uint64        `json:"catalog_pages"`
	WatchedFiles   int           `json:"watched_files"`
	DiskUsage      library.Usage `json:"disk_usage"`
}

// Stats collects counts and disk usage.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	st := Stats{OpenDocuments: len(s.Documents())}
	var err error
	if s.library != nil {
		if st.LibraryEntries, err = s.library.Count(ctx); err != nil {
			return Stats{}, err
		}
	}
	if s.catalog != nil {
		if st.CatalogPages, err = s.catalog.DocCount(); err != nil {
			return Stats{}, err
		}
	}
	s.mu.Lock()
	if s.watcher != nil {
		st.WatchedFiles = len(s.watcher.Tracked())
	}
	s.mu.Unlock()
	if st.DiskUsage, err = library.MeasureUsage(s.dbPath, s.indexPath, s.previewDir); err != nil {
		return Stats{}, err
	}
	return st, nil
}

// Close stops watching, waits for background indexing, shuts the manager down and closes the
// library and catalog.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.watcher != nil {
		s.watcher.Stop()
		s.watcher = nil
	}
	s.mu.Unlock()
	s.WaitIdle()

	var errs []error
	if err := s.Manager.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.catalog != nil {
		if err := s.catalog.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.library != nil {
		if err := s.library.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
