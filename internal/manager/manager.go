// Package manager is the entry point for document operations. It mints document ids and
// forwards every operation to the worker pool, waiting for the single reply.
package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/worker"
	"go.uber.org/zap"
)

// Manager owns the worker pool and the directory of open sessions.
type Manager struct {
	pool   *worker.Pool
	logger *zap.Logger
	newID  func() models.DocumentID

	mu       sync.RWMutex
	sessions map[models.DocumentID]models.Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// New returns a manager serving requests through pool. The manager takes ownership of the
// pool and shuts it down in Close.
func New(pool *worker.Pool, opts ...Option) *Manager {
	m := &Manager{
		pool:     pool,
		logger:   zap.NewNop(),
		newID:    func() models.DocumentID { return models.DocumentID(uuid.NewString()) },
		sessions: make(map[models.DocumentID]models.Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func do[T any](ctx context.Context, m *Manager, build func(*worker.Reply[T]) worker.Request) (T, error) {
	reply := worker.NewReply[T]()
	if err := m.pool.Submit(build(reply)); err != nil {
		var zero T
		return zero, err
	}
	return reply.Wait(ctx)
}

// Open registers the document at path and returns its new id. The path must name an existing
// regular file; the document itself is loaded lazily by the first operation that needs it.
func (m *Manager) Open(ctx context.Context, path string) (models.DocumentID, error) {
	if path == "" {
		return "", fmt.Errorf("%w: path is empty", models.ErrInvalidArgument)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", models.ErrInvalidArgument, path, err)
	}
	st, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrInvalidArgument, err)
	}
	if st.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", models.ErrInvalidArgument, abs)
	}

	id := m.newID()
	_, err = do(ctx, m, func(r *worker.Reply[struct{}]) worker.Request {
		return &worker.OpenRequest{ID: id, Path: abs, Reply: r}
	})
	if err != nil {
		if ctx.Err() != nil {
			// The registration may still run; nobody will ever hold this id.
			m.discard(id)
		}
		return "", err
	}

	m.mu.Lock()
	m.sessions[id] = models.Session{ID: id, Path: abs, OpenedAt: time.Now().UTC()}
	m.mu.Unlock()
	m.logger.Debug("document opened", zap.String("document_id", id.String()), zap.String("path", abs))
	return id, nil
}

// CloseDocument releases id. Closing an unknown or already closed id is not an error. The
// session is forgotten even when ctx ends before the worker confirms.
func (m *Manager) CloseDocument(ctx context.Context, id models.DocumentID) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	_, err := do(ctx, m, func(r *worker.Reply[struct{}]) worker.Request {
		return &worker.CloseRequest{ID: id, Reply: r}
	})
	return err
}

// discard releases id on its worker without waiting. Requests for one id are served in
// order, so it lands after any registration still queued.
func (m *Manager) discard(id models.DocumentID) {
	if err := m.pool.Submit(&worker.CloseRequest{ID: id, Reply: worker.NewReply[struct{}]()}); err != nil {
		m.logger.Debug("discard after cancelled open failed", zap.String("document_id", id.String()), zap.Error(err))
	}
}

// Render renders a page targetWidth pixels wide.
func (m *Manager) Render(ctx context.Context, id models.DocumentID, page, targetWidth int) (models.RenderedPage, error) {
	return do(ctx, m, func(r *worker.Reply[models.RenderedPage]) worker.Request {
		return &worker.RenderRequest{ID: id, Page: page, Width: targetWidth, Reply: r}
	})
}

// RenderTile renders the tile rectangle, in pixels of the page scaled to targetWidth.
func (m *Manager) RenderTile(ctx context.Context, id models.DocumentID, page, targetWidth int, tile models.TileRect) (models.RenderedTile, error) {
	return do(ctx, m, func(r *worker.Reply[models.RenderedTile]) worker.Request {
		return &worker.RenderTileRequest{ID: id, Page: page, Width: targetWidth, Tile: tile, Reply: r}
	})
}

// Info returns the page count and first page size.
func (m *Manager) Info(ctx context.Context, id models.DocumentID) (models.Info, error) {
	return do(ctx, m, func(r *worker.Reply[models.Info]) worker.Request {
		return &worker.InfoRequest{ID: id, Reply: r}
	})
}

// Bookmarks returns the outline tree.
func (m *Manager) Bookmarks(ctx context.Context, id models.DocumentID) (models.Bookmarks, error) {
	return do(ctx, m, func(r *worker.Reply[models.Bookmarks]) worker.Request {
		return &worker.BookmarksRequest{ID: id, Reply: r}
	})
}

// TextByPage returns the text fragments of one page.
func (m *Manager) TextByPage(ctx context.Context, id models.DocumentID, page int) (models.PageText, error) {
	return do(ctx, m, func(r *worker.Reply[models.PageText]) worker.Request {
		return &worker.TextRequest{ID: id, Page: page, Reply: r}
	})
}

// Search finds every occurrence of query in the document.
func (m *Manager) Search(ctx context.Context, id models.DocumentID, query string) ([]models.SearchHit, error) {
	return do(ctx, m, func(r *worker.Reply[[]models.SearchHit]) worker.Request {
		return &worker.SearchRequest{ID: id, Query: query, Reply: r}
	})
}

// Preview renders the first page width pixels wide (0 for the default width) and, when
// savePath is set, also writes the image there.
func (m *Manager) Preview(ctx context.Context, id models.DocumentID, width int, savePath string) (models.RenderedPage, error) {
	return do(ctx, m, func(r *worker.Reply[models.RenderedPage]) worker.Request {
		return &worker.PreviewRequest{ID: id, Width: width, SavePath: savePath, Reply: r}
	})
}

// Annotations lists the markup annotations of the document.
func (m *Manager) Annotations(ctx context.Context, id models.DocumentID) ([]models.Annotation, error) {
	return do(ctx, m, func(r *worker.Reply[[]models.Annotation]) worker.Request {
		return &worker.GetAnnotationsRequest{ID: id, Reply: r}
	})
}

// AddAnnotation validates a. The document is not modified.
func (m *Manager) AddAnnotation(ctx context.Context, id models.DocumentID, a models.Annotation) error {
	_, err := do(ctx, m, func(r *worker.Reply[struct{}]) worker.Request {
		return &worker.AddAnnotationRequest{ID: id, Annotation: a, Reply: r}
	})
	return err
}

// RemoveAnnotation validates the removal of annotationID from page. The document is not
// modified.
func (m *Manager) RemoveAnnotation(ctx context.Context, id models.DocumentID, page int, annotationID string) error {
	_, err := do(ctx, m, func(r *worker.Reply[struct{}]) worker.Request {
		return &worker.RemoveAnnotationRequest{ID: id, Page: page, AnnotationID: annotationID, Reply: r}
	})
	return err
}

// Session returns the open session for id.
func (m *Manager) Session(id models.DocumentID) (models.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Documents lists open sessions, oldest first.
func (m *Manager) Documents() []models.Session {
	m.mu.RLock()
	out := make([]models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

// Close shuts the pool down. Pending requests fail with ErrDispatch.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.sessions = make(map[models.DocumentID]models.Session)
	m.mu.Unlock()
	return m.pool.Shutdown(ctx)
}
