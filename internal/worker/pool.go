package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/hyperjump/yomu/internal/backend"
	"github.com/hyperjump/yomu/internal/encoder"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/text"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultRenderCacheEntries is the per-worker rendered page cache size.
const DefaultRenderCacheEntries = 32

// Raster size limits. A request beyond either is rejected before any pixel buffer is allocated.
const (
	DefaultMaxWidth  = 8192
	DefaultMaxPixels = 64 << 20
)

type settings struct {
	size               int
	backend            backend.Backend
	encoder            *encoder.Encoder
	layout             text.LayoutOptions
	previewWidth       int
	renderCacheEntries int
	maxWidth           int
	maxPixels          int
	logger             *zap.Logger
}

// Option configures a Pool.
type Option func(*settings)

// WithSize sets the number of workers. Values below one select the default.
func WithSize(n int) Option {
	return func(s *settings) { s.size = n }
}

// WithEncoder sets the image encoder. The default encodes PNG.
func WithEncoder(e *encoder.Encoder) Option {
	return func(s *settings) {
		if e != nil {
			s.encoder = e
		}
	}
}

// WithLayout sets the text fragment merge tolerances.
func WithLayout(opts text.LayoutOptions) Option {
	return func(s *settings) { s.layout = opts }
}

// WithPreviewWidth sets the default preview width in pixels.
func WithPreviewWidth(px int) Option {
	return func(s *settings) {
		if px > 0 {
			s.previewWidth = px
		}
	}
}

// WithRenderCache sets how many rendered pages each worker keeps. Zero disables the cache.
func WithRenderCache(entries int) Option {
	return func(s *settings) {
		if entries >= 0 {
			s.renderCacheEntries = entries
		}
	}
}

// WithMaxRaster caps the width and the total pixel count of any raster a worker allocates.
// Non-positive values keep the defaults.
func WithMaxRaster(width, pixels int) Option {
	return func(s *settings) {
		if width > 0 {
			s.maxWidth = width
		}
		if pixels > 0 {
			s.maxPixels = pixels
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// DefaultSize is the worker count used when none is configured.
func DefaultSize() int {
	return min(4, runtime.NumCPU())
}

// Pool is a fixed set of workers. Requests for one document always reach the same worker,
// so its handle, its close and its ordering all live in one place.
type Pool struct {
	workers []*Worker
	group   *errgroup.Group
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPool starts the workers.
func NewPool(b backend.Backend, opts ...Option) *Pool {
	s := settings{
		backend:            b,
		encoder:            encoder.New(encoder.PNG, 0),
		previewWidth:       DefaultPreviewWidth,
		renderCacheEntries: DefaultRenderCacheEntries,
		maxWidth:           DefaultMaxWidth,
		maxPixels:          DefaultMaxPixels,
		logger:             zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.size < 1 {
		s.size = DefaultSize()
	}

	p := &Pool{group: &errgroup.Group{}, logger: s.logger}
	for i := 0; i < s.size; i++ {
		w := newWorker(i, s)
		p.workers = append(p.workers, w)
		p.group.Go(w.run)
	}
	p.logger.Info("worker pool started", zap.Int("workers", s.size))
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// route maps a document id to a fixed worker index.
func (p *Pool) route(id models.DocumentID) int {
	return int(xxhash.Sum64String(string(id)) % uint64(len(p.workers)))
}

// Submit enqueues req on the worker owning its document. It never blocks on the worker.
func (p *Pool) Submit(req Request) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("%w: pool is shut down", models.ErrDispatch)
	}
	if !p.workers[p.route(req.DocumentID())].mailbox.put(req) {
		return fmt.Errorf("%w: worker mailbox closed", models.ErrDispatch)
	}
	return nil
}

// Shutdown stops accepting requests, drops queued ones (their replies report ErrDispatch) and
// waits for workers to finish the request in hand and release their documents.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		dropped := 0
		for _, w := range p.workers {
			for _, req := range w.mailbox.close() {
				req.abandon()
				dropped++
			}
		}
		p.logger.Info("worker pool shutting down", zap.Int("dropped_requests", dropped))
	}
	p.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- p.group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
