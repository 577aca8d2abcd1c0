package worker

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"

	"github.com/hyperjump/yomu/internal/annotation"
	"github.com/hyperjump/yomu/internal/backend"
	"github.com/hyperjump/yomu/internal/cache"
	"github.com/hyperjump/yomu/internal/encoder"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/text"
	"go.uber.org/zap"
)

// DefaultPreviewWidth is the preview width used when a request does not set one.
const DefaultPreviewWidth = 100

// previewOversample renders previews larger than requested before downscaling.
const previewOversample = 2

type renderKey struct {
	id    models.DocumentID
	page  int
	width int
}

// Worker serves requests from its mailbox one at a time. Everything it holds is private to
// its goroutine: native handles never leave the worker that loaded them.
type Worker struct {
	index   int
	mailbox *mailbox

	backend      backend.Backend
	encoder      *encoder.Encoder
	layout       text.LayoutOptions
	previewWidth int
	maxWidth     int
	maxPixels    int
	editor       *annotation.Editor
	logger       *zap.Logger

	pending map[models.DocumentID]string
	open    map[models.DocumentID]backend.Document
	indexes map[models.DocumentID]*text.Index
	renders *cache.LRU[renderKey, models.RenderedPage]
}

func newWorker(index int, s settings) *Worker {
	logger := s.logger.With(zap.Int("worker", index))
	return &Worker{
		index:        index,
		mailbox:      newMailbox(),
		backend:      s.backend,
		encoder:      s.encoder,
		layout:       s.layout,
		previewWidth: s.previewWidth,
		maxWidth:     s.maxWidth,
		maxPixels:    s.maxPixels,
		editor:       annotation.NewEditor(annotation.WithLogger(logger)),
		logger:       logger,
		pending:      make(map[models.DocumentID]string),
		open:         make(map[models.DocumentID]backend.Document),
		indexes:      make(map[models.DocumentID]*text.Index),
		renders:      cache.NewLRU[renderKey, models.RenderedPage](s.renderCacheEntries),
	}
}

// run serves requests until the mailbox is closed and drained, then releases every handle.
func (w *Worker) run() error {
	defer w.releaseAll()
	for {
		req, ok := w.mailbox.take()
		if !ok {
			return nil
		}
		w.handle(req)
	}
}

func (w *Worker) handle(req Request) {
	defer func() {
		if r := recover(); r != nil {
			id := req.DocumentID()
			w.logger.Error("request panicked, evicting document",
				zap.String("document_id", id.String()),
				zap.String("request", fmt.Sprintf("%T", req)),
				zap.Any("panic", r))
			w.evict(id)
			req.fail(fmt.Errorf("%w: %v", models.ErrRender, r))
		}
	}()

	switch r := req.(type) {
	case *OpenRequest:
		w.pending[r.ID] = r.Path
		w.logger.Debug("document registered", zap.String("document_id", r.ID.String()), zap.String("path", r.Path))
		r.Reply.send(struct{}{}, nil)
	case *CloseRequest:
		w.closeDocument(r.ID)
		r.Reply.send(struct{}{}, nil)
	case *RenderRequest:
		r.Reply.send(w.render(r))
	case *RenderTileRequest:
		r.Reply.send(w.renderTile(r))
	case *InfoRequest:
		r.Reply.send(w.info(r))
	case *BookmarksRequest:
		r.Reply.send(w.bookmarks(r))
	case *TextRequest:
		r.Reply.send(w.pageText(r))
	case *SearchRequest:
		r.Reply.send(w.search(r))
	case *PreviewRequest:
		r.Reply.send(w.preview(r))
	case *GetAnnotationsRequest:
		r.Reply.send(w.annotations(r))
	case *AddAnnotationRequest:
		r.Reply.send(struct{}{}, w.addAnnotation(r))
	case *RemoveAnnotationRequest:
		r.Reply.send(struct{}{}, w.removeAnnotation(r))
	default:
		req.fail(fmt.Errorf("%w: unsupported request %T", models.ErrInvalidArgument, req))
	}
}

// ensureLoaded returns the handle for id, loading it from its registered path on first use.
// A failed load leaves the path registered so a later request can retry.
func (w *Worker) ensureLoaded(id models.DocumentID) (backend.Document, error) {
	if doc, ok := w.open[id]; ok {
		return doc, nil
	}
	path, ok := w.pending[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	doc, err := w.backend.Load(path)
	if err != nil {
		w.logger.Warn("document load failed", zap.String("document_id", id.String()), zap.String("path", path), zap.Error(err))
		return nil, classify(models.ErrLoad, err)
	}
	w.open[id] = doc
	w.logger.Debug("document loaded", zap.String("document_id", id.String()), zap.Int("pages", doc.PageCount()))
	return doc, nil
}

func (w *Worker) closeDocument(id models.DocumentID) {
	w.evict(id)
	delete(w.pending, id)
	w.logger.Debug("document closed", zap.String("document_id", id.String()))
}

// evict drops the loaded handle and derived state of id but keeps its registered path.
func (w *Worker) evict(id models.DocumentID) {
	if doc, ok := w.open[id]; ok {
		w.closeHandle(id, doc)
		delete(w.open, id)
	}
	delete(w.indexes, id)
	w.renders.RemoveIf(func(k renderKey) bool { return k.id == id })
}

func (w *Worker) closeHandle(id models.DocumentID, doc backend.Document) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("document close panicked", zap.String("document_id", id.String()), zap.Any("panic", r))
		}
	}()
	if err := doc.Close(); err != nil {
		w.logger.Warn("document close failed", zap.String("document_id", id.String()), zap.Error(err))
	}
}

func (w *Worker) releaseAll() {
	for id, doc := range w.open {
		w.closeHandle(id, doc)
	}
	w.open = make(map[models.DocumentID]backend.Document)
	w.pending = make(map[models.DocumentID]string)
	w.indexes = make(map[models.DocumentID]*text.Index)
}

// classify keeps errors already in the taxonomy and wraps anything else as kind.
func classify(kind, err error) error {
	if models.ErrorKind(err) != "internal" {
		return err
	}
	return fmt.Errorf("%w: %v", kind, err)
}

func checkPage(doc backend.Document, page int) error {
	if n := doc.PageCount(); page < 0 || page >= n {
		return fmt.Errorf("%w: page %d out of range (%d pages)", models.ErrInvalidArgument, page, n)
	}
	return nil
}

// scaledSize returns the pixel size of page at targetWidth, preserving the aspect ratio. Sizes
// beyond the worker's raster limits are rejected.
func (w *Worker) scaledSize(doc backend.Document, page, targetWidth int) (int, int, error) {
	if targetWidth <= 0 {
		return 0, 0, fmt.Errorf("%w: target width must be positive, got %d", models.ErrInvalidArgument, targetWidth)
	}
	if targetWidth > w.maxWidth {
		return 0, 0, fmt.Errorf("%w: target width %d exceeds the maximum of %d", models.ErrInvalidArgument, targetWidth, w.maxWidth)
	}
	if err := checkPage(doc, page); err != nil {
		return 0, 0, err
	}
	pw, ph, err := doc.PageSize(page)
	if err != nil {
		return 0, 0, classify(models.ErrRender, err)
	}
	if pw <= 0 || ph <= 0 {
		return 0, 0, fmt.Errorf("%w: page %d has no size", models.ErrRender, page)
	}
	h := math.Round(ph * float64(targetWidth) / pw)
	if h*float64(targetWidth) > float64(w.maxPixels) {
		return 0, 0, fmt.Errorf("%w: %dx%.0f raster exceeds %d pixels", models.ErrInvalidArgument, targetWidth, h, w.maxPixels)
	}
	height := int(h)
	if height < 1 {
		height = 1
	}
	return targetWidth, height, nil
}

func (w *Worker) rasterize(doc backend.Document, page, width, height int, clip image.Rectangle) (*image.RGBA, error) {
	img, err := doc.Rasterize(page, backend.RasterOptions{Width: width, Height: height, Clip: clip})
	if err != nil {
		return nil, classify(models.ErrRender, err)
	}
	return img, nil
}

func (w *Worker) render(r *RenderRequest) (models.RenderedPage, error) {
	doc, err := w.ensureLoaded(r.ID)
	if err != nil {
		return models.RenderedPage{}, err
	}
	width, height, err := w.scaledSize(doc, r.Page, r.Width)
	if err != nil {
		return models.RenderedPage{}, err
	}
	key := renderKey{id: r.ID, page: r.Page, width: width}
	if cached, ok := w.renders.Get(key); ok {
		cached.Data = append([]byte(nil), cached.Data...)
		return cached, nil
	}
	img, err := w.rasterize(doc, r.Page, width, height, image.Rectangle{})
	if err != nil {
		return models.RenderedPage{}, err
	}
	data, err := w.encoder.Encode(img)
	if err != nil {
		return models.RenderedPage{}, err
	}
	out := models.RenderedPage{Width: width, Height: height, Data: data}
	w.renders.Set(key, models.RenderedPage{Width: width, Height: height, Data: append([]byte(nil), data...)})
	return out, nil
}

func (w *Worker) renderTile(r *RenderTileRequest) (models.RenderedTile, error) {
	doc, err := w.ensureLoaded(r.ID)
	if err != nil {
		return models.RenderedTile{}, err
	}
	width, height, err := w.scaledSize(doc, r.Page, r.Width)
	if err != nil {
		return models.RenderedTile{}, err
	}
	t := r.Tile
	if t.Width <= 0 || t.Height <= 0 || t.X < 0 || t.Y < 0 {
		return models.RenderedTile{}, fmt.Errorf("%w: invalid tile %+v", models.ErrInvalidArgument, t)
	}
	clip := image.Rect(t.X, t.Y, t.X+t.Width, t.Y+t.Height).Intersect(image.Rect(0, 0, width, height))
	if clip.Empty() {
		return models.RenderedTile{}, fmt.Errorf("%w: tile %+v lies outside the %dx%d page", models.ErrInvalidArgument, t, width, height)
	}
	img, err := w.rasterize(doc, r.Page, width, height, clip)
	if err != nil {
		return models.RenderedTile{}, err
	}
	data, err := w.encoder.Encode(img)
	if err != nil {
		return models.RenderedTile{}, err
	}
	return models.RenderedTile{
		RenderedPage: models.RenderedPage{Width: clip.Dx(), Height: clip.Dy(), Data: data},
		OffsetX:      clip.Min.X,
		OffsetY:      clip.Min.Y,
	}, nil
}

func (w *Worker) info(r *InfoRequest) (models.Info, error) {
	doc, err := w.ensureLoaded(r.ID)
	if err != nil {
		return models.Info{}, err
	}
	info := models.Info{PageCount: doc.PageCount()}
	if info.PageCount > 0 {
		info.Width, info.Height, err = doc.PageSize(0)
		if err != nil {
			return models.Info{}, classify(models.ErrRender, err)
		}
	}
	return info, nil
}

func (w *Worker) bookmarks(r *BookmarksRequest) (models.Bookmarks, error) {
	doc, err := w.ensureLoaded(r.ID)
	if err != nil {
		return models.Bookmarks{}, err
	}
	items, err := doc.Bookmarks()
	if err != nil {
		return models.Bookmarks{}, classify(models.ErrRender, err)
	}
	if items == nil {
		items = []models.Bookmark{}
	}
	return models.Bookmarks{Items: items}, nil
}

func (w *Worker) pageText(r *TextRequest) (models.PageText, error) {
	doc, err := w.ensureLoaded(r.ID)
	if err != nil {
		return models.PageText{}, err
	}
	if err := checkPage(doc, r.Page); err != nil {
		return models.PageText{}, err
	}
	pw, ph, err := doc.PageSize(r.Page)
	if err != nil {
		return models.PageText{}, classify(models.ErrRender, err)
	}
	chars, err := doc.Chars(r.Page)
	if err != nil {
		return models.PageText{}, classify(models.ErrRender, err)
	}
	return text.BuildPageText(chars, pw, ph, w.layout), nil
}

// searchIndex returns the cached index of id, building it from every page on first use.
func (w *Worker) searchIndex(id models.DocumentID, doc backend.Document) (*text.Index, error) {
	if idx, ok := w.indexes[id]; ok {
		return idx, nil
	}
	pages := make([]text.PageSource, doc.PageCount())
	for i := range pages {
		pw, ph, err := doc.PageSize(i)
		if err != nil {
			return nil, classify(models.ErrRender, err)
		}
		chars, err := doc.Chars(i)
		if err != nil {
			return nil, classify(models.ErrRender, err)
		}
		pages[i] = text.PageSource{Chars: chars, Width: pw, Height: ph}
	}
	idx := text.BuildIndex(pages)
	w.indexes[id] = idx
	return idx, nil
}

func (w *Worker) search(r *SearchRequest) ([]models.SearchHit, error) {
	doc, err := w.ensureLoaded(r.ID)
	if err != nil {
		return nil, err
	}
	if r.Query == "" {
		return []models.SearchHit{}, nil
	}
	idx, err := w.searchIndex(r.ID, doc)
	if err != nil {
		return nil, err
	}
	return idx.Search(r.Query), nil
}

func (w *Worker) preview(r *PreviewRequest) (models.RenderedPage, error) {
	doc, err := w.ensureLoaded(r.ID)
	if err != nil {
		return models.RenderedPage{}, err
	}
	target := r.Width
	if target == 0 {
		target = w.previewWidth
	}
	if target > w.maxWidth/previewOversample {
		return models.RenderedPage{}, fmt.Errorf("%w: preview width %d exceeds the maximum of %d", models.ErrInvalidArgument, target, w.maxWidth/previewOversample)
	}
	width, height, err := w.scaledSize(doc, 0, target*previewOversample)
	if err != nil {
		return models.RenderedPage{}, err
	}
	img, err := w.rasterize(doc, 0, width, height, image.Rectangle{})
	if err != nil {
		return models.RenderedPage{}, err
	}
	thumb := encoder.Thumbnail(img, target)
	data, err := w.encoder.Encode(thumb)
	if err != nil {
		return models.RenderedPage{}, err
	}
	out := models.RenderedPage{Width: thumb.Bounds().Dx(), Height: thumb.Bounds().Dy(), Data: data}
	if r.SavePath != "" {
		if err := os.MkdirAll(filepath.Dir(r.SavePath), 0755); err != nil {
			return models.RenderedPage{}, fmt.Errorf("create preview directory: %w", err)
		}
		if err := os.WriteFile(r.SavePath, data, 0644); err != nil {
			return models.RenderedPage{}, fmt.Errorf("write preview: %w", err)
		}
	}
	return out, nil
}

func (w *Worker) annotations(r *GetAnnotationsRequest) ([]models.Annotation, error) {
	doc, err := w.ensureLoaded(r.ID)
	if err != nil {
		return nil, err
	}
	out := []models.Annotation{}
	for page := 0; page < doc.PageCount(); page++ {
		raws, err := doc.Annotations(page)
		if err != nil {
			return nil, classify(models.ErrRender, err)
		}
		out = append(out, annotation.Extract(page, raws)...)
	}
	return out, nil
}

func (w *Worker) addAnnotation(r *AddAnnotationRequest) error {
	doc, err := w.ensureLoaded(r.ID)
	if err != nil {
		return err
	}
	return w.editor.Add(r.ID, r.Annotation, doc.PageCount())
}

func (w *Worker) removeAnnotation(r *RemoveAnnotationRequest) error {
	doc, err := w.ensureLoaded(r.ID)
	if err != nil {
		return err
	}
	return w.editor.Remove(r.ID, r.Page, r.AnnotationID, doc.PageCount())
}
