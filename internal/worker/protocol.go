// Package worker implements the request protocol, the document workers and the pool that
// routes requests to them.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/yomu/internal/models"
)

type result[T any] struct {
	value T
	err   error
}

// Reply is a single-use response slot. Exactly one message is ever delivered: either a
// result or the closure of the slot when the request is dropped undelivered.
type Reply[T any] struct {
	ch   chan result[T]
	once sync.Once
}

// NewReply returns an empty reply slot.
func NewReply[T any]() *Reply[T] {
	return &Reply[T]{ch: make(chan result[T], 1)}
}

func (r *Reply[T]) send(v T, err error) {
	r.once.Do(func() {
		r.ch <- result[T]{value: v, err: err}
		close(r.ch)
	})
}

func (r *Reply[T]) abandon() {
	r.once.Do(func() { close(r.ch) })
}

// Wait blocks until the reply arrives or ctx ends. A slot closed without a value yields
// ErrDispatch. Giving up on ctx does not stop the request; its result is discarded.
func (r *Reply[T]) Wait(ctx context.Context) (T, error) {
	var zero T
	select {
	case res, ok := <-r.ch:
		if !ok {
			return zero, fmt.Errorf("%w: reply dropped before a result was sent", models.ErrDispatch)
		}
		return res.value, res.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Request is one operation addressed to a document. The set of implementations is closed.
type Request interface {
	DocumentID() models.DocumentID
	fail(err error)
	abandon()
}

// OpenRequest registers a path under a freshly minted id. The document is not loaded.
type OpenRequest struct {
	ID    models.DocumentID
	Path  string
	Reply *Reply[struct{}]
}

// CloseRequest releases everything the worker holds for ID. Unknown ids succeed.
type CloseRequest struct {
	ID    models.DocumentID
	Reply *Reply[struct{}]
}

// RenderRequest renders a whole page Width pixels wide.
type RenderRequest struct {
	ID    models.DocumentID
	Page  int
	Width int
	Reply *Reply[models.RenderedPage]
}

// RenderTileRequest renders Tile of the page scaled to Width pixels wide.
type RenderTileRequest struct {
	ID    models.DocumentID
	Page  int
	Width int
	Tile  models.TileRect
	Reply *Reply[models.RenderedTile]
}

// InfoRequest asks for the page count and first page size.
type InfoRequest struct {
	ID    models.DocumentID
	Reply *Reply[models.Info]
}

// BookmarksRequest asks for the outline tree.
type BookmarksRequest struct {
	ID    models.DocumentID
	Reply *Reply[models.Bookmarks]
}

// TextRequest asks for the reconstructed text fragments of a page.
type TextRequest struct {
	ID    models.DocumentID
	Page  int
	Reply *Reply[models.PageText]
}

// SearchRequest searches the whole document for Query.
type SearchRequest struct {
	ID    models.DocumentID
	Query string
	Reply *Reply[[]models.SearchHit]
}

// PreviewRequest renders a small image of the first page. Width 0 uses the worker default.
// When SavePath is set the encoded image is also written there.
type PreviewRequest struct {
	ID       models.DocumentID
	Width    int
	SavePath string
	Reply    *Reply[models.RenderedPage]
}

// GetAnnotationsRequest lists the markup annotations of every page.
type GetAnnotationsRequest struct {
	ID    models.DocumentID
	Reply *Reply[[]models.Annotation]
}

// AddAnnotationRequest validates an annotation to add. Documents are not modified.
type AddAnnotationRequest struct {
	ID         models.DocumentID
	Annotation models.Annotation
	Reply      *Reply[struct{}]
}

// RemoveAnnotationRequest validates an annotation removal. Documents are not modified.
type RemoveAnnotationRequest struct {
	ID           models.DocumentID
	Page         int
	AnnotationID string
	Reply        *Reply[struct{}]
}

func (r *OpenRequest) DocumentID() models.DocumentID             { return r.ID }
func (r *CloseRequest) DocumentID() models.DocumentID            { return r.ID }
func (r *RenderRequest) DocumentID() models.DocumentID           { return r.ID }
func (r *RenderTileRequest) DocumentID() models.DocumentID       { return r.ID }
func (r *InfoRequest) DocumentID() models.DocumentID             { return r.ID }
func (r *BookmarksRequest) DocumentID() models.DocumentID        { return r.ID }
func (r *TextRequest) DocumentID() models.DocumentID             { return r.ID }
func (r *SearchRequest) DocumentID() models.DocumentID           { return r.ID }
func (r *PreviewRequest) DocumentID() models.DocumentID          { return r.ID }
func (r *GetAnnotationsRequest) DocumentID() models.DocumentID   { return r.ID }
func (r *AddAnnotationRequest) DocumentID() models.DocumentID    { return r.ID }
func (r *RemoveAnnotationRequest) DocumentID() models.DocumentID { return r.ID }

func (r *OpenRequest) fail(err error)             { r.Reply.send(struct{}{}, err) }
func (r *CloseRequest) fail(err error)            { r.Reply.send(struct{}{}, err) }
func (r *RenderRequest) fail(err error)           { r.Reply.send(models.RenderedPage{}, err) }
func (r *RenderTileRequest) fail(err error)       { r.Reply.send(models.RenderedTile{}, err) }
func (r *InfoRequest) fail(err error)             { r.Reply.send(models.Info{}, err) }
func (r *BookmarksRequest) fail(err error)        { r.Reply.send(models.Bookmarks{}, err) }
func (r *TextRequest) fail(err error)             { r.Reply.send(models.PageText{}, err) }
func (r *SearchRequest) fail(err error)           { r.Reply.send(nil, err) }
func (r *PreviewRequest) fail(err error)          { r.Reply.send(models.RenderedPage{}, err) }
func (r *GetAnnotationsRequest) fail(err error)   { r.Reply.send(nil, err) }
func (r *AddAnnotationRequest) fail(err error)    { r.Reply.send(struct{}{}, err) }
func (r *RemoveAnnotationRequest) fail(err error) { r.Reply.send(struct{}{}, err) }

func (r *OpenRequest) abandon()             { r.Reply.abandon() }
func (r *CloseRequest) abandon()            { r.Reply.abandon() }
func (r *RenderRequest) abandon()           { r.Reply.abandon() }
func (r *RenderTileRequest) abandon()       { r.Reply.abandon() }
func (r *InfoRequest) abandon()             { r.Reply.abandon() }
func (r *BookmarksRequest) abandon()        { r.Reply.abandon() }
func (r *TextRequest) abandon()             { r.Reply.abandon() }
func (r *SearchRequest) abandon()           { r.Reply.abandon() }
func (r *PreviewRequest) abandon()          { r.Reply.abandon() }
func (r *GetAnnotationsRequest) abandon()   { r.Reply.abandon() }
func (r *AddAnnotationRequest) abandon()    { r.Reply.abandon() }
func (r *RemoveAnnotationRequest) abandon() { r.Reply.abandon() }
