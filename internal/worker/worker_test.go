package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/yomu/internal/backend"
	"github.com/hyperjump/yomu/internal/models"
)

func call[T any](t *testing.T, p *Pool, build func(*Reply[T]) Request) (T, error) {
	t.Helper()
	reply := NewReply[T]()
	if err := p.Submit(build(reply)); err != nil {
		var zero T
		return zero, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return reply.Wait(ctx)
}

func openDoc(t *testing.T, p *Pool, id models.DocumentID, path string) {
	t.Helper()
	_, err := call(t, p, func(r *Reply[struct{}]) Request {
		return &OpenRequest{ID: id, Path: path, Reply: r}
	})
	if err != nil {
		t.Fatalf("open %s: %v", id, err)
	}
}

func info(t *testing.T, p *Pool, id models.DocumentID) (models.Info, error) {
	t.Helper()
	return call(t, p, func(r *Reply[models.Info]) Request { return &InfoRequest{ID: id, Reply: r} })
}

func render(t *testing.T, p *Pool, id models.DocumentID, page, width int) (models.RenderedPage, error) {
	t.Helper()
	return call(t, p, func(r *Reply[models.RenderedPage]) Request {
		return &RenderRequest{ID: id, Page: page, Width: width, Reply: r}
	})
}

func newTestPool(t *testing.T, b backend.Backend, opts ...Option) *Pool {
	t.Helper()
	p := NewPool(b, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
	return p
}

func twoPageSpec(fill color.RGBA) backend.MockSpec {
	return backend.MockSpec{
		Fill: fill,
		Pages: []backend.MockPage{
			{Width: 100, Height: 200, Chars: backend.TextChars("the cat sat", 10, 150, 5, 10)},
			{Width: 100, Height: 200, Chars: backend.TextChars("at last", 10, 150, 5, 10),
				Annotations: []backend.RawAnnotation{
					{Subtype: "Ink"},
					{Subtype: "Highlight", QuadPoints: []float64{10, 150, 20, 150, 20, 160, 10, 160}, Author: "bob"},
				}},
		},
	}
}

func TestReply_ExactlyOnce(t *testing.T) {
	r := NewReply[int]()
	r.send(1, nil)
	r.send(2, nil)
	r.abandon()
	v, err := r.Wait(context.Background())
	if err != nil || v != 1 {
		t.Errorf("Wait = %d, %v; want 1, nil", v, err)
	}
}

func TestReply_AbandonIsDispatchError(t *testing.T) {
	r := NewReply[int]()
	r.abandon()
	r.send(1, nil)
	if _, err := r.Wait(context.Background()); !errors.Is(err, models.ErrDispatch) {
		t.Errorf("err = %v, want ErrDispatch", err)
	}
}

func TestReply_ContextEnds(t *testing.T) {
	r := NewReply[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	// a late result lands in the buffered slot without blocking the sender
	r.send(7, nil)
}

func TestMailbox_FIFOAndClose(t *testing.T) {
	m := newMailbox()
	a := &InfoRequest{ID: "a", Reply: NewReply[models.Info]()}
	b := &InfoRequest{ID: "b", Reply: NewReply[models.Info]()}
	c := &InfoRequest{ID: "c", Reply: NewReply[models.Info]()}
	m.put(a)
	m.put(b)
	m.put(c)
	if got, _ := m.take(); got != Request(a) {
		t.Errorf("first take = %v", got)
	}
	rest := m.close()
	if len(rest) != 2 || rest[0] != Request(b) || rest[1] != Request(c) {
		t.Errorf("close returned %v", rest)
	}
	if m.put(a) {
		t.Error("put after close should fail")
	}
	if _, ok := m.take(); ok {
		t.Error("take after close should report false")
	}
}

func TestMailbox_TakeBlocksUntilPut(t *testing.T) {
	m := newMailbox()
	got := make(chan Request, 1)
	go func() {
		r, _ := m.take()
		got <- r
	}()
	req := &InfoRequest{ID: "x", Reply: NewReply[models.Info]()}
	time.Sleep(10 * time.Millisecond)
	m.put(req)
	select {
	case r := <-got:
		if r != Request(req) {
			t.Errorf("took %v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("take did not wake up")
	}
}

func TestPool_OpenIsLazy(t *testing.T) {
	b := backend.NewMockBackend()
	b.Add("/doc.pdf", twoPageSpec(color.RGBA{A: 255}))
	p := newTestPool(t, b, WithSize(2))

	openDoc(t, p, "d1", "/doc.pdf")
	if n := b.Loads("/doc.pdf"); n != 0 {
		t.Fatalf("open loaded the document %d times", n)
	}
	got, err := info(t, p, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if got.PageCount != 2 || got.Width != 100 || got.Height != 200 {
		t.Errorf("info = %+v", got)
	}
	for i := 0; i < 5; i++ {
		if _, err := info(t, p, "d1"); err != nil {
			t.Fatal(err)
		}
	}
	if n := b.Loads("/doc.pdf"); n != 1 {
		t.Errorf("loads = %d, want 1", n)
	}
}

func TestPool_UnknownAndClosedIDs(t *testing.T) {
	b := backend.NewMockBackend()
	b.Add("/doc.pdf", twoPageSpec(color.RGBA{A: 255}))
	p := newTestPool(t, b)

	if _, err := info(t, p, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown id err = %v", err)
	}

	openDoc(t, p, "d1", "/doc.pdf")
	if _, err := info(t, p, "d1"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		_, err := call(t, p, func(r *Reply[struct{}]) Request { return &CloseRequest{ID: "d1", Reply: r} })
		if err != nil {
			t.Fatalf("close #%d: %v", i+1, err)
		}
	}
	if b.Live("/doc.pdf") != 0 {
		t.Error("close should release the handle")
	}
	if _, err := info(t, p, "d1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("after close err = %v", err)
	}
	if _, err := render(t, p, "d1", 0, 50); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("render after close err = %v", err)
	}
}

func TestPool_StickyRouting(t *testing.T) {
	b := backend.NewMockBackend()
	p := newTestPool(t, b, WithSize(4))
	const docs = 24
	for i := 0; i < docs; i++ {
		path := fmt.Sprintf("/doc-%d.pdf", i)
		b.Add(path, twoPageSpec(color.RGBA{A: 255}))
		openDoc(t, p, models.DocumentID(fmt.Sprintf("id-%d", i)), path)
	}
	for round := 0; round < 3; round++ {
		for i := 0; i < docs; i++ {
			if _, err := info(t, p, models.DocumentID(fmt.Sprintf("id-%d", i))); err != nil {
				t.Fatalf("round %d doc %d: %v", round, i, err)
			}
		}
	}
	for i := 0; i < docs; i++ {
		if n := b.Loads(fmt.Sprintf("/doc-%d.pdf", i)); n != 1 {
			t.Errorf("doc %d loaded %d times, want 1", i, n)
		}
	}
	if p.route("id-3") != p.route("id-3") {
		t.Error("route must be deterministic")
	}
}

func TestPool_RenderAndErrors(t *testing.T) {
	b := backend.NewMockBackend()
	fill := color.RGBA{R: 10, G: 200, B: 30, A: 255}
	b.Add("/doc.pdf", twoPageSpec(fill))
	p := newTestPool(t, b)
	openDoc(t, p, "d1", "/doc.pdf")

	page, err := render(t, p, "d1", 0, 50)
	if err != nil {
		t.Fatal(err)
	}
	if page.Width != 50 || page.Height != 100 {
		t.Errorf("size = %dx%d, want 50x100", page.Width, page.Height)
	}
	img, err := png.Decode(bytes.NewReader(page.Data))
	if err != nil {
		t.Fatal(err)
	}
	if got := color.RGBAModel.Convert(img.At(0, 0)).(color.RGBA); got != fill {
		t.Errorf("pixel = %v, want %v", got, fill)
	}

	again, err := render(t, p, "d1", 0, 50)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(page.Data, again.Data) || again.Width != page.Width || again.Height != page.Height {
		t.Error("repeated render should be identical")
	}

	if _, err := render(t, p, "d1", 2, 50); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("page past end err = %v", err)
	}
	if _, err := render(t, p, "d1", -1, 50); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("negative page err = %v", err)
	}
	if _, err := render(t, p, "d1", 0, 0); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("zero width err = %v", err)
	}
}

func TestPool_RasterLimits(t *testing.T) {
	b := backend.NewMockBackend()
	b.Add("/doc.pdf", twoPageSpec(color.RGBA{A: 255}))
	p := newTestPool(t, b, WithSize(1))
	openDoc(t, p, "d1", "/doc.pdf")

	if _, err := render(t, p, "d1", 0, 200000); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("huge width err = %v", err)
	}
	_, err := call(t, p, func(r *Reply[models.RenderedTile]) Request {
		return &RenderTileRequest{ID: "d1", Page: 0, Width: 200000, Tile: models.TileRect{Width: 10, Height: 10}, Reply: r}
	})
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("huge tile width err = %v", err)
	}
	_, err = call(t, p, func(r *Reply[models.RenderedPage]) Request {
		return &PreviewRequest{ID: "d1", Width: 200000, Reply: r}
	})
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("huge preview err = %v", err)
	}
	if got, err := info(t, p, "d1"); err != nil || got.PageCount != 2 {
		t.Errorf("worker unusable after rejected renders: %+v, %v", got, err)
	}

	small := newTestPool(t, b, WithSize(1), WithMaxRaster(1000, 10000))
	openDoc(t, small, "d2", "/doc.pdf")
	// 100x200 is 20000 pixels
	if _, err := render(t, small, "d2", 0, 100); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("pixel budget err = %v", err)
	}
	if page, err := render(t, small, "d2", 0, 70); err != nil || page.Height != 140 {
		t.Errorf("render within budget = %dx%d, %v", page.Width, page.Height, err)
	}
}

func TestPool_RenderTile(t *testing.T) {
	b := backend.NewMockBackend()
	b.Add("/doc.pdf", twoPageSpec(color.RGBA{B: 255, A: 255}))
	p := newTestPool(t, b)
	openDoc(t, p, "d1", "/doc.pdf")

	tile := func(rect models.TileRect) (models.RenderedTile, error) {
		return call(t, p, func(r *Reply[models.RenderedTile]) Request {
			return &RenderTileRequest{ID: "d1", Page: 0, Width: 100, Tile: rect, Reply: r}
		})
	}

	got, err := tile(models.TileRect{X: 20, Y: 40, Width: 30, Height: 10})
	if err != nil {
		t.Fatal(err)
	}
	if got.Width != 30 || got.Height != 10 || got.OffsetX != 20 || got.OffsetY != 40 {
		t.Errorf("tile = %dx%d at %d,%d", got.Width, got.Height, got.OffsetX, got.OffsetY)
	}
	img, err := png.Decode(bytes.NewReader(got.Data))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 30 || img.Bounds().Dy() != 10 {
		t.Errorf("decoded bounds = %v", img.Bounds())
	}

	clamped, err := tile(models.TileRect{X: 90, Y: 190, Width: 50, Height: 50})
	if err != nil {
		t.Fatal(err)
	}
	if clamped.Width != 10 || clamped.Height != 10 {
		t.Errorf("clamped tile = %dx%d, want 10x10", clamped.Width, clamped.Height)
	}

	for _, bad := range []models.TileRect{
		{X: 0, Y: 0, Width: 0, Height: 10},
		{X: -1, Y: 0, Width: 5, Height: 5},
		{X: 500, Y: 0, Width: 5, Height: 5},
	} {
		if _, err := tile(bad); !errors.Is(err, models.ErrInvalidArgument) {
			t.Errorf("tile %+v err = %v", bad, err)
		}
	}
}

func TestPool_TextSearchBookmarksAnnotations(t *testing.T) {
	b := backend.NewMockBackend()
	spec := twoPageSpec(color.RGBA{A: 255})
	page := 1
	spec.Bookmarks = []models.Bookmark{{Title: "Two", PageIndex: &page}}
	b.Add("/doc.pdf", spec)
	p := newTestPool(t, b)
	openDoc(t, p, "d1", "/doc.pdf")

	pt, err := call(t, p, func(r *Reply[models.PageText]) Request { return &TextRequest{ID: "d1", Page: 0, Reply: r} })
	if err != nil {
		t.Fatal(err)
	}
	if len(pt.Items) != 1 || pt.Items[0].Text != "the cat sat" || pt.Height != 200 {
		t.Errorf("page text = %+v", pt)
	}
	if _, err := call(t, p, func(r *Reply[models.PageText]) Request { return &TextRequest{ID: "d1", Page: 9, Reply: r} }); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("text past end err = %v", err)
	}

	hits, err := call(t, p, func(r *Reply[[]models.SearchHit]) Request { return &SearchRequest{ID: "d1", Query: "at", Reply: r} })
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 3 {
		t.Fatalf("hits = %+v, want 3", hits)
	}
	if hits[0].Start != 5 || hits[1].Start != 9 || hits[2].Page != 1 || hits[2].Start != 0 {
		t.Errorf("hits = %+v", hits)
	}
	empty, err := call(t, p, func(r *Reply[[]models.SearchHit]) Request { return &SearchRequest{ID: "d1", Reply: r} })
	if err != nil || len(empty) != 0 {
		t.Errorf("empty query = %v, %v", empty, err)
	}

	bms, err := call(t, p, func(r *Reply[models.Bookmarks]) Request { return &BookmarksRequest{ID: "d1", Reply: r} })
	if err != nil || len(bms.Items) != 1 || *bms.Items[0].PageIndex != 1 {
		t.Errorf("bookmarks = %+v, %v", bms, err)
	}

	anns, err := call(t, p, func(r *Reply[[]models.Annotation]) Request { return &GetAnnotationsRequest{ID: "d1", Reply: r} })
	if err != nil {
		t.Fatal(err)
	}
	if len(anns) != 1 || anns[0].ID != "hl-1-1" || anns[0].Metadata.Author != "bob" {
		t.Errorf("annotations = %+v", anns)
	}

	_, err = call(t, p, func(r *Reply[struct{}]) Request {
		return &RemoveAnnotationRequest{ID: "d1", Page: 1, AnnotationID: "hl-1-1", Reply: r}
	})
	if err != nil {
		t.Errorf("remove: %v", err)
	}
	_, err = call(t, p, func(r *Reply[struct{}]) Request {
		return &AddAnnotationRequest{ID: "d1", Annotation: models.Annotation{PageIndex: 7}, Reply: r}
	})
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("add invalid err = %v", err)
	}
	after, _ := call(t, p, func(r *Reply[[]models.Annotation]) Request { return &GetAnnotationsRequest{ID: "d1", Reply: r} })
	if len(after) != 1 {
		t.Error("annotation edits must not modify the document")
	}
}

func TestPool_Preview(t *testing.T) {
	b := backend.NewMockBackend()
	b.Add("/doc.pdf", twoPageSpec(color.RGBA{R: 255, A: 255}))
	p := newTestPool(t, b, WithPreviewWidth(40))
	openDoc(t, p, "d1", "/doc.pdf")

	save := filepath.Join(t.TempDir(), "nested", "dir", "preview.png")
	got, err := call(t, p, func(r *Reply[models.RenderedPage]) Request {
		return &PreviewRequest{ID: "d1", SavePath: save, Reply: r}
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Width != 40 || got.Height != 80 {
		t.Errorf("preview = %dx%d, want 40x80", got.Width, got.Height)
	}
	onDisk, err := os.ReadFile(save)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(onDisk, got.Data) {
		t.Error("saved preview differs from returned bytes")
	}
}

func TestPool_PanicIsContained(t *testing.T) {
	b := backend.NewMockBackend()
	spec := twoPageSpec(color.RGBA{A: 255})
	spec.Pages[1].PanicOnRender = true
	b.Add("/doc.pdf", spec)
	p := newTestPool(t, b, WithSize(1))
	openDoc(t, p, "d1", "/doc.pdf")

	if _, err := render(t, p, "d1", 1, 50); !errors.Is(err, models.ErrRender) {
		t.Fatalf("panic err = %v, want ErrRender", err)
	}
	if b.Live("/doc.pdf") != 0 {
		t.Error("panicking handle should be evicted")
	}
	if _, err := render(t, p, "d1", 0, 50); err != nil {
		t.Fatalf("worker should keep serving: %v", err)
	}
	if n := b.Loads("/doc.pdf"); n != 2 {
		t.Errorf("loads = %d, want a lazy reload", n)
	}
}

func TestPool_LoadFailure(t *testing.T) {
	b := backend.NewMockBackend()
	b.FailLoad("/bad.pdf", errors.New("corrupt xref"))
	p := newTestPool(t, b)
	openDoc(t, p, "bad", "/bad.pdf")
	if _, err := info(t, p, "bad"); !errors.Is(err, models.ErrLoad) {
		t.Errorf("err = %v, want ErrLoad", err)
	}
	// the path stays registered, so the failure repeats instead of turning into not found
	if _, err := info(t, p, "bad"); !errors.Is(err, models.ErrLoad) {
		t.Errorf("retry err = %v, want ErrLoad", err)
	}
}

func TestPool_ConcurrentRendersOfDistinctDocuments(t *testing.T) {
	b := backend.NewMockBackend()
	p := newTestPool(t, b, WithSize(4), WithRenderCache(0))
	const docs = 16
	fills := make([]color.RGBA, docs)
	for i := 0; i < docs; i++ {
		fills[i] = color.RGBA{R: uint8(i * 15), G: uint8(255 - i*15), B: 77, A: 255}
		path := fmt.Sprintf("/doc-%d.pdf", i)
		b.Add(path, twoPageSpec(fills[i]))
		openDoc(t, p, models.DocumentID(fmt.Sprintf("id-%d", i)), path)
	}

	var wg sync.WaitGroup
	errs := make(chan error, docs)
	for i := 0; i < docs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			page, err := render(t, p, models.DocumentID(fmt.Sprintf("id-%d", i)), 0, 40)
			if err != nil {
				errs <- err
				return
			}
			img, err := png.Decode(bytes.NewReader(page.Data))
			if err != nil {
				errs <- err
				return
			}
			if got := color.RGBAModel.Convert(img.At(0, 0)).(color.RGBA); got != fills[i] {
				errs <- fmt.Errorf("doc %d: pixel %v, want %v", i, got, fills[i])
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestPool_Shutdown(t *testing.T) {
	b := backend.NewMockBackend()
	b.Add("/doc.pdf", twoPageSpec(color.RGBA{A: 255}))
	p := NewPool(b, WithSize(2))
	openDoc(t, p, "d1", "/doc.pdf")
	if _, err := info(t, p, "d1"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	if b.Live("/doc.pdf") != 0 {
		t.Error("shutdown should release every handle")
	}
	if _, err := info(t, p, "d1"); !errors.Is(err, models.ErrDispatch) {
		t.Errorf("submit after shutdown err = %v, want ErrDispatch", err)
	}
	if err := p.Shutdown(ctx); err != nil {
		t.Errorf("second shutdown: %v", err)
	}
}
