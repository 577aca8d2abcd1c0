package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/hyperjump/yomu/internal/catalog"
	"github.com/hyperjump/yomu/internal/models"
	"go.uber.org/zap"
)

const (
	headerImageType = "X-Image-Type"
	headerOffsetX   = "X-Tile-Offset-X"
	headerOffsetY   = "X-Tile-Offset-Y"
)

type openRequest struct {
	Path string `json:"path"`
}

type librarySearchRequest struct {
	Query      string  `json:"query"`
	Limit      int     `json:"limit"`
	Fuzzy      bool    `json:"fuzzy"`
	Fuzziness  int     `json:"fuzziness"`
	TitleBoost float64 `json:"title_boost"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Stats(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, st)
}

func (s *Server) handleLibraryList(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	entries, err := s.svc.Recent(r.Context(), offset, limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *Server) handleLibrarySearch(w http.ResponseWriter, r *http.Request) {
	var req librarySearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: invalid request body", models.ErrInvalidArgument))
		return
	}
	s.logger.Debug("library search request", zap.String("query", req.Query), zap.Int("limit", req.Limit))
	hits, err := s.svc.SearchLibrary(r.Context(), req.Query, req.Limit, &catalog.SearchOptions{
		TitleBoost:   req.TitleBoost,
		FuzzyEnabled: req.Fuzzy,
		Fuzziness:    req.Fuzziness,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, map[string]interface{}{"hits": hits})
}

func (s *Server) handleLibraryForget(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Forget(r.Context(), chi.URLParam(r, "libraryID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: invalid request body", models.ErrInvalidArgument))
		return
	}
	id, err := s.svc.Open(r.Context(), req.Path)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusCreated, map[string]string{"id": id.String()})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, r, http.StatusOK, map[string]interface{}{"documents": s.svc.Documents()})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.CloseDocument(r.Context(), documentID(r)); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, map[string]string{"status": "closed"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.Info(r.Context(), documentID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, info)
}

func (s *Server) handleBookmarks(w http.ResponseWriter, r *http.Request) {
	bookmarks, err := s.svc.Bookmarks(r.Context(), documentID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, bookmarks)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	hits, err := s.svc.Search(r.Context(), documentID(r), r.URL.Query().Get("q"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, map[string]interface{}{"hits": hits})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	width, err := queryInt(r, "width", 0)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	page, err := s.svc.Preview(r.Context(), documentID(r), width)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondImage(w, page, nil)
}

func (s *Server) handleAnnotations(w http.ResponseWriter, r *http.Request) {
	anns, err := s.svc.Annotations(r.Context(), documentID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, map[string]interface{}{"annotations": anns})
}

func (s *Server) handleAddAnnotation(w http.ResponseWriter, r *http.Request) {
	var a models.Annotation
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: invalid annotation body", models.ErrInvalidArgument))
		return
	}
	if err := s.svc.AddAnnotation(r.Context(), documentID(r), a); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRemoveAnnotation(w http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.svc.RemoveAnnotation(r.Context(), documentID(r), page, chi.URLParam(r, "annotationID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	width, err := queryInt(r, "width", 0)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	out, err := s.svc.Render(r.Context(), documentID(r), page, width)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondImage(w, out, nil)
}

func (s *Server) handleRenderTile(w http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var width int
	var tile models.TileRect
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"width", &width}, {"x", &tile.X}, {"y", &tile.Y}, {"w", &tile.Width}, {"h", &tile.Height},
	} {
		if *p.dst, err = queryInt(r, p.name, 0); err != nil {
			s.respondError(w, r, err)
			return
		}
	}
	out, err := s.svc.RenderTile(r.Context(), documentID(r), page, width, tile)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondImage(w, out.RenderedPage, &out)
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	pt, err := s.svc.TextByPage(r.Context(), documentID(r), page)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, pt)
}

func documentID(r *http.Request) models.DocumentID {
	return models.DocumentID(chi.URLParam(r, "id"))
}

func pageParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "page")
	page, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: page %q is not a number", models.ErrInvalidArgument, raw)
	}
	return page, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a number", models.ErrInvalidArgument, name, raw)
	}
	return v, nil
}

// respondImage writes the packed width/height/data blob. Tiles also carry their offsets.
func (s *Server) respondImage(w http.ResponseWriter, page models.RenderedPage, tile *models.RenderedTile) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set(headerImageType, s.imageType)
	if tile != nil {
		w.Header().Set(headerOffsetX, strconv.Itoa(tile.OffsetX))
		w.Header().Set(headerOffsetY, strconv.Itoa(tile.OffsetY))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(models.PackRendered(page.Width, page.Height, page.Data))
}

func (s *Server) respondJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	render.Status(r, status)
	render.JSON(w, r, data)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrDispatch):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		s.logger.Debug("request rejected", zap.String("path", r.URL.Path), zap.Error(err))
	}
	s.respondJSON(w, r, status, map[string]string{"error": err.Error(), "kind": models.ErrorKind(err)})
}
