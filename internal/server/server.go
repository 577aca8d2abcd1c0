// Package server provides the HTTP command API the webview UI talks to.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hyperjump/yomu/internal/config"
	"github.com/hyperjump/yomu/internal/reader"
	"go.uber.org/zap"
)

// Server is the HTTP server for the yomu API.
type Server struct {
	svc       *reader.Service
	config    *config.ServerConfig
	imageType string
	logger    *zap.Logger
	router    chi.Router
	server    *http.Server
}

// NewServer creates a server with the given dependencies. imageType is the content type of
// encoded page images, reported with every render response.
func NewServer(svc *reader.Service, cfg *config.ServerConfig, imageType string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		svc:       svc,
		config:    cfg,
		imageType: imageType,
		logger:    logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length"},
		ExposedHeaders:   []string{headerImageType, headerOffsetX, headerOffsetY},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)

		r.Get("/library", s.handleLibraryList)
		r.Post("/library/search", s.handleLibrarySearch)
		r.Delete("/library/{libraryID}", s.handleLibraryForget)

		r.Post("/documents", s.handleOpen)
		r.Get("/documents", s.handleDocuments)
		r.Route("/documents/{id}", func(r chi.Router) {
			r.Delete("/", s.handleClose)
			r.Get("/info", s.handleInfo)
			r.Get("/bookmarks", s.handleBookmarks)
			r.Get("/search", s.handleSearch)
			r.Get("/preview", s.handlePreview)
			r.Get("/annotations", s.handleAnnotations)
			r.Post("/annotations", s.handleAddAnnotation)
			r.Route("/pages/{page}", func(r chi.Router) {
				r.Get("/render", s.handleRender)
				r.Get("/tile", s.handleRenderTile)
				r.Get("/text", s.handleText)
				r.Delete("/annotations/{annotationID}", s.handleRemoveAnnotation)
			})
		})
	})
	return r
}

// Handler returns the router, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
