// Package server provides the HTTP API for policyd.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/civiclens/policyd/internal/config"
	"github.com/civiclens/policyd/internal/ingest"
	"github.com/civiclens/policyd/internal/pipeline"
	"github.com/civiclens/policyd/internal/storage"
)

// Server is the HTTP server for the policyd API.
type Server struct {
	ingest   *ingest.Service
	pipeline *pipeline.Extraction
	storage  storage.Storage
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	ing *ingest.Service,
	pipe *pipeline.Extraction,
	st storage.Storage,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		ingest:   ing,
		pipeline: pipe,
		storage:  st,
		config:   cfg,
		logger:   logger,
	}
}

// Handler returns the full request mux, for embedding in tests or
// other servers.
func (s *Server) Handler() http.Handler {
	return s.router()
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	r := s.router()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/policies", s.handleUpload)
	r.Get("/api/v1/policies", s.handleList)
	r.Get("/api/v1/policies/{id}", s.handleGet)
	r.Patch("/api/v1/policies/{id}", s.handleUpdate)
	r.Delete("/api/v1/policies/{id}", s.handleDelete)
	r.Post("/api/v1/policies/{id}/extract", s.handleExtract)
	r.Get("/api/v1/policies/{id}/text", s.handleExtractedText)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
