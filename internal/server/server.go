// Package server provides the HTTP API for Kotae.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/cache"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/media"
	"github.com/hyperjump/kotae/internal/retrieve"
	"github.com/hyperjump/kotae/internal/session"
	"github.com/hyperjump/kotae/internal/transcribe"
)

// Server is the HTTP server for the Kotae API.
type Server struct {
	ingestor    *ingest.Ingestor
	retriever   *retrieve.Retriever
	transcriber transcribe.Transcriber
	session     *session.Session
	cache       *cache.Store
	media       *media.Store
	config      *config.ServerConfig
	logger      *zap.Logger
	server      *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	ing *ingest.Ingestor,
	ret *retrieve.Retriever,
	trans transcribe.Transcriber,
	sess *session.Session,
	cacheStore *cache.Store,
	mediaStore *media.Store,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		ingestor:    ing,
		retriever:   ret,
		transcriber: trans,
		session:     sess,
		cache:       cacheStore,
		media:       mediaStore,
		config:      cfg,
		logger:      logger,
	}
}

// Router assembles the chi router. The answer stream and the upload pipeline
// get no timeout middleware; both are bounded by their own deadlines and by
// client disconnect.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.Compress(5))
		r.Get("/", s.handleIndex)
		r.Get("/health", s.handleHealth)
		r.Get("/files", s.handleFiles)
		r.Get("/session-info", s.handleSessionInfo)
		r.Post("/clear-session", s.handleClearSession)
	})

	r.Post("/upload", s.handleUpload)
	r.Post("/ask", s.handleAsk)
	r.Post("/transcribe", s.handleTranscribe)

	fileServer := http.StripPrefix("/media/", http.FileServer(http.Dir(s.media.Dir())))
	r.Get("/media/*", fileServer.ServeHTTP)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
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
