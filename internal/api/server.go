// Package api serves the local control API: one-shot queries, reindex
// triggers and an event stream.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/perchrun/perch/internal/collect"
	"github.com/perchrun/perch/internal/events"
	"github.com/perchrun/perch/internal/log"
)

//go:generate mockgen -source=server.go -destination=mocks_test.go -package=api

// Searcher runs a one-shot collection for a query and returns the final
// ranked batch.
type Searcher interface {
	Search(ctx context.Context, query string) ([]collect.GenericEntry, error)
}

// Reindexer triggers a rebuild of the file index.
type Reindexer interface {
	Rebuild(ctx context.Context) error
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// QueryTimeout bounds one-shot query collection.
	QueryTimeout time.Duration
}

// Server is the HTTP control API.
type Server struct {
	config   Config
	searcher Searcher
	index    Reindexer
	events   *events.Hub
	logger   *slog.Logger
	server   *http.Server
}

// New creates the API server. events may be nil to disable the SSE endpoint.
func New(config Config, searcher Searcher, index Reindexer, hub *events.Hub) *Server {
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = 5 * time.Second
	}
	return &Server{
		config:   config,
		searcher: searcher,
		index:    index,
		events:   hub,
		logger:   log.WithComponent("api"),
	}
}

// Start runs the HTTP server until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE connections stay open
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("control API starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("control API shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
		r.Post("/reindex", s.handleReindex)
		r.Get("/events", s.handleEvents)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
