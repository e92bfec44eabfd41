// Package server exposes conversion sessions over HTTP.
//
// Routes:
//
//	POST   /api/sessions                          create a session
//	GET    /api/sessions/{id}                     session snapshot
//	POST   /api/sessions/{id}/convert             convert multipart field "file"
//	POST   /api/sessions/{id}/drop                convert the first of multipart "files"
//	POST   /api/sessions/{id}/downloads/{variant} create the download artifact
//	DELETE /api/sessions/{id}                     reset and drop a session
//	GET    /api/artifacts/{handle}                fetch a download artifact
//	GET    /healthz                               liveness and build info
//
// Errors are JSON objects {"code": ..., "error": ...} with a status derived
// from the error code.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/matzehuels/tracekit/pkg/artifact"
	"github.com/matzehuels/tracekit/pkg/cache"
	"github.com/matzehuels/tracekit/pkg/observability"
	"github.com/matzehuels/tracekit/pkg/pipeline"
	"github.com/matzehuels/tracekit/pkg/session"
)

const (
	// DefaultMaxUpload bounds multipart request bodies.
	DefaultMaxUpload = 32 << 20

	// cleanupInterval is how often expired sessions are dropped.
	cleanupInterval = time.Minute

	// shutdownTimeout bounds graceful shutdown.
	shutdownTimeout = 10 * time.Second
)

// Config tunes the server.
type Config struct {
	MaxUpload  int64            // zero uses DefaultMaxUpload
	SessionTTL time.Duration    // zero uses session.DefaultTTL
	Options    pipeline.Options // defaults for every conversion
}

// Server serves conversion sessions.
type Server struct {
	runner    *pipeline.Runner
	sessions  session.Store
	artifacts *artifact.Store
	logger    *log.Logger
	cfg       Config
	router    chi.Router
}

// New creates a server. Nil sessions and artifacts use in-memory stores.
func New(runner *pipeline.Runner, sessions session.Store, artifacts *artifact.Store, logger *log.Logger, cfg Config) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if runner == nil {
		runner = pipeline.NewRunner(nil, nil, logger)
	}
	if sessions == nil {
		sessions = session.NewMemoryStore()
	}
	if artifacts == nil {
		artifacts = artifact.NewStore(nil, nil, 0)
	}
	if cfg.MaxUpload <= 0 {
		cfg.MaxUpload = DefaultMaxUpload
	}
	s := &Server{
		runner:    runner,
		sessions:  sessions,
		artifacts: artifacts,
		logger:    logger,
		cfg:       cfg,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/convert", s.handleConvert)
			r.Post("/drop", s.handleDrop)
			r.Post("/downloads/{variant}", s.handleDownload)
		})
		r.Get("/artifacts/{handle}", s.handleArtifact)
	})
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go s.cleanupLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Server) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup(ctx)
		}
	}
}

// cleanup drops expired sessions, cached traces and artifacts.
func (s *Server) cleanup(ctx context.Context) {
	if err := s.sessions.Cleanup(ctx); err != nil {
		s.logger.Warn("session cleanup failed", "err", err)
	}
	traces := cache.Sweep(s.runner.Cache)
	artifacts := s.artifacts.Cleanup()
	if traces > 0 || artifacts > 0 {
		s.logger.Debug("expired entries dropped", "traces", traces, "artifacts", artifacts)
	}
}

// logRequests logs each request at debug level and reports it to the HTTP
// hooks.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hooks := observability.HTTP()
		start := time.Now()
		hooks.OnRequest(r.Context(), r.Method, r.URL.Path)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		dur := time.Since(start)
		hooks.OnResponse(r.Context(), r.Method, r.URL.Path, status, dur)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", dur,
			"request_id", middleware.GetReqID(r.Context()))
	})
}
