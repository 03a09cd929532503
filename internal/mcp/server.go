// internal/mcp/server.go

// Package mcp exposes the tool surface over HTTP: a JSON call endpoint,
// tool introspection, a health probe and static serving of persisted
// artifacts.
package mcp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagesmith/internal/config"
	"github.com/xkilldash9x/pagesmith/internal/tools"
)

// Server is the HTTP front of the tool engine.
type Server struct {
	logger       *zap.Logger
	cfg          config.ServerConfig
	registry     *tools.Registry
	artifactsDir string
	artifactsURL string

	httpServer *http.Server
}

// NewServer wires the router. artifactsDir is served read-only under
// artifactsURL so by-reference screenshots are retrievable.
func NewServer(cfg config.ServerConfig, registry *tools.Registry, artifactsDir, artifactsURL string, logger *zap.Logger) *Server {
	s := &Server{
		logger:       logger.Named("http"),
		cfg:          cfg,
		registry:     registry,
		artifactsDir: artifactsDir,
		artifactsURL: artifactsURL,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))

	r.Get("/healthz", s.handleHealthz)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/tools", s.handleListTools)
		r.Post("/tools/call", s.handleCallTool)
	})

	if s.artifactsDir != "" && s.artifactsURL != "" {
		fs := http.StripPrefix(s.artifactsURL, http.FileServer(http.Dir(s.artifactsDir)))
		r.Get(s.artifactsURL+"/*", fs.ServeHTTP)
	}
	return r
}

// logRequests emits one structured line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("Request handled.",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Start serves until ctx is cancelled, then drains gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening.", zap.String("addr", s.cfg.ListenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info("HTTP server shutting down.")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Handler exposes the router for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
