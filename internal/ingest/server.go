// Package ingest is the HTTP surface page shims report to.
package ingest

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/goodtune/beacon/internal/session"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxBodyBytes caps request bodies when no limit is configured.
	DefaultMaxBodyBytes = 1 << 20

	// maxSignals bounds one signal batch.
	maxSignals = 500
)

// Pages is the page registry the handlers drive.
type Pages interface {
	Open(init session.PageInit) (*session.Page, error)
	Dispatch(id string, signals []session.Signal) (int, error)
	Close(id string) error
	Len() int
}

// Config holds the ingest server configuration.
type Config struct {
	ListenAddr     string
	RateLimit      int
	RateWindow     time.Duration
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// Server is the ingest HTTP server.
type Server struct {
	config   Config
	pages    Pages
	server   *http.Server
	router   chi.Router
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
	logger   zerolog.Logger
}

// NewServer creates a new ingest server.
func NewServer(cfg Config, pages Pages, logger zerolog.Logger) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}

	s := &Server{
		config: cfg,
		pages:  pages,
		router: chi.NewRouter(),
		logger: logger.With().Str("component", "ingest").Logger(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	r := s.router
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(MetricsMiddleware)
	if len(s.config.AllowedOrigins) > 0 {
		r.Use(CORSMiddleware(s.config.AllowedOrigins))
	}

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1/pages", func(r chi.Router) {
		if s.config.RateLimit > 0 {
			r.Use(RateLimit(s.config.RateLimit, s.config.RateWindow))
		}
		r.Use(BodyLimit(s.config.MaxBodyBytes))

		r.Post("/", s.handleOpen)
		r.Post("/{pageID}/signals", s.handleSignals)
		r.Post("/{pageID}/close", s.handleClose)
		r.Delete("/{pageID}", s.handleClose)
	})
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the ingest server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Starting ingest server")

	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated ingest listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Ingest server error")
		}
	}()

	return nil
}

// Stop gracefully stops the ingest server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping ingest server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("ingest server shutdown: %w", err)
	}
	return nil
}
