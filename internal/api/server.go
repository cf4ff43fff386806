package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Wojt3kW/ocrpdf/internal/config"
	"github.com/Wojt3kW/ocrpdf/internal/platform"
	"github.com/Wojt3kW/ocrpdf/internal/processor"
)

// Version is reported by the health endpoint.
var Version = "dev"

// Server is the HTTP API server.
type Server struct {
	cfg      *config.Config
	router   chi.Router
	pipeline *processor.Pipeline
	resolver *platform.Resolver
	server   *http.Server
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, pipeline *processor.Pipeline, resolver *platform.Resolver) *Server {
	s := &Server{
		cfg:      cfg,
		pipeline: pipeline,
		resolver: resolver,
	}

	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORSMiddleware())

	// Health check (no auth required)
	r.Get("/api/v1/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.cfg.Server.Auth.Enabled {
			r.Use(AuthMiddleware(s.cfg.Server.Auth))
		}

		r.Get("/", s.handleIndex)

		// Legacy form paths used by the index page.
		r.Post("/Home/AddTextLayer", s.handleAddTextLayer)
		r.Post("/Home/ProcessImageToOcrPdf", s.handleImageToPDF)

		r.Post("/api/v1/text-layer", s.handleAddTextLayer)
		r.Post("/api/v1/image-to-pdf", s.handleImageToPDF)
	})

	s.router = r
}

// Handler exposes the router, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP connections.
func (s *Server) Start() error {
	addr := s.cfg.Addr()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: s.cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:  s.cfg.Server.IdleTimeout.Duration(),
	}

	slog.Info("API server starting", "addr", addr, "tls", s.cfg.Server.TLS.Enabled)

	if s.cfg.Server.TLS.Enabled {
		return s.server.ListenAndServeTLS(
			s.cfg.Server.TLS.CertFile,
			s.cfg.Server.TLS.KeyFile,
		)
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down")
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
