// Package api provides the HTTP server, router, and middleware wiring.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/fin360/financial-analyzer/internal/api/handlers"
	"github.com/fin360/financial-analyzer/internal/api/middleware"
)

// RouterConfig holds configuration for the API router.
type RouterConfig struct {
	// CORS settings
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int

	// Timeout settings. Analysis runs OCR and generation inline, so its
	// routes get a much longer budget than the rest of the API.
	RequestTimeout time.Duration
	AnalyzeTimeout time.Duration

	// Rate limiting
	EnableRateLimiting bool
	RateLimitConfig    middleware.RateLimitConfig
}

// DefaultRouterConfig returns a default router configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		AllowedOrigins:     []string{"*"},
		AllowedMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:     []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials:   false,
		MaxAge:             300,
		RequestTimeout:     30 * time.Second,
		AnalyzeTimeout:     10 * time.Minute,
		EnableRateLimiting: true,
		RateLimitConfig:    middleware.DefaultRateLimitConfig(),
	}
}

// Dependencies holds all dependencies required by the API handlers.
type Dependencies struct {
	Logger         *slog.Logger
	Service        handlers.DocumentService
	DB             handlers.Database
	ObjectStorage  handlers.ObjectStorage
	RateLimitStore middleware.RateLimitStore
}

// NewRouter creates and configures a new Chi router with all middleware and routes.
func NewRouter(deps Dependencies, config RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   config.AllowedOrigins,
		AllowedMethods:   config.AllowedMethods,
		AllowedHeaders:   config.AllowedHeaders,
		ExposedHeaders:   config.ExposedHeaders,
		AllowCredentials: config.AllowCredentials,
		MaxAge:           config.MaxAge,
	}))

	var rateLimiter *middleware.RateLimiter
	if config.EnableRateLimiting {
		store := deps.RateLimitStore
		if store == nil {
			store = middleware.NewMemoryRateLimitStore()
		}
		rateLimiter = middleware.NewRateLimiter(store, config.RateLimitConfig, logger)
	}

	// Health checks bypass rate limiting.
	r.Get("/health", handlers.HealthCheck())
	r.Get("/ready", handlers.ReadyCheck(deps.DB, deps.ObjectStorage))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/documents", func(r chi.Router) {
			// Upload carries the long timeout; everything else in the
			// group uses the standard one.
			r.Group(func(r chi.Router) {
				r.Use(chimiddleware.Timeout(config.AnalyzeTimeout))
				if rateLimiter != nil {
					r.Use(rateLimiter.Middleware("analyze"))
				}
				r.Post("/", handlers.HandleAnalyze(deps.Service, logger))
				r.Post("/{fingerprint}/reindex", handlers.ReindexDocument(deps.Service, logger))
			})

			r.Group(func(r chi.Router) {
				r.Use(chimiddleware.Timeout(config.RequestTimeout))
				if rateLimiter != nil {
					r.Use(rateLimiter.Middleware("documents"))
				}
				r.Get("/", handlers.ListDocuments(deps.Service, logger))
				r.Get("/{fingerprint}", handlers.GetDocument(deps.Service, logger))
				r.Delete("/{fingerprint}", handlers.DeleteDocument(deps.Service, logger))
				r.Get("/{fingerprint}/download", handlers.HandleDownload(deps.Service, logger))
				r.Get("/{fingerprint}/export", handlers.HandleExport(deps.Service, logger))
			})
		})

		r.Route("/chat", func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.AnalyzeTimeout))
			if rateLimiter != nil {
				r.Use(rateLimiter.Middleware("chat"))
			}
			r.Post("/", handlers.HandleChat(deps.Service, logger))
			r.Delete("/history", handlers.ResetHistory(deps.Service, logger))
			r.Get("/{fingerprint}/history", handlers.GetHistory(deps.Service, logger))
			r.Delete("/{fingerprint}/history", handlers.ClearHistory(deps.Service, logger))
		})
	})

	return r
}

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    10 * time.Minute,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// NewServer creates a new HTTP server.
func NewServer(handler http.Handler, config ServerConfig, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         formatAddr(config.Host, config.Port),
			Handler:      handler,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		logger: logger,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// formatAddr formats host and port into an address string.
func formatAddr(host string, port int) string {
	if host == "" {
		return fmt.Sprintf(":%d", port)
	}
	return fmt.Sprintf("%s:%d", host, port)
}
