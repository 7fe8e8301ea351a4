// Package server provides the HTTP server and routing for Mosaic.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/mosaicquant/mosaic/internal/config"
	"github.com/mosaicquant/mosaic/internal/curation"
	"github.com/mosaicquant/mosaic/internal/database"
	"github.com/mosaicquant/mosaic/internal/marts"
	"github.com/mosaicquant/mosaic/internal/pipeline"
)

// Config holds server configuration
type Config struct {
	Log        zerolog.Logger
	Cfg        *config.Config
	CuratedDB  *database.DB
	MartsDB    *database.DB
	Marts      *marts.Repository
	Curated    *curation.Repository
	Quarantine *curation.QuarantineStore
	Runner     *pipeline.Runner
	Port       int
	DevMode    bool
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	handlers       *Handlers
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		cfg:            cfg.Cfg,
		handlers:       NewHandlers(cfg.Marts, cfg.Curated, cfg.Quarantine, cfg.Runner, cfg.Log),
		systemHandlers: NewSystemHandlers(cfg.Log, cfg.Cfg.DataDir, cfg.CuratedDB, cfg.MartsDB),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // pipeline trigger can run long
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(120 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.systemHandlers.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Mart reads (dashboard consumers)
		r.Get("/features/{date}", s.handlers.HandleGetFeatures)
		r.Get("/signals/{date}", s.handlers.HandleGetSignals)
		r.Get("/positions/{date}", s.handlers.HandleGetPositions)
		r.Get("/positions/latest", s.handlers.HandleGetLatestPositions)
		r.Get("/charts/{ticker}", s.handlers.HandleGetChart)
		r.Get("/quarantine/{batchID}", s.handlers.HandleGetQuarantine)

		// Pipeline trigger
		r.Post("/pipeline/run", s.handlers.HandleRunPipeline)

		// System monitoring
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
			r.Get("/disk", s.systemHandlers.HandleDiskUsage)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the configured router, used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
