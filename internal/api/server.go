// Package api provides the HTTP API server and handlers for narration jobs.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/listenupapp/narrator/internal/ratelimit"
	"github.com/listenupapp/narrator/internal/service"
	"github.com/listenupapp/narrator/internal/sse"
	"github.com/listenupapp/narrator/internal/store"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	store      *store.Store
	narrations *service.NarrationService
	events     *sse.Manager
	router     *chi.Mux
	api        huma.API
	logger     *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(services Services, logger *slog.Logger) *Server {
	router := chi.NewRouter()

	s := &Server{
		store:      services.Store,
		narrations: services.Narrations,
		events:     services.Events,
		router:     router,
		logger:     logger,
	}
	s.setupMiddleware(services.SubmitLimiter)

	humaConfig := huma.DefaultConfig("Narrator API", "1.0.0")
	humaConfig.Info.Description = "Queue narrations of text and fetch their audio, word timings and captions."
	s.api = humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerNarrationRoutes()

	if s.events != nil {
		// Streaming stays outside huma, which expects one response body per operation.
		s.router.Get(narrationEventsPath, sse.NewHandler(s.events, logger).ServeHTTP)
	}

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware(limiter *ratelimit.KeyedRateLimiter) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	s.router.Use(middleware.Compress(5))
	if limiter != nil {
		s.router.Use(s.limitSubmissions(limiter))
	}
}
