// Package api provides the HTTP API server and handlers for the Narrate application.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/narrateapp/narrate-server/internal/objstore"
	"github.com/narrateapp/narrate-server/internal/service"
	"github.com/narrateapp/narrate-server/internal/sse"
)

// Services bundles the application services the handlers depend on.
type Services struct {
	Library    *service.LibraryService
	Generation *service.GenerationService
	Repair     *service.RepairService
	Sync       *service.SyncService
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	services   *Services
	storage    objstore.Client // nil when storage is not configured
	sseManager *sse.Manager
	sseHandler *sse.Handler
	router     *chi.Mux
	api        huma.API
	logger     *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(services *Services, storage objstore.Client, sseManager *sse.Manager, sseHandler *sse.Handler, logger *slog.Logger) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	humaConfig := huma.DefaultConfig("Narrate API", "1.0.0")
	humaAPI := humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s := &Server{
		services:   services,
		storage:    storage,
		sseManager: sseManager,
		sseHandler: sseHandler,
		router:     router,
		api:        humaAPI,
		logger:     logger,
	}

	s.registerHealthRoutes()
	s.registerCatalogRoutes()
	s.registerSegmentRoutes()
	s.registerRepairRoutes()

	// SSE and audio streaming bypass huma; both hold the connection open and
	// write raw bytes.
	router.Get("/api/v1/events", s.sseHandler.ServeHTTP)
	router.Get("/api/v1/segments/{id}/audio", s.handleSegmentAudio)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// MessageResponse is a simple acknowledgement body.
type MessageResponse struct {
	Message string `json:"message" doc:"Human-readable result"`
}

// MessageOutput wraps MessageResponse for huma.
type MessageOutput struct {
	Body MessageResponse
}
