// Package api provides HTTP API server components.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/temporalmem/temporalmem/config"
	"github.com/temporalmem/temporalmem/pkg/api/handlers"
	"github.com/temporalmem/temporalmem/pkg/api/middleware"
	"github.com/temporalmem/temporalmem/pkg/logger"
)

// Handlers holds all HTTP handlers.
type Handlers struct {
	// Memory handles memory record endpoints
	Memory *handlers.MemoryHandler

	// Health handles health check endpoints
	Health *handlers.HealthHandler

	// Events streams engine events over websocket
	Events *handlers.WebSocketHandler

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, handlers *Handlers) chi.Router {
	r := chi.NewRouter()

	// Register global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))

	// Add metrics middleware if provided
	if handlers.Metrics != nil {
		r.Use(middleware.Metrics(handlers.Metrics))
	}

	r.Use(middleware.CORS(&cfg.Server.CORS))
	r.Use(middleware.Timeout(cfg.Server.HTTP.ReadTimeout))

	// Register routes
	RegisterRoutes(r, handlers)

	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, handlers *Handlers) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		if handlers.Memory != nil {
			r.Route("/users/{userID}/memories", func(r chi.Router) {
				r.Post("/", handlers.Memory.WriteMemories)
				r.Get("/", handlers.Memory.ListMemories)
				r.Post("/search", handlers.Memory.SearchMemories)
				r.Get("/{id}", handlers.Memory.GetMemory)
				r.Delete("/{id}", handlers.Memory.DeleteMemory)
			})
		}

		if handlers.Events != nil {
			r.Get("/events", handlers.Events.ServeHTTP)
		}
	})

	// Health check routes (not versioned)
	if handlers.Health != nil {
		r.Get("/health", handlers.Health.Health)
		r.Get("/ready", handlers.Health.Ready)
		r.Get("/status", handlers.Health.Status)
	}
}
