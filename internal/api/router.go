// Package api exposes the crawl service over REST plus a websocket event
// feed. Handlers stay thin: they validate, talk to the run store, and queue
// work onto the event channels.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/topocrawl/topocrawl/internal/auth"
	"github.com/topocrawl/topocrawl/internal/channels"
	"github.com/topocrawl/topocrawl/internal/config"
	"github.com/topocrawl/topocrawl/internal/crawler"
	"github.com/topocrawl/topocrawl/internal/credentials"
	"github.com/topocrawl/topocrawl/internal/middleware"
	"github.com/topocrawl/topocrawl/internal/store"
	"github.com/topocrawl/topocrawl/internal/templates"
)

// Dependencies carries everything the API surface needs.
type Dependencies struct {
	Config      *config.Config
	Auth        *auth.Service
	Store       store.Store
	Events      *channels.EventChannels
	Registry    *templates.Registry
	Credentials *credentials.Store
	CrawlOpts   crawler.Options
	Hub         *Hub
	Logger      *slog.Logger
}

// NewRouter creates and configures the API router
func NewRouter(deps *Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))

	// CORS (if enabled)
	if deps.Config != nil && deps.Config.CORS.Enabled {
		r.Use(middleware.CORS(
			deps.Config.CORS.AllowedOrigins,
			deps.Config.CORS.AllowedMethods,
			deps.Config.CORS.AllowedHeaders,
			deps.Config.CORS.MaxAgeSeconds,
		))
	}

	// Initialize handlers
	healthHandler := NewHealthHandler(deps.Store)
	systemHandler := NewSystemHandler(deps.Auth)
	crawlHandler := NewCrawlHandler(deps.Store, deps.Events, deps.CrawlOpts)
	credentialHandler := NewCredentialHandler(deps.Credentials)
	templateHandler := NewTemplateHandler(deps.Registry)

	// Public routes (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public auth endpoint
		r.Post("/login", systemHandler.Login)

		// Protected routes (require JWT)
		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(deps.Auth))

			// Crawl runs
			r.Route("/crawls", func(r chi.Router) {
				r.Get("/", crawlHandler.List)
				r.Post("/", crawlHandler.Create)
				r.Get("/{id}", crawlHandler.Get)
				r.Get("/{id}/result", crawlHandler.GetResult)
			})

			// Credential metadata
			r.Route("/credentials", func(r chi.Router) {
				r.Get("/", credentialHandler.List)
				r.Get("/{id}", credentialHandler.Get)
			})

			// Template inventory
			r.Get("/templates", templateHandler.List)

			// Live crawl events
			if deps.Hub != nil {
				r.Get("/ws", deps.Hub.ServeWs)
			}
		})
	})

	return r
}
