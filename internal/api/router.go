package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/hugh/embedash/internal/api/handlers"
	"github.com/hugh/embedash/internal/api/middleware"
	"github.com/hugh/embedash/internal/auth"
	"github.com/hugh/embedash/internal/dashboard"
	"github.com/hugh/embedash/internal/metabase"
	"github.com/hugh/embedash/internal/workspace"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB               *gorm.DB
	Logger           *slog.Logger
	JWTService       *auth.JWTService
	AuthService      *auth.Service
	WorkspaceService *workspace.Service
	DashboardService *dashboard.Service
	Metabase         *metabase.Client
	AllowedOrigins   []string // CORS allowed origins
	RateLimitReqs    int      // Rate limit requests per window
	RateLimitSecs    int      // Rate limit window in seconds
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	// Rate limiting - applied globally to prevent abuse
	if cfg.RateLimitReqs > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitReqs, cfg.RateLimitSecs))
	}

	// CORS - restrict to configured origins, or allow all in development
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		// Default to localhost for development - configure in production
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Metabase)
	authHandler := handlers.NewAuthHandler(cfg.AuthService)
	workspaceHandler := handlers.NewWorkspaceHandler(cfg.WorkspaceService, cfg.AuthService)
	dashboardHandler := handlers.NewDashboardHandler(cfg.DashboardService, cfg.AuthService)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public auth endpoints
		r.Post("/auth/signup", authHandler.Signup)
		r.Post("/auth/login", authHandler.Login)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTService))

			r.Post("/auth/refresh", authHandler.Refresh)
			r.Get("/auth/me", authHandler.Me)

			// Workspaces endpoints
			r.Route("/workspaces", func(r chi.Router) {
				r.Get("/", workspaceHandler.List)
				r.Post("/", workspaceHandler.Create)
				r.Get("/{id}", workspaceHandler.Get)
				r.Get("/{id}/dashboards", workspaceHandler.ListDashboards)
				r.Get("/{id}/embed-url", workspaceHandler.EmbedURL)
			})

			// Dashboards endpoints
			r.Route("/dashboards", func(r chi.Router) {
				r.Post("/", dashboardHandler.Create)
				r.Get("/mine", dashboardHandler.ListMine)
				r.Get("/{id}/embed", dashboardHandler.Embed)
				r.Post("/{id}/publish", dashboardHandler.Publish)
				r.Delete("/{id}", dashboardHandler.Delete)
			})
		})
	})

	return &Router{r}
}
