package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hugh/embedash/internal/api"
	"github.com/hugh/embedash/internal/auth"
	"github.com/hugh/embedash/internal/dashboard"
	"github.com/hugh/embedash/internal/database"
	"github.com/hugh/embedash/internal/metabase"
	"github.com/hugh/embedash/internal/workspace"
	"github.com/hugh/embedash/pkg/config"
	"github.com/hugh/embedash/pkg/util"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	logger.Info("starting Embedash server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.AutoMigrate(db); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Metabase session cache: Redis when configured so the admin token
	// survives restarts, in-process memory otherwise.
	var redisClient *redis.Client
	var sessions metabase.SessionStore = metabase.NewMemorySessionStore()
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn("failed to connect to Redis, using in-memory session store", "error", err)
			redisClient = nil
		} else {
			sessions = metabase.NewRedisSessionStore(redisClient)
		}
	}

	mb := metabase.NewClient(&cfg.Metabase, sessions, logger)

	// One-time Metabase setup: admin account, embedding, analytics database.
	// Every step is idempotent and failures are logged, not fatal, so the API
	// comes up even when Metabase is still starting.
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	mb.Bootstrap(bootCtx, cfg.AnalyticsDB)
	bootCancel()

	// Initialize services
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	authService := auth.NewService(db, jwtService, mb, logger)
	workspaceService := workspace.NewService(db, mb, logger)
	dashboardService := dashboard.NewService(db, mb, logger)

	// Create router
	router := api.NewRouter(api.RouterConfig{
		DB:               db,
		Logger:           logger,
		JWTService:       jwtService,
		AuthService:      authService,
		WorkspaceService: workspaceService,
		DashboardService: dashboardService,
		Metabase:         mb,
		RateLimitReqs:    cfg.RateLimit.Requests,
		RateLimitSecs:    cfg.RateLimit.WindowSeconds,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Close Redis connection
	if redisClient != nil {
		redisClient.Close()
	}

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}
