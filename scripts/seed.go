//go:build ignore

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/hugh/embedash/internal/auth"
	"github.com/hugh/embedash/internal/database"
	"github.com/hugh/embedash/internal/database/models"
	"github.com/hugh/embedash/internal/metabase"
	"github.com/hugh/embedash/internal/workspace"
	"github.com/hugh/embedash/pkg/config"
	"github.com/hugh/embedash/pkg/util"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

// Seeds an admin user and the default workspace new users are attached to on
// first login. Safe to run more than once. This script is the only writer of
// is_default, which keeps the default workspace unique.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	mb := metabase.NewClient(&cfg.Metabase, metabase.NewMemorySessionStore(), logger)
	mb.Bootstrap(context.Background(), cfg.AnalyticsDB)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	authService := auth.NewService(db, jwtService, mb, logger)

	email := os.Getenv("SEED_ADMIN_EMAIL")
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if email == "" {
		email = "admin@example.com"
	}
	if password == "" {
		password = "admin123!"
	}

	admin, err := authService.Signup(context.Background(), auth.SignupInput{
		Email:     email,
		Password:  password,
		FirstName: "Admin",
		LastName:  "User",
	})
	if errors.Is(err, auth.ErrUserExists) {
		admin, err = authService.GetUserByEmail(context.Background(), email)
	}
	if err != nil {
		log.Fatalf("failed to seed admin user: %v", err)
	}
	fmt.Printf("admin user: %s (%s)\n", admin.Email, admin.ID)

	// Default workspace, created once.
	var existing models.Workspace
	err = db.Where("is_default = ?", true).First(&existing).Error
	if err == nil {
		fmt.Printf("default workspace already exists: %s (%s)\n", existing.Name, existing.ID)
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Fatalf("failed to look up default workspace: %v", err)
	}

	workspaceService := workspace.NewService(db, mb, logger)
	ws, err := workspaceService.Create(context.Background(), admin, workspace.CreateInput{
		Name:        "Getting Started",
		Description: "Shared workspace every new user can explore",
	})
	if err != nil {
		log.Fatalf("failed to create default workspace: %v", err)
	}

	if err := db.Model(ws).Update("is_default", true).Error; err != nil {
		log.Fatalf("failed to mark default workspace: %v", err)
	}
	fmt.Printf("default workspace: %s (%s)\n", ws.Name, ws.ID)
}
