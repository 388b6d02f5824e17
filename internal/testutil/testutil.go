package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/embedash/internal/auth"
	"github.com/hugh/embedash/internal/database/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// Run migrations
	err = db.AutoMigrate(
		&models.User{},
		&models.Workspace{},
		&models.WorkspaceMember{},
		&models.Dashboard{},
		&models.UserDashboard{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database connection
func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Logf("warning: failed to get sql.DB: %v", err)
		return
	}
	sqlDB.Close()
}

// TestLogger returns a logger that discards everything
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// CreateTestUser creates a test user with a known password
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()

	hash, err := auth.HashPassword("testpassword123")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Base: models.Base{
			ID: uuid.New(),
		},
		Email:        "test-" + uuid.New().String()[:8] + "@example.com",
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "User",
		IsActive:     true,
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	return user
}

// CreateTestWorkspace creates a workspace owned by the given user, already
// provisioned with Metabase ids, plus the owner membership row
func CreateTestWorkspace(t *testing.T, db *gorm.DB, owner *models.User) *models.Workspace {
	t.Helper()

	collectionID := 10
	groupID := 20
	ws := &models.Workspace{
		Base: models.Base{
			ID: uuid.New(),
		},
		Name:                   "Test Workspace " + uuid.New().String()[:8],
		OwnerID:                owner.ID,
		MetabaseCollectionID:   &collectionID,
		MetabaseCollectionName: "Test Workspace",
		MetabaseGroupID:        &groupID,
		MetabaseGroupName:      "Test Workspace Team",
		IsActive:               true,
	}

	if err := db.Create(ws).Error; err != nil {
		t.Fatalf("failed to create test workspace: %v", err)
	}

	CreateTestMembership(t, db, ws, owner, models.RoleOwner)
	return ws
}

// CreateTestMembership adds a user to a workspace with the given role
func CreateTestMembership(t *testing.T, db *gorm.DB, ws *models.Workspace, user *models.User, role string) *models.WorkspaceMember {
	t.Helper()

	member := &models.WorkspaceMember{
		Base: models.Base{
			ID: uuid.New(),
		},
		WorkspaceID: ws.ID,
		UserID:      user.ID,
		Role:        role,
	}

	if err := db.Create(member).Error; err != nil {
		t.Fatalf("failed to create test membership: %v", err)
	}

	return member
}

// CreateTestDashboard creates a dashboard row in the workspace and links the
// given user to it
func CreateTestDashboard(t *testing.T, db *gorm.DB, ws *models.Workspace, user *models.User, metabaseID int, isOwner bool) *models.Dashboard {
	t.Helper()

	dash := &models.Dashboard{
		Base: models.Base{
			ID: uuid.New(),
		},
		WorkspaceID:           ws.ID,
		MetabaseDashboardID:   metabaseID,
		MetabaseDashboardName: "Test Dashboard",
		ResourceType:          models.ResourceDashboard,
		IsPublic:              true,
		IsPublished:           true,
	}

	if err := db.Create(dash).Error; err != nil {
		t.Fatalf("failed to create test dashboard: %v", err)
	}

	CreateTestDashboardLink(t, db, dash, user, isOwner)
	return dash
}

// CreateTestDashboardLink links a user to an existing dashboard
func CreateTestDashboardLink(t *testing.T, db *gorm.DB, dash *models.Dashboard, user *models.User, isOwner bool) *models.UserDashboard {
	t.Helper()

	link := &models.UserDashboard{
		Base: models.Base{
			ID: uuid.New(),
		},
		UserID:      user.ID,
		DashboardID: dash.ID,
		IsOwner:     isOwner,
		IsPinned:    isOwner,
	}
	if err := db.Create(link).Error; err != nil {
		t.Fatalf("failed to create test dashboard link: %v", err)
	}

	return link
}

// CreateTestJWTService creates a JWT service for testing
func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing", 24*time.Hour)
}

// GenerateTestToken generates a valid JWT token for the given user
func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, user *models.User) string {
	t.Helper()

	token, err := jwtService.GenerateToken(user.ID, user.Email)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}

	return token
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestSetup holds all the common test dependencies
type TestSetup struct {
	DB         *gorm.DB
	JWTService *auth.JWTService
	Metabase   *FakeMetabase
	User       *models.User
	Token      string
}

// NewTestContext creates a complete test setup with DB, fake Metabase, user,
// and token
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	jwtService := CreateTestJWTService()
	fake := NewFakeMetabase(t)
	user := CreateTestUser(t, db)
	token := GenerateTestToken(t, jwtService, user)

	return &TestSetup{
		DB:         db,
		JWTService: jwtService,
		Metabase:   fake,
		User:       user,
		Token:      token,
	}
}

// Cleanup closes the test database
func (ts *TestSetup) Cleanup() {
	if ts.DB != nil {
		sqlDB, err := ts.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}
