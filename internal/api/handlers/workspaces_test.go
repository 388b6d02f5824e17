package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/embedash/internal/api/dto"
	"github.com/hugh/embedash/internal/api/handlers"
	"github.com/hugh/embedash/internal/api/middleware"
	"github.com/hugh/embedash/internal/auth"
	"github.com/hugh/embedash/internal/metabase"
	"github.com/hugh/embedash/internal/testutil"
	"github.com/hugh/embedash/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupWorkspaceTestRouter(t *testing.T) (*chi.Mux, *testutil.TestSetup) {
	tc := testutil.NewTestContext(t)

	mb := tc.Metabase.Client(t)
	authService := auth.NewService(tc.DB, tc.JWTService, mb, testutil.TestLogger())
	workspaceService := workspace.NewService(tc.DB, mb, testutil.TestLogger())
	handler := handlers.NewWorkspaceHandler(workspaceService, authService)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(tc.JWTService))
		r.Route("/api/v1/workspaces", func(r chi.Router) {
			r.Get("/", handler.List)
			r.Post("/", handler.Create)
			r.Get("/{id}", handler.Get)
			r.Get("/{id}/dashboards", handler.ListDashboards)
			r.Get("/{id}/embed-url", handler.EmbedURL)
		})
	})

	return r, tc
}

func TestWorkspaceHandler_Create(t *testing.T) {
	router, tc := setupWorkspaceTestRouter(t)
	defer tc.Cleanup()

	t.Run("creates workspace", func(t *testing.T) {
		body := map[string]string{
			"name":        "Acme",
			"description": "Acme metrics",
		}

		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/workspaces/", body, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)

		var resp dto.WorkspaceResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "Acme", resp.Name)
		assert.Equal(t, tc.User.ID.String(), resp.OwnerID)
		assert.NotNil(t, resp.MetabaseCollectionID)
		assert.Equal(t, "Acme Team", resp.MetabaseGroupName)
	})

	t.Run("missing name", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/workspaces/", map[string]string{}, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("requires auth", func(t *testing.T) {
		body := map[string]string{"name": "NoAuth"}

		req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/workspaces/", body)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestWorkspaceHandler_List(t *testing.T) {
	router, tc := setupWorkspaceTestRouter(t)
	defer tc.Cleanup()

	testutil.CreateTestWorkspace(t, tc.DB, tc.User)
	testutil.CreateTestWorkspace(t, tc.DB, tc.User)

	req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/workspaces/", nil, tc.Token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp []dto.WorkspaceResponse
	testutil.ParseJSONResponse(t, rr, &resp)
	assert.Len(t, resp, 2)
}

func TestWorkspaceHandler_Get(t *testing.T) {
	router, tc := setupWorkspaceTestRouter(t)
	defer tc.Cleanup()

	ws := testutil.CreateTestWorkspace(t, tc.DB, tc.User)

	t.Run("returns workspace", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/workspaces/"+ws.ID.String(), nil, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp dto.WorkspaceResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, ws.ID.String(), resp.ID)
	})

	t.Run("forbidden for non-member", func(t *testing.T) {
		stranger := testutil.CreateTestUser(t, tc.DB)
		token := testutil.GenerateTestToken(t, tc.JWTService, stranger)

		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/workspaces/"+ws.ID.String(), nil, token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/workspaces/not-a-uuid", nil, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unknown id", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/workspaces/00000000-0000-0000-0000-000000000001", nil, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestWorkspaceHandler_ListDashboards(t *testing.T) {
	router, tc := setupWorkspaceTestRouter(t)
	defer tc.Cleanup()

	ws := testutil.CreateTestWorkspace(t, tc.DB, tc.User)
	tc.Metabase.AddCollectionItem(*ws.MetabaseCollectionID, metabase.CollectionItem{
		ID:    301,
		Name:  "Revenue",
		Model: "dashboard",
	})

	req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/workspaces/"+ws.ID.String()+"/dashboards", nil, tc.Token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	// The listing syncs against the Metabase collection on the way
	var resp []dto.DashboardResponse
	testutil.ParseJSONResponse(t, rr, &resp)
	require.Len(t, resp, 1)
	assert.Equal(t, "Revenue", resp[0].MetabaseDashboardName)
	assert.Equal(t, 301, resp[0].MetabaseDashboardID)
}

func TestWorkspaceHandler_EmbedURL(t *testing.T) {
	router, tc := setupWorkspaceTestRouter(t)
	defer tc.Cleanup()

	t.Run("returns signed URL with expiry", func(t *testing.T) {
		ws := testutil.CreateTestWorkspace(t, tc.DB, tc.User)

		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/workspaces/"+ws.ID.String()+"/embed-url", nil, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp dto.EmbedURLResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Contains(t, resp.URL, "/embed/collection/")
		assert.Equal(t, 60, resp.ExpiresInMinutes)
	})

	t.Run("unprovisioned workspace", func(t *testing.T) {
		ws := testutil.CreateTestWorkspace(t, tc.DB, tc.User)
		require.NoError(t, tc.DB.Model(ws).Update("metabase_collection_id", nil).Error)

		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/workspaces/"+ws.ID.String()+"/embed-url", nil, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
