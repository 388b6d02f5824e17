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
	"github.com/hugh/embedash/internal/dashboard"
	"github.com/hugh/embedash/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func setupDashboardTestRouter(t *testing.T) (*chi.Mux, *testutil.TestSetup) {
	tc := testutil.NewTestContext(t)

	mb := tc.Metabase.Client(t)
	authService := auth.NewService(tc.DB, tc.JWTService, mb, testutil.TestLogger())
	dashboardService := dashboard.NewService(tc.DB, mb, testutil.TestLogger())
	handler := handlers.NewDashboardHandler(dashboardService, authService)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(tc.JWTService))
		r.Route("/api/v1/dashboards", func(r chi.Router) {
			r.Post("/", handler.Create)
			r.Get("/mine", handler.ListMine)
			r.Get("/{id}/embed", handler.Embed)
			r.Post("/{id}/publish", handler.Publish)
			r.Delete("/{id}", handler.Delete)
		})
	})

	return r, tc
}

func TestDashboardHandler_Create(t *testing.T) {
	router, tc := setupDashboardTestRouter(t)
	defer tc.Cleanup()

	ws := testutil.CreateTestWorkspace(t, tc.DB, tc.User)

	t.Run("creates dashboard", func(t *testing.T) {
		body := map[string]string{
			"workspace_id": ws.ID.String(),
			"name":         "Revenue",
		}

		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/dashboards/", body, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)

		var resp dto.UserDashboardResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "Revenue", resp.MetabaseDashboardName)
		assert.True(t, resp.IsOwner)
		assert.True(t, resp.IsPinned)
	})

	t.Run("missing name", func(t *testing.T) {
		body := map[string]string{"workspace_id": ws.ID.String()}

		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/dashboards/", body, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("forbidden for non-member", func(t *testing.T) {
		stranger := testutil.CreateTestUser(t, tc.DB)
		token := testutil.GenerateTestToken(t, tc.JWTService, stranger)

		body := map[string]string{
			"workspace_id": ws.ID.String(),
			"name":         "Sneaky",
		}

		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/dashboards/", body, token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestDashboardHandler_ListMine(t *testing.T) {
	router, tc := setupDashboardTestRouter(t)
	defer tc.Cleanup()

	ws := testutil.CreateTestWorkspace(t, tc.DB, tc.User)
	testutil.CreateTestDashboard(t, tc.DB, ws, tc.User, 301, true)
	testutil.CreateTestDashboard(t, tc.DB, ws, tc.User, 302, false)

	req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/dashboards/mine", nil, tc.Token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp []dto.UserDashboardResponse
	testutil.ParseJSONResponse(t, rr, &resp)
	assert.Len(t, resp, 2)
}

func TestDashboardHandler_Embed(t *testing.T) {
	router, tc := setupDashboardTestRouter(t)
	defer tc.Cleanup()

	ws := testutil.CreateTestWorkspace(t, tc.DB, tc.User)
	dash := testutil.CreateTestDashboard(t, tc.DB, ws, tc.User, 301, true)

	t.Run("returns embed and editor URLs", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/dashboards/"+dash.ID.String()+"/embed", nil, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp dto.DashboardEmbedResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Contains(t, resp.EmbedURL, "/embed/dashboard/")
		assert.Contains(t, resp.EditorURL, "/dashboard/301")
		assert.True(t, resp.IsOwner)
	})

	t.Run("not found for unlinked user", func(t *testing.T) {
		stranger := testutil.CreateTestUser(t, tc.DB)
		token := testutil.GenerateTestToken(t, tc.JWTService, stranger)

		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/dashboards/"+dash.ID.String()+"/embed", nil, token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestDashboardHandler_Publish(t *testing.T) {
	router, tc := setupDashboardTestRouter(t)
	defer tc.Cleanup()

	ws := testutil.CreateTestWorkspace(t, tc.DB, tc.User)
	dash := testutil.CreateTestDashboard(t, tc.DB, ws, tc.User, 301, true)

	req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/dashboards/"+dash.ID.String()+"/publish", nil, tc.Token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestDashboardHandler_Delete(t *testing.T) {
	router, tc := setupDashboardTestRouter(t)
	defer tc.Cleanup()

	ws := testutil.CreateTestWorkspace(t, tc.DB, tc.User)

	t.Run("owner deletes own link", func(t *testing.T) {
		dash := testutil.CreateTestDashboard(t, tc.DB, ws, tc.User, 301, true)

		req := testutil.AuthenticatedRequest(t, "DELETE", "/api/v1/dashboards/"+dash.ID.String(), nil, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("non-owner gets forbidden", func(t *testing.T) {
		dash := testutil.CreateTestDashboard(t, tc.DB, ws, tc.User, 302, true)

		viewer := testutil.CreateTestUser(t, tc.DB)
		testutil.CreateTestDashboardLink(t, tc.DB, dash, viewer, false)
		token := testutil.GenerateTestToken(t, tc.JWTService, viewer)

		req := testutil.AuthenticatedRequest(t, "DELETE", "/api/v1/dashboards/"+dash.ID.String(), nil, token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("unknown dashboard", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "DELETE", "/api/v1/dashboards/00000000-0000-0000-0000-000000000001", nil, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
