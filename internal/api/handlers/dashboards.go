package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/embedash/internal/api/dto"
	"github.com/hugh/embedash/internal/api/middleware"
	"github.com/hugh/embedash/internal/auth"
	"github.com/hugh/embedash/internal/dashboard"
)

type DashboardHandler struct {
	dashboards  *dashboard.Service
	authService *auth.Service
}

func NewDashboardHandler(dashboards *dashboard.Service, authService *auth.Service) *DashboardHandler {
	return &DashboardHandler{dashboards: dashboards, authService: authService}
}

func (h *DashboardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateDashboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if details := req.Validate(); len(details) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: details})
		return
	}

	workspaceID, err := uuid.Parse(req.WorkspaceID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid workspace id"})
		return
	}

	user, err := h.authService.GetUserByID(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "User not found"})
		return
	}

	created, err := h.dashboards.Create(r.Context(), user, dashboard.CreateInput{
		WorkspaceID: workspaceID,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeDashboardError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.NewUserDashboardResponse(created))
}

func (h *DashboardHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	dashboards, err := h.dashboards.ListMine(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to fetch dashboards"})
		return
	}

	resp := make([]dto.UserDashboardResponse, 0, len(dashboards))
	for i := range dashboards {
		resp = append(resp, dto.NewUserDashboardResponse(&dashboards[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *DashboardHandler) Embed(w http.ResponseWriter, r *http.Request) {
	dashboardID, ok := parseDashboardID(w, r)
	if !ok {
		return
	}

	user, err := h.authService.GetUserByID(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "User not found"})
		return
	}

	urls, err := h.dashboards.Embed(r.Context(), user, dashboardID)
	if err != nil {
		writeDashboardError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.DashboardEmbedResponse{
		EmbedURL:  urls.EmbedURL,
		EditorURL: urls.EditorURL,
		IsOwner:   urls.IsOwner,
	})
}

func (h *DashboardHandler) Publish(w http.ResponseWriter, r *http.Request) {
	dashboardID, ok := parseDashboardID(w, r)
	if !ok {
		return
	}
	userID := middleware.GetUserID(r.Context())

	if err := h.dashboards.Publish(r.Context(), userID, dashboardID); err != nil {
		writeDashboardError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Dashboard published"})
}

func (h *DashboardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	dashboardID, ok := parseDashboardID(w, r)
	if !ok {
		return
	}
	userID := middleware.GetUserID(r.Context())

	if err := h.dashboards.Delete(r.Context(), userID, dashboardID); err != nil {
		writeDashboardError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseDashboardID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid dashboard id"})
		return uuid.Nil, false
	}
	return id, true
}

func writeDashboardError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dashboard.ErrNotFound):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Dashboard not found"})
	case errors.Is(err, dashboard.ErrWorkspaceNotFound):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Workspace not found"})
	case errors.Is(err, dashboard.ErrAccessDenied):
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Access denied to this workspace"})
	case errors.Is(err, dashboard.ErrOwnerOnly):
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Only the dashboard owner can do this"})
	case errors.Is(err, dashboard.ErrWorkspaceUnprovisioned):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Workspace has no analytics collection"})
	default:
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Internal server error"})
	}
}
