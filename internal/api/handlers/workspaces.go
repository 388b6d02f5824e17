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
	"github.com/hugh/embedash/internal/workspace"
)

type WorkspaceHandler struct {
	workspaces  *workspace.Service
	authService *auth.Service
}

func NewWorkspaceHandler(workspaces *workspace.Service, authService *auth.Service) *WorkspaceHandler {
	return &WorkspaceHandler{workspaces: workspaces, authService: authService}
}

func (h *WorkspaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if details := req.Validate(); len(details) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: details})
		return
	}

	user, err := h.authService.GetUserByID(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "User not found"})
		return
	}

	ws, err := h.workspaces.Create(r.Context(), user, workspace.CreateInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create workspace"})
		return
	}

	writeJSON(w, http.StatusCreated, dto.NewWorkspaceResponse(ws))
}

func (h *WorkspaceHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	workspaces, err := h.workspaces.List(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list workspaces"})
		return
	}

	resp := make([]dto.WorkspaceResponse, 0, len(workspaces))
	for i := range workspaces {
		resp = append(resp, dto.NewWorkspaceResponse(&workspaces[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *WorkspaceHandler) Get(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := parseWorkspaceID(w, r)
	if !ok {
		return
	}
	userID := middleware.GetUserID(r.Context())

	ws, err := h.workspaces.Get(r.Context(), workspaceID, userID)
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.NewWorkspaceResponse(ws))
}

func (h *WorkspaceHandler) ListDashboards(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := parseWorkspaceID(w, r)
	if !ok {
		return
	}
	userID := middleware.GetUserID(r.Context())

	dashboards, err := h.workspaces.ListDashboards(r.Context(), workspaceID, userID)
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}

	resp := make([]dto.DashboardResponse, 0, len(dashboards))
	for i := range dashboards {
		resp = append(resp, dto.NewDashboardResponse(&dashboards[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *WorkspaceHandler) EmbedURL(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := parseWorkspaceID(w, r)
	if !ok {
		return
	}
	userID := middleware.GetUserID(r.Context())

	url, expiry, err := h.workspaces.EmbedURL(r.Context(), workspaceID, userID)
	if err != nil {
		if errors.Is(err, workspace.ErrNotProvisioned) {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Workspace has no analytics collection"})
			return
		}
		writeWorkspaceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.EmbedURLResponse{
		URL:              url,
		ExpiresInMinutes: int(expiry.Minutes()),
	})
}

func parseWorkspaceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid workspace id"})
		return uuid.Nil, false
	}
	return id, true
}

func writeWorkspaceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workspace.ErrNotFound):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Workspace not found"})
	case errors.Is(err, workspace.ErrAccessDenied):
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "You do not have access to this workspace"})
	default:
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Internal server error"})
	}
}
