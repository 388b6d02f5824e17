package dto

import (
	"time"

	"github.com/hugh/embedash/internal/dashboard"
	"github.com/hugh/embedash/internal/database/models"
)

type CreateDashboardRequest struct {
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (r CreateDashboardRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.WorkspaceID == "" {
		errors["workspace_id"] = "Workspace id is required"
	}
	if r.Name == "" {
		errors["name"] = "Name is required"
	}

	return errors
}

type DashboardResponse struct {
	ID                    string    `json:"id"`
	WorkspaceID           string    `json:"workspace_id"`
	MetabaseDashboardID   int       `json:"metabase_dashboard_id"`
	MetabaseDashboardName string    `json:"metabase_dashboard_name"`
	Description           string    `json:"description,omitempty"`
	ResourceType          string    `json:"resource_type"`
	IsPublic              bool      `json:"is_public"`
	IsPublished           bool      `json:"is_published"`
	CreatedAt             time.Time `json:"created_at"`
}

func NewDashboardResponse(d *models.Dashboard) DashboardResponse {
	return DashboardResponse{
		ID:                    d.ID.String(),
		WorkspaceID:           d.WorkspaceID.String(),
		MetabaseDashboardID:   d.MetabaseDashboardID,
		MetabaseDashboardName: d.MetabaseDashboardName,
		Description:           d.Description,
		ResourceType:          d.ResourceType,
		IsPublic:              d.IsPublic,
		IsPublished:           d.IsPublished,
		CreatedAt:             d.CreatedAt,
	}
}

type UserDashboardResponse struct {
	DashboardResponse
	IsOwner  bool `json:"is_owner"`
	IsPinned bool `json:"is_pinned"`
}

func NewUserDashboardResponse(d *dashboard.WithAccess) UserDashboardResponse {
	return UserDashboardResponse{
		DashboardResponse: NewDashboardResponse(&d.Dashboard),
		IsOwner:           d.IsOwner,
		IsPinned:          d.IsPinned,
	}
}

type DashboardEmbedResponse struct {
	EmbedURL  string `json:"embed_url"`
	EditorURL string `json:"editor_url"`
	IsOwner   bool   `json:"is_owner"`
}
