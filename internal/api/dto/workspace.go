package dto

import (
	"time"

	"github.com/hugh/embedash/internal/database/models"
)

type CreateWorkspaceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (r CreateWorkspaceRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Name == "" {
		errors["name"] = "Name is required"
	} else if len(r.Name) > 100 {
		errors["name"] = "Name must be at most 100 characters"
	}

	return errors
}

type WorkspaceResponse struct {
	ID                     string    `json:"id"`
	Name                   string    `json:"name"`
	Description            string    `json:"description,omitempty"`
	OwnerID                string    `json:"owner_id"`
	MetabaseCollectionID   *int      `json:"metabase_collection_id"`
	MetabaseCollectionName string    `json:"metabase_collection_name,omitempty"`
	MetabaseGroupID        *int      `json:"metabase_group_id"`
	MetabaseGroupName      string    `json:"metabase_group_name,omitempty"`
	IsDefault              bool      `json:"is_default"`
	IsActive               bool      `json:"is_active"`
	CreatedAt              time.Time `json:"created_at"`
}

func NewWorkspaceResponse(ws *models.Workspace) WorkspaceResponse {
	return WorkspaceResponse{
		ID:                     ws.ID.String(),
		Name:                   ws.Name,
		Description:            ws.Description,
		OwnerID:                ws.OwnerID.String(),
		MetabaseCollectionID:   ws.MetabaseCollectionID,
		MetabaseCollectionName: ws.MetabaseCollectionName,
		MetabaseGroupID:        ws.MetabaseGroupID,
		MetabaseGroupName:      ws.MetabaseGroupName,
		IsDefault:              ws.IsDefault,
		IsActive:               ws.IsActive,
		CreatedAt:              ws.CreatedAt,
	}
}

type EmbedURLResponse struct {
	URL              string `json:"url"`
	ExpiresInMinutes int    `json:"expires_in_minutes"`
}
