package models

import "github.com/google/uuid"

type Workspace struct {
	Base
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     uuid.UUID `gorm:"type:uuid;index;not null" json:"owner_id"`

	// Metabase integration fields, populated by the provisioning flow with
	// whatever succeeded
	MetabaseCollectionID   *int   `json:"metabase_collection_id"`
	MetabaseCollectionName string `json:"metabase_collection_name,omitempty"`
	MetabaseGroupID        *int   `json:"metabase_group_id"`
	MetabaseGroupName      string `json:"metabase_group_name,omitempty"`

	// Metabase id of the analytics database this workspace queries
	MetabaseDatabaseID *int `json:"metabase_database_id,omitempty"`

	// At most one workspace should carry IsDefault; enforced by the seed
	// script being the only writer, not by a constraint
	IsDefault bool `gorm:"default:false" json:"is_default"`
	IsActive  bool `gorm:"default:true" json:"is_active"`

	// Relationships
	Owner      *User             `gorm:"foreignKey:OwnerID" json:"-"`
	Members    []WorkspaceMember `gorm:"foreignKey:WorkspaceID" json:"-"`
	Dashboards []Dashboard       `gorm:"foreignKey:WorkspaceID" json:"-"`
}

func (Workspace) TableName() string {
	return "workspaces"
}

// Membership roles
const (
	RoleOwner  = "owner"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

type WorkspaceMember struct {
	Base
	WorkspaceID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_workspace_user" json:"workspace_id"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_workspace_user" json:"user_id"`
	Role        string    `gorm:"not null;default:'viewer'" json:"role"` // owner, editor, viewer

	// Relationships
	Workspace *Workspace `gorm:"foreignKey:WorkspaceID" json:"-"`
	User      *User      `gorm:"foreignKey:UserID" json:"-"`
}

func (WorkspaceMember) TableName() string {
	return "workspace_members"
}
