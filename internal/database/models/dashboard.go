package models

import "github.com/google/uuid"

// Resource types mirrored from Metabase collection items
const (
	ResourceDashboard = "dashboard"
	ResourceCard      = "card"
)

type Dashboard struct {
	Base
	WorkspaceID uuid.UUID `gorm:"type:uuid;index;not null" json:"workspace_id"`

	// Metabase dashboard (or card) reference
	MetabaseDashboardID   int    `gorm:"uniqueIndex;not null" json:"metabase_dashboard_id"`
	MetabaseDashboardName string `gorm:"not null" json:"metabase_dashboard_name"`
	Description           string `json:"description,omitempty"`
	ResourceType          string `gorm:"default:'dashboard'" json:"resource_type"` // dashboard, card

	IsPublic    bool `gorm:"default:true" json:"is_public"`
	IsPublished bool `gorm:"default:false" json:"is_published"`

	// Relationships
	Workspace      *Workspace      `gorm:"foreignKey:WorkspaceID" json:"-"`
	UserDashboards []UserDashboard `gorm:"foreignKey:DashboardID" json:"-"`
}

func (Dashboard) TableName() string {
	return "dashboards"
}

type UserDashboard struct {
	Base
	UserID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_user_dashboard" json:"user_id"`
	DashboardID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_user_dashboard" json:"dashboard_id"`

	IsOwner  bool `gorm:"default:false" json:"is_owner"`
	IsPinned bool `gorm:"default:false" json:"is_pinned"`

	// Relationships
	User      *User      `gorm:"foreignKey:UserID" json:"-"`
	Dashboard *Dashboard `gorm:"foreignKey:DashboardID" json:"-"`
}

func (UserDashboard) TableName() string {
	return "user_dashboards"
}
