package models

type User struct {
	Base
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`

	// Metabase integration - id of the mirrored Metabase user, nil when the
	// external call failed at signup time
	MetabaseUserID *int `json:"metabase_user_id"`

	// Set once login has attached the user to the default workspace
	DefaultWorkspaceAssigned bool `gorm:"default:false" json:"-"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	// Relationships
	Workspaces     []Workspace       `gorm:"foreignKey:OwnerID" json:"-"`
	Memberships    []WorkspaceMember `gorm:"foreignKey:UserID" json:"-"`
	UserDashboards []UserDashboard   `gorm:"foreignKey:UserID" json:"-"`
}

func (User) TableName() string {
	return "users"
}
