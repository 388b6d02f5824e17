package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/embedash/internal/database/models"
	"github.com/hugh/embedash/internal/metabase"
	"gorm.io/gorm"
)

var (
	ErrNotFound       = errors.New("workspace not found")
	ErrAccessDenied   = errors.New("no access to this workspace")
	ErrNotProvisioned = errors.New("workspace has no metabase collection")
)

type Service struct {
	db     *gorm.DB
	mb     *metabase.Client
	logger *slog.Logger
}

func NewService(db *gorm.DB, mb *metabase.Client, logger *slog.Logger) *Service {
	return &Service{db: db, mb: mb, logger: logger}
}

type CreateInput struct {
	Name        string
	Description string
}

// Create provisions a workspace end to end: Metabase collection, permission
// group, permission grants, then the local rows. Collection and group
// creation plus the collection grant are mandatory; embedding, analytics-db
// access, and owner group membership are best-effort and never abort the
// operation. Mandatory failures surface to the caller and leave no local
// rows, but already-created Metabase resources are not cleaned up.
func (s *Service) Create(ctx context.Context, owner *models.User, input CreateInput) (*models.Workspace, error) {
	s.logger.Info("creating workspace", "name", input.Name, "owner_id", owner.ID)

	collection, err := s.mb.CreateCollection(ctx, input.Name, input.Description)
	if err != nil {
		return nil, fmt.Errorf("creating collection: %w", err)
	}

	if err := s.mb.EnableCollectionEmbedding(ctx, collection.ID); err != nil {
		s.logger.Warn("could not enable collection embedding", "collection_id", collection.ID, "error", err)
	}

	group, err := s.mb.EnsureGroup(ctx, input.Name+" Team")
	if err != nil {
		return nil, fmt.Errorf("creating permission group: %w", err)
	}

	if err := s.mb.SetCollectionPermission(ctx, group.ID, collection.ID, "write"); err != nil {
		return nil, fmt.Errorf("granting collection access: %w", err)
	}

	var databaseID *int
	analyticsDB, err := s.mb.FindDatabase(ctx, metabase.AnalyticsDatabaseNames...)
	if err != nil {
		s.logger.Warn("analytics database lookup failed", "error", err)
	} else if analyticsDB == nil {
		s.logger.Warn("analytics database not found in metabase")
	} else {
		databaseID = &analyticsDB.ID
		if err := s.mb.GrantDatabaseAccess(ctx, group.ID, analyticsDB.ID, "public", "all"); err != nil {
			s.logger.Warn("could not grant analytics database access", "group_id", group.ID, "error", err)
		}
	}

	if owner.MetabaseUserID != nil {
		if err := s.mb.AddUserToGroup(ctx, *owner.MetabaseUserID, group.ID); err != nil {
			s.logger.Warn("could not add owner to workspace group", "user_id", owner.ID, "error", err)
		}
	}

	ws := models.Workspace{
		Name:                   input.Name,
		Description:            input.Description,
		OwnerID:                owner.ID,
		MetabaseCollectionID:   &collection.ID,
		MetabaseCollectionName: collection.Name,
		MetabaseGroupID:        &group.ID,
		MetabaseGroupName:      group.Name,
		MetabaseDatabaseID:     databaseID,
		IsActive:               true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&ws).Error; err != nil {
			return err
		}
		member := models.WorkspaceMember{
			WorkspaceID: ws.ID,
			UserID:      owner.ID,
			Role:        models.RoleOwner,
		}
		return tx.Create(&member).Error
	})
	if err != nil {
		return nil, fmt.Errorf("persisting workspace: %w", err)
	}

	s.logger.Info("workspace created",
		"workspace_id", ws.ID,
		"collection_id", collection.ID,
		"group_id", group.ID,
	)
	return &ws, nil
}

// List returns the active workspaces the user owns or is a member of, deduped.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]models.Workspace, error) {
	var owned []models.Workspace
	if err := s.db.WithContext(ctx).
		Where("owner_id = ? AND is_active = ?", userID, true).
		Find(&owned).Error; err != nil {
		return nil, err
	}

	var memberOf []models.Workspace
	if err := s.db.WithContext(ctx).
		Joins("JOIN workspace_members ON workspace_members.workspace_id = workspaces.id").
		Where("workspace_members.user_id = ? AND workspaces.is_active = ?", userID, true).
		Find(&memberOf).Error; err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]bool, len(owned)+len(memberOf))
	result := make([]models.Workspace, 0, len(owned)+len(memberOf))
	for _, ws := range append(owned, memberOf...) {
		if !seen[ws.ID] {
			seen[ws.ID] = true
			result = append(result, ws)
		}
	}
	return result, nil
}

// Get loads a workspace and checks the user can see it.
func (s *Service) Get(ctx context.Context, workspaceID, userID uuid.UUID) (*models.Workspace, error) {
	var ws models.Workspace
	if err := s.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", workspaceID, true).
		First(&ws).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if ws.OwnerID != userID {
		var member models.WorkspaceMember
		err := s.db.WithContext(ctx).
			Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
			First(&member).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccessDenied
		}
		if err != nil {
			return nil, err
		}
	}
	return &ws, nil
}

// EmbedURL returns a signed URL embedding the workspace's whole collection,
// along with the token lifetime.
func (s *Service) EmbedURL(ctx context.Context, workspaceID, userID uuid.UUID) (string, time.Duration, error) {
	ws, err := s.Get(ctx, workspaceID, userID)
	if err != nil {
		return "", 0, err
	}
	if ws.MetabaseCollectionID == nil {
		return "", 0, ErrNotProvisioned
	}
	url, err := s.mb.CollectionEmbedURL(*ws.MetabaseCollectionID)
	if err != nil {
		return "", 0, err
	}
	return url, s.mb.EmbedExpiry(), nil
}
