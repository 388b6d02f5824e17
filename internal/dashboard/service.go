package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hugh/embedash/internal/database/models"
	"github.com/hugh/embedash/internal/metabase"
	"gorm.io/gorm"
)

var (
	ErrNotFound               = errors.New("dashboard not found")
	ErrWorkspaceNotFound      = errors.New("workspace not found")
	ErrAccessDenied           = errors.New("no access to this workspace")
	ErrOwnerOnly              = errors.New("only the dashboard owner can do this")
	ErrWorkspaceUnprovisioned = errors.New("workspace has no metabase collection")
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
	WorkspaceID uuid.UUID
	Name        string
	Description string
}

// WithAccess pairs a dashboard with the caller's link metadata.
type WithAccess struct {
	models.Dashboard
	IsOwner  bool `json:"is_owner"`
	IsPinned bool `json:"is_pinned"`
}

// EmbedURLs is what the embed endpoint returns: a signed viewer URL plus the
// Metabase editor URL for owners.
type EmbedURLs struct {
	EmbedURL  string
	EditorURL string
	IsOwner   bool
}

// Create makes a dashboard inside the workspace's Metabase collection and
// mirrors it locally with the caller as pinned owner. Requires membership.
func (s *Service) Create(ctx context.Context, user *models.User, input CreateInput) (*WithAccess, error) {
	var ws models.Workspace
	if err := s.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", input.WorkspaceID, true).
		First(&ws).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWorkspaceNotFound
		}
		return nil, err
	}

	if err := s.requireMembership(ctx, ws.ID, user.ID); err != nil {
		return nil, err
	}

	if ws.MetabaseCollectionID == nil {
		return nil, ErrWorkspaceUnprovisioned
	}

	s.logger.Info("creating dashboard", "name", input.Name, "workspace_id", ws.ID)

	ref, err := s.mb.CreateDashboard(ctx, input.Name, *ws.MetabaseCollectionID)
	if err != nil {
		return nil, fmt.Errorf("creating metabase dashboard: %w", err)
	}

	if err := s.mb.EnableResourceEmbedding(ctx, models.ResourceDashboard, ref.ID); err != nil {
		s.logger.Warn("could not enable dashboard embedding", "dashboard_id", ref.ID, "error", err)
	}

	dash := models.Dashboard{
		WorkspaceID:           ws.ID,
		MetabaseDashboardID:   ref.ID,
		MetabaseDashboardName: input.Name,
		Description:           input.Description,
		ResourceType:          models.ResourceDashboard,
		IsPublic:              true,
		IsPublished:           true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&dash).Error; err != nil {
			return err
		}
		link := models.UserDashboard{
			UserID:      user.ID,
			DashboardID: dash.ID,
			IsOwner:     true,
			IsPinned:    true,
		}
		return tx.Create(&link).Error
	})
	if err != nil {
		return nil, fmt.Errorf("persisting dashboard: %w", err)
	}

	return &WithAccess{Dashboard: dash, IsOwner: true, IsPinned: true}, nil
}

// ListMine returns every dashboard the user has a link to.
func (s *Service) ListMine(ctx context.Context, userID uuid.UUID) ([]WithAccess, error) {
	var links []models.UserDashboard
	if err := s.db.WithContext(ctx).
		Preload("Dashboard").
		Where("user_id = ?", userID).
		Find(&links).Error; err != nil {
		return nil, err
	}

	result := make([]WithAccess, 0, len(links))
	for _, link := range links {
		if link.Dashboard == nil {
			continue
		}
		result = append(result, WithAccess{
			Dashboard: *link.Dashboard,
			IsOwner:   link.IsOwner,
			IsPinned:  link.IsPinned,
		})
	}
	return result, nil
}

// Embed returns viewer and editor URLs for a dashboard the user is linked to.
// Embedding is re-enabled on each call so a toggle lost on the Metabase side
// heals itself; a failure there is logged, not fatal, since URL signing is
// local.
func (s *Service) Embed(ctx context.Context, user *models.User, dashboardID uuid.UUID) (*EmbedURLs, error) {
	link, err := s.findLink(ctx, user.ID, dashboardID)
	if err != nil {
		return nil, err
	}
	dash := link.Dashboard

	if err := s.mb.EnableResourceEmbedding(ctx, dash.ResourceType, dash.MetabaseDashboardID); err != nil {
		s.logger.Warn("could not re-enable embedding", "dashboard_id", dash.MetabaseDashboardID, "error", err)
	}

	embedURL, err := s.mb.DashboardEmbedURL(dash.MetabaseDashboardID, user.Email, nil)
	if err != nil {
		return nil, err
	}

	return &EmbedURLs{
		EmbedURL:  embedURL,
		EditorURL: s.mb.DashboardEditorURL(dash.MetabaseDashboardID),
		IsOwner:   link.IsOwner,
	}, nil
}

// Publish marks a dashboard published and makes sure embedding is on.
// Owner only.
func (s *Service) Publish(ctx context.Context, userID, dashboardID uuid.UUID) error {
	link, err := s.findLink(ctx, userID, dashboardID)
	if err != nil {
		return err
	}
	if !link.IsOwner {
		return ErrOwnerOnly
	}
	dash := link.Dashboard

	if err := s.mb.EnableResourceEmbedding(ctx, dash.ResourceType, dash.MetabaseDashboardID); err != nil {
		s.logger.Warn("could not enable embedding on publish", "dashboard_id", dash.MetabaseDashboardID, "error", err)
	}

	return s.db.WithContext(ctx).Model(dash).
		Updates(map[string]interface{}{"is_published": true, "is_public": true}).Error
}

// Delete removes the caller's link to a dashboard. The dashboard row itself
// survives; when the last link goes, the row is just marked unpublished.
// Owner only.
func (s *Service) Delete(ctx context.Context, userID, dashboardID uuid.UUID) error {
	link, err := s.findLink(ctx, userID, dashboardID)
	if err != nil {
		return err
	}
	if !link.IsOwner {
		return ErrOwnerOnly
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.UserDashboard{}, "id = ?", link.ID).Error; err != nil {
			return err
		}

		var remaining int64
		if err := tx.Model(&models.UserDashboard{}).
			Where("dashboard_id = ?", dashboardID).
			Count(&remaining).Error; err != nil {
			return err
		}
		if remaining == 0 {
			return tx.Model(&models.Dashboard{}).
				Where("id = ?", dashboardID).
				Update("is_published", false).Error
		}
		return nil
	})
}

func (s *Service) findLink(ctx context.Context, userID, dashboardID uuid.UUID) (*models.UserDashboard, error) {
	var link models.UserDashboard
	err := s.db.WithContext(ctx).
		Preload("Dashboard").
		Where("user_id = ? AND dashboard_id = ?", userID, dashboardID).
		First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if link.Dashboard == nil {
		return nil, ErrNotFound
	}
	return &link, nil
}

func (s *Service) requireMembership(ctx context.Context, workspaceID, userID uuid.UUID) error {
	var member models.WorkspaceMember
	err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrAccessDenied
	}
	return err
}
