package workspace

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hugh/embedash/internal/database/models"
	"gorm.io/gorm"
)

// Sync reconciles the local dashboard table with whatever actually lives in
// the workspace's Metabase collection, since users create content directly in
// the Metabase UI too. New items get an unpublished local row; known items get
// their display name refreshed so external renames show up. Returns the count
// of newly discovered items.
//
// Unlike provisioning, this is strict: any persistence error rolls back the
// whole batch and is returned to the caller.
func (s *Service) Sync(ctx context.Context, ws *models.Workspace) (int, error) {
	if ws.MetabaseCollectionID == nil {
		return 0, nil
	}

	items, err := s.mb.CollectionItems(ctx, *ws.MetabaseCollectionID)
	if err != nil {
		return 0, fmt.Errorf("listing collection items: %w", err)
	}

	discovered := 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			if item.Model != models.ResourceDashboard && item.Model != models.ResourceCard {
				continue
			}

			var existing models.Dashboard
			findErr := tx.
				Where("metabase_dashboard_id = ? AND workspace_id = ?", item.ID, ws.ID).
				First(&existing).Error

			switch {
			case errors.Is(findErr, gorm.ErrRecordNotFound):
				dash := models.Dashboard{
					WorkspaceID:           ws.ID,
					MetabaseDashboardID:   item.ID,
					MetabaseDashboardName: item.Name,
					ResourceType:          item.Model,
					IsPublic:              true,
					IsPublished:           false,
				}
				if err := tx.Create(&dash).Error; err != nil {
					return err
				}
				discovered++
				if err := s.mb.EnableResourceEmbedding(ctx, item.Model, item.ID); err != nil {
					s.logger.Warn("could not enable embedding for discovered item",
						"resource_type", item.Model,
						"resource_id", item.ID,
						"error", err,
					)
				}
			case findErr != nil:
				return findErr
			case existing.MetabaseDashboardName != item.Name:
				if err := tx.Model(&existing).
					Update("metabase_dashboard_name", item.Name).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("syncing workspace %s: %w", ws.ID, err)
	}

	if discovered > 0 {
		s.logger.Info("discovered dashboards during sync", "workspace_id", ws.ID, "count", discovered)
	}
	return discovered, nil
}

// ListDashboards syncs the workspace against Metabase, then returns its local
// dashboard rows. Every listing pays the external round trip; there is no
// background job and no cache.
func (s *Service) ListDashboards(ctx context.Context, workspaceID, userID uuid.UUID) ([]models.Dashboard, error) {
	ws, err := s.Get(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}

	if _, err := s.Sync(ctx, ws); err != nil {
		return nil, err
	}

	var dashboards []models.Dashboard
	if err := s.db.WithContext(ctx).
		Where("workspace_id = ?", ws.ID).
		Order("created_at").
		Find(&dashboards).Error; err != nil {
		return nil, err
	}
	return dashboards, nil
}
