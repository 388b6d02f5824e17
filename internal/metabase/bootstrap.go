package metabase

import (
	"context"
	"net/http"
	"time"

	"github.com/hugh/embedash/pkg/config"
)

const (
	healthAttempts = 10
	healthInterval = 3 * time.Second
)

// Names the bootstrap and provisioning flows look for when locating the
// shared analytics database inside Metabase.
var AnalyticsDatabaseNames = []string{"Analytics Database", "Analytics"}

// WaitHealthy polls the health endpoint a fixed number of times.
func (c *Client) WaitHealthy(ctx context.Context) bool {
	for attempt := 1; attempt <= healthAttempts; attempt++ {
		if c.Health(ctx) {
			return true
		}
		c.logger.Info("waiting for metabase", "attempt", attempt, "max", healthAttempts)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(healthInterval):
		}
	}
	return false
}

// Bootstrap brings a Metabase instance into the state the rest of the system
// assumes: admin provisioned, embedding enabled globally, analytics database
// registered and readable by everyone. Every step past the health gate is
// best-effort; the server starts regardless and the failures surface later as
// degraded workspaces.
func (c *Client) Bootstrap(ctx context.Context, analytics config.AnalyticsDBConfig) {
	if !c.WaitHealthy(ctx) {
		c.logger.Warn("metabase is not responding, continuing without bootstrap")
		return
	}

	setupToken, err := c.SetupToken(ctx)
	if err != nil {
		c.logger.Warn("failed to read setup token", "error", err)
	} else if setupToken != "" {
		c.logger.Info("fresh metabase instance detected, running initial setup")
		if err := c.SetupAdmin(ctx, setupToken); err != nil {
			if IsStatus(err, http.StatusForbidden) {
				c.logger.Info("metabase admin already exists, skipping setup")
			} else {
				c.logger.Error("metabase setup failed", "error", err)
			}
		}
	}

	if err := c.EnableEmbedding(ctx); err != nil {
		c.logger.Warn("failed to enable global embedding", "error", err)
	}

	db, err := c.FindDatabase(ctx, AnalyticsDatabaseNames...)
	if err != nil {
		c.logger.Warn("failed to list metabase databases", "error", err)
		return
	}
	if db == nil {
		db, err = c.AddDatabase(ctx, AnalyticsDatabaseNames[0], "postgres", analytics)
		if err != nil {
			c.logger.Warn("failed to register analytics database", "error", err)
			return
		}
		c.logger.Info("registered analytics database", "database_id", db.ID)
	}

	groupID, err := c.AllUsersGroupID(ctx)
	if err != nil {
		c.logger.Warn("failed to resolve All Users group", "error", err)
		return
	}
	if err := c.GrantDatabaseAccess(ctx, groupID, db.ID, "public", "all"); err != nil {
		c.logger.Warn("failed to set default database permissions", "error", err)
	}
}
