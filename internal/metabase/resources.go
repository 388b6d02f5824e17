package metabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/hugh/embedash/pkg/config"
)

type User struct {
	ID          int    `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	IsSuperuser bool   `json:"is_superuser"`
}

type Collection struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CollectionItem is one entry of a collection listing. Model distinguishes
// dashboards from cards (saved questions) from sub-collections.
type CollectionItem struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Model string `json:"model"`
}

type Database struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Engine string `json:"engine"`
}

type Group struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type DashboardRef struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	CollectionID *int   `json:"collection_id"`
}

// ==================== Users ====================

// CreateUser creates a regular (never superuser) Metabase user.
func (c *Client) CreateUser(ctx context.Context, email, firstName, lastName, password string) (*User, error) {
	payload := map[string]interface{}{
		"first_name":   firstName,
		"last_name":    lastName,
		"email":        email,
		"password":     password,
		"is_superuser": false,
	}
	var user User
	if err := c.do(ctx, http.MethodPost, "/api/user", payload, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UserByEmail returns the Metabase user with the given email, or nil when no
// such user exists.
func (c *Client) UserByEmail(ctx context.Context, email string) (*User, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/user", nil, &raw); err != nil {
		return nil, err
	}
	users, err := unwrapList[User](raw)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Email == email {
			return &users[i], nil
		}
	}
	return nil, nil
}

// ==================== Collections ====================

func (c *Client) CreateCollection(ctx context.Context, name, description string) (*Collection, error) {
	payload := map[string]interface{}{
		"name":        name,
		"color":       "#509EE3",
		"description": description,
		"parent_id":   nil,
	}
	var col Collection
	if err := c.do(ctx, http.MethodPost, "/api/collection", payload, &col); err != nil {
		return nil, err
	}
	return &col, nil
}

func (c *Client) EnableCollectionEmbedding(ctx context.Context, collectionID int) error {
	path := "/api/collection/" + strconv.Itoa(collectionID)
	return c.do(ctx, http.MethodPut, path, map[string]bool{"enable_embedding": true}, nil)
}

func (c *Client) CollectionItems(ctx context.Context, collectionID int) ([]CollectionItem, error) {
	path := "/api/collection/" + strconv.Itoa(collectionID) + "/items"
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return unwrapList[CollectionItem](raw)
}

// ==================== Databases ====================

func (c *Client) AddDatabase(ctx context.Context, name, engine string, conn config.AnalyticsDBConfig) (*Database, error) {
	payload := map[string]interface{}{
		"name":   name,
		"engine": engine,
		"details": map[string]interface{}{
			"host":     conn.Host,
			"port":     conn.Port,
			"dbname":   conn.Name,
			"user":     conn.User,
			"password": conn.Password,
			"ssl":      false,
		},
		"auto_run_queries": true,
		"is_full_sync":     true,
	}
	var db Database
	if err := c.do(ctx, http.MethodPost, "/api/database", payload, &db); err != nil {
		return nil, err
	}
	return &db, nil
}

func (c *Client) ListDatabases(ctx context.Context) ([]Database, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/database", nil, &raw); err != nil {
		return nil, err
	}
	return unwrapList[Database](raw)
}

// FindDatabase returns the first database matching any of the given names, or
// nil when none matches.
func (c *Client) FindDatabase(ctx context.Context, names ...string) (*Database, error) {
	dbs, err := c.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		for i := range dbs {
			if dbs[i].Name == name {
				return &dbs[i], nil
			}
		}
	}
	return nil, nil
}

// ==================== Permission groups ====================

func (c *Client) CreateGroup(ctx context.Context, name string) (*Group, error) {
	var group Group
	if err := c.do(ctx, http.MethodPost, "/api/permissions/group", map[string]string{"name": name}, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/permissions/group", nil, &raw); err != nil {
		return nil, err
	}
	return unwrapList[Group](raw)
}

// GroupByName returns the group with the given name, or nil when absent.
func (c *Client) GroupByName(ctx context.Context, name string) (*Group, error) {
	groups, err := c.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	for i := range groups {
		if groups[i].Name == name {
			return &groups[i], nil
		}
	}
	return nil, nil
}

// EnsureGroup creates a group, resolving name collisions by looking up the
// existing group first and falling back to a time-suffixed unique name. It
// never leaves the caller with a duplicate unlinked group.
func (c *Client) EnsureGroup(ctx context.Context, name string) (*Group, error) {
	group, err := c.CreateGroup(ctx, name)
	if err == nil {
		return group, nil
	}
	c.logger.Warn("group creation failed, trying lookup", "group", name, "error", err)

	existing, lookupErr := c.GroupByName(ctx, name)
	if lookupErr == nil && existing != nil {
		return existing, nil
	}

	unique := fmt.Sprintf("%s %d", name, time.Now().Unix())
	group, retryErr := c.CreateGroup(ctx, unique)
	if retryErr != nil {
		return nil, fmt.Errorf("creating group %q: %w", name, err)
	}
	return group, nil
}

// AllUsersGroupID returns the id of Metabase's built-in "All Users" group.
func (c *Client) AllUsersGroupID(ctx context.Context) (int, error) {
	group, err := c.GroupByName(ctx, "All Users")
	if err != nil {
		return 0, err
	}
	if group == nil {
		// Metabase creates it with id 1 on every install.
		return 1, nil
	}
	return group.ID, nil
}

func (c *Client) AddUserToGroup(ctx context.Context, userID, groupID int) error {
	payload := map[string]int{"group_id": groupID, "user_id": userID}
	return c.do(ctx, http.MethodPost, "/api/permissions/membership", payload, nil)
}

// ==================== Permissions ====================

// SetCollectionPermission grants a group the given permission ("read" or
// "write") on a collection. The collection graph endpoint accepts partial
// updates, so no read-modify-write is needed here.
func (c *Client) SetCollectionPermission(ctx context.Context, groupID, collectionID int, permission string) error {
	payload := map[string]interface{}{
		"groups": map[string]map[string]string{
			strconv.Itoa(groupID): {
				strconv.Itoa(collectionID): permission,
			},
		},
	}
	return c.do(ctx, http.MethodPut, "/api/collection/graph", payload, nil)
}

// GrantDatabaseAccess gives a group schema access on a database via the global
// permission graph. The graph only supports whole-document writes, so the
// fetch-mutate-put cycle runs under a lock to keep this process a single
// writer.
func (c *Client) GrantDatabaseAccess(ctx context.Context, groupID, databaseID int, schema, permission string) error {
	c.graphMu.Lock()
	defer c.graphMu.Unlock()

	var graph map[string]interface{}
	if err := c.do(ctx, http.MethodGet, "/api/permissions/graph", nil, &graph); err != nil {
		return err
	}

	groups, ok := graph["groups"].(map[string]interface{})
	if !ok {
		groups = make(map[string]interface{})
		graph["groups"] = groups
	}
	groupKey := strconv.Itoa(groupID)
	groupEntry, ok := groups[groupKey].(map[string]interface{})
	if !ok {
		groupEntry = make(map[string]interface{})
		groups[groupKey] = groupEntry
	}
	groupEntry[strconv.Itoa(databaseID)] = map[string]interface{}{
		"schemas": map[string]string{schema: permission},
		"native":  "write",
	}

	if err := c.do(ctx, http.MethodPut, "/api/permissions/graph", graph, nil); err != nil {
		return err
	}

	c.logger.Info("granted database access", "group_id", groupID, "database_id", databaseID, "schema", schema)
	return nil
}

// ==================== Dashboards ====================

func (c *Client) CreateDashboard(ctx context.Context, name string, collectionID int) (*DashboardRef, error) {
	payload := map[string]interface{}{
		"name":          name,
		"collection_id": collectionID,
	}
	var dash DashboardRef
	if err := c.do(ctx, http.MethodPost, "/api/dashboard", payload, &dash); err != nil {
		return nil, err
	}
	return &dash, nil
}

// EnableResourceEmbedding flips the embedding flag on a dashboard or card.
// Idempotent: enabling twice is a no-op on the Metabase side.
func (c *Client) EnableResourceEmbedding(ctx context.Context, resourceType string, resourceID int) error {
	endpoint := "dashboard"
	if resourceType == "card" {
		endpoint = "card"
	}
	path := "/api/" + endpoint + "/" + strconv.Itoa(resourceID)
	return c.do(ctx, http.MethodPut, path, map[string]bool{"enable_embedding": true}, nil)
}
