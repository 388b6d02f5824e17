package metabase_test

import (
	"strconv"
	"strings"
	"testing"

	"github.com/hugh/embedash/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SessionReuse(t *testing.T) {
	fake := testutil.NewFakeMetabase(t)
	client := fake.Client(t)
	ctx := testutil.TestContext(t)

	_, err := client.ListGroups(ctx)
	require.NoError(t, err)
	_, err = client.ListGroups(ctx)
	require.NoError(t, err)
	_, err = client.ListDatabases(ctx)
	require.NoError(t, err)

	// One login serves every subsequent call
	assert.Equal(t, 1, fake.Logins)
}

func TestClient_RetriesOnExpiredSession(t *testing.T) {
	fake := testutil.NewFakeMetabase(t)
	fake.RejectFirstAuth = true
	client := fake.Client(t)
	ctx := testutil.TestContext(t)

	groups, err := client.ListGroups(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, groups)

	// The rejected request forces a second login
	assert.Equal(t, 2, fake.Logins)
}

func TestClient_CreateUser(t *testing.T) {
	fake := testutil.NewFakeMetabase(t)
	client := fake.Client(t)
	ctx := testutil.TestContext(t)

	user, err := client.CreateUser(ctx, "alice@example.com", "Alice", "Smith", "password123")
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
}

func TestClient_UserByEmail(t *testing.T) {
	fake := testutil.NewFakeMetabase(t)
	client := fake.Client(t)
	ctx := testutil.TestContext(t)

	t.Run("returns nil for unknown email", func(t *testing.T) {
		user, err := client.UserByEmail(ctx, "nobody@example.com")
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("finds existing user", func(t *testing.T) {
		created, err := client.CreateUser(ctx, "bob@example.com", "Bob", "Jones", "password123")
		require.NoError(t, err)

		found, err := client.UserByEmail(ctx, "bob@example.com")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, created.ID, found.ID)
	})
}

func TestClient_EnsureGroup(t *testing.T) {
	t.Run("creates new group", func(t *testing.T) {
		fake := testutil.NewFakeMetabase(t)
		client := fake.Client(t)
		ctx := testutil.TestContext(t)

		group, err := client.EnsureGroup(ctx, "Acme Team")
		require.NoError(t, err)
		assert.Equal(t, "Acme Team", group.Name)
	})

	t.Run("reuses group when name is taken", func(t *testing.T) {
		fake := testutil.NewFakeMetabase(t)
		client := fake.Client(t)
		ctx := testutil.TestContext(t)

		existing := fake.AddGroup("Acme Team")

		group, err := client.EnsureGroup(ctx, "Acme Team")
		require.NoError(t, err)
		assert.Equal(t, existing.ID, group.ID)
	})

	t.Run("falls back to unique name when creation fails and lookup misses", func(t *testing.T) {
		fake := testutil.NewFakeMetabase(t)
		client := fake.Client(t)
		ctx := testutil.TestContext(t)

		// Creation is rejected but no group with that name is listed
		fake.FailGroupNames["Ghost Team"] = true

		group, err := client.EnsureGroup(ctx, "Ghost Team")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(group.Name, "Ghost Team "))
		assert.NotEqual(t, "Ghost Team", group.Name)
	})
}

func TestClient_AllUsersGroupID(t *testing.T) {
	fake := testutil.NewFakeMetabase(t)
	client := fake.Client(t)
	ctx := testutil.TestContext(t)

	id, err := client.AllUsersGroupID(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, id)
}

func TestClient_FindDatabase(t *testing.T) {
	fake := testutil.NewFakeMetabase(t)
	client := fake.Client(t)
	ctx := testutil.TestContext(t)

	t.Run("returns nil when nothing matches", func(t *testing.T) {
		db, err := client.FindDatabase(ctx, "Analytics Database", "Analytics")
		require.NoError(t, err)
		assert.Nil(t, db)
	})

	t.Run("matches any of the given names", func(t *testing.T) {
		added := fake.AddDatabase("Analytics")

		db, err := client.FindDatabase(ctx, "Analytics Database", "Analytics")
		require.NoError(t, err)
		require.NotNil(t, db)
		assert.Equal(t, added.ID, db.ID)
	})
}

func TestClient_GrantDatabaseAccess(t *testing.T) {
	fake := testutil.NewFakeMetabase(t)
	client := fake.Client(t)
	ctx := testutil.TestContext(t)

	db := fake.AddDatabase("Analytics Database")
	group := fake.AddGroup("Acme Team")

	err := client.GrantDatabaseAccess(ctx, group.ID, db.ID, "public", "all")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.GraphPuts)

	graph := fake.Graph()
	groups, ok := graph["groups"].(map[string]interface{})
	require.True(t, ok)

	groupEntry, ok := groups[strconv.Itoa(group.ID)].(map[string]interface{})
	require.True(t, ok, "group entry missing from graph")

	dbEntry, ok := groupEntry[strconv.Itoa(db.ID)].(map[string]interface{})
	require.True(t, ok, "database entry missing from graph")

	schemas, ok := dbEntry["schemas"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "all", schemas["public"])
	assert.Equal(t, "write", dbEntry["native"])
}

func TestClient_SetCollectionPermission(t *testing.T) {
	fake := testutil.NewFakeMetabase(t)
	client := fake.Client(t)
	ctx := testutil.TestContext(t)

	err := client.SetCollectionPermission(ctx, 5, 10, "write")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.CollectionPuts)
}

func TestClient_CreateDashboard(t *testing.T) {
	fake := testutil.NewFakeMetabase(t)
	client := fake.Client(t)
	ctx := testutil.TestContext(t)

	col, err := client.CreateCollection(ctx, "Sales", "quarterly numbers")
	require.NoError(t, err)

	dash, err := client.CreateDashboard(ctx, "Revenue", col.ID)
	require.NoError(t, err)
	assert.NotZero(t, dash.ID)
	require.NotNil(t, dash.CollectionID)
	assert.Equal(t, col.ID, *dash.CollectionID)

	items, err := client.CollectionItems(ctx, col.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Revenue", items[0].Name)
	assert.Equal(t, "dashboard", items[0].Model)
}

func TestClient_EnableResourceEmbedding(t *testing.T) {
	fake := testutil.NewFakeMetabase(t)
	client := fake.Client(t)
	ctx := testutil.TestContext(t)

	require.NoError(t, client.EnableResourceEmbedding(ctx, "dashboard", 42))
	assert.True(t, fake.EmbeddingEnabled("dashboard", 42))

	require.NoError(t, client.EnableResourceEmbedding(ctx, "card", 7))
	assert.True(t, fake.EmbeddingEnabled("card", 7))
}
