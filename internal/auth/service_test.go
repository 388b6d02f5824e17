package auth_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/embedash/internal/auth"
	"github.com/hugh/embedash/internal/database/models"
	"github.com/hugh/embedash/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAuthService(t *testing.T) (*auth.Service, *testutil.TestSetup) {
	t.Helper()
	tc := testutil.NewTestContext(t)
	svc := auth.NewService(tc.DB, tc.JWTService, tc.Metabase.Client(t), testutil.TestLogger())
	return svc, tc
}

func TestService_Signup(t *testing.T) {
	t.Run("creates local and metabase user", func(t *testing.T) {
		svc, tc := setupAuthService(t)
		defer tc.Cleanup()
		ctx := testutil.TestContext(t)

		user, err := svc.Signup(ctx, auth.SignupInput{
			Email:     "alice@example.com",
			Password:  "securepassword123",
			FirstName: "Alice",
			LastName:  "Smith",
		})
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", user.Email)
		assert.True(t, user.IsActive)
		assert.NotEqual(t, "securepassword123", user.PasswordHash)

		// Mirrored into Metabase with the external id stored
		require.NotNil(t, user.MetabaseUserID)
		users := tc.Metabase.Users()
		require.Len(t, users, 1)
		assert.Equal(t, users[0].ID, *user.MetabaseUserID)
		assert.Equal(t, "alice@example.com", users[0].Email)

		// Added to the All Users group
		memberships := tc.Metabase.Memberships()
		require.Len(t, memberships, 1)
		assert.Equal(t, 1, memberships[0].GroupID)
		assert.Equal(t, users[0].ID, memberships[0].UserID)
	})

	t.Run("succeeds when metabase is down", func(t *testing.T) {
		svc, tc := setupAuthService(t)
		defer tc.Cleanup()
		ctx := testutil.TestContext(t)

		tc.Metabase.Server.Close()

		user, err := svc.Signup(ctx, auth.SignupInput{
			Email:    "offline@example.com",
			Password: "securepassword123",
		})
		require.NoError(t, err)
		assert.Nil(t, user.MetabaseUserID)
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		svc, tc := setupAuthService(t)
		defer tc.Cleanup()
		ctx := testutil.TestContext(t)

		input := auth.SignupInput{Email: "dup@example.com", Password: "securepassword123"}
		_, err := svc.Signup(ctx, input)
		require.NoError(t, err)

		_, err = svc.Signup(ctx, input)
		assert.ErrorIs(t, err, auth.ErrUserExists)
	})

	t.Run("reuses existing metabase user", func(t *testing.T) {
		svc, tc := setupAuthService(t)
		defer tc.Cleanup()
		ctx := testutil.TestContext(t)

		// A user with this email already lives in Metabase
		mbClient := tc.Metabase.Client(t)
		existing, err := mbClient.CreateUser(ctx, "shared@example.com", "Pre", "Existing", "whatever123")
		require.NoError(t, err)

		user, err := svc.Signup(ctx, auth.SignupInput{
			Email:    "shared@example.com",
			Password: "securepassword123",
		})
		require.NoError(t, err)
		require.NotNil(t, user.MetabaseUserID)
		assert.Equal(t, existing.ID, *user.MetabaseUserID)
		assert.Len(t, tc.Metabase.Users(), 1)
	})
}

func TestService_Login(t *testing.T) {
	t.Run("returns token for valid credentials", func(t *testing.T) {
		svc, tc := setupAuthService(t)
		defer tc.Cleanup()
		ctx := testutil.TestContext(t)

		user := testutil.CreateTestUser(t, tc.DB)

		resp, err := svc.Login(ctx, auth.LoginInput{
			Email:    user.Email,
			Password: "testpassword123",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.Token)

		claims, err := tc.JWTService.ValidateToken(resp.Token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, claims.UserID)
	})

	t.Run("rejects wrong password", func(t *testing.T) {
		svc, tc := setupAuthService(t)
		defer tc.Cleanup()
		ctx := testutil.TestContext(t)

		user := testutil.CreateTestUser(t, tc.DB)

		_, err := svc.Login(ctx, auth.LoginInput{
			Email:    user.Email,
			Password: "wrongpassword",
		})
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("rejects unknown email", func(t *testing.T) {
		svc, tc := setupAuthService(t)
		defer tc.Cleanup()
		ctx := testutil.TestContext(t)

		_, err := svc.Login(ctx, auth.LoginInput{
			Email:    "nobody@example.com",
			Password: "whatever123",
		})
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("rejects inactive user", func(t *testing.T) {
		svc, tc := setupAuthService(t)
		defer tc.Cleanup()
		ctx := testutil.TestContext(t)

		user := testutil.CreateTestUser(t, tc.DB)
		require.NoError(t, tc.DB.Model(user).Update("is_active", false).Error)

		_, err := svc.Login(ctx, auth.LoginInput{
			Email:    user.Email,
			Password: "testpassword123",
		})
		assert.ErrorIs(t, err, auth.ErrInactiveUser)
	})
}

func TestService_Login_DefaultWorkspace(t *testing.T) {
	t.Run("first login joins the default workspace as viewer", func(t *testing.T) {
		svc, tc := setupAuthService(t)
		defer tc.Cleanup()
		ctx := testutil.TestContext(t)

		owner := testutil.CreateTestUser(t, tc.DB)
		ws := testutil.CreateTestWorkspace(t, tc.DB, owner)
		require.NoError(t, tc.DB.Model(ws).Update("is_default", true).Error)

		mbUserID := 77
		user := testutil.CreateTestUser(t, tc.DB)
		require.NoError(t, tc.DB.Model(user).Update("metabase_user_id", mbUserID).Error)

		resp, err := svc.Login(ctx, auth.LoginInput{
			Email:    user.Email,
			Password: "testpassword123",
		})
		require.NoError(t, err)
		assert.True(t, resp.User.DefaultWorkspaceAssigned)

		var member models.WorkspaceMember
		err = tc.DB.Where("workspace_id = ? AND user_id = ?", ws.ID, user.ID).First(&member).Error
		require.NoError(t, err)
		assert.Equal(t, models.RoleViewer, member.Role)

		// Also mirrored to the workspace's Metabase group
		memberships := tc.Metabase.Memberships()
		require.Len(t, memberships, 1)
		assert.Equal(t, *ws.MetabaseGroupID, memberships[0].GroupID)
		assert.Equal(t, mbUserID, memberships[0].UserID)
	})

	t.Run("second login does not duplicate the membership", func(t *testing.T) {
		svc, tc := setupAuthService(t)
		defer tc.Cleanup()
		ctx := testutil.TestContext(t)

		owner := testutil.CreateTestUser(t, tc.DB)
		ws := testutil.CreateTestWorkspace(t, tc.DB, owner)
		require.NoError(t, tc.DB.Model(ws).Update("is_default", true).Error)

		user := testutil.CreateTestUser(t, tc.DB)
		input := auth.LoginInput{Email: user.Email, Password: "testpassword123"}

		_, err := svc.Login(ctx, input)
		require.NoError(t, err)
		_, err = svc.Login(ctx, input)
		require.NoError(t, err)

		var count int64
		err = tc.DB.Model(&models.WorkspaceMember{}).
			Where("workspace_id = ? AND user_id = ?", ws.ID, user.ID).
			Count(&count).Error
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("login works with no default workspace seeded", func(t *testing.T) {
		svc, tc := setupAuthService(t)
		defer tc.Cleanup()
		ctx := testutil.TestContext(t)

		user := testutil.CreateTestUser(t, tc.DB)

		resp, err := svc.Login(ctx, auth.LoginInput{
			Email:    user.Email,
			Password: "testpassword123",
		})
		require.NoError(t, err)
		assert.False(t, resp.User.DefaultWorkspaceAssigned)
	})
}

func TestService_Refresh(t *testing.T) {
	svc, tc := setupAuthService(t)
	defer tc.Cleanup()
	ctx := testutil.TestContext(t)

	user := testutil.CreateTestUser(t, tc.DB)

	resp, err := svc.Refresh(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)

	claims, err := tc.JWTService.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.True(t, claims.ExpiresAt.After(time.Now()))
}

func TestService_GetUserByID(t *testing.T) {
	svc, tc := setupAuthService(t)
	defer tc.Cleanup()
	ctx := testutil.TestContext(t)

	t.Run("unknown id", func(t *testing.T) {
		_, err := svc.GetUserByID(ctx, uuid.New())
		assert.ErrorIs(t, err, auth.ErrUserNotFound)
	})

	t.Run("existing user", func(t *testing.T) {
		user := testutil.CreateTestUser(t, tc.DB)
		found, err := svc.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, user.Email, found.Email)
	})
}
