package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hugh/embedash/internal/database/models"
	"github.com/hugh/embedash/internal/metabase"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveUser       = errors.New("user is inactive")
)

type Service struct {
	db     *gorm.DB
	jwt    *JWTService
	mb     *metabase.Client
	logger *slog.Logger
}

func NewService(db *gorm.DB, jwt *JWTService, mb *metabase.Client, logger *slog.Logger) *Service {
	return &Service{db: db, jwt: jwt, mb: mb, logger: logger}
}

type SignupInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResponse struct {
	Token string
	User  *models.User
}

// Signup creates the local user, then mirrors it into Metabase as a regular
// user. The Metabase half is best-effort: when it fails the account still
// works, it just has no external user id yet.
func (s *Service) Signup(ctx context.Context, input SignupInput) (*models.User, error) {
	var existing models.User
	if err := s.db.WithContext(ctx).Where("email = ?", input.Email).First(&existing).Error; err == nil {
		return nil, ErrUserExists
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Email:        input.Email,
		PasswordHash: hash,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		IsActive:     true,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}

	s.provisionMetabaseUser(ctx, &user, input)

	return &user, nil
}

// provisionMetabaseUser mirrors the account into Metabase and records the
// external id. Never fails the signup.
func (s *Service) provisionMetabaseUser(ctx context.Context, user *models.User, input SignupInput) {
	mbUser, err := s.mb.UserByEmail(ctx, input.Email)
	if err != nil {
		s.logger.Warn("metabase user lookup failed", "email", input.Email, "error", err)
		return
	}

	if mbUser == nil {
		firstName := input.FirstName
		if firstName == "" {
			firstName = "User"
		}
		lastName := input.LastName
		if lastName == "" {
			lastName = "User"
		}
		mbUser, err = s.mb.CreateUser(ctx, input.Email, firstName, lastName, input.Password)
		if err != nil {
			s.logger.Warn("metabase user creation failed", "email", input.Email, "error", err)
			return
		}
		s.logger.Info("created metabase user", "email", input.Email, "metabase_user_id", mbUser.ID)
	}

	user.MetabaseUserID = &mbUser.ID
	if err := s.db.WithContext(ctx).Model(user).Update("metabase_user_id", mbUser.ID).Error; err != nil {
		s.logger.Warn("failed to store metabase user id", "user_id", user.ID, "error", err)
		return
	}

	// Membership in "All Users" makes the shared analytics database visible.
	groupID, err := s.mb.AllUsersGroupID(ctx)
	if err == nil {
		err = s.mb.AddUserToGroup(ctx, mbUser.ID, groupID)
	}
	if err != nil {
		s.logger.Warn("could not add user to All Users group", "email", input.Email, "error", err)
	}
}

func (s *Service) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", input.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !CheckPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	s.assignDefaultWorkspace(ctx, &user)

	token, err := s.jwt.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{Token: token, User: &user}, nil
}

// assignDefaultWorkspace attaches first-time users to the seeded default
// workspace as viewers. Best-effort: a failure is logged and the login
// proceeds.
func (s *Service) assignDefaultWorkspace(ctx context.Context, user *models.User) {
	if user.DefaultWorkspaceAssigned {
		return
	}

	var ws models.Workspace
	err := s.db.WithContext(ctx).
		Where("is_default = ? AND is_active = ?", true, true).
		First(&ws).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("default workspace lookup failed", "error", err)
		}
		return
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var member models.WorkspaceMember
		findErr := tx.Where("workspace_id = ? AND user_id = ?", ws.ID, user.ID).First(&member).Error
		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			member = models.WorkspaceMember{
				WorkspaceID: ws.ID,
				UserID:      user.ID,
				Role:        models.RoleViewer,
			}
			if err := tx.Create(&member).Error; err != nil {
				return err
			}
		} else if findErr != nil {
			return findErr
		}
		return tx.Model(user).Update("default_workspace_assigned", true).Error
	})
	if err != nil {
		s.logger.Warn("default workspace assignment failed", "user_id", user.ID, "error", err)
		return
	}
	user.DefaultWorkspaceAssigned = true

	if user.MetabaseUserID != nil && ws.MetabaseGroupID != nil {
		if err := s.mb.AddUserToGroup(ctx, *user.MetabaseUserID, *ws.MetabaseGroupID); err != nil {
			s.logger.Warn("could not add user to default workspace group", "user_id", user.ID, "error", err)
		}
	}
}

// Refresh issues a fresh token for an already-authenticated user.
func (s *Service) Refresh(ctx context.Context, userID uuid.UUID) (*AuthResponse, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	token, err := s.jwt.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: token, User: user}, nil
}

func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
