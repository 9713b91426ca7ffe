package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"go.wtyk.dev/authd/domain"
	"go.wtyk.dev/authd/log"
)

// ErrAccountDeleted is returned when an operation targets a soft-deleted
// account.
var ErrAccountDeleted = errors.New("account is deleted")

// UserService owns identity lifecycle: first-login provisioning, login
// bookkeeping, and account deletion.
type UserService struct {
	users   domain.UserRepository
	apiKeys *APIKeyService
	logger  log.Logger
}

func NewUserService(users domain.UserRepository, apiKeys *APIKeyService, logger log.Logger) *UserService {
	return &UserService{users: users, apiKeys: apiKeys, logger: logger}
}

// EnsureUser resolves the user for an identity-provider login, creating the
// record on first sight. A soft-deleted account does not come back through
// login; it fails ErrAccountDeleted.
func (s *UserService) EnsureUser(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err == nil {
		if user.IsDeleted {
			return nil, ErrAccountDeleted
		}
		if terr := s.users.TouchLastLogin(ctx, user.ID); terr != nil {
			s.logger.Warn(ctx, "failed to update last_login_at", terr, map[string]interface{}{
				"user_id": user.ID,
			})
		}
		return user, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	user = &domain.User{
		ID:          uuid.NewString(),
		Email:       email,
		CreatedAt:   now,
		LastLoginAt: &now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		// Lost a race with a concurrent first login: read the winner.
		if errors.Is(err, domain.ErrUserExists) {
			return s.users.GetUserByEmail(ctx, email)
		}
		return nil, err
	}

	s.logger.Info(ctx, "user provisioned on first login", map[string]interface{}{
		"user_id": user.ID,
	})
	return user, nil
}

// GetUser looks up an active user by id. Deleted records count as absent.
func (s *UserService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.IsDeleted {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

// DeleteAccount soft-deletes the user and hard-deletes their API keys. Live
// OAuth tokens are not swept; the deletion flag makes every later credential
// check fail, and the tokens age out of the store on their TTLs.
func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.users.MarkDeleted(ctx, userID); err != nil {
		return err
	}
	deleted, err := s.apiKeys.DeleteAllAPIKeys(ctx, userID)
	if err != nil {
		// The account is already flagged; key records are unreachable via
		// validation even if this cleanup fails.
		s.logger.Error(ctx, "failed to delete api keys for deleted account", err, map[string]interface{}{
			"user_id": userID,
		})
		return err
	}
	s.logger.Info(ctx, "account deleted", map[string]interface{}{
		"user_id":          userID,
		"api_keys_deleted": deleted,
	})
	return nil
}
