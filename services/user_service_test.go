package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.wtyk.dev/authd/domain"
)

func TestEnsureUser(t *testing.T) {
	ctx := context.Background()

	t.Run("first login provisions", func(t *testing.T) {
		var created *domain.User
		users := &mockUserRepo{
			getUserByEmail: func(_ context.Context, _ string) (*domain.User, error) {
				return nil, domain.ErrUserNotFound
			},
			createUser: func(_ context.Context, u *domain.User) error {
				created = u
				return nil
			},
		}
		svc := NewUserService(users, nil, testLogger())

		u, err := svc.EnsureUser(ctx, "new@example.com")
		require.NoError(t, err)
		require.NotNil(t, created)
		assert.Equal(t, "new@example.com", u.Email)
		assert.NotEmpty(t, u.ID)
		assert.NotNil(t, u.LastLoginAt)
		assert.False(t, u.IsDeleted)
	})

	t.Run("returning user bumps last_login", func(t *testing.T) {
		touched := ""
		users := &mockUserRepo{
			getUserByEmail: func(_ context.Context, email string) (*domain.User, error) {
				return &domain.User{ID: "user-1", Email: email, CreatedAt: time.Now().UTC()}, nil
			},
			touchLastLogin: func(_ context.Context, id string) error {
				touched = id
				return nil
			},
		}
		svc := NewUserService(users, nil, testLogger())

		u, err := svc.EnsureUser(ctx, "back@example.com")
		require.NoError(t, err)
		assert.Equal(t, "user-1", u.ID)
		assert.Equal(t, "user-1", touched)
	})

	t.Run("deleted account cannot log in", func(t *testing.T) {
		users := &mockUserRepo{
			getUserByEmail: func(_ context.Context, email string) (*domain.User, error) {
				return &domain.User{ID: "user-1", Email: email, IsDeleted: true}, nil
			},
		}
		svc := NewUserService(users, nil, testLogger())

		_, err := svc.EnsureUser(ctx, "gone@example.com")
		assert.ErrorIs(t, err, ErrAccountDeleted)
	})

	t.Run("create race falls back to winner", func(t *testing.T) {
		calls := 0
		users := &mockUserRepo{
			getUserByEmail: func(_ context.Context, email string) (*domain.User, error) {
				calls++
				if calls == 1 {
					return nil, domain.ErrUserNotFound
				}
				return &domain.User{ID: "winner", Email: email}, nil
			},
			createUser: func(_ context.Context, _ *domain.User) error {
				return domain.ErrUserExists
			},
		}
		svc := NewUserService(users, nil, testLogger())

		u, err := svc.EnsureUser(ctx, "race@example.com")
		require.NoError(t, err)
		assert.Equal(t, "winner", u.ID)
	})
}

func TestDeleteAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("soft-deletes user and purges keys", func(t *testing.T) {
		marked := ""
		users := &mockUserRepo{
			markDeleted: func(_ context.Context, id string) error {
				marked = id
				return nil
			},
		}
		purged := ""
		keys := &mockAPIKeyRepo{
			deleteAPIKeysForUser: func(_ context.Context, userID string) (int64, error) {
				purged = userID
				return 3, nil
			},
		}
		svc := NewUserService(users, NewAPIKeyService(keys, users, testLogger()), testLogger())

		require.NoError(t, svc.DeleteAccount(ctx, "user-1"))
		assert.Equal(t, "user-1", marked)
		assert.Equal(t, "user-1", purged)
	})

	t.Run("unknown user", func(t *testing.T) {
		users := &mockUserRepo{
			markDeleted: func(_ context.Context, _ string) error {
				return domain.ErrUserNotFound
			},
		}
		svc := NewUserService(users, nil, testLogger())
		assert.ErrorIs(t, svc.DeleteAccount(ctx, "nope"), domain.ErrUserNotFound)
	})

	t.Run("key purge failure surfaces after flagging", func(t *testing.T) {
		users := &mockUserRepo{
			markDeleted: func(_ context.Context, _ string) error { return nil },
		}
		keys := &mockAPIKeyRepo{
			deleteAPIKeysForUser: func(_ context.Context, _ string) (int64, error) {
				return 0, errors.New("backend down")
			},
		}
		svc := NewUserService(users, NewAPIKeyService(keys, users, testLogger()), testLogger())
		assert.Error(t, svc.DeleteAccount(ctx, "user-1"))
	})
}
