package services

import (
	"context"

	"go.wtyk.dev/authd/domain"
)

// Function-field mocks: a nil field means the call is unexpected and
// panics, which surfaces accidental store traffic in tests.

type mockUserRepo struct {
	createUser     func(ctx context.Context, user *domain.User) error
	getUserByID    func(ctx context.Context, id string) (*domain.User, error)
	getUserByEmail func(ctx context.Context, email string) (*domain.User, error)
	touchLastLogin func(ctx context.Context, id string) error
	markDeleted    func(ctx context.Context, id string) error
}

var _ domain.UserRepository = (*mockUserRepo)(nil)

func (m *mockUserRepo) CreateUser(ctx context.Context, user *domain.User) error {
	return m.createUser(ctx, user)
}

func (m *mockUserRepo) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return m.getUserByID(ctx, id)
}

func (m *mockUserRepo) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return m.getUserByEmail(ctx, email)
}

func (m *mockUserRepo) TouchLastLogin(ctx context.Context, id string) error {
	return m.touchLastLogin(ctx, id)
}

func (m *mockUserRepo) MarkDeleted(ctx context.Context, id string) error {
	return m.markDeleted(ctx, id)
}

type mockAPIKeyRepo struct {
	createAPIKey         func(ctx context.Context, key *domain.APIKey) error
	getAPIKeyByHash      func(ctx context.Context, hash string) (*domain.APIKey, error)
	touchLastUsed        func(ctx context.Context, id string) error
	listAPIKeys          func(ctx context.Context, userID string) ([]*domain.APIKey, error)
	revokeAPIKey         func(ctx context.Context, id, userID string) error
	deleteAPIKeysForUser func(ctx context.Context, userID string) (int64, error)
}

var _ domain.APIKeyRepository = (*mockAPIKeyRepo)(nil)

func (m *mockAPIKeyRepo) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	return m.createAPIKey(ctx, key)
}

func (m *mockAPIKeyRepo) GetAPIKeyByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	return m.getAPIKeyByHash(ctx, hash)
}

func (m *mockAPIKeyRepo) TouchLastUsed(ctx context.Context, id string) error {
	return m.touchLastUsed(ctx, id)
}

func (m *mockAPIKeyRepo) ListAPIKeys(ctx context.Context, userID string) ([]*domain.APIKey, error) {
	return m.listAPIKeys(ctx, userID)
}

func (m *mockAPIKeyRepo) RevokeAPIKey(ctx context.Context, id, userID string) error {
	return m.revokeAPIKey(ctx, id, userID)
}

func (m *mockAPIKeyRepo) DeleteAPIKeysForUser(ctx context.Context, userID string) (int64, error) {
	return m.deleteAPIKeysForUser(ctx, userID)
}
