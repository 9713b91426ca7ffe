package domain

import (
	"context"
	"errors"
)

// Sentinel errors shared by all directory backends. Repositories translate
// their driver-level not-found conditions into these so callers never branch
// on backend detail.
var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUserExists     = errors.New("user already exists")
	ErrAPIKeyNotFound = errors.New("api key not found")
)

// UserRepository is the user directory: identity records plus the deletion
// flag every credential check re-verifies.
type UserRepository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// TouchLastLogin bumps last_login_at; callers treat failures as
	// non-fatal.
	TouchLastLogin(ctx context.Context, id string) error
	// MarkDeleted soft-deletes the user. The record stays for audit; all
	// access paths treat it as absent from then on.
	MarkDeleted(ctx context.Context, id string) error
}

// APIKeyRepository stores long-lived API key records. Lookup is by digest
// only; the plaintext never reaches a repository.
type APIKeyRepository interface {
	CreateAPIKey(ctx context.Context, key *APIKey) error
	// GetAPIKeyByHash returns the record whose stored digest equals hash,
	// active or not. ErrAPIKeyNotFound when no record matches.
	GetAPIKeyByHash(ctx context.Context, hash string) (*APIKey, error)
	// TouchLastUsed updates the audit timestamp; best-effort by contract.
	TouchLastUsed(ctx context.Context, id string) error
	// ListAPIKeys returns all of a user's keys, newest first, digests
	// included (services strip them before serialization).
	ListAPIKeys(ctx context.Context, userID string) ([]*APIKey, error)
	// RevokeAPIKey deactivates the key identified by (id, userID). A key
	// owned by someone else is ErrAPIKeyNotFound, indistinguishable from a
	// key that never existed.
	RevokeAPIKey(ctx context.Context, id, userID string) error
	// DeleteAPIKeysForUser hard-deletes every key for the user and returns
	// the count removed. Account-deletion only.
	DeleteAPIKeysForUser(ctx context.Context, userID string) (int64, error)
}
