package cache

import (
	"context"
	"errors"
	"time"

	"go.wtyk.dev/authd/domain"
)

// ErrNotFound is returned when a credential is absent, expired, or already
// consumed. Callers cannot distinguish those cases, which is deliberate:
// a single-use credential that was redeemed must look exactly like one
// that never existed.
var ErrNotFound = errors.New("credential not found")

// TokenStore is the short-lived credential store. Everything in it carries
// a TTL and expires on its own; nothing here is durable state.
//
// ConsumeAuthCode and ConsumeRefreshToken are atomic get-and-delete
// operations: concurrent redemptions of the same credential must yield the
// value to at most one caller. This is the property the whole
// single-use/rotation story rests on.
type TokenStore interface {
	SaveAuthCode(ctx context.Context, code *domain.AuthCode, ttl time.Duration) error
	ConsumeAuthCode(ctx context.Context, code string) (*domain.AuthCode, error)

	SaveAccessToken(ctx context.Context, token *domain.AccessToken, ttl time.Duration) error
	GetAccessToken(ctx context.Context, token string) (*domain.AccessToken, error)
	// DeleteAccessToken reports whether the token was present.
	DeleteAccessToken(ctx context.Context, token string) (bool, error)

	// SaveRefreshToken stores the same token record under the refresh
	// token key, so either half of the pair can be looked up alone.
	SaveRefreshToken(ctx context.Context, refreshToken string, token *domain.AccessToken, ttl time.Duration) error
	ConsumeRefreshToken(ctx context.Context, refreshToken string) (*domain.AccessToken, error)
	DeleteRefreshToken(ctx context.Context, refreshToken string) (bool, error)

	SaveSession(ctx context.Context, session *domain.Session, ttl time.Duration) error
	GetSession(ctx context.Context, token string) (*domain.Session, error)
	DeleteSession(ctx context.Context, token string) error

	Close() error
}

// Key namespaces for the in-memory backend. The Redis backend builds the
// same names under its configured key prefix.
const (
	nsAuthCode     = "auth_code:"
	nsAccessToken  = "access_token:"
	nsRefreshToken = "refresh_token:"
	nsSession      = "session:"
)
