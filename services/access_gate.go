package services

import (
	"context"
	"errors"
	"strings"

	"go.wtyk.dev/authd/cache"
	"go.wtyk.dev/authd/domain"
	"go.wtyk.dev/authd/log"
)

// ErrUnauthorized is the gate's single failure mode. Expired token, revoked
// key, deleted user: all identical from outside.
var ErrUnauthorized = errors.New("unauthorized")

// AuthMethod says which kind of credential resolved a principal.
type AuthMethod string

const (
	AuthMethodOAuth  AuthMethod = "oauth"
	AuthMethodAPIKey AuthMethod = "api_key"
)

// Principal is the resolved identity behind a bearer credential.
type Principal struct {
	User   *domain.User
	Method AuthMethod
	// Scope is the token's granted scope; empty for API keys, which are
	// not scoped.
	Scope string
}

// AccessGate resolves a raw bearer credential to a principal. The credential
// kind is discriminated exactly once, at this boundary: anything carrying
// the API key tag goes down the key path, everything else is treated as an
// opaque access token. Both paths re-verify the owning user against the
// directory so no credential outlives its account.
type AccessGate struct {
	tokens  *TokenService
	apiKeys *APIKeyService
	users   domain.UserRepository
	logger  log.Logger
}

func NewAccessGate(tokens *TokenService, apiKeys *APIKeyService, users domain.UserRepository, logger log.Logger) *AccessGate {
	return &AccessGate{tokens: tokens, apiKeys: apiKeys, users: users, logger: logger}
}

// Resolve authenticates a bearer credential. Returns ErrUnauthorized for
// every authentication failure; other errors mean the backing stores are
// unavailable.
func (g *AccessGate) Resolve(ctx context.Context, bearer string) (*Principal, error) {
	if bearer == "" {
		return nil, ErrUnauthorized
	}

	if strings.HasPrefix(bearer, domain.APIKeyTag) {
		_, user, err := g.apiKeys.ValidateAPIKey(ctx, bearer)
		if err != nil {
			if errors.Is(err, ErrInvalidAPIKey) {
				return nil, ErrUnauthorized
			}
			return nil, err
		}
		return &Principal{User: user, Method: AuthMethodAPIKey}, nil
	}

	token, err := g.tokens.ValidateAccessToken(ctx, bearer)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	user, err := g.users.GetUserByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if user.IsDeleted {
		return nil, ErrUnauthorized
	}

	return &Principal{User: user, Method: AuthMethodOAuth, Scope: token.Scope}, nil
}
