package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"go.wtyk.dev/authd/cache"
	"go.wtyk.dev/authd/domain"
)

const (
	authCodeBytes = 32
	tokenBytes    = 64
)

// randomHex returns n cryptographically random bytes hex-encoded.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// TokenService mints and validates opaque token pairs. Tokens carry no
// embedded claims; everything about them lives in the credential store.
type TokenService struct {
	store      cache.TokenStore
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenService(store cache.TokenStore, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		store:      store,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// MintPair creates a fresh access/refresh token pair for the given subject
// and persists both halves. The same record goes under both keys so refresh
// redemption recovers the full grant context.
func (s *TokenService) MintPair(ctx context.Context, userID, clientID, scope string) (*domain.AccessToken, error) {
	access, err := randomHex(tokenBytes)
	if err != nil {
		return nil, err
	}
	refresh, err := randomHex(tokenBytes)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	token := &domain.AccessToken{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.accessTTL.Seconds()),
		UserID:       userID,
		ClientID:     clientID,
		Scope:        scope,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.accessTTL),
	}

	if err := s.store.SaveAccessToken(ctx, token, s.accessTTL); err != nil {
		return nil, fmt.Errorf("save access token: %w", err)
	}
	if err := s.store.SaveRefreshToken(ctx, refresh, token, s.refreshTTL); err != nil {
		return nil, fmt.Errorf("save refresh token: %w", err)
	}
	return token, nil
}

// ValidateAccessToken resolves an opaque access token. Absent and expired
// look identical to the caller: cache.ErrNotFound.
func (s *TokenService) ValidateAccessToken(ctx context.Context, token string) (*domain.AccessToken, error) {
	at, err := s.store.GetAccessToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if at.Expired(time.Now().UTC()) {
		return nil, cache.ErrNotFound
	}
	return at, nil
}
