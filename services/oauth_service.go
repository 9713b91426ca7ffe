package services

import (
	"context"
	"errors"
	"time"

	"go.wtyk.dev/authd/cache"
	"go.wtyk.dev/authd/client"
	"go.wtyk.dev/authd/domain"
	ssoerr "go.wtyk.dev/authd/errors"
	"go.wtyk.dev/authd/internal/metrics"
	"go.wtyk.dev/authd/log"
)

// AuthorizeRequest carries the query parameters of an authorization request.
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// TokenRequest carries the form parameters of a token-endpoint request.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	CodeVerifier string
	RefreshToken string
}

// OAuthService implements the authorization server state machine: authorize
// request validation, code issuance, both token grants, and revocation.
type OAuthService struct {
	store   cache.TokenStore
	tokens  *TokenService
	clients *client.Registry
	codeTTL time.Duration
	logger  log.Logger
}

func NewOAuthService(store cache.TokenStore, tokens *TokenService, clients *client.Registry, codeTTL time.Duration, logger log.Logger) *OAuthService {
	return &OAuthService{
		store:   store,
		tokens:  tokens,
		clients: clients,
		codeTTL: codeTTL,
		logger:  logger,
	}
}

// ValidateAuthorizeRequest checks an authorization request before any
// session or consent handling. Checks run in a fixed order so a request
// with several defects always reports the same one.
func (s *OAuthService) ValidateAuthorizeRequest(req AuthorizeRequest) (*domain.OAuthClient, *ssoerr.OAuth2Error) {
	if req.ClientID == "" || req.RedirectURI == "" {
		return nil, ssoerr.NewInvalidRequest("client_id and redirect_uri are required")
	}
	if req.ResponseType != "code" {
		return nil, ssoerr.NewInvalidRequest("response_type must be code")
	}

	c, err := s.clients.Get(req.ClientID)
	if err != nil {
		return nil, ssoerr.NewInvalidClient("unknown client_id")
	}
	if !s.clients.ValidateRedirectURI(c, req.RedirectURI) {
		return nil, ssoerr.NewInvalidRedirectURI()
	}

	if req.CodeChallenge == "" || req.CodeChallengeMethod == "" {
		return nil, ssoerr.NewPKCERequired()
	}
	if req.CodeChallengeMethod != domain.CodeChallengeMethodS256 {
		return nil, ssoerr.NewUnsupportedChallengeMethod()
	}

	return c, nil
}

// IssueAuthCode mints a single-use authorization code bound to the request's
// code challenge and persists it with the configured TTL.
func (s *OAuthService) IssueAuthCode(ctx context.Context, userID string, req AuthorizeRequest) (*domain.AuthCode, error) {
	code, err := randomHex(authCodeBytes)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ac := &domain.AuthCode{
		Code:                code,
		ClientID:            req.ClientID,
		UserID:              userID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.codeTTL),
	}
	if err := s.store.SaveAuthCode(ctx, ac, s.codeTTL); err != nil {
		return nil, err
	}

	metrics.AuthCodesIssuedTotal.Inc()
	s.logger.Info(ctx, "authorization code issued", map[string]interface{}{
		"client_id": req.ClientID,
		"user_id":   userID,
	})
	return ac, nil
}

// authenticateClient resolves and authenticates the client on the token
// endpoint. Unknown client and bad secret are both invalid_client.
func (s *OAuthService) authenticateClient(clientID, clientSecret string) (*domain.OAuthClient, *ssoerr.OAuth2Error) {
	c, err := s.clients.Get(clientID)
	if err != nil {
		return nil, ssoerr.NewInvalidClient("unknown client_id")
	}
	if !s.clients.ValidateSecret(c, clientSecret) {
		return nil, ssoerr.NewInvalidClient("client authentication failed")
	}
	return c, nil
}

// ExchangeAuthorizationCode redeems a code for a token pair. The code is
// consumed atomically up front, so a losing racer and a replayed code both
// see invalid_grant. A code consumed but failing a later check is burned,
// which is the conservative outcome for a credential that was presented
// incorrectly once.
func (s *OAuthService) ExchangeAuthorizationCode(ctx context.Context, req TokenRequest) (*domain.AccessToken, *ssoerr.OAuth2Error) {
	if req.Code == "" {
		return nil, ssoerr.NewInvalidRequest("code is required")
	}
	if _, oerr := s.authenticateClient(req.ClientID, req.ClientSecret); oerr != nil {
		return nil, oerr
	}

	ac, err := s.store.ConsumeAuthCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, ssoerr.NewInvalidGrant("invalid or expired authorization code")
		}
		s.logger.Error(ctx, "consume auth code failed", err)
		return nil, ssoerr.NewServerError("credential store unavailable")
	}

	if ac.ClientID != req.ClientID {
		return nil, ssoerr.NewInvalidGrant("authorization code was issued to a different client")
	}
	if ac.RedirectURI != req.RedirectURI {
		return nil, ssoerr.NewInvalidGrant("redirect_uri does not match the authorization request")
	}
	if ac.Expired(time.Now().UTC()) {
		return nil, ssoerr.NewInvalidGrant("invalid or expired authorization code")
	}

	if ac.CodeChallenge == "" || req.CodeVerifier == "" {
		return nil, ssoerr.NewInvalidGrant("code_verifier is required")
	}
	if !VerifyCodeChallenge(req.CodeVerifier, ac.CodeChallenge, ac.CodeChallengeMethod) {
		return nil, ssoerr.NewInvalidGrant("code_verifier does not match code_challenge")
	}

	token, err := s.tokens.MintPair(ctx, ac.UserID, ac.ClientID, ac.Scope)
	if err != nil {
		s.logger.Error(ctx, "mint token pair failed", err)
		return nil, ssoerr.NewServerError("failed to issue tokens")
	}

	metrics.TokensIssuedTotal.Inc()
	s.logger.Info(ctx, "authorization code exchanged", map[string]interface{}{
		"client_id": ac.ClientID,
		"user_id":   ac.UserID,
	})
	return token, nil
}

// RefreshTokens rotates a refresh token: the old value is consumed
// atomically, so any token value redeems at most once; the loser of a
// concurrent race gets invalid_grant.
func (s *OAuthService) RefreshTokens(ctx context.Context, req TokenRequest) (*domain.AccessToken, *ssoerr.OAuth2Error) {
	if req.RefreshToken == "" {
		return nil, ssoerr.NewInvalidRequest("refresh_token is required")
	}
	if _, oerr := s.authenticateClient(req.ClientID, req.ClientSecret); oerr != nil {
		return nil, oerr
	}

	old, err := s.store.ConsumeRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			metrics.RefreshReuseRejectTotal.Inc()
			return nil, ssoerr.NewInvalidGrant("invalid or expired refresh token")
		}
		s.logger.Error(ctx, "consume refresh token failed", err)
		return nil, ssoerr.NewServerError("credential store unavailable")
	}

	if old.ClientID != req.ClientID {
		// The old token is already gone; a stolen token presented by the
		// wrong client is burned rather than handed back.
		return nil, ssoerr.NewInvalidGrant("refresh token was issued to a different client")
	}

	// Drop the access token paired with the rotated refresh token; it would
	// otherwise stay valid until its own TTL.
	if _, err := s.store.DeleteAccessToken(ctx, old.AccessToken); err != nil {
		s.logger.Warn(ctx, "failed to delete rotated access token", err)
	}

	token, err := s.tokens.MintPair(ctx, old.UserID, old.ClientID, old.Scope)
	if err != nil {
		s.logger.Error(ctx, "mint token pair failed", err)
		return nil, ssoerr.NewServerError("failed to issue tokens")
	}

	metrics.TokensRefreshedTotal.Inc()
	s.logger.Info(ctx, "refresh token rotated", map[string]interface{}{
		"client_id": old.ClientID,
		"user_id":   old.UserID,
	})
	return token, nil
}

// Revoke implements RFC 7009 semantics: the access namespace is tried first
// unless the hint says refresh_token, and a miss in both namespaces is still
// success. Only a store failure surfaces as an error.
func (s *OAuthService) Revoke(ctx context.Context, token, tokenTypeHint string) *ssoerr.OAuth2Error {
	if token == "" {
		return ssoerr.NewInvalidRequest("token is required")
	}

	tryAccessFirst := tokenTypeHint != "refresh_token"

	var (
		found bool
		err   error
	)
	if tryAccessFirst {
		found, err = s.store.DeleteAccessToken(ctx, token)
		if err == nil && !found {
			found, err = s.store.DeleteRefreshToken(ctx, token)
		}
	} else {
		found, err = s.store.DeleteRefreshToken(ctx, token)
		if err == nil && !found {
			found, err = s.store.DeleteAccessToken(ctx, token)
		}
	}
	if err != nil {
		s.logger.Error(ctx, "revocation store failure", err)
		return ssoerr.NewTemporarilyUnavailable("credential store unavailable")
	}

	if found {
		metrics.TokensRevokedTotal.Inc()
	}
	return nil
}
