package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go.wtyk.dev/authd/cache"
	"go.wtyk.dev/authd/client"
	"go.wtyk.dev/authd/config"
	"go.wtyk.dev/authd/domain"
	ssoerr "go.wtyk.dev/authd/errors"
)

const (
	testClientID     = "mcp-client"
	testClientSecret = "s3cret"
	testRedirectURI  = "https://app.example/callback"
)

func newTestOAuthService(t *testing.T) (*OAuthService, *TokenService, cache.TokenStore) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testClientSecret), bcrypt.MinCost)
	require.NoError(t, err)

	registry := client.NewRegistry([]config.ClientConfig{
		{
			ClientID:         testClientID,
			ClientSecretHash: string(hash),
			RedirectURIs:     []string{testRedirectURI},
			Name:             "Test MCP Client",
		},
	}, testLogger())

	store := cache.NewMemoryTokenStore()
	t.Cleanup(func() { _ = store.Close() })

	tokens := NewTokenService(store, 30*time.Minute, 30*24*time.Hour)
	oauth := NewOAuthService(store, tokens, registry, 10*time.Minute, testLogger())
	return oauth, tokens, store
}

func validAuthorizeRequest() AuthorizeRequest {
	return AuthorizeRequest{
		ClientID:            testClientID,
		RedirectURI:         testRedirectURI,
		ResponseType:        "code",
		Scope:               "mcp:read mcp:write",
		State:               "xyz",
		CodeChallenge:       ComputeS256Challenge("abc123"),
		CodeChallengeMethod: "S256",
	}
}

func TestValidateAuthorizeRequest(t *testing.T) {
	oauth, _, _ := newTestOAuthService(t)

	t.Run("valid", func(t *testing.T) {
		c, oerr := oauth.ValidateAuthorizeRequest(validAuthorizeRequest())
		require.Nil(t, oerr)
		assert.Equal(t, testClientID, c.ClientID)
	})

	cases := []struct {
		name     string
		mutate   func(*AuthorizeRequest)
		wantCode string
	}{
		{"missing client_id", func(r *AuthorizeRequest) { r.ClientID = "" }, ssoerr.InvalidRequest},
		{"missing redirect_uri", func(r *AuthorizeRequest) { r.RedirectURI = "" }, ssoerr.InvalidRequest},
		{"wrong response_type", func(r *AuthorizeRequest) { r.ResponseType = "token" }, ssoerr.InvalidRequest},
		{"unknown client", func(r *AuthorizeRequest) { r.ClientID = "nope" }, ssoerr.InvalidClient},
		{"trailing slash on redirect", func(r *AuthorizeRequest) { r.RedirectURI += "/" }, ssoerr.InvalidRedirectURI},
		{"case differs on redirect", func(r *AuthorizeRequest) { r.RedirectURI = "https://app.example/CALLBACK" }, ssoerr.InvalidRedirectURI},
		{"missing challenge", func(r *AuthorizeRequest) { r.CodeChallenge = "" }, ssoerr.PKCERequired},
		{"missing challenge method", func(r *AuthorizeRequest) { r.CodeChallengeMethod = "" }, ssoerr.PKCERequired},
		{"plain method", func(r *AuthorizeRequest) { r.CodeChallengeMethod = "plain" }, ssoerr.UnsupportedChallengeMethod},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validAuthorizeRequest()
			tc.mutate(&req)
			_, oerr := oauth.ValidateAuthorizeRequest(req)
			require.NotNil(t, oerr)
			assert.Equal(t, tc.wantCode, oerr.Code)
		})
	}
}

func issueCode(t *testing.T, oauth *OAuthService) *domain.AuthCode {
	t.Helper()
	code, err := oauth.IssueAuthCode(context.Background(), "user-1", validAuthorizeRequest())
	require.NoError(t, err)
	return code
}

func exchangeReq(code string) TokenRequest {
	return TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  testRedirectURI,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		CodeVerifier: "abc123",
	}
}

func TestExchangeAuthorizationCode(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path then replay fails", func(t *testing.T) {
		oauth, _, _ := newTestOAuthService(t)
		code := issueCode(t, oauth)

		token, oerr := oauth.ExchangeAuthorizationCode(ctx, exchangeReq(code.Code))
		require.Nil(t, oerr)
		assert.Equal(t, "Bearer", token.TokenType)
		assert.Equal(t, "user-1", token.UserID)
		assert.Equal(t, testClientID, token.ClientID)
		assert.Equal(t, "mcp:read mcp:write", token.Scope)
		assert.Len(t, token.AccessToken, 128)
		assert.Len(t, token.RefreshToken, 128)
		assert.Equal(t, 1800, token.ExpiresIn)

		// Second redemption of the same code.
		_, oerr = oauth.ExchangeAuthorizationCode(ctx, exchangeReq(code.Code))
		require.NotNil(t, oerr)
		assert.Equal(t, ssoerr.InvalidGrant, oerr.Code)
	})

	t.Run("unknown code", func(t *testing.T) {
		oauth, _, _ := newTestOAuthService(t)
		_, oerr := oauth.ExchangeAuthorizationCode(ctx, exchangeReq("deadbeef"))
		require.NotNil(t, oerr)
		assert.Equal(t, ssoerr.InvalidGrant, oerr.Code)
	})

	t.Run("wrong verifier", func(t *testing.T) {
		oauth, _, _ := newTestOAuthService(t)
		code := issueCode(t, oauth)

		req := exchangeReq(code.Code)
		req.CodeVerifier = "abc124"
		_, oerr := oauth.ExchangeAuthorizationCode(ctx, req)
		require.NotNil(t, oerr)
		assert.Equal(t, ssoerr.InvalidGrant, oerr.Code)
	})

	t.Run("missing verifier", func(t *testing.T) {
		oauth, _, _ := newTestOAuthService(t)
		code := issueCode(t, oauth)

		req := exchangeReq(code.Code)
		req.CodeVerifier = ""
		_, oerr := oauth.ExchangeAuthorizationCode(ctx, req)
		require.NotNil(t, oerr)
		assert.Equal(t, ssoerr.InvalidGrant, oerr.Code)
	})

	t.Run("redirect_uri mismatch", func(t *testing.T) {
		oauth, _, _ := newTestOAuthService(t)
		code := issueCode(t, oauth)

		req := exchangeReq(code.Code)
		req.RedirectURI = testRedirectURI + "/"
		_, oerr := oauth.ExchangeAuthorizationCode(ctx, req)
		require.NotNil(t, oerr)
		assert.Equal(t, ssoerr.InvalidGrant, oerr.Code)
	})

	t.Run("wrong client secret", func(t *testing.T) {
		oauth, _, _ := newTestOAuthService(t)
		code := issueCode(t, oauth)

		req := exchangeReq(code.Code)
		req.ClientSecret = "wrong"
		_, oerr := oauth.ExchangeAuthorizationCode(ctx, req)
		require.NotNil(t, oerr)
		assert.Equal(t, ssoerr.InvalidClient, oerr.Code)
	})
}

func TestRefreshTokens(t *testing.T) {
	ctx := context.Background()

	mint := func(t *testing.T, oauth *OAuthService) *domain.AccessToken {
		t.Helper()
		code := issueCode(t, oauth)
		token, oerr := oauth.ExchangeAuthorizationCode(ctx, exchangeReq(code.Code))
		require.Nil(t, oerr)
		return token
	}

	refreshReq := func(refreshToken string) TokenRequest {
		return TokenRequest{
			GrantType:    "refresh_token",
			RefreshToken: refreshToken,
			ClientID:     testClientID,
			ClientSecret: testClientSecret,
		}
	}

	t.Run("rotation invalidates old pair", func(t *testing.T) {
		oauth, tokens, _ := newTestOAuthService(t)
		old := mint(t, oauth)

		fresh, oerr := oauth.RefreshTokens(ctx, refreshReq(old.RefreshToken))
		require.Nil(t, oerr)
		assert.NotEqual(t, old.AccessToken, fresh.AccessToken)
		assert.NotEqual(t, old.RefreshToken, fresh.RefreshToken)
		assert.Equal(t, old.UserID, fresh.UserID)
		assert.Equal(t, old.Scope, fresh.Scope)

		// Old refresh token redeems at most once.
		_, oerr = oauth.RefreshTokens(ctx, refreshReq(old.RefreshToken))
		require.NotNil(t, oerr)
		assert.Equal(t, ssoerr.InvalidGrant, oerr.Code)

		// The access token paired with the rotated refresh token is gone too.
		_, err := tokens.ValidateAccessToken(ctx, old.AccessToken)
		assert.ErrorIs(t, err, cache.ErrNotFound)

		_, err = tokens.ValidateAccessToken(ctx, fresh.AccessToken)
		assert.NoError(t, err)
	})

	t.Run("unknown refresh token", func(t *testing.T) {
		oauth, _, _ := newTestOAuthService(t)
		_, oerr := oauth.RefreshTokens(ctx, refreshReq("nope"))
		require.NotNil(t, oerr)
		assert.Equal(t, ssoerr.InvalidGrant, oerr.Code)
	})
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()

	t.Run("revoking unknown token succeeds", func(t *testing.T) {
		oauth, _, _ := newTestOAuthService(t)
		assert.Nil(t, oauth.Revoke(ctx, "does-not-exist", ""))
		assert.Nil(t, oauth.Revoke(ctx, "does-not-exist", "refresh_token"))
	})

	t.Run("missing token parameter", func(t *testing.T) {
		oauth, _, _ := newTestOAuthService(t)
		oerr := oauth.Revoke(ctx, "", "")
		require.NotNil(t, oerr)
		assert.Equal(t, ssoerr.InvalidRequest, oerr.Code)
	})

	t.Run("revoked access token stops validating", func(t *testing.T) {
		oauth, tokens, _ := newTestOAuthService(t)
		code := issueCode(t, oauth)
		token, oerr := oauth.ExchangeAuthorizationCode(ctx, exchangeReq(code.Code))
		require.Nil(t, oerr)

		assert.Nil(t, oauth.Revoke(ctx, token.AccessToken, ""))
		_, err := tokens.ValidateAccessToken(ctx, token.AccessToken)
		assert.ErrorIs(t, err, cache.ErrNotFound)
	})

	t.Run("revoked refresh token cannot rotate", func(t *testing.T) {
		oauth, _, _ := newTestOAuthService(t)
		code := issueCode(t, oauth)
		token, oerr := oauth.ExchangeAuthorizationCode(ctx, exchangeReq(code.Code))
		require.Nil(t, oerr)

		assert.Nil(t, oauth.Revoke(ctx, token.RefreshToken, "refresh_token"))
		_, oerr = oauth.RefreshTokens(ctx, TokenRequest{
			GrantType:    "refresh_token",
			RefreshToken: token.RefreshToken,
			ClientID:     testClientID,
			ClientSecret: testClientSecret,
		})
		require.NotNil(t, oerr)
		assert.Equal(t, ssoerr.InvalidGrant, oerr.Code)
	})
}
