package echo

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go.wtyk.dev/authd/cache"
	"go.wtyk.dev/authd/client"
	"go.wtyk.dev/authd/config"
	"go.wtyk.dev/authd/log"
	"go.wtyk.dev/authd/services"
	"go.wtyk.dev/authd/sqlite"
)

const (
	testClientID     = "mcp-client"
	testClientSecret = "s3cret"
	testRedirectURI  = "https://app.example/callback"
	testLoginURL     = "/auth/login"
	testCookieName   = "wtyk_session"
	testVerifier     = "abc123"
)

type testServer struct {
	e *echo.Echo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := log.NewZerologAdapter(zerolog.Disabled, false)

	hash, err := bcrypt.GenerateFromPassword([]byte(testClientSecret), bcrypt.MinCost)
	require.NoError(t, err)
	registry := client.NewRegistry([]config.ClientConfig{
		{
			ClientID:         testClientID,
			ClientSecretHash: string(hash),
			RedirectURIs:     []string{testRedirectURI},
			Name:             "Test MCP Client",
		},
	}, logger)

	store := cache.NewMemoryTokenStore()
	t.Cleanup(func() { _ = store.Close() })

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	userRepo := sqlite.NewUserRepository(db)
	keyRepo := sqlite.NewAPIKeyRepository(db)

	tokens := services.NewTokenService(store, 30*time.Minute, 30*24*time.Hour)
	oauth := services.NewOAuthService(store, tokens, registry, 10*time.Minute, logger)
	apiKeys := services.NewAPIKeyService(keyRepo, userRepo, logger)
	users := services.NewUserService(userRepo, apiKeys, logger)
	sessions := services.NewSessionService(store, userRepo, 24*time.Hour)
	gate := services.NewAccessGate(tokens, apiKeys, userRepo, logger)

	e := echo.New()
	NewOAuth2API(oauth, gate, sessions, nil, testLoginURL, testCookieName, logger).RegisterRoutes(e)
	NewAPIKeyAPI(apiKeys, sessions, testCookieName, logger).RegisterRoutes(e)
	NewAccountAPI(users, sessions, testCookieName, logger).RegisterRoutes(e)

	return &testServer{e: e}
}

// login runs the callback endpoint and returns the session cookie.
func (ts *testServer) login(t *testing.T, email string) *http.Cookie {
	t.Helper()
	body := strings.NewReader(`{"email":"` + email + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/callback", body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	for _, c := range rec.Result().Cookies() {
		if c.Name == testCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatal("no session cookie set by login callback")
	return nil
}

func authorizeQuery() url.Values {
	q := url.Values{}
	q.Set("client_id", testClientID)
	q.Set("redirect_uri", testRedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", "mcp:read")
	q.Set("state", "st-1")
	q.Set("code_challenge", services.ComputeS256Challenge(testVerifier))
	q.Set("code_challenge_method", "S256")
	return q
}

func decodeOAuthError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Code
}

func TestAuthorizeEndpoint(t *testing.T) {
	t.Run("missing pkce", func(t *testing.T) {
		ts := newTestServer(t)
		q := authorizeQuery()
		q.Del("code_challenge")
		req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+q.Encode(), nil)
		rec := httptest.NewRecorder()
		ts.e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "pkce_required", decodeOAuthError(t, rec))
	})

	t.Run("plain challenge method", func(t *testing.T) {
		ts := newTestServer(t)
		q := authorizeQuery()
		q.Set("code_challenge_method", "plain")
		req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+q.Encode(), nil)
		rec := httptest.NewRecorder()
		ts.e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "unsupported_challenge_method", decodeOAuthError(t, rec))
	})

	t.Run("unregistered redirect_uri", func(t *testing.T) {
		ts := newTestServer(t)
		q := authorizeQuery()
		q.Set("redirect_uri", testRedirectURI+"/")
		req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+q.Encode(), nil)
		rec := httptest.NewRecorder()
		ts.e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_redirect_uri", decodeOAuthError(t, rec))
	})

	t.Run("no session redirects to login with return_to", func(t *testing.T) {
		ts := newTestServer(t)
		req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+authorizeQuery().Encode(), nil)
		rec := httptest.NewRecorder()
		ts.e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusFound, rec.Code)
		loc, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, testLoginURL, loc.Path)
		assert.Contains(t, loc.Query().Get("return_to"), "/oauth/authorize")
	})

	t.Run("with session renders consent", func(t *testing.T) {
		ts := newTestServer(t)
		cookie := ts.login(t, "alice@example.com")

		req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+authorizeQuery().Encode(), nil)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		ts.e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			ClientName string   `json:"client_name"`
			Scopes     []string `json:"scopes"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Test MCP Client", body.ClientName)
		assert.Equal(t, []string{"mcp:read"}, body.Scopes)
	})

	t.Run("denied consent", func(t *testing.T) {
		ts := newTestServer(t)
		cookie := ts.login(t, "alice@example.com")

		form := authorizeQuery()
		form.Set("approved", "false")
		req := httptest.NewRequest(http.MethodPost, "/oauth/authorize", strings.NewReader(form.Encode()))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		ts.e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusFound, rec.Code)
		loc, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "access_denied", loc.Query().Get("error"))
		assert.Equal(t, "st-1", loc.Query().Get("state"))
	})
}

// approve drives the consent POST and returns the minted code.
func (ts *testServer) approve(t *testing.T, cookie *http.Cookie) string {
	t.Helper()
	form := authorizeQuery()
	form.Set("approved", "true")
	req := httptest.NewRequest(http.MethodPost, "/oauth/authorize", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "st-1", loc.Query().Get("state"))

	code := loc.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

func (ts *testServer) exchange(t *testing.T, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func TestFullAuthorizationCodeFlow(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.login(t, "alice@example.com")
	code := ts.approve(t, cookie)

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", testRedirectURI)
	form.Set("client_id", testClientID)
	form.Set("client_secret", testClientSecret)
	form.Set("code_verifier", testVerifier)

	rec := ts.exchange(t, form)
	require.Equal(t, http.StatusOK, rec.Code)

	var tokenBody struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int    `json:"expires_in"`
		RefreshToken string `json:"refresh_token"`
		Scope        string `json:"scope"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokenBody))
	assert.Equal(t, "Bearer", tokenBody.TokenType)
	assert.Equal(t, 1800, tokenBody.ExpiresIn)
	assert.Equal(t, "mcp:read", tokenBody.Scope)
	require.NotEmpty(t, tokenBody.AccessToken)
	require.NotEmpty(t, tokenBody.RefreshToken)

	// Replay of the code fails.
	rec = ts.exchange(t, form)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_grant", decodeOAuthError(t, rec))

	// The access token authenticates userinfo.
	req := httptest.NewRequest(http.MethodGet, "/oauth/userinfo", nil)
	req.Header.Set("Authorization", "Bearer "+tokenBody.AccessToken)
	uiRec := httptest.NewRecorder()
	ts.e.ServeHTTP(uiRec, req)
	require.Equal(t, http.StatusOK, uiRec.Code)

	var userinfo map[string]string
	require.NoError(t, json.Unmarshal(uiRec.Body.Bytes(), &userinfo))
	assert.Equal(t, "alice@example.com", userinfo["email"])
	assert.NotEmpty(t, userinfo["sub"])

	// Refresh rotates the pair.
	refreshForm := url.Values{}
	refreshForm.Set("grant_type", "refresh_token")
	refreshForm.Set("refresh_token", tokenBody.RefreshToken)
	refreshForm.Set("client_id", testClientID)
	refreshForm.Set("client_secret", testClientSecret)

	rec = ts.exchange(t, refreshForm)
	require.Equal(t, http.StatusOK, rec.Code)

	// The old refresh token is spent.
	rec = ts.exchange(t, refreshForm)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_grant", decodeOAuthError(t, rec))
}

func TestTokenEndpointErrors(t *testing.T) {
	t.Run("unsupported grant type", func(t *testing.T) {
		ts := newTestServer(t)
		form := url.Values{}
		form.Set("grant_type", "password")
		rec := ts.exchange(t, form)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "unsupported_grant_type", decodeOAuthError(t, rec))
	})

	t.Run("wrong client secret is 401", func(t *testing.T) {
		ts := newTestServer(t)
		form := url.Values{}
		form.Set("grant_type", "authorization_code")
		form.Set("code", "whatever")
		form.Set("redirect_uri", testRedirectURI)
		form.Set("client_id", testClientID)
		form.Set("client_secret", "wrong")
		form.Set("code_verifier", testVerifier)
		rec := ts.exchange(t, form)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "invalid_client", decodeOAuthError(t, rec))
	})
}

func TestUserInfoUnauthorized(t *testing.T) {
	ts := newTestServer(t)

	t.Run("no credential", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/oauth/userinfo", nil)
		rec := httptest.NewRecorder()
		ts.e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "invalid_token", decodeOAuthError(t, rec))
	})

	t.Run("bogus token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/oauth/userinfo", nil)
		req.Header.Set("Authorization", "Bearer bogus")
		rec := httptest.NewRecorder()
		ts.e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRevokeEndpoint(t *testing.T) {
	ts := newTestServer(t)

	t.Run("missing token is 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/oauth/revoke", strings.NewReader(""))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
		rec := httptest.NewRecorder()
		ts.e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown token is 200", func(t *testing.T) {
		form := url.Values{}
		form.Set("token", "never-issued")
		req := httptest.NewRequest(http.MethodPost, "/oauth/revoke", strings.NewReader(form.Encode()))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
		rec := httptest.NewRecorder()
		ts.e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
