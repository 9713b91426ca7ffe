package echo

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"go.wtyk.dev/authd/domain"
	ssoerr "go.wtyk.dev/authd/errors"
	"go.wtyk.dev/authd/log"
	"go.wtyk.dev/authd/middleware"
	"go.wtyk.dev/authd/services"
)

// OAuth2API holds the OAuth endpoint dependencies.
type OAuth2API struct {
	oauth    *services.OAuthService
	gate     *services.AccessGate
	sessions *services.SessionService
	consent  ConsentRenderer

	loginURL      string
	sessionCookie string
	logger        log.Logger
}

// NewOAuth2API initializes the OAuth2 API.
func NewOAuth2API(
	oauth *services.OAuthService,
	gate *services.AccessGate,
	sessions *services.SessionService,
	consent ConsentRenderer,
	loginURL, sessionCookie string,
	logger log.Logger,
) *OAuth2API {
	if consent == nil {
		consent = JSONConsentRenderer{}
	}
	return &OAuth2API{
		oauth:         oauth,
		gate:          gate,
		sessions:      sessions,
		consent:       consent,
		loginURL:      loginURL,
		sessionCookie: sessionCookie,
		logger:        logger,
	}
}

// RegisterRoutes registers the OAuth2 routes.
func (oa *OAuth2API) RegisterRoutes(e *echo.Echo) {
	e.GET("/oauth/authorize", oa.AuthorizeHandler)
	e.POST("/oauth/authorize", oa.AuthorizeDecisionHandler)
	e.POST("/oauth/token", oa.TokenHandler)
	e.GET("/oauth/userinfo", oa.UserInfoHandler, middleware.RequireBearer(oa.gate, oa.logger))
	e.POST("/oauth/revoke", oa.RevokeHandler)
}

func authorizeRequestFromQuery(c echo.Context) services.AuthorizeRequest {
	return services.AuthorizeRequest{
		ClientID:            c.QueryParam("client_id"),
		RedirectURI:         c.QueryParam("redirect_uri"),
		ResponseType:        c.QueryParam("response_type"),
		Scope:               c.QueryParam("scope"),
		State:               c.QueryParam("state"),
		CodeChallenge:       c.QueryParam("code_challenge"),
		CodeChallengeMethod: c.QueryParam("code_challenge_method"),
	}
}

// statusForOAuthError maps an OAuth error code to its HTTP status.
func statusForOAuthError(oerr *ssoerr.OAuth2Error) int {
	switch oerr.Code {
	case ssoerr.InvalidClient:
		return http.StatusUnauthorized
	case ssoerr.ServerError:
		return http.StatusInternalServerError
	case ssoerr.TemporarilyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// loginRedirect sends the browser to the login collaborator with the full
// original authorize URL preserved in return_to.
func (oa *OAuth2API) loginRedirect(c echo.Context) error {
	original := c.Request().URL.String()
	sep := "?"
	if strings.Contains(oa.loginURL, "?") {
		sep = "&"
	}
	return c.Redirect(http.StatusFound, oa.loginURL+sep+"return_to="+url.QueryEscape(original))
}

// AuthorizeHandler validates an authorization request and, given a live
// session, hands off to the consent view. Without a session the browser is
// bounced to login with the request preserved.
func (oa *OAuth2API) AuthorizeHandler(c echo.Context) error {
	req := authorizeRequestFromQuery(c)

	client, oerr := oa.oauth.ValidateAuthorizeRequest(req)
	if oerr != nil {
		return c.JSON(statusForOAuthError(oerr), oerr)
	}

	cookie, err := c.Cookie(oa.sessionCookie)
	if err != nil {
		return oa.loginRedirect(c)
	}
	sess, err := oa.sessions.ValidateSession(c.Request().Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, services.ErrNoSession) {
			return oa.loginRedirect(c)
		}
		return c.JSON(http.StatusInternalServerError, ssoerr.NewServerError("session store unavailable"))
	}

	return oa.consent.RenderConsent(c, client, sess, req)
}

// AuthorizeDecisionHandler handles the consent form POST. Decision errors
// after validation go back to the client via redirect, per the protocol.
func (oa *OAuth2API) AuthorizeDecisionHandler(c echo.Context) error {
	req := services.AuthorizeRequest{
		ClientID:            c.FormValue("client_id"),
		RedirectURI:         c.FormValue("redirect_uri"),
		ResponseType:        c.FormValue("response_type"),
		Scope:               c.FormValue("scope"),
		State:               c.FormValue("state"),
		CodeChallenge:       c.FormValue("code_challenge"),
		CodeChallengeMethod: c.FormValue("code_challenge_method"),
	}

	if _, oerr := oa.oauth.ValidateAuthorizeRequest(req); oerr != nil {
		return c.JSON(statusForOAuthError(oerr), oerr)
	}

	cookie, err := c.Cookie(oa.sessionCookie)
	if err != nil {
		return oa.loginRedirect(c)
	}
	sess, err := oa.sessions.ValidateSession(c.Request().Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, services.ErrNoSession) {
			return oa.loginRedirect(c)
		}
		return c.JSON(http.StatusInternalServerError, ssoerr.NewServerError("session store unavailable"))
	}

	if c.FormValue("approved") != "true" {
		return redirectWithParams(c, req.RedirectURI, map[string]string{
			"error": ssoerr.AccessDenied,
			"state": req.State,
		})
	}

	code, err := oa.oauth.IssueAuthCode(c.Request().Context(), sess.UserID, req)
	if err != nil {
		oa.logger.Error(c.Request().Context(), "issue auth code failed", err)
		return c.JSON(http.StatusInternalServerError, ssoerr.NewServerError("failed to issue authorization code"))
	}

	return redirectWithParams(c, req.RedirectURI, map[string]string{
		"code":  code.Code,
		"state": req.State,
	})
}

func redirectWithParams(c echo.Context, redirectURI string, params map[string]string) error {
	u, err := url.Parse(redirectURI)
	if err != nil {
		// Unreachable for registered URIs; they were validated at
		// registration time.
		return c.JSON(http.StatusBadRequest, ssoerr.NewInvalidRedirectURI())
	}
	q := u.Query()
	for k, v := range params {
		if v != "" || k != "state" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return c.Redirect(http.StatusFound, u.String())
}

// tokenResponse is the token endpoint success body.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope,omitempty"`
}

// TokenHandler dispatches on grant_type: authorization_code or
// refresh_token, nothing else.
func (oa *OAuth2API) TokenHandler(c echo.Context) error {
	req := services.TokenRequest{
		GrantType:    c.FormValue("grant_type"),
		Code:         c.FormValue("code"),
		RedirectURI:  c.FormValue("redirect_uri"),
		ClientID:     c.FormValue("client_id"),
		ClientSecret: c.FormValue("client_secret"),
		CodeVerifier: c.FormValue("code_verifier"),
		RefreshToken: c.FormValue("refresh_token"),
	}

	var (
		token *domain.AccessToken
		oerr  *ssoerr.OAuth2Error
	)
	switch req.GrantType {
	case "authorization_code":
		token, oerr = oa.oauth.ExchangeAuthorizationCode(c.Request().Context(), req)
	case "refresh_token":
		token, oerr = oa.oauth.RefreshTokens(c.Request().Context(), req)
	default:
		oerr = ssoerr.NewUnsupportedGrantType()
	}
	if oerr != nil {
		return c.JSON(statusForOAuthError(oerr), oerr)
	}

	return c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		ExpiresIn:    token.ExpiresIn,
		RefreshToken: token.RefreshToken,
		Scope:        token.Scope,
	})
}

// UserInfoHandler reports the identity behind the request's bearer
// credential, already resolved by the middleware.
func (oa *OAuth2API) UserInfoHandler(c echo.Context) error {
	principal := middleware.PrincipalFromContext(c)
	return c.JSON(http.StatusOK, map[string]string{
		"sub":   principal.User.ID,
		"email": principal.User.Email,
	})
}

// RevokeHandler implements RFC 7009. Whether the token existed is not
// observable from the response.
func (oa *OAuth2API) RevokeHandler(c echo.Context) error {
	token := c.FormValue("token")
	hint := c.FormValue("token_type_hint")

	if oerr := oa.oauth.Revoke(c.Request().Context(), token, hint); oerr != nil {
		return c.JSON(statusForOAuthError(oerr), oerr)
	}
	return c.NoContent(http.StatusOK)
}
