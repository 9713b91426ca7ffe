package echo

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	ssoerr "go.wtyk.dev/authd/errors"
	"go.wtyk.dev/authd/log"
	"go.wtyk.dev/authd/middleware"
	"go.wtyk.dev/authd/services"
)

// AccountAPI exposes the session lifecycle and account deletion. Session
// creation sits behind the identity-provider integration: the deployment's
// login collaborator verifies the user upstream and calls CallbackHandler
// with the verified email.
type AccountAPI struct {
	users    *services.UserService
	sessions *services.SessionService

	sessionCookie string
	logger        log.Logger
}

func NewAccountAPI(users *services.UserService, sessions *services.SessionService, sessionCookie string, logger log.Logger) *AccountAPI {
	return &AccountAPI{
		users:         users,
		sessions:      sessions,
		sessionCookie: sessionCookie,
		logger:        logger,
	}
}

// RegisterRoutes registers session and account routes.
func (aa *AccountAPI) RegisterRoutes(e *echo.Echo) {
	e.POST("/auth/callback", aa.CallbackHandler)
	e.POST("/auth/logout", aa.LogoutHandler)
	e.DELETE("/api/account", aa.DeleteAccountHandler, middleware.RequireSession(aa.sessions, aa.sessionCookie))
}

type callbackRequest struct {
	Email    string `json:"email" form:"email"`
	ReturnTo string `json:"return_to" form:"return_to"`
}

// CallbackHandler completes a login: the user record is upserted, a session
// minted, and the cookie set. With a return_to the browser is redirected
// back to the preserved authorize request.
func (aa *AccountAPI) CallbackHandler(c echo.Context) error {
	var req callbackRequest
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return c.JSON(http.StatusBadRequest, ssoerr.NewInvalidRequest("email is required"))
	}

	user, err := aa.users.EnsureUser(c.Request().Context(), req.Email)
	if err != nil {
		if errors.Is(err, services.ErrAccountDeleted) {
			return c.JSON(http.StatusForbidden, ssoerr.NewInvalidRequest("account has been deleted"))
		}
		aa.logger.Error(c.Request().Context(), "login upsert failed", err)
		return c.JSON(http.StatusInternalServerError, ssoerr.NewServerError("login failed"))
	}

	sess, err := aa.sessions.CreateSession(c.Request().Context(), user)
	if err != nil {
		aa.logger.Error(c.Request().Context(), "session creation failed", err)
		return c.JSON(http.StatusInternalServerError, ssoerr.NewServerError("login failed"))
	}

	aa.setSessionCookie(c, sess.Token, sess.ExpiresAt)

	if req.ReturnTo != "" {
		return c.Redirect(http.StatusFound, req.ReturnTo)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"user_id": user.ID,
		"email":   user.Email,
	})
}

// LogoutHandler clears the session server-side and expires the cookie.
func (aa *AccountAPI) LogoutHandler(c echo.Context) error {
	if cookie, err := c.Cookie(aa.sessionCookie); err == nil {
		if err := aa.sessions.ClearSession(c.Request().Context(), cookie.Value); err != nil {
			aa.logger.Warn(c.Request().Context(), "failed to clear session", err)
		}
	}
	aa.setSessionCookie(c, "", time.Unix(0, 0))
	return c.NoContent(http.StatusOK)
}

// DeleteAccountHandler soft-deletes the account, purges its API keys, and
// ends the session.
func (aa *AccountAPI) DeleteAccountHandler(c echo.Context) error {
	sess := middleware.SessionFromContext(c)

	if err := aa.users.DeleteAccount(c.Request().Context(), sess.UserID); err != nil {
		aa.logger.Error(c.Request().Context(), "account deletion failed", err)
		return c.JSON(http.StatusInternalServerError, ssoerr.NewServerError("failed to delete account"))
	}

	if err := aa.sessions.ClearSession(c.Request().Context(), sess.Token); err != nil {
		aa.logger.Warn(c.Request().Context(), "failed to clear session after account deletion", err)
	}
	aa.setSessionCookie(c, "", time.Unix(0, 0))
	return c.JSON(http.StatusOK, map[string]bool{"deleted": true})
}

func (aa *AccountAPI) setSessionCookie(c echo.Context, value string, expires time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     aa.sessionCookie,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   c.Scheme() == "https",
		SameSite: http.SameSiteLaxMode,
	})
}
