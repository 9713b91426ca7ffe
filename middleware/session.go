package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"go.wtyk.dev/authd/domain"
	ssoerr "go.wtyk.dev/authd/errors"
	"go.wtyk.dev/authd/services"
)

// SessionContextKey is where RequireSession stores the resolved session on
// the echo context.
const SessionContextKey = "auth_session"

// RequireSession authenticates API requests with the browser session
// cookie. API callers get a JSON 401, not a login redirect; only the
// authorize endpoint bounces browsers to login.
func RequireSession(sessions *services.SessionService, cookieName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(cookieName)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, ssoerr.NewInvalidToken("authentication required"))
			}
			sess, err := sessions.ValidateSession(c.Request().Context(), cookie.Value)
			if err != nil {
				if errors.Is(err, services.ErrNoSession) {
					return c.JSON(http.StatusUnauthorized, ssoerr.NewInvalidToken("authentication required"))
				}
				return c.JSON(http.StatusInternalServerError, ssoerr.NewServerError("session store unavailable"))
			}
			c.Set(SessionContextKey, sess)
			return next(c)
		}
	}
}

// SessionFromContext returns the session stored by RequireSession, or nil.
func SessionFromContext(c echo.Context) *domain.Session {
	sess, _ := c.Get(SessionContextKey).(*domain.Session)
	return sess
}
