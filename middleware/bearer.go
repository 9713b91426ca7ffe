package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	ssoerr "go.wtyk.dev/authd/errors"
	"go.wtyk.dev/authd/log"
	"go.wtyk.dev/authd/services"
)

// PrincipalContextKey is where RequireBearer stores the resolved principal.
const PrincipalContextKey = "auth_principal"

// RequireBearer authenticates requests through the access gate. The bearer
// value is resolved exactly once here; handlers downstream read the
// principal from the context and never see the raw credential.
func RequireBearer(gate *services.AccessGate, logger log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			bearer := bearerToken(c)
			if bearer == "" {
				return c.JSON(http.StatusUnauthorized, ssoerr.NewInvalidToken("missing bearer credential"))
			}

			principal, err := gate.Resolve(c.Request().Context(), bearer)
			if err != nil {
				if errors.Is(err, services.ErrUnauthorized) {
					return c.JSON(http.StatusUnauthorized, ssoerr.NewInvalidToken("invalid or expired credential"))
				}
				logger.Error(c.Request().Context(), "credential resolution failed", err)
				return c.JSON(http.StatusInternalServerError, ssoerr.NewServerError("backend unavailable"))
			}

			c.Set(PrincipalContextKey, principal)
			return next(c)
		}
	}
}

// PrincipalFromContext returns the principal stored by RequireBearer, or nil.
func PrincipalFromContext(c echo.Context) *services.Principal {
	p, _ := c.Get(PrincipalContextKey).(*services.Principal)
	return p
}

func bearerToken(c echo.Context) string {
	auth := c.Request().Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}
