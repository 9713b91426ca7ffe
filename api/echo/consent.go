package echo

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"go.wtyk.dev/authd/domain"
	"go.wtyk.dev/authd/services"
)

// ConsentRenderer produces the consent step for a validated authorization
// request: what the client is, what it asks for, and who is being asked.
// The default implementation emits JSON; deployments with a browser UI
// plug in their own renderer.
type ConsentRenderer interface {
	RenderConsent(c echo.Context, client *domain.OAuthClient, session *domain.Session, req services.AuthorizeRequest) error
}

// JSONConsentRenderer renders the consent data as JSON, suitable for a
// front-end that drives the approval POST itself.
type JSONConsentRenderer struct{}

func (JSONConsentRenderer) RenderConsent(c echo.Context, client *domain.OAuthClient, session *domain.Session, req services.AuthorizeRequest) error {
	scopes := []string{}
	if req.Scope != "" {
		scopes = strings.Split(req.Scope, " ")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"client_id":   client.ClientID,
		"client_name": client.Name,
		"scopes":      scopes,
		"user": map[string]string{
			"user_id": session.UserID,
			"email":   session.Email,
		},
		"state": req.State,
	})
}
