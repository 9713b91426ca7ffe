package echo

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"go.wtyk.dev/authd/domain"
	ssoerr "go.wtyk.dev/authd/errors"
	"go.wtyk.dev/authd/log"
	"go.wtyk.dev/authd/middleware"
	"go.wtyk.dev/authd/services"
)

const (
	maxAPIKeyNameLength  = 100
	maxAPIKeyExpiryDays  = 3650
	apiKeyQuotaErrorCode = "quota_exceeded"
)

// APIKeyAPI holds the key-management endpoint dependencies. All routes are
// session-authenticated; keys cannot manage keys.
type APIKeyAPI struct {
	apiKeys  *services.APIKeyService
	sessions *services.SessionService

	sessionCookie string
	logger        log.Logger
}

func NewAPIKeyAPI(apiKeys *services.APIKeyService, sessions *services.SessionService, sessionCookie string, logger log.Logger) *APIKeyAPI {
	return &APIKeyAPI{
		apiKeys:       apiKeys,
		sessions:      sessions,
		sessionCookie: sessionCookie,
		logger:        logger,
	}
}

// RegisterRoutes registers the key-management routes.
func (ka *APIKeyAPI) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/keys", middleware.RequireSession(ka.sessions, ka.sessionCookie))
	g.POST("/create", ka.CreateHandler)
	g.GET("/list", ka.ListHandler)
	g.DELETE("/:id", ka.RevokeHandler)
}

type createKeyRequest struct {
	Name          string `json:"name"`
	ExpiresInDays *int   `json:"expiresInDays"`
}

type createKeyResponse struct {
	APIKey string         `json:"apiKey"`
	Record *domain.APIKey `json:"record"`
}

// CreateHandler mints a key for the session user. Validation and the
// active-key quota run here, before the service is invoked.
func (ka *APIKeyAPI) CreateHandler(c echo.Context) error {
	sess := middleware.SessionFromContext(c)

	var req createKeyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ssoerr.NewInvalidRequest("malformed request body"))
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, ssoerr.NewInvalidRequest("name is required"))
	}
	if len(req.Name) > maxAPIKeyNameLength {
		return c.JSON(http.StatusBadRequest, ssoerr.NewInvalidRequest(
			fmt.Sprintf("name must be at most %d characters", maxAPIKeyNameLength)))
	}

	var expiresAt *time.Time
	if req.ExpiresInDays != nil {
		days := *req.ExpiresInDays
		if days < 1 || days > maxAPIKeyExpiryDays {
			return c.JSON(http.StatusBadRequest, ssoerr.NewInvalidRequest(
				fmt.Sprintf("expiresInDays must be between 1 and %d", maxAPIKeyExpiryDays)))
		}
		t := time.Now().UTC().AddDate(0, 0, days)
		expiresAt = &t
	}

	active, err := ka.apiKeys.CountActiveAPIKeys(c.Request().Context(), sess.UserID)
	if err != nil {
		ka.logger.Error(c.Request().Context(), "count active api keys failed", err)
		return c.JSON(http.StatusInternalServerError, ssoerr.NewServerError("failed to create api key"))
	}
	if active >= domain.MaxActiveAPIKeys {
		return c.JSON(http.StatusBadRequest, &ssoerr.OAuth2Error{
			Code:        apiKeyQuotaErrorCode,
			Description: fmt.Sprintf("at most %d active api keys per user", domain.MaxActiveAPIKeys),
		})
	}

	plaintext, record, err := ka.apiKeys.GenerateAPIKey(c.Request().Context(), sess.UserID, req.Name, expiresAt)
	if err != nil {
		ka.logger.Error(c.Request().Context(), "generate api key failed", err)
		return c.JSON(http.StatusInternalServerError, ssoerr.NewServerError("failed to create api key"))
	}

	return c.JSON(http.StatusCreated, createKeyResponse{
		APIKey: plaintext,
		Record: record,
	})
}

// ListHandler returns the session user's keys, newest first. Digests are
// excluded by the domain type's serialization.
func (ka *APIKeyAPI) ListHandler(c echo.Context) error {
	sess := middleware.SessionFromContext(c)

	keys, err := ka.apiKeys.ListAPIKeys(c.Request().Context(), sess.UserID)
	if err != nil {
		ka.logger.Error(c.Request().Context(), "list api keys failed", err)
		return c.JSON(http.StatusInternalServerError, ssoerr.NewServerError("failed to list api keys"))
	}
	if keys == nil {
		keys = []*domain.APIKey{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"keys": keys})
}

// RevokeHandler deactivates one of the session user's keys. Someone else's
// key and a nonexistent key produce the same 404.
func (ka *APIKeyAPI) RevokeHandler(c echo.Context) error {
	sess := middleware.SessionFromContext(c)
	id := c.Param("id")

	err := ka.apiKeys.RevokeAPIKey(c.Request().Context(), id, sess.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrAPIKeyNotFound) {
			return c.JSON(http.StatusNotFound, ssoerr.NewInvalidRequest("api key not found"))
		}
		ka.logger.Error(c.Request().Context(), "revoke api key failed", err)
		return c.JSON(http.StatusInternalServerError, ssoerr.NewServerError("failed to revoke api key"))
	}
	return c.JSON(http.StatusOK, map[string]bool{"revoked": true})
}
