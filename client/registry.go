package client

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"go.wtyk.dev/authd/config"
	"go.wtyk.dev/authd/domain"
	"go.wtyk.dev/authd/log"
)

// ErrClientNotFound is returned when a client_id is not in the static table.
var ErrClientNotFound = errors.New("client not found")

// Registry is the static, immutable OAuth client table. It is built once
// from configuration at startup; there is no registration endpoint and no
// mutation after construction, so all reads are lock-free.
type Registry struct {
	clients map[string]*domain.OAuthClient
}

// NewRegistry builds a Registry from the configured client table. Clients
// with an empty secret hash are accepted but operate without secret
// verification; a warning is logged for each so the gap is visible at
// startup rather than discovered during an incident.
func NewRegistry(entries []config.ClientConfig, logger log.Logger) *Registry {
	clients := make(map[string]*domain.OAuthClient, len(entries))
	for _, e := range entries {
		uris := make([]string, len(e.RedirectURIs))
		copy(uris, e.RedirectURIs)
		scopes := make([]string, len(e.Scopes))
		copy(scopes, e.Scopes)

		clients[e.ClientID] = &domain.OAuthClient{
			ClientID:         e.ClientID,
			ClientSecretHash: e.ClientSecretHash,
			RedirectURIs:     uris,
			Name:             e.Name,
			Scopes:           scopes,
		}

		if e.ClientSecretHash == "" && logger != nil {
			logger.Warn(context.Background(), "client configured without secret hash, secret verification disabled", nil,
				map[string]interface{}{"client_id": e.ClientID})
		}
	}
	return &Registry{clients: clients}
}

// Get returns the client for the given ID, or ErrClientNotFound.
func (r *Registry) Get(clientID string) (*domain.OAuthClient, error) {
	c, ok := r.clients[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	return c, nil
}

// ValidateRedirectURI reports whether uri is registered for the client.
// Matching is exact byte equality: no prefix, case, port or trailing-slash
// normalization. "https://app.example/CB" does not match "https://app.example/cb".
func (r *Registry) ValidateRedirectURI(c *domain.OAuthClient, uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// ValidateSecret checks a presented client secret against the client's
// stored bcrypt hash. A client with no stored hash skips verification
// entirely (public clients, and confidential clients not yet migrated to
// hashed secrets).
func (r *Registry) ValidateSecret(c *domain.OAuthClient, secret string) bool {
	if c.ClientSecretHash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(c.ClientSecretHash), []byte(secret)) == nil
}
