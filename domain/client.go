package domain

// OAuthClient is a statically registered OAuth client. The table of clients
// lives in configuration and never changes at runtime.
type OAuthClient struct {
	ClientID         string   `json:"client_id"`
	ClientSecretHash string   `json:"-"`
	RedirectURIs     []string `json:"redirect_uris"`
	Name             string   `json:"name"`
	Scopes           []string `json:"scopes"`
}

// HasScope reports whether the client is allowed the given scope. An empty
// allowed list means the client may request any scope.
func (c *OAuthClient) HasScope(scope string) bool {
	if len(c.Scopes) == 0 {
		return true
	}
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
