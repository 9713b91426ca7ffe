package domain

import "time"

// PKCE code challenge methods. Plain is representable for protocol
// completeness but the authorize endpoint only issues codes bound to S256.
const (
	CodeChallengeMethodS256  = "S256"
	CodeChallengeMethodPlain = "plain"
)

// AuthCode represents a single-use OAuth 2.1 authorization code.
type AuthCode struct {
	Code                string    `json:"code"`
	ClientID            string    `json:"client_id"`
	UserID              string    `json:"user_id"`
	RedirectURI         string    `json:"redirect_uri"`
	Scope               string    `json:"scope"`
	CodeChallenge       string    `json:"code_challenge"`
	CodeChallengeMethod string    `json:"code_challenge_method"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// Expired reports whether the code's lifetime has passed. The credential
// store evicts expired records on its own; this is the defensive check for
// stores that sweep lazily.
func (c *AuthCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
