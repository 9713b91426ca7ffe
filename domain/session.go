package domain

import "time"

// Session is a browser login session minted by the external login
// collaborator and kept in the credential store with a 24h TTL. The OAuth
// authorize endpoint and the key-management API authenticate with it.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session has passed its expiry.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
