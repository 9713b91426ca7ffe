package domain

import "time"

// AccessToken is an issued access/refresh token pair. The same record is
// stored twice in the credential store: once keyed by the access-token value
// (access TTL) and once keyed by the refresh-token value (refresh TTL), so a
// refresh redemption can recover user, client and scope without a join.
type AccessToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	UserID       string    `json:"user_id"`
	ClientID     string    `json:"client_id"`
	Scope        string    `json:"scope"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access half of the pair has expired.
func (t *AccessToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
