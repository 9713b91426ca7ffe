package domain

import (
	"strings"
	"time"
)

// API key plaintext format: fixed tag + 64 lowercase hex characters
// (32 random bytes). The total length is a hard invariant checked before any
// store lookup.
const (
	APIKeyTag             = "wtyk_"
	APIKeyPlaintextLength = len(APIKeyTag) + 64 // 69
	APIKeyPrefixLength    = 16                  // tag + 11 hex chars, display only
	MaxActiveAPIKeys      = 10
)

// APIKey is a long-lived bearer credential provisioned by a user outside the
// OAuth flow. Only the SHA-256 digest of the plaintext is stored; the
// plaintext is returned exactly once at generation time.
type APIKey struct {
	ID         string     `bson:"_id"                    json:"api_key_id"`
	UserID     string     `bson:"user_id"                json:"user_id"`
	Hash       string     `bson:"api_key_hash"           json:"-"`
	KeyPrefix  string     `bson:"key_prefix"             json:"key_prefix"`
	Name       string     `bson:"name"                   json:"name"`
	LastUsedAt *time.Time `bson:"last_used_at,omitempty" json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `bson:"created_at"             json:"created_at"`
	ExpiresAt  *time.Time `bson:"expires_at,omitempty"   json:"expires_at,omitempty"`
	IsActive   bool       `bson:"is_active"              json:"is_active"`
}

// Expired reports whether the key has an expiry in the past. Keys with a nil
// ExpiresAt never expire.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// LooksLikeAPIKey reports whether a bearer credential has the exact api-key
// shape: correct tag and exact total length. It is the cheap format gate run
// before any digest computation or store lookup.
func LooksLikeAPIKey(s string) bool {
	return strings.HasPrefix(s, APIKeyTag) && len(s) == APIKeyPlaintextLength
}
