package domain

import "time"

// User represents a registered user in the directory.
//
// Users are created on first successful identity-provider login (or explicit
// registration) and are never hard-deleted here: account removal sets
// IsDeleted and the access paths treat such records as gone.
type User struct {
	ID          string     `bson:"_id"                     json:"user_id"`
	Email       string     `bson:"email"                   json:"email"`
	CreatedAt   time.Time  `bson:"created_at"              json:"created_at"`
	LastLoginAt *time.Time `bson:"last_login_at,omitempty" json:"last_login_at,omitempty"`
	IsDeleted   bool       `bson:"is_deleted"              json:"is_deleted"`
	DeletedAt   *time.Time `bson:"deleted_at,omitempty"    json:"deleted_at,omitempty"`
}
