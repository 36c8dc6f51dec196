package models

import "time"

// HashVersionBcrypt identifies bcrypt password hashes
const HashVersionBcrypt = "bcrypt-v1"

// Credential holds the password hash and revocation marker for a subject.
// Sessions issued before TokensValidAfter are rejected.
type Credential struct {
	UID              string    `json:"uid" db:"uid"`
	PasswordHash     string    `json:"-" db:"password_hash"`
	HashVersion      string    `json:"hashVersion" db:"hash_version"`
	TokensValidAfter time.Time `json:"tokensValidAfter" db:"tokens_valid_after"`
	UpdatedAt        time.Time `json:"updatedAt" db:"updated_at"`
}

// TableName returns the table name for the Credential model
func (Credential) TableName() string {
	return "credentials"
}
