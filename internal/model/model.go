// Package model defines domain entities used by services and repositories.
package model

import "time"

// Identity is an account record. The password is never stored in plaintext.
type Identity struct {
	PID            uint32 // globally unique, assigned before persistence
	Username       string // user_id as chosen at registration
	UsernameFlat   string // lowercase username, unique
	Email          string // primary email address
	EmailValidated bool
	PasswordHash   string // bcrypt(legacy digest) or bare legacy digest
	Confirmation   EmailConfirmation
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EmailConfirmation holds the pending email confirmation artifacts.
// Both fields are empty when no confirmation is outstanding.
type EmailConfirmation struct {
	Token string // opaque, unique
	Code  string // 6 characters, unique
}

// Pending reports whether a confirmation is outstanding.
func (c EmailConfirmation) Pending() bool { return c.Token != "" || c.Code != "" }

// ClientCredentialPair identifies a client application allowed to fetch content.
type ClientCredentialPair struct {
	ClientID     string
	ClientSecret string
}

// CredentialEnvelope is the decoded form of a Basic-style credential. Never persisted.
type CredentialEnvelope struct {
	Username string
	Password string
	Email    *string // optional, enables stricter verification
}

// AccessGrant bundles tokens derived from the same payload.
type AccessGrant struct {
	AccessToken  string
	RefreshToken string
}
