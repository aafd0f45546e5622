// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"strings"

	"github.com/and161185/accountd/internal/errs"
	"github.com/and161185/accountd/internal/model"
)

// Field is an indexed, unique column of the identity namespace.
type Field string

// Indexed fields. Values match the logical conflict field names in package errs.
const (
	FieldPID        Field = errs.FieldPID
	FieldUsername   Field = errs.FieldUsername
	FieldEmailToken Field = errs.FieldEmailToken
	FieldEmailCode  Field = errs.FieldEmailCode
)

// Predicate selects at most one identity by a unique field.
type Predicate struct {
	Field Field
	Value any
}

// ByPID matches an identity by PID.
func ByPID(pid uint32) Predicate { return Predicate{Field: FieldPID, Value: int64(pid)} }

// ByUsername matches an identity by username, case-insensitively.
func ByUsername(username string) Predicate {
	return Predicate{Field: FieldUsername, Value: strings.ToLower(username)}
}

// ByEmailToken matches the identity holding a pending confirmation token.
func ByEmailToken(token string) Predicate { return Predicate{Field: FieldEmailToken, Value: token} }

// ByEmailCode matches the identity holding a pending confirmation code.
func ByEmailCode(code string) Predicate { return Predicate{Field: FieldEmailCode, Value: code} }

// Valid reports whether the predicate names a known field.
func (p Predicate) Valid() bool {
	switch p.Field {
	case FieldPID, FieldUsername, FieldEmailToken, FieldEmailCode:
		return p.Value != nil
	}
	return false
}

// IdentityRepository is the persistent identity namespace.
//
// Lookups return errs.ErrNotFound when nothing matches. Writes that violate a unique
// index return errs.ConflictError naming the field.
type IdentityRepository interface {
	// FindOne loads the identity matching p.
	FindOne(ctx context.Context, p Predicate) (*model.Identity, error)
	// Exists reports whether an identity matches p.
	Exists(ctx context.Context, p Predicate) (bool, error)
	// Create inserts a new identity.
	Create(ctx context.Context, id *model.Identity) error
	// SetPasswordHash replaces the stored password hash.
	SetPasswordHash(ctx context.Context, pid uint32, hash string) error
	// SetEmailConfirmation stores a pending confirmation token and code.
	SetEmailConfirmation(ctx context.Context, pid uint32, c model.EmailConfirmation) error
	// ConsumeEmailConfirmation clears the pending confirmation matched by p and marks the
	// email validated. It returns the updated identity.
	ConsumeEmailConfirmation(ctx context.Context, p Predicate) (*model.Identity, error)
}

// ClientRegistry is the static registry of client applications.
type ClientRegistry interface {
	// Lookup returns the pair registered for clientID or errs.ErrNotFound.
	Lookup(ctx context.Context, clientID string) (model.ClientCredentialPair, error)
}
