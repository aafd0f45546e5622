package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/accountd/internal/errs"
	"github.com/and161185/accountd/internal/model"
	"github.com/and161185/accountd/internal/repository"
)

const identityColumns = `pid, user_id, user_id_flat, email, email_validated, password_hash,
COALESCE(email_token, ''), COALESCE(email_code, ''), created_at, updated_at`

// IdentityRepo implements IdentityRepository using PostgreSQL.
type IdentityRepo struct{ db *DB }

var _ repository.IdentityRepository = (*IdentityRepo)(nil)

// NewIdentityRepo constructs an identity repository.
func NewIdentityRepo(db *DB) *IdentityRepo { return &IdentityRepo{db: db} }

// FindOne selects the identity matching p.
func (r *IdentityRepo) FindOne(ctx context.Context, p repository.Predicate) (*model.Identity, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("identities.FindOne: %w: predicate", errs.ErrInvalidInput)
	}
	q := `SELECT ` + identityColumns + ` FROM identities WHERE ` + string(p.Field) + `=$1`
	return scanIdentity(r.db.Pool.QueryRow(ctx, q, p.Value))
}

// Exists reports whether an identity matches p.
func (r *IdentityRepo) Exists(ctx context.Context, p repository.Predicate) (bool, error) {
	if !p.Valid() {
		return false, fmt.Errorf("identities.Exists: %w: predicate", errs.ErrInvalidInput)
	}
	q := `SELECT EXISTS (SELECT 1 FROM identities WHERE ` + string(p.Field) + `=$1)`
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, q, p.Value).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// Create inserts a new identity row.
func (r *IdentityRepo) Create(ctx context.Context, id *model.Identity) error {
	const q = `
INSERT INTO identities (pid, user_id, user_id_flat, email, email_validated, password_hash, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`
	now := time.Now().UTC()
	_, err := r.db.Pool.Exec(ctx, q,
		int64(id.PID), id.Username, id.UsernameFlat, id.Email, id.EmailValidated, id.PasswordHash, now)
	if field, ok := uniqueViolationField(err); ok {
		return errs.ConflictError{Op: "identities.Create", Field: field}
	}
	if err != nil {
		return err
	}
	id.CreatedAt, id.UpdatedAt = now, now
	return nil
}

// SetPasswordHash replaces the stored password hash.
func (r *IdentityRepo) SetPasswordHash(ctx context.Context, pid uint32, hash string) error {
	const q = `UPDATE identities SET password_hash=$2, updated_at=now() WHERE pid=$1`
	tag, err := r.db.Pool.Exec(ctx, q, int64(pid), hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SetEmailConfirmation stores a pending confirmation token and code.
func (r *IdentityRepo) SetEmailConfirmation(ctx context.Context, pid uint32, c model.EmailConfirmation) error {
	const q = `UPDATE identities SET email_token=$2, email_code=$3, updated_at=now() WHERE pid=$1`
	tag, err := r.db.Pool.Exec(ctx, q, int64(pid), c.Token, c.Code)
	if field, ok := uniqueViolationField(err); ok {
		return errs.ConflictError{Op: "identities.SetEmailConfirmation", Field: field}
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ConsumeEmailConfirmation clears the pending confirmation matched by p.
func (r *IdentityRepo) ConsumeEmailConfirmation(ctx context.Context, p repository.Predicate) (*model.Identity, error) {
	if p.Field != repository.FieldEmailToken && p.Field != repository.FieldEmailCode {
		return nil, fmt.Errorf("identities.ConsumeEmailConfirmation: %w: predicate", errs.ErrInvalidInput)
	}
	q := `
UPDATE identities
SET email_token=NULL, email_code=NULL, email_validated=TRUE, updated_at=now()
WHERE ` + string(p.Field) + `=$1
RETURNING ` + identityColumns
	return scanIdentity(r.db.Pool.QueryRow(ctx, q, p.Value))
}

func scanIdentity(row pgx.Row) (*model.Identity, error) {
	var (
		id  model.Identity
		pid int64
	)
	err := row.Scan(&pid, &id.Username, &id.UsernameFlat, &id.Email, &id.EmailValidated, &id.PasswordHash,
		&id.Confirmation.Token, &id.Confirmation.Code, &id.CreatedAt, &id.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	id.PID = uint32(pid)
	return &id, nil
}
