package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/accountd/internal/errs"
	"github.com/and161185/accountd/internal/model"
	"github.com/and161185/accountd/internal/repository"
)

const createIdentitiesTable = `
CREATE TABLE IF NOT EXISTS identities (
	pid INTEGER PRIMARY KEY,
	user_id TEXT NOT NULL,
	user_id_flat TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL DEFAULT '',
	email_validated BOOLEAN NOT NULL DEFAULT 0,
	password_hash TEXT NOT NULL,
	email_token TEXT UNIQUE,
	email_code TEXT UNIQUE,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

const selectIdentity = `
SELECT pid, user_id, user_id_flat, email, email_validated, password_hash,
	COALESCE(email_token, ''), COALESCE(email_code, ''), created_at, updated_at
FROM identities
WHERE `

// IdentityRepository implements repository.IdentityRepository on SQLite.
type IdentityRepository struct {
	db *sql.DB
}

var _ repository.IdentityRepository = (*IdentityRepository)(nil)

// NewIdentityRepository constructs the repository. Call Init before use.
func NewIdentityRepository(db *sql.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// Init creates the schema.
func (r *IdentityRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createIdentitiesTable); err != nil {
		return fmt.Errorf("create identities table: %w", err)
	}
	return nil
}

func (r *IdentityRepository) FindOne(ctx context.Context, p repository.Predicate) (*model.Identity, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("identities.FindOne: %w: predicate", errs.ErrInvalidInput)
	}
	row := r.db.QueryRowContext(ctx, selectIdentity+string(p.Field)+` = ?`, p.Value)
	return scanIdentity(row)
}

func (r *IdentityRepository) Exists(ctx context.Context, p repository.Predicate) (bool, error) {
	if !p.Valid() {
		return false, fmt.Errorf("identities.Exists: %w: predicate", errs.ErrInvalidInput)
	}
	var ok bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM identities WHERE `+string(p.Field)+` = ?)`, p.Value).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("exists identity: %w", err)
	}
	return ok, nil
}

func (r *IdentityRepository) Create(ctx context.Context, id *model.Identity) error {
	now := time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
INSERT INTO identities (pid, user_id, user_id_flat, email, email_validated, password_hash, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(id.PID),
		id.Username,
		id.UsernameFlat,
		id.Email,
		id.EmailValidated,
		id.PasswordHash,
		now,
		now,
	)
	if field, ok := uniqueViolationField(err); ok {
		return errs.ConflictError{Op: "identities.Create", Field: field}
	}
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	id.CreatedAt, id.UpdatedAt = now, now
	return nil
}

func (r *IdentityRepository) SetPasswordHash(ctx context.Context, pid uint32, hash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE identities SET password_hash = ?, updated_at = ? WHERE pid = ?`,
		hash, time.Now().UTC(), int64(pid))
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return requireRow(res)
}

func (r *IdentityRepository) SetEmailConfirmation(ctx context.Context, pid uint32, c model.EmailConfirmation) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE identities SET email_token = ?, email_code = ?, updated_at = ? WHERE pid = ?`,
		c.Token, c.Code, time.Now().UTC(), int64(pid))
	if field, ok := uniqueViolationField(err); ok {
		return errs.ConflictError{Op: "identities.SetEmailConfirmation", Field: field}
	}
	if err != nil {
		return fmt.Errorf("update email confirmation: %w", err)
	}
	return requireRow(res)
}

func (r *IdentityRepository) ConsumeEmailConfirmation(ctx context.Context, p repository.Predicate) (*model.Identity, error) {
	if p.Field != repository.FieldEmailToken && p.Field != repository.FieldEmailCode {
		return nil, fmt.Errorf("identities.ConsumeEmailConfirmation: %w: predicate", errs.ErrInvalidInput)
	}

	var out *model.Identity
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		id, err := scanIdentity(tx.QueryRowContext(ctx, selectIdentity+string(p.Field)+` = ?`, p.Value))
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
UPDATE identities
SET email_token = NULL, email_code = NULL, email_validated = 1, updated_at = ?
WHERE pid = ?`, now, int64(id.PID)); err != nil {
			return fmt.Errorf("consume email confirmation: %w", err)
		}

		id.Confirmation = model.EmailConfirmation{}
		id.EmailValidated = true
		id.UpdatedAt = now
		out = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func scanIdentity(row interface {
	Scan(dest ...any) error
}) (*model.Identity, error) {
	var (
		id  model.Identity
		pid int64
	)
	if err := row.Scan(
		&pid,
		&id.Username,
		&id.UsernameFlat,
		&id.Email,
		&id.EmailValidated,
		&id.PasswordHash,
		&id.Confirmation.Token,
		&id.Confirmation.Code,
		&id.CreatedAt,
		&id.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("scan identity: %w", err)
	}
	id.PID = uint32(pid)
	return &id, nil
}
