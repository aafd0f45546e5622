package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/accountd/internal/errs"
	"github.com/and161185/accountd/internal/model"
	"github.com/and161185/accountd/internal/repository"
)

var identityCols = []string{"pid", "user_id", "user_id_flat", "email", "email_validated", "password_hash",
	"email_token", "email_code", "created_at", "updated_at"}

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func identityRow(now time.Time) *pgxmock.Rows {
	return pgxmock.NewRows(identityCols).
		AddRow(int64(4000000001), "Alice", "alice", "alice@example.com", false, "$2a$10$hash", "tok", "ABC234", now, now)
}

func TestIdentityRepo_FindOne(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewIdentityRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM identities WHERE user_id_flat=$1`)).
		WithArgs("alice").
		WillReturnRows(identityRow(now))
	id, err := r.FindOne(ctx, repository.ByUsername("ALICE"))
	require.NoError(t, err)
	require.Equal(t, uint32(4000000001), id.PID)
	require.Equal(t, "alice@example.com", id.Email)
	require.Equal(t, model.EmailConfirmation{Token: "tok", Code: "ABC234"}, id.Confirmation)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM identities WHERE pid=$1`)).
		WithArgs(int64(42)).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.FindOne(ctx, repository.ByPID(42))
	require.ErrorIs(t, err, errs.ErrNotFound)

	boom := errors.New("conn reset")
	mock.ExpectQuery(regexp.QuoteMeta(`FROM identities WHERE email_code=$1`)).
		WithArgs("X").
		WillReturnError(boom)
	_, err = r.FindOne(ctx, repository.ByEmailCode("X"))
	require.ErrorIs(t, err, boom, "store failures must not be masked as not found")

	_, err = r.FindOne(ctx, repository.Predicate{Field: "password_hash", Value: "x"})
	require.ErrorIs(t, err, errs.ErrInvalidInput)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepo_Exists(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewIdentityRepo(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM identities WHERE email_token=$1)`)).
		WithArgs("tok").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	ok, err := r.Exists(ctx, repository.ByEmailToken("tok"))
	require.NoError(t, err)
	require.True(t, ok)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM identities WHERE pid=$1)`)).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	ok, err = r.Exists(ctx, repository.ByPID(7))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepo_Create_OK_and_UniqueViolations(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewIdentityRepo(db)
	ctx := context.Background()
	id := &model.Identity{
		PID:          1234567890,
		Username:     "Bob",
		UsernameFlat: "bob",
		Email:        "bob@example.com",
		PasswordHash: "h",
	}
	insert := regexp.QuoteMeta(`INSERT INTO identities (pid, user_id, user_id_flat, email, email_validated, password_hash, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`)

	mock.ExpectExec(insert).
		WithArgs(int64(1234567890), "Bob", "bob", "bob@example.com", false, "h", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(ctx, id))
	require.False(t, id.CreatedAt.IsZero())

	mock.ExpectExec(insert).
		WithArgs(int64(1234567890), "Bob", "bob", "bob@example.com", false, "h", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "identities_pkey"})
	err := r.Create(ctx, id)
	require.True(t, errs.ConflictOn(err, errs.FieldPID), "got %v", err)

	mock.ExpectExec(insert).
		WithArgs(int64(1234567890), "Bob", "bob", "bob@example.com", false, "h", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_identities_user_id_flat"})
	err = r.Create(ctx, id)
	require.True(t, errs.ConflictOn(err, errs.FieldUsername), "got %v", err)
	require.ErrorIs(t, err, errs.ErrAlreadyExists)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepo_SetPasswordHash(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewIdentityRepo(db)
	ctx := context.Background()
	upd := regexp.QuoteMeta(`UPDATE identities SET password_hash=$2, updated_at=now() WHERE pid=$1`)

	mock.ExpectExec(upd).WithArgs(int64(5), "new").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.SetPasswordHash(ctx, 5, "new"))

	mock.ExpectExec(upd).WithArgs(int64(6), "new").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.SetPasswordHash(ctx, 6, "new"), errs.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepo_SetEmailConfirmation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewIdentityRepo(db)
	ctx := context.Background()
	upd := regexp.QuoteMeta(`UPDATE identities SET email_token=$2, email_code=$3, updated_at=now() WHERE pid=$1`)
	c := model.EmailConfirmation{Token: "tok", Code: "ABCDEF"}

	mock.ExpectExec(upd).WithArgs(int64(5), "tok", "ABCDEF").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.SetEmailConfirmation(ctx, 5, c))

	mock.ExpectExec(upd).WithArgs(int64(5), "tok", "ABCDEF").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_identities_email_code"})
	require.True(t, errs.ConflictOn(r.SetEmailConfirmation(ctx, 5, c), errs.FieldEmailCode))

	mock.ExpectExec(upd).WithArgs(int64(9), "tok", "ABCDEF").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.SetEmailConfirmation(ctx, 9, c), errs.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepo_ConsumeEmailConfirmation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewIdentityRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`SET email_token=NULL, email_code=NULL, email_validated=TRUE, updated_at=now() WHERE email_code=$1 RETURNING`)).
		WithArgs("ABC234").
		WillReturnRows(pgxmock.NewRows(identityCols).
			AddRow(int64(4000000001), "Alice", "alice", "alice@example.com", true, "h", "", "", now, now))
	id, err := r.ConsumeEmailConfirmation(ctx, repository.ByEmailCode("ABC234"))
	require.NoError(t, err)
	require.True(t, id.EmailValidated)
	require.False(t, id.Confirmation.Pending())

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE email_token=$1 RETURNING`)).
		WithArgs("gone").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.ConsumeEmailConfirmation(ctx, repository.ByEmailToken("gone"))
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = r.ConsumeEmailConfirmation(ctx, repository.ByPID(1))
	require.ErrorIs(t, err, errs.ErrInvalidInput)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUniqueViolationField(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"identities_pkey":            errs.FieldPID,
		"uq_identities_user_id_flat": errs.FieldUsername,
		"uq_identities_email_token":  errs.FieldEmailToken,
		"uq_identities_email_code":   errs.FieldEmailCode,
		"something_else":             "",
	}
	for constraint, want := range cases {
		field, ok := uniqueViolationField(&pgconn.PgError{Code: "23505", ConstraintName: constraint})
		require.True(t, ok)
		require.Equal(t, want, field, constraint)
	}

	_, ok := uniqueViolationField(&pgconn.PgError{Code: "23503"})
	require.False(t, ok)
	_, ok = uniqueViolationField(errors.New("x"))
	require.False(t, ok)
	_, ok = uniqueViolationField(nil)
	require.False(t, ok)
}
