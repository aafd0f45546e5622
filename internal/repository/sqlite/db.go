// Package sqlite contains the embedded SQLite implementation of the identity store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/and161185/accountd/internal/errs"
)

// Open opens (or creates) a sqlite database at the given path and ensures directories exist.
func Open(path string) (*sql.DB, error) {
	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// a single connection serializes writers; unique indexes still decide races
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return db, nil
}

// withTx begins a transaction, runs fn and then commits on success or rolls back on
// error or panic. Panics are rethrown.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(tx)
}

// uniqueViolationField extracts the column from a "UNIQUE constraint failed: identities.<col>" error.
func uniqueViolationField(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	msg := err.Error()
	const marker = "UNIQUE constraint failed: identities."
	i := strings.Index(msg, marker)
	if i < 0 {
		if strings.Contains(strings.ToLower(msg), "unique") {
			return "", true
		}
		return "", false
	}

	col := msg[i+len(marker):]
	if j := strings.IndexFunc(col, func(r rune) bool { return r != '_' && (r < 'a' || r > 'z') }); j >= 0 {
		col = col[:j]
	}
	switch col {
	case errs.FieldPID, errs.FieldUsername, errs.FieldEmailToken, errs.FieldEmailCode:
		return col, true
	}
	return "", true
}
