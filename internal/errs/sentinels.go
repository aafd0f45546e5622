// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"context"
	"errors"
	"fmt"
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrMalformed indicates an inbound credential that cannot be decoded or split.
	ErrMalformed = errors.New("malformed credential")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., username taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrCollision indicates a generated candidate is already claimed in the namespace.
	// It is the signal that makes the uniqueness guard draw a fresh candidate.
	ErrCollision = errors.New("identifier collision")

	// ErrGenerationExhausted indicates the uniqueness guard ran out of attempts.
	ErrGenerationExhausted = errors.New("identifier generation exhausted")

	// ErrStoreUnavailable indicates the persistence collaborator failed.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidInput indicates a validation failure on caller-supplied data.
	ErrInvalidInput = errors.New("invalid input")
)

// Logical names of the unique fields of the identity namespace.
const (
	FieldPID        = "pid"
	FieldUsername   = "user_id_flat"
	FieldEmailToken = "email_token"
	FieldEmailCode  = "email_code"
)

// ConflictError reports a unique constraint violation on a specific logical field.
type ConflictError struct {
	Op    string
	Field string
}

func (e ConflictError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrAlreadyExists)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrAlreadyExists, e.Field)
}

func (e ConflictError) Unwrap() error { return ErrAlreadyExists }

// ConflictOn reports whether err is a ConflictError on one of the given fields.
func ConflictOn(err error, fields ...string) bool {
	var ce ConflictError
	if !errors.As(err, &ce) {
		return false
	}
	return contains(fields, ce.Field)
}

// Store wraps a persistence failure so that callers can match ErrStoreUnavailable
// while keeping the underlying cause. Context cancellation and deadline errors belong
// to the caller and are not reported as store failures.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

func contains[T comparable](collection []T, element T) bool {
	for _, v := range collection {
		if v == element {
			return true
		}
	}
	return false
}
