// Package storage serves the static content documents (agreements, timezone tables)
// from a local directory or an S3 bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/and161185/accountd/internal/errs"
)

// Store opens content documents by slash-separated key.
type Store interface {
	// Open returns the document stored under key or errs.ErrNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Key joins path segments into a content key. Segments that are empty, contain a
// separator or are dot entries are rejected with errs.ErrInvalidInput.
func Key(segments ...string) (string, error) {
	for _, s := range segments {
		if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) || strings.ContainsRune(s, 0) {
			return "", fmt.Errorf("content key: %w: segment %q", errs.ErrInvalidInput, s)
		}
	}
	return path.Join(segments...), nil
}
