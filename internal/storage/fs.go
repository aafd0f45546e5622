package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/and161185/accountd/internal/errs"
)

// FS reads documents from a directory tree. Keys cannot escape the root.
type FS struct {
	root string
}

var _ Store = (*FS)(nil)

// NewFS returns a Store rooted at dir.
func NewFS(dir string) (*FS, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat content root: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("content root %s is not a directory", dir)
	}
	return &FS{root: filepath.Clean(dir)}, nil
}

func (s *FS) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.OpenInRoot(s.root, filepath.FromSlash(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	if fi.IsDir() {
		_ = f.Close()
		return nil, errs.ErrNotFound
	}
	return f, nil
}
