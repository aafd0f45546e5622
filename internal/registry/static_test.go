package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/accountd/internal/errs"
)

func TestStatic_Lookup(t *testing.T) {
	r, err := NewStatic(map[string]string{
		"ea25c66c26b403376b4c5ed94ab9cdea": "d137be62cb6a2b831cad8c013b92fb55",
		"a2efa818a34fa16b8afbc8a74eba3eda": "c91cdb5658bd4954ade78533a339cf9a",
	})
	require.NoError(t, err)

	p, err := r.Lookup(context.Background(), "ea25c66c26b403376b4c5ed94ab9cdea")
	require.NoError(t, err)
	require.Equal(t, "d137be62cb6a2b831cad8c013b92fb55", p.ClientSecret)

	_, err = r.Lookup(context.Background(), "unknown")
	require.ErrorIs(t, err, errs.ErrNotFound)
	_, err = r.Lookup(context.Background(), "")
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.Equal(t, []string{"a2efa818a34fa16b8afbc8a74eba3eda", "ea25c66c26b403376b4c5ed94ab9cdea"}, r.IDs())
}

func TestNewStatic_RejectsEmpty(t *testing.T) {
	_, err := NewStatic(map[string]string{"id": ""})
	require.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = NewStatic(map[string]string{"": "secret"})
	require.ErrorIs(t, err, errs.ErrInvalidInput)

	r, err := NewStatic(nil)
	require.NoError(t, err)
	require.Empty(t, r.IDs())
}
