package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/biosim/pkg/ledger"
)

func TestResolveRunID(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	for _, id := range []string{"abc12345-0000", "abd99999-0000", "ffff0000-1111"} {
		rec := ledger.NewRecord("somd", "somd", "production", t.TempDir())
		rec.ID = id
		require.NoError(t, store.Save(ctx, rec))
	}

	id, err := resolveRunID(ctx, store, "ffff")
	require.NoError(t, err)
	assert.Equal(t, "ffff0000-1111", id)

	id, err = resolveRunID(ctx, store, "abd99999-0000")
	require.NoError(t, err)
	assert.Equal(t, "abd99999-0000", id)

	_, err = resolveRunID(ctx, store, "ab")
	assert.ErrorContains(t, err, "ambiguous")

	_, err = resolveRunID(ctx, store, "0123")
	assert.ErrorContains(t, err, "not found")

	_, err = resolveRunID(ctx, store, "")
	assert.Error(t, err)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc12345", shortID("abc12345-0000"))
	assert.Equal(t, "abc", shortID("abc"))
}
