// Package ledgertest holds the behavior every ledger.Store must satisfy.
package ledgertest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/biosim/pkg/ledger"
)

// RunStoreContract exercises store against the ledger.Store contract.
func RunStoreContract(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Save and Get", func(t *testing.T) {
		rec := ledger.NewRecord("somd", "somd", "production", "/tmp/somd")
		rec.StartedAt = start
		require.NoError(t, store.Save(ctx, rec))

		rec.State = "finished"
		rec.Elapsed = 90 * time.Second
		require.NoError(t, store.Save(ctx, rec))

		got, err := store.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, "finished", got.State)
		assert.Equal(t, 90*time.Second, got.Elapsed)
		assert.True(t, start.Equal(got.StartedAt))

		require.NoError(t, store.Delete(ctx, rec.ID))
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, "no-such-run")
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		rec := ledger.NewRecord("amber", "amber", "minimisation", "/tmp/amber")
		require.NoError(t, store.Save(ctx, rec))
		require.NoError(t, store.Delete(ctx, rec.ID))
		require.NoError(t, store.Delete(ctx, rec.ID))

		_, err := store.Get(ctx, rec.ID)
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		later := ledger.NewRecord("production", "somd", "production", "/tmp/b")
		later.StartedAt = start.Add(time.Hour)
		earlier := ledger.NewRecord("minimise", "somd", "minimisation", "/tmp/a")
		earlier.StartedAt = start
		require.NoError(t, store.Save(ctx, later))
		require.NoError(t, store.Save(ctx, earlier))
		defer func() {
			_ = store.Delete(ctx, later.ID)
			_ = store.Delete(ctx, earlier.ID)
		}()

		recs, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, earlier.ID, recs[0].ID)
		assert.Equal(t, later.ID, recs[1].ID)
	})
}
