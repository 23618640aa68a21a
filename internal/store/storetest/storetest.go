// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/archivist/internal/store"
)

// Run exercises s against the archiver lifecycle. s must already have its
// schema in place and hold no rows.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		a, err := s.Get(ctx, 987654)
		require.NoError(t, err)
		assert.Nil(t, a)
	})

	t.Run("AddWithName", func(t *testing.T) {
		name := "primary-archive"
		id, err := s.Add(ctx, &name, "10.0.0.4:5432")
		require.NoError(t, err)
		assert.Positive(t, id)

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, store.Archiver{NodeID: id, NodeName: name, NodeHost: "10.0.0.4:5432"}, *got)
	})

	t.Run("AddGeneratesName", func(t *testing.T) {
		id, err := s.Add(ctx, nil, "10.0.0.5:5432")
		require.NoError(t, err)

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, store.DefaultNodeName(id), got.NodeName)
		assert.Equal(t, "10.0.0.5:5432", got.NodeHost)
	})

	t.Run("RemoveThenGet", func(t *testing.T) {
		id, err := s.Add(ctx, nil, "10.0.0.6:5432")
		require.NoError(t, err)

		n, err := s.Remove(ctx, id)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, got)

		// idempotent
		n, err = s.Remove(ctx, id)
		require.NoError(t, err)
		assert.EqualValues(t, 0, n)
	})

	t.Run("IdentifiersNotReused", func(t *testing.T) {
		first, err := s.Add(ctx, nil, "10.0.0.7:5432")
		require.NoError(t, err)
		_, err = s.Remove(ctx, first)
		require.NoError(t, err)

		second, err := s.Add(ctx, nil, "10.0.0.7:5432")
		require.NoError(t, err)
		assert.Greater(t, second, first)
	})

	t.Run("ConcurrentAddsDistinct", func(t *testing.T) {
		const workers = 8
		ids := make([]int64, workers)
		errs := make([]error, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ids[i], errs[i] = s.Add(ctx, nil, "10.0.1.1:5432")
			}(i)
		}
		wg.Wait()

		seen := make(map[int64]bool, workers)
		for i := 0; i < workers; i++ {
			require.NoError(t, errs[i])
			assert.False(t, seen[ids[i]], "duplicate nodeid %d", ids[i])
			seen[ids[i]] = true

			got, err := s.Get(ctx, ids[i])
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, store.DefaultNodeName(ids[i]), got.NodeName)
		}
	})

	t.Run("ListOrdered", func(t *testing.T) {
		all, err := s.List(ctx, 0)
		require.NoError(t, err)
		require.NotEmpty(t, all)
		for i := 1; i < len(all); i++ {
			assert.Less(t, all[i-1].NodeID, all[i].NodeID)
		}

		two, err := s.List(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, two, 2)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})
}
