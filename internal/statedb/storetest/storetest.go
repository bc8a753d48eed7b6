// Package storetest holds a shared contract test suite exercised against
// every statedb.Store implementation, so the round-trip and subtree-delete
// invariants of spec.md §8 hold identically for both the relational and
// document stores.
package storetest

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/foldersync/foldersync/internal/model"
	"github.com/foldersync/foldersync/internal/statedb"
)

// Run exercises newOpened() (a freshly opened, empty Store) against the full
// statedb.Store contract.
func Run(t *testing.T, newOpened func(t *testing.T) statedb.Store) {
	t.Helper()

	t.Run("get missing", func(t *testing.T) {
		s := newOpened(t)
		_, ok, err := s.Get(context.Background(), "/nope")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("put and get round trip", func(t *testing.T) {
		s := newOpened(t)
		ctx := context.Background()

		e := model.SyncStateEntry{Path: "/a/b.txt", Mtime: 42, SyncAttr: "etag-1", Valid: true}
		require.NoError(t, s.Put(ctx, e))

		got, ok, err := s.Get(ctx, "/a/b.txt")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, e, got)
	})

	t.Run("put overwrites", func(t *testing.T) {
		s := newOpened(t)
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, model.SyncStateEntry{Path: "/a.txt", Mtime: 1, SyncAttr: "x", Valid: true}))
		require.NoError(t, s.Put(ctx, model.SyncStateEntry{Path: "/a.txt", Mtime: 2, SyncAttr: "y", Valid: true}))

		got, ok, err := s.Get(ctx, "/a.txt")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, int64(2), got.Mtime)
		require.Equal(t, "y", got.SyncAttr)
	})

	t.Run("children returns direct children only", func(t *testing.T) {
		s := newOpened(t)
		ctx := context.Background()

		for _, p := range []string{"/a", "/a/b", "/a/b/c", "/a/d", "/e"} {
			require.NoError(t, s.Put(ctx, model.SyncStateEntry{Path: p, Mtime: 1, Valid: true}))
		}

		children, err := s.Children(ctx, "/a")
		require.NoError(t, err)

		got := pathsOf(children)
		sort.Strings(got)
		require.Equal(t, []string{"/a/b", "/a/d"}, got)
	})

	t.Run("delete subtree removes descendants", func(t *testing.T) {
		s := newOpened(t)
		ctx := context.Background()

		for _, p := range []string{"/a", "/a/b", "/a/b/c", "/a/d", "/e"} {
			require.NoError(t, s.Put(ctx, model.SyncStateEntry{Path: p, Mtime: 1, Valid: true}))
		}

		require.NoError(t, s.DeleteSubtree(ctx, "/a"))

		for _, p := range []string{"/a", "/a/b", "/a/b/c", "/a/d"} {
			_, ok, err := s.Get(ctx, p)
			require.NoError(t, err)
			require.False(t, ok, "expected %s to be gone", p)
		}

		_, ok, err := s.Get(ctx, "/e")
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("delete subtree is idempotent", func(t *testing.T) {
		s := newOpened(t)
		ctx := context.Background()
		require.NoError(t, s.DeleteSubtree(ctx, "/never-existed"))
		require.NoError(t, s.DeleteSubtree(ctx, "/never-existed"))
	})

	t.Run("delete one spares descendants", func(t *testing.T) {
		s := newOpened(t)
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, model.SyncStateEntry{Path: "/a", Mtime: 1, Valid: true}))
		require.NoError(t, s.Put(ctx, model.SyncStateEntry{Path: "/a/b", Mtime: 1, Valid: true}))

		require.NoError(t, s.DeleteOne(ctx, "/a"))

		_, ok, err := s.Get(ctx, "/a")
		require.NoError(t, err)
		require.False(t, ok)

		_, ok, err = s.Get(ctx, "/a/b")
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("iterate walks subtree breadth first including root", func(t *testing.T) {
		s := newOpened(t)
		ctx := context.Background()

		for _, p := range []string{"/a", "/a/b", "/a/b/c", "/a/d", "/z"} {
			require.NoError(t, s.Put(ctx, model.SyncStateEntry{Path: p, Mtime: 1, Valid: true}))
		}

		var seen []string
		require.NoError(t, s.Iterate(ctx, "/a", func(e model.SyncStateEntry) error {
			seen = append(seen, e.Path)
			return nil
		}))

		require.Len(t, seen, 4)
		require.Equal(t, "/a", seen[0], "the walk starts at root")
		require.Equal(t, "/a/b/c", seen[3], "the deepest entry comes last")

		sort.Strings(seen)
		require.Equal(t, []string{"/a", "/a/b", "/a/b/c", "/a/d"}, seen)
	})

	t.Run("root marker entry", func(t *testing.T) {
		s := newOpened(t)
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, model.SyncStateEntry{Path: model.RootMarkerPath, Valid: true}))

		got, ok, err := s.Get(ctx, "/")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, model.RootMarkerPath, got.Path)
	})
}

func pathsOf(entries []model.SyncStateEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}

	return out
}
