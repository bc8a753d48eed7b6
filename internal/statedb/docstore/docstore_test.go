package docstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/foldersync/foldersync/internal/model"
	"github.com/foldersync/foldersync/internal/statedb"
	"github.com/foldersync/foldersync/internal/statedb/docstore"
	"github.com/foldersync/foldersync/internal/statedb/storetest"
)

func newOpened(t *testing.T) statedb.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "state.json")

	s := docstore.New(path)
	require.NoError(t, s.Open(context.Background()))

	return s
}

func TestDocStore_Contract(t *testing.T) {
	storetest.Run(t, newOpened)
}

func TestDocStore_CloseReopenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()

	s1 := docstore.New(path)
	require.NoError(t, s1.Open(ctx))
	require.NoError(t, s1.Put(ctx, model.SyncStateEntry{Path: "/a/b.txt", Mtime: 7, SyncAttr: "etag", Valid: true}))
	require.NoError(t, s1.Close(ctx))

	s2 := docstore.New(path)
	require.NoError(t, s2.Open(ctx))

	got, ok, err := s2.Get(ctx, "/a/b.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(7), got.Mtime)
	require.Equal(t, "etag", got.SyncAttr)
}

func TestDocStore_UnknownVersionRefused(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"2.0"}`), 0o644))

	s := docstore.New(path)
	err := s.Open(context.Background())
	require.Error(t, err)
}
