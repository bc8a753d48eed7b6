package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/foldersync/foldersync/internal/model"
	"github.com/foldersync/foldersync/internal/planner"
	"github.com/foldersync/foldersync/internal/remotejob"
	"github.com/foldersync/foldersync/internal/remotejob/remotejobtest"
	"github.com/foldersync/foldersync/internal/statedb"
	"github.com/foldersync/foldersync/internal/statedb/docstore"
)

func newStore(t *testing.T) statedb.Store {
	t.Helper()

	s := docstore.New(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, s.Open(context.Background()))

	t.Cleanup(func() { _ = s.Close(context.Background()) })

	return s
}

func TestExecutor_S1_FirstTimeUpload(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	factory := remotejobtest.New(remotejob.ModeFolderSyncAttr)

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hi"), 0o644))

	exec := New(store, factory, root, Config{}, nil)

	actions := []planner.SyncAction{
		{Kind: planner.ActionMkDirRemote, Path: "/", PathKind: model.KindDirectory},
		{Kind: planner.ActionUploadFile, Path: "/a.txt", PathKind: model.KindFile, LocalMtime: 1000},
	}

	err := exec.Run(ctx, actions)
	require.NoError(t, err)

	info, err := factory.GetFileInfo(ctx, "/a.txt")
	require.NoError(t, err)
	require.Equal(t, model.KindFile, info.Kind)

	entry, ok, err := store.Get(ctx, "/a.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1000), entry.Mtime)
	require.NotEmpty(t, entry.SyncAttr)
}

func TestExecutor_S2_RemoteCreation(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	factory := remotejobtest.New(remotejob.ModeFolderSyncAttr)
	factory.PutDir("/b", "dir-attr")
	factory.PutFile("/b/c.txt", []byte("remote content"), "")

	root := t.TempDir()

	exec := New(store, factory, root, Config{}, nil)

	actions := []planner.SyncAction{
		{Kind: planner.ActionMkDirLocal, Path: "/b", PathKind: model.KindDirectory, RemoteSyncAttr: "dir-attr"},
		{Kind: planner.ActionDownloadFile, Path: "/b/c.txt", PathKind: model.KindFile, ExpectedSyncAttr: "seen-at-list"},
	}

	err := exec.Run(ctx, actions)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "b", "c.txt"))
	require.NoError(t, err)
	require.Equal(t, "remote content", string(data))

	bEntry, ok, err := store.Get(ctx, "/b")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "dir-attr", bEntry.SyncAttr)

	fileEntry, ok, err := store.Get(ctx, "/b/c.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, fileEntry.SyncAttr)
}

func TestExecutor_BytesTransferred_SumsUploadsAndDownloads(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	factory := remotejobtest.New(remotejob.ModeFolderSyncAttr)
	factory.PutFile("/remote.txt", []byte("0123456789"), "")

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "local.txt"), []byte("hello"), 0o644))

	exec := New(store, factory, root, Config{}, nil)

	actions := []planner.SyncAction{
		{Kind: planner.ActionUploadFile, Path: "/local.txt", PathKind: model.KindFile, LocalMtime: 1000},
		{Kind: planner.ActionDownloadFile, Path: "/remote.txt", PathKind: model.KindFile, ExpectedSyncAttr: "seen-at-list"},
	}

	require.NoError(t, exec.Run(ctx, actions))
	require.Equal(t, int64(len("hello")+len("0123456789")), exec.BytesTransferred())
}

func TestExecutor_S3_ConflictLocalWins_UnconditionalUpload(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	factory := remotejobtest.New(remotejob.ModeFolderSyncAttr)
	factory.PutFile("/x.txt", []byte("remote version"), "remote-attr")

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "x.txt"), []byte("local version"), 0o644))

	exec := New(store, factory, root, Config{}, nil)

	// Local-wins: ExpectedSyncAttr empty means an unconditional write.
	actions := []planner.SyncAction{
		{Kind: planner.ActionUploadFile, Path: "/x.txt", PathKind: model.KindFile, LocalMtime: 2000},
	}

	require.NoError(t, exec.Run(ctx, actions))

	data, err := factory.GetFileInfo(ctx, "/x.txt")
	require.NoError(t, err)
	require.NotEqual(t, "remote-attr", data.SyncAttr)

	entry, ok, err := store.Get(ctx, "/x.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, data.SyncAttr, entry.SyncAttr)
}

func TestExecutor_S4_ConflictRemoteWins_Download(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	factory := remotejobtest.New(remotejob.ModeFolderSyncAttr)
	factory.PutFile("/x.txt", []byte("remote version"), "remote-attr")

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "x.txt"), []byte("local version"), 0o644))

	exec := New(store, factory, root, Config{}, nil)

	actions := []planner.SyncAction{
		{Kind: planner.ActionDownloadFile, Path: "/x.txt", PathKind: model.KindFile, ExpectedSyncAttr: "remote-attr"},
	}

	require.NoError(t, exec.Run(ctx, actions))

	data, err := os.ReadFile(filepath.Join(root, "x.txt"))
	require.NoError(t, err)
	require.Equal(t, "remote version", string(data))

	entry, ok, err := store.Get(ctx, "/x.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "remote-attr", entry.SyncAttr)
}

func TestExecutor_S5_TypeChange_DeleteThenUpload(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	factory := remotejobtest.New(remotejob.ModeFolderSyncAttr)
	factory.PutDir("/d", "d-attr")
	factory.PutFile("/d/old.txt", []byte("leftover"), "")
	require.NoError(t, store.Put(ctx, model.SyncStateEntry{Path: "/d", SyncAttr: "d-attr", Valid: true}))

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "d"), []byte("now a file"), 0o644))

	exec := New(store, factory, root, Config{}, nil)

	// Ordering requires the child leftover removed before /d itself, and
	// /d's DeleteRemote must complete before the replacement upload.
	actions := []planner.SyncAction{
		{Kind: planner.ActionDeleteRemote, Path: "/d/old.txt", PathKind: model.KindFile,
			PrevEntry: model.SyncStateEntry{Path: "/d/old.txt"}},
		{Kind: planner.ActionDeleteRemote, Path: "/d", PathKind: model.KindDirectory,
			PrevEntry: model.SyncStateEntry{Path: "/d", SyncAttr: "d-attr"}},
		{Kind: planner.ActionUploadFile, Path: "/d", PathKind: model.KindFile, LocalMtime: 3000},
	}

	require.NoError(t, exec.Run(ctx, actions))

	info, err := factory.GetFileInfo(ctx, "/d")
	require.NoError(t, err)
	require.Equal(t, model.KindFile, info.Kind)
}

func TestExecutor_S6_Stuck(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	factory := remotejobtest.New(remotejob.ModeFolderSyncAttr)
	factory.PutFile("/p", []byte("content"), "p-attr")
	factory.FailDelete["/p"] = remotejob.Wrap(remotejob.ErrSyncAttributeMismatch, "permanently stale")

	root := t.TempDir()

	exec := New(store, factory, root, Config{MaxDeleteRetries: 1}, nil)

	actions := []planner.SyncAction{
		{Kind: planner.ActionDeleteRemote, Path: "/p", PathKind: model.KindFile,
			PrevEntry: model.SyncStateEntry{Path: "/p", SyncAttr: "p-attr"}},
	}

	start := time.Now()
	err := exec.Run(ctx, actions)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrStuck)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestExecutor_DeleteRemote_AlreadyAbsentSucceeds(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	factory := remotejobtest.New(remotejob.ModeFolderSyncAttr)
	require.NoError(t, store.Put(ctx, model.SyncStateEntry{Path: "/gone.txt", SyncAttr: "old", Valid: true}))

	root := t.TempDir()

	exec := New(store, factory, root, Config{}, nil)

	actions := []planner.SyncAction{
		{Kind: planner.ActionDeleteRemote, Path: "/gone.txt", PathKind: model.KindFile,
			PrevEntry: model.SyncStateEntry{Path: "/gone.txt", SyncAttr: "old"}},
	}

	require.NoError(t, exec.Run(ctx, actions))

	_, ok, err := store.Get(ctx, "/gone.txt")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExecutor_MkDirRemote_AlreadyExistsSucceeds(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	factory := remotejobtest.New(remotejob.ModeFolderSyncAttr)
	factory.PutDir("/existing", "existing-attr")

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "existing"), dirPermissions))

	exec := New(store, factory, root, Config{}, nil)

	actions := []planner.SyncAction{
		{Kind: planner.ActionMkDirRemote, Path: "/existing", PathKind: model.KindDirectory},
	}

	require.NoError(t, exec.Run(ctx, actions))

	entry, ok, err := store.Get(ctx, "/existing")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "existing-attr", entry.SyncAttr)
}

func TestExecutor_Progress_PrePlanIsUnknown(t *testing.T) {
	store := newStore(t)
	factory := remotejobtest.New(remotejob.ModeFolderSyncAttr)

	exec := New(store, factory, t.TempDir(), Config{}, nil)
	require.Equal(t, -1, exec.Progress())
}

func TestExecutor_Progress_ReachesFullAfterRun(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	factory := remotejobtest.New(remotejob.ModeFolderSyncAttr)

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hi"), 0o644))

	exec := New(store, factory, root, Config{}, nil)

	actions := []planner.SyncAction{
		{Kind: planner.ActionUploadFile, Path: "/a.txt", PathKind: model.KindFile, LocalMtime: 1},
	}

	require.NoError(t, exec.Run(ctx, actions))
	require.Equal(t, 100, exec.Progress())
}

func TestExecutor_LocalDelete_RemovesSubtreeAndCommitsImmediately(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	factory := remotejobtest.New(remotejob.ModeFolderSyncAttr)
	require.NoError(t, store.Put(ctx, model.SyncStateEntry{Path: "/old", SyncAttr: "attr", Valid: true}))

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "old"), dirPermissions))

	exec := New(store, factory, root, Config{}, nil)

	actions := []planner.SyncAction{
		{Kind: planner.ActionDeleteLocal, Path: "/old", PathKind: model.KindDirectory},
	}

	require.NoError(t, exec.Run(ctx, actions))

	_, err := os.Stat(filepath.Join(root, "old"))
	require.True(t, os.IsNotExist(err))

	_, ok, err := store.Get(ctx, "/old")
	require.NoError(t, err)
	require.False(t, ok)
}
