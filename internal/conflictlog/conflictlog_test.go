package conflictlog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldersync/foldersync/internal/planner"
)

func TestLoad_MissingFile_ReturnsEmptySlice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")

	entries, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAppend_NoConflicts_DoesNotCreateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")

	require.NoError(t, Append(path, "run-1", time.Unix(0, 0), nil))

	_, err := Load(path)
	require.NoError(t, err)
	assert.NoFileExists(t, path)
}

func TestAppend_AddsEntriesAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile", "ledger.json")
	t1 := time.Unix(1000, 0)
	t2 := time.Unix(2000, 0)

	require.NoError(t, Append(path, "run-1", t1, []planner.Conflict{
		{Path: "/a.txt", LocalChange: "created", RemoteChange: "deleted", Strategy: "local-wins", Detail: "x"},
	}))

	require.NoError(t, Append(path, "run-2", t2, []planner.Conflict{
		{Path: "/b.txt", LocalChange: "changed", RemoteChange: "created", Strategy: "local-wins", Detail: "y"},
	}))

	entries, err := Load(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "run-1", entries[0].RunID)
	assert.Equal(t, "/a.txt", entries[0].Path)
	assert.Equal(t, "run-2", entries[1].RunID)
	assert.Equal(t, "/b.txt", entries[1].Path)
}

func TestClear_RemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")

	require.NoError(t, Append(path, "run-1", time.Unix(0, 0), []planner.Conflict{
		{Path: "/a.txt", Strategy: "local-wins"},
	}))
	require.NoError(t, Clear(path))

	entries, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClear_MissingFile_NotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	assert.NoError(t, Clear(path))
}
