package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldersync/foldersync/internal/config"
	"github.com/foldersync/foldersync/internal/conflictlog"
	"github.com/foldersync/foldersync/internal/planner"
)

func TestRunConflicts_EmptyLedger(t *testing.T) {
	profile := testProfile(t, "conflicts-empty")
	ctx := testCLIContext(t, profile)

	t.Setenv("XDG_DATA_HOME", t.TempDir())

	require.NoError(t, runConflicts(ctx, false))
}

func TestRunConflicts_ClearRemovesLedger(t *testing.T) {
	profile := testProfile(t, "conflicts-clear")
	ctx := testCLIContext(t, profile)

	t.Setenv("XDG_DATA_HOME", t.TempDir())

	ledgerPath := config.ProfileConflictLedgerPath(profile.Name)

	require.NoError(t, conflictlog.Append(ledgerPath, "run-1", time.Now(), []planner.Conflict{
		{Path: "/a.txt", LocalChange: "changed", RemoteChange: "deleted", Strategy: "local-wins", Detail: "kept local"},
	}))

	entries, err := conflictlog.Load(ledgerPath)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, runConflicts(ctx, true))

	entries, err = conflictlog.Load(ledgerPath)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
