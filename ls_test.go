package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldersync/foldersync/internal/model"
)

func TestRunLs_NotLoggedInErrors(t *testing.T) {
	profile := testProfile(t, "ls-profile")
	ctx := testCLIContext(t, profile)

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	err := runLs(ctx, "/", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestPrintLsTable_DirectoriesMarked(t *testing.T) {
	var buf bytes.Buffer

	children := []model.FileInfo{
		{Kind: model.KindDirectory, Name: "docs"},
		{Kind: model.KindFile, Name: "a.txt"},
	}

	printLsTableTo(&buf, children)

	out := buf.String()
	assert.Contains(t, out, "d  docs")
	assert.Contains(t, out, "   a.txt")
}
