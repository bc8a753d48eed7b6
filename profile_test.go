package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldersync/foldersync/internal/config"
)

func withTestConfigPath(t *testing.T) string {
	t.Helper()

	origConfigPath := flagConfigPath
	t.Cleanup(func() { flagConfigPath = origConfigPath })

	flagConfigPath = filepath.Join(t.TempDir(), "config.toml")

	return flagConfigPath
}

func TestRunProfileAdd_ThenList(t *testing.T) {
	withTestConfigPath(t)

	require.NoError(t, runProfileAdd("work", "/home/alice/work", "/remote/work", "webdav", "https://dav.example.com/"))

	cfg, err := config.LoadOrDefault(flagConfigPath, buildLogger(nil))
	require.NoError(t, err)
	require.Contains(t, cfg.Profiles, "work")
	assert.Equal(t, "/home/alice/work", cfg.Profiles["work"].LocalRoot)
	assert.Equal(t, "webdav", cfg.Profiles["work"].Remote.Kind)
}

func TestRunProfileAdd_DuplicateErrors(t *testing.T) {
	withTestConfigPath(t)

	require.NoError(t, runProfileAdd("work", "/a", "/b", "", ""))
	err := runProfileAdd("work", "/a", "/b", "", "")
	assert.Error(t, err)
}

func TestRunProfileRemove_RemovesSection(t *testing.T) {
	withTestConfigPath(t)

	require.NoError(t, runProfileAdd("work", "/a", "/b", "", ""))
	require.NoError(t, runProfileRemove("work"))

	cfg, err := config.LoadOrDefault(flagConfigPath, buildLogger(nil))
	require.NoError(t, err)
	assert.NotContains(t, cfg.Profiles, "work")
}

func TestRunProfileRemove_MissingErrors(t *testing.T) {
	withTestConfigPath(t)

	err := runProfileRemove("ghost")
	assert.Error(t, err)
}
