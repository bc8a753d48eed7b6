package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_AllFieldsPopulated(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.True(t, cfg.Filter.SkipDotfiles)
	assert.True(t, cfg.Filter.SkipSymlinks)
	assert.Equal(t, "10GB", cfg.Filter.MaxFileSize)
	assert.Equal(t, ".syncignore", cfg.Filter.IgnoreMarker)
	assert.Empty(t, cfg.Filter.SkipFiles)
	assert.Empty(t, cfg.Filter.SkipDirs)

	assert.Equal(t, 8, cfg.Transfers.ListParallelism)
	assert.Equal(t, "10MiB", cfg.Transfers.ChunkSize)
	assert.Positive(t, cfg.Transfers.RemoteConcurrency)
	assert.Positive(t, cfg.Transfers.MaxDeleteRetries)

	assert.Equal(t, "local_wins", cfg.Sync.ConflictStrategy)
	assert.Equal(t, "5m", cfg.Sync.PollInterval)
	assert.False(t, cfg.Sync.CreateRemoteRootOnFirstSync)
	assert.False(t, cfg.Sync.DryRun)

	assert.Equal(t, "info", cfg.Logging.LogLevel)
	assert.Equal(t, "", cfg.Logging.LogFile)
	assert.Equal(t, "auto", cfg.Logging.LogFormat)

	assert.Equal(t, "", cfg.Remote.Kind)

	require.NotNil(t, cfg.Profiles)
	assert.Empty(t, cfg.Profiles)
}

func TestDefaultConfig_PassesValidation(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, Validate(cfg))
}
