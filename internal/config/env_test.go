package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadEnvOverrides_AllSet(t *testing.T) {
	t.Setenv(EnvConfig, "/custom/config.toml")
	t.Setenv(EnvProfile, "work")
	t.Setenv(EnvLocalRoot, "/custom/root")

	overrides := ReadEnvOverrides()
	assert.Equal(t, "/custom/config.toml", overrides.ConfigPath)
	assert.Equal(t, "work", overrides.Profile)
	assert.Equal(t, "/custom/root", overrides.LocalRoot)
}

func TestReadEnvOverrides_NoneSet(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvProfile, "")
	t.Setenv(EnvLocalRoot, "")

	overrides := ReadEnvOverrides()
	assert.Empty(t, overrides.ConfigPath)
	assert.Empty(t, overrides.Profile)
	assert.Empty(t, overrides.LocalRoot)
}

func TestReadEnvOverrides_PartiallySet(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvProfile, "personal")
	t.Setenv(EnvLocalRoot, "")

	overrides := ReadEnvOverrides()
	assert.Empty(t, overrides.ConfigPath)
	assert.Equal(t, "personal", overrides.Profile)
}

func TestEnvVarConstants(t *testing.T) {
	assert.Equal(t, "FOLDERSYNC_CONFIG", EnvConfig)
	assert.Equal(t, "FOLDERSYNC_PROFILE", EnvProfile)
	assert.Equal(t, "FOLDERSYNC_LOCAL_ROOT", EnvLocalRoot)
}
