package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldersync/foldersync/internal/config"
	"github.com/foldersync/foldersync/internal/credstore"
)

func testCLIContext(t *testing.T, profile *config.ResolvedProfile) context.Context {
	t.Helper()

	cc := &CLIContext{
		Profile: profile,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	return context.WithValue(context.Background(), cliContextKey{}, cc)
}

func testProfile(t *testing.T, name string) *config.ResolvedProfile {
	t.Helper()

	return &config.ResolvedProfile{
		Name:       name,
		LocalRoot:  t.TempDir(),
		RemoteRoot: "/",
		Remote:     config.RemoteConfig{Kind: "webdav", Endpoint: "https://dav.example.com/remote.php/dav/"},
	}
}

func TestRunLogin_SavesToken(t *testing.T) {
	profile := testProfile(t, "work")
	ctx := testCLIContext(t, profile)

	// ProfileCredentialPath derives from DefaultConfigDir, which honors
	// XDG_CONFIG_HOME; point it at a scratch directory to isolate the save.
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	require.NoError(t, runLogin(ctx, "secret-token"))

	credPath := config.ProfileCredentialPath("work")
	require.True(t, credstore.Exists(credPath))

	tok, meta, err := credstore.Load(credPath)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", tok.AccessToken)
	assert.Equal(t, "webdav", meta["remote_kind"])
}

func TestRunLogin_EmptyTokenErrors(t *testing.T) {
	profile := testProfile(t, "work")
	ctx := testCLIContext(t, profile)

	err := runLogin(ctx, "")
	assert.Error(t, err)
}

func TestRunLogout_RemovesToken(t *testing.T) {
	profile := testProfile(t, "work2")
	ctx := testCLIContext(t, profile)

	credDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", credDir)

	require.NoError(t, runLogin(ctx, "tok"))
	require.True(t, credstore.Exists(config.ProfileCredentialPath("work2")))

	require.NoError(t, runLogout(ctx))
	assert.False(t, credstore.Exists(config.ProfileCredentialPath("work2")))
}

func TestRunLogout_MissingTokenNotAnError(t *testing.T) {
	profile := testProfile(t, "ghost")
	ctx := testCLIContext(t, profile)

	credDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", credDir)

	assert.NoError(t, runLogout(ctx))
}
