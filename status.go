package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/foldersync/foldersync/internal/config"
	"github.com/foldersync/foldersync/internal/conflictlog"
	"github.com/foldersync/foldersync/internal/credstore"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active profile's configuration and login state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context())
		},
	}
}

type statusOutput struct {
	Profile         string `json:"profile"`
	LocalRoot       string `json:"local_root"`
	RemoteRoot      string `json:"remote_root"`
	RemoteKind      string `json:"remote_kind"`
	RemoteEndpoint  string `json:"remote_endpoint,omitempty"`
	ConflictPolicy  string `json:"conflict_strategy"`
	LoggedIn        bool   `json:"logged_in"`
	StateDBPath     string `json:"state_db_path"`
	ConflictsLogged int    `json:"conflicts_logged"`
}

func runStatus(ctx context.Context) error {
	cc := mustCLIContext(ctx)
	profile := cc.Profile

	out := statusOutput{
		Profile:        profile.Name,
		LocalRoot:      profile.LocalRoot,
		RemoteRoot:     profile.RemoteRoot,
		RemoteKind:     profile.Remote.Kind,
		RemoteEndpoint: profile.Remote.Endpoint,
		ConflictPolicy: profile.Sync.ConflictStrategy,
		LoggedIn:       credstore.Exists(config.ProfileCredentialPath(profile.Name)),
		StateDBPath:    config.ProfileDBPath(profile.Name),
	}

	if entries, err := conflictlog.Load(config.ProfileConflictLedgerPath(profile.Name)); err == nil {
		out.ConflictsLogged = len(entries)
	}

	if cc.Flags.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	cc.Statusf("Profile:          %s\n", out.Profile)
	cc.Statusf("Local root:       %s\n", out.LocalRoot)
	cc.Statusf("Remote root:      %s (%s)\n", out.RemoteRoot, out.RemoteKind)

	if out.RemoteEndpoint != "" {
		cc.Statusf("Remote endpoint:  %s\n", out.RemoteEndpoint)
	}

	cc.Statusf("Conflict policy:  %s\n", defaultString(out.ConflictPolicy, "local-wins"))
	cc.Statusf("Logged in:        %v\n", out.LoggedIn)
	cc.Statusf("State database:   %s\n", out.StateDBPath)

	if out.ConflictsLogged > 0 {
		cc.Statusf("Unreviewed conflicts: %d\n", out.ConflictsLogged)
	}

	return nil
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}

	return v
}
