package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foldersync/foldersync/internal/config"
	"github.com/foldersync/foldersync/internal/watch"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run sync continuously, triggered by local filesystem activity",
		Long: `Watch the profile's local root for filesystem activity and run a sync
cycle shortly after activity settles, with a periodic safety poll in case
events are missed. Runs until interrupted (SIGINT/SIGTERM).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context())
		},
	}

	return cmd
}

func runWatch(ctx context.Context) error {
	cc := mustCLIContext(ctx)
	profile := cc.Profile

	pidPath := config.ProfilePIDPath(profile.Name)

	cleanup, err := writePIDFile(pidPath)
	if err != nil {
		return err
	}
	defer cleanup()

	runCtx := shutdownContext(ctx, cc.Logger)

	w := watch.New(profile.LocalRoot, watch.Config{}, cc.Logger)

	cc.Statusf("watching %s (profile %q), press Ctrl-C to stop\n", profile.LocalRoot, profile.Name)

	err = w.Run(runCtx, func(triggerCtx context.Context) error {
		if syncErr := runSync(triggerCtx, false); syncErr != nil {
			cc.Logger.Error("watch: sync cycle failed", "error", syncErr)
		}

		return nil
	})

	if err != nil && runCtx.Err() == nil {
		return fmt.Errorf("watch: %w", err)
	}

	return nil
}
