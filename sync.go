package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/foldersync/foldersync/internal/changetree"
	"github.com/foldersync/foldersync/internal/config"
	"github.com/foldersync/foldersync/internal/executor"
	"github.com/foldersync/foldersync/internal/model"
	"github.com/foldersync/foldersync/internal/orchestrator"
	"github.com/foldersync/foldersync/internal/planner"
)

func newSyncCmd() *cobra.Command {
	var flagForce bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle against the profile's remote",
		Long: `Run a single bidirectional sync cycle between the profile's local
root and its remote root, under the profile's configured conflict strategy.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), flagForce)
		},
	}

	cmd.Flags().BoolVar(&flagForce, "force", false, "run even if the profile's local root does not yet exist")

	return cmd
}

func runSync(ctx context.Context, force bool) error {
	cc := mustCLIContext(ctx)
	profile := cc.Profile

	if !force {
		if info, err := os.Stat(profile.LocalRoot); err != nil || !info.IsDir() {
			return fmt.Errorf("local root %q does not exist (pass --force to create it during sync)", profile.LocalRoot)
		}
	}

	strategy, err := conflictStrategy(profile.Sync.ConflictStrategy)
	if err != nil {
		return err
	}

	factory, err := buildJobFactory(profile, config.ProfileCredentialPath(profile.Name), metadataHTTPClient(), cc.Logger)
	if err != nil {
		return err
	}

	store := openStore(profile, cc.Logger)

	cfg := orchestrator.Config{
		LocalRoot:  profile.LocalRoot,
		RemoteRoot: profile.RemoteRoot,
		Strategy:   strategy,
		Filter:     buildFilter(profile),
		Flags: orchestrator.SynchronizerFlags{
			CreateRemoteRootOnFirstSync: profile.Sync.CreateRemoteRootOnFirstSync,
			AlwaysRecurseFolders:        profile.Sync.AlwaysRecurseFolders,
			HashOnMtimeMismatch:         profile.Sync.HashOnMtimeMismatch,
		},
		ListParallelism: profile.Transfers.ListParallelism,
		ExecutorConfig: executor.Config{
			RemoteConcurrency: profile.Transfers.RemoteConcurrency,
			MaxDeleteRetries:  profile.Transfers.MaxDeleteRetries,
		},
		HashCachePath:      config.ProfileHashCachePath(profile.Name),
		ConflictLedgerPath: config.ProfileConflictLedgerPath(profile.Name),
		Logger:             cc.Logger,
	}

	synchronizer := orchestrator.New(store, factory, cfg)

	runCtx := shutdownContext(ctx, cc.Logger)

	result, err := synchronizer.Run(runCtx)
	if result != nil {
		if cc.Flags.JSON {
			if jsonErr := printSyncJSON(result); jsonErr != nil {
				return jsonErr
			}
		} else {
			printSyncText(cc, result)
		}
	}

	if err != nil {
		if result != nil && result.RetryWithFewerJobs {
			return fmt.Errorf("sync failed: %w (server closed the connection under concurrency; retry with a lower transfers.remote_concurrency)", err)
		}

		return fmt.Errorf("sync failed: %w", err)
	}

	return nil
}

// conflictStrategy maps the config file's string selector onto one of the
// two built-in strategies.
func conflictStrategy(name string) (planner.ConflictStrategy, error) {
	switch name {
	case "", "local-wins":
		return planner.LocalWins(), nil
	case "remote-wins":
		return planner.RemoteWins(), nil
	default:
		return nil, fmt.Errorf("sync.conflict_strategy %q: must be \"local-wins\" or \"remote-wins\"", name)
	}
}

// buildFilter turns a profile's FilterConfig into a changetree.Filter,
// excluding dotfiles (when SkipDotfiles is set) and entries whose name
// exactly matches a SkipDirs or SkipFiles item. SkipSymlinks, MaxFileSize
// and IgnoreMarker are not applied by this filter.
func buildFilter(profile *config.ResolvedProfile) changetree.Filter {
	f := profile.Filter

	skipDirs := toSet(f.SkipDirs)
	skipFiles := toSet(f.SkipFiles)

	return func(path string, info model.FileInfo) bool {
		name := info.Name

		if f.SkipDotfiles && len(name) > 0 && name[0] == '.' {
			return false
		}

		if info.Kind == model.KindDirectory && skipDirs[name] {
			return false
		}

		if info.Kind == model.KindFile && skipFiles[name] {
			return false
		}

		return true
	}
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}

	return set
}

func printSyncText(cc *CLIContext, result *orchestrator.RunResult) {
	if result.Actions == 0 && len(result.Conflicts) == 0 {
		cc.Statusf("Already in sync (%s).\n", result.Duration)
		return
	}

	cc.Statusf("Sync complete: %d action(s) in %s\n", result.Actions, result.Duration)

	if result.BytesTransferred > 0 {
		cc.Statusf("  Transferred: %s\n", humanize.Bytes(uint64(result.BytesTransferred)))
	}

	if len(result.Conflicts) > 0 {
		cc.Statusf("  Conflicts: %d (see `foldersync conflicts`)\n", len(result.Conflicts))
	}
}

type syncJSONOutput struct {
	RunID              string `json:"run_id"`
	Actions            int    `json:"actions"`
	DurationMs         int64  `json:"duration_ms"`
	BytesTransferred   int64  `json:"bytes_transferred"`
	Conflicts          int    `json:"conflicts"`
	RetryWithFewerJobs bool   `json:"retry_with_fewer_jobs"`
}

func printSyncJSON(result *orchestrator.RunResult) error {
	out := syncJSONOutput{
		RunID:              result.RunID,
		Actions:            result.Actions,
		DurationMs:         result.Duration.Milliseconds(),
		BytesTransferred:   result.BytesTransferred,
		Conflicts:          len(result.Conflicts),
		RetryWithFewerJobs: result.RetryWithFewerJobs,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}
