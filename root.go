package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/foldersync/foldersync/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagProfile    string
	flagLocalRoot  string
	flagJSON       bool
	flagVerbose    bool
	flagDebug      bool
	flagQuiet      bool
)

// skipConfigAnnotation marks commands that load configuration themselves
// (profile management, raw config inspection) and so should not go through
// the automatic profile-resolution step in PersistentPreRunE.
const skipConfigAnnotation = "skipConfig"

// GlobalFlags mirrors the persistent flags relevant to output behavior,
// bundled so format.go's Statusf doesn't need four separate parameters
// threaded through every call site.
type GlobalFlags struct {
	JSON    bool
	Verbose bool
	Debug   bool
	Quiet   bool
}

// CLIContext bundles the resolved profile, the full parsed config (profile
// management commands need the whole file, not just one profile), and a
// logger. Built once in PersistentPreRunE.
type CLIContext struct {
	Config  *config.Config
	Profile *config.ResolvedProfile
	Logger  *slog.Logger
	Flags   GlobalFlags
}

type cliContextKey struct{}

// cliContextFrom extracts the CLIContext from the command's context. Returns
// nil if no profile was resolved (commands carrying skipConfigAnnotation).
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		return nil
	}

	return cc
}

// mustCLIContext extracts the CLIContext or panics with an actionable
// message. Use in RunE handlers for commands that require a resolved
// profile (no skipConfigAnnotation) — the command tree guarantees
// PersistentPreRunE has already populated it.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context — command is missing " +
			"skipConfigAnnotation or its config-loading RunE path")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "foldersync",
		Short:         "Bidirectional folder sync for WebDAV and Dropbox-style remotes",
		Long:          "foldersync mirrors a local directory tree against a remote folder over WebDAV or a Dropbox-style API, tracking state between runs so only what changed moves.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}

			return loadProfile(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagProfile, "profile", "", "profile name (default: \"default\", or the only profile defined)")
	cmd.PersistentFlags().StringVar(&flagLocalRoot, "local-root", "", "override the profile's local root directory")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newConflictsCmd())
	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newProfileCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadProfile resolves the active profile from the four-layer override
// chain (CLI > env > config file > built-in default) and stores the result
// in the command's context for use by subcommands.
func loadProfile(cmd *cobra.Command) error {
	logger := buildLogger(nil)

	cli := config.CLIOverrides{ConfigPath: flagConfigPath}
	if cmd.Flags().Changed("profile") {
		cli.Profile = flagProfile
	}

	env := config.ReadEnvOverrides()

	logger.Debug("resolving profile",
		slog.String("config_path", cli.ConfigPath),
		slog.String("cli_profile", cli.Profile),
		slog.String("env_config", env.ConfigPath),
		slog.String("env_profile", env.Profile),
	)

	if cmd.Flags().Changed("local-root") {
		env.LocalRoot = flagLocalRoot
	}

	resolved, cfg, err := config.ResolveActiveProfile(env, cli, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Debug("profile resolved",
		slog.String("profile", resolved.Name),
		slog.String("local_root", resolved.LocalRoot),
		slog.String("remote_root", resolved.RemoteRoot),
	)

	finalLogger := buildLogger(resolved)

	cc := &CLIContext{
		Config:  cfg,
		Profile: resolved,
		Logger:  finalLogger,
		Flags:   GlobalFlags{JSON: flagJSON, Verbose: flagVerbose, Debug: flagDebug, Quiet: flagQuiet},
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved profile and
// CLI flags. Pass nil for pre-resolution bootstrap logging. The profile's
// configured log level provides the baseline; --verbose, --debug, and
// --quiet override it since CLI flags always win (Cobra enforces they are
// mutually exclusive).
func buildLogger(profile *config.ResolvedProfile) *slog.Logger {
	level := slog.LevelWarn

	if profile != nil {
		switch profile.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelInfo
	}

	if flagDebug {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
