package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/foldersync/foldersync/internal/config"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage sync profiles",
		Long: `Each profile pairs one local root with one remote root and remote kind.
Profiles live as [profile.<name>] sections in the config file; global
[filter]/[transfers]/[sync]/[logging]/[remote] sections supply defaults a
profile can override wholesale.`,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
	}

	cmd.AddCommand(newProfileListCmd())
	cmd.AddCommand(newProfileAddCmd())
	cmd.AddCommand(newProfileRemoveCmd())

	return cmd
}

func loadedConfigPath() string {
	return config.ResolveConfigPath(config.ReadEnvOverrides(), config.CLIOverrides{ConfigPath: flagConfigPath}, buildLogger(nil))
}

func newProfileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured profiles",
		RunE:  runProfileList,
	}
}

func runProfileList(_ *cobra.Command, _ []string) error {
	path := loadedConfigPath()

	cfg, err := config.LoadOrDefault(path, buildLogger(nil))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	names := make([]string, 0, len(cfg.Profiles))
	for name := range cfg.Profiles {
		names = append(names, name)
	}

	sort.Strings(names)

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(names)
	}

	if len(names) == 0 {
		fmt.Println("No profiles configured.")
		return nil
	}

	for _, name := range names {
		p := cfg.Profiles[name]
		fmt.Printf("%-20s %s -> %s\n", name, p.LocalRoot, p.RemoteRoot)
	}

	return nil
}

func newProfileAddCmd() *cobra.Command {
	var (
		flagRemoteRoot string
		flagRemoteKind string
		flagEndpoint   string
	)

	cmd := &cobra.Command{
		Use:   "add <name> <local-root>",
		Short: "Add a profile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfileAdd(args[0], args[1], flagRemoteRoot, flagRemoteKind, flagEndpoint)
		},
	}

	cmd.Flags().StringVar(&flagRemoteRoot, "remote-root", "/", "remote root path for this profile")
	cmd.Flags().StringVar(&flagRemoteKind, "remote-kind", "", "remote backend: webdav or dropboxapi (defaults to the global [remote] section)")
	cmd.Flags().StringVar(&flagEndpoint, "endpoint", "", "remote endpoint URL (WebDAV base URL; ignored for dropboxapi)")

	return cmd
}

func runProfileAdd(name, localRoot, remoteRoot, remoteKind, endpoint string) error {
	path := loadedConfigPath()
	logger := buildLogger(nil)

	cfg, err := config.LoadOrDefault(path, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.Profiles == nil {
		cfg.Profiles = map[string]config.Profile{}
	}

	if _, exists := cfg.Profiles[name]; exists {
		return fmt.Errorf("profile %q already exists", name)
	}

	p := config.Profile{LocalRoot: localRoot, RemoteRoot: remoteRoot}

	if remoteKind != "" || endpoint != "" {
		p.Remote = &config.RemoteConfig{Kind: remoteKind, Endpoint: endpoint}
	}

	cfg.Profiles[name] = p

	if err := config.Write(cfg, path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Added profile %q.\n", name)

	return nil
}

func newProfileRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a profile from the config file",
		Long: `Removes the profile's [profile.<name>] section only. Its sync-state
database, content-hash cache, conflict ledger, and saved credentials are
left on disk — remove them by hand if the profile is gone for good.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfileRemove(args[0])
		},
	}
}

func runProfileRemove(name string) error {
	path := loadedConfigPath()
	logger := buildLogger(nil)

	cfg, err := config.LoadOrDefault(path, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if _, exists := cfg.Profiles[name]; !exists {
		return fmt.Errorf("profile %q does not exist", name)
	}

	delete(cfg.Profiles, name)

	if err := config.Write(cfg, path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Removed profile %q.\n", name)

	return nil
}
