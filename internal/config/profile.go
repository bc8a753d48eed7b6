package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Default remote root when a profile doesn't specify one.
const defaultRemoteRoot = "/"

// Default profile name when --profile is omitted.
const defaultProfileName = "default"

// Profile represents one local<->remote sync pairing within a TOML config
// file. Per-profile section overrides (e.g. [profile.work.filter])
// completely replace the corresponding global section - individual fields
// are not merged.
type Profile struct {
	LocalRoot  string `toml:"local_root"`
	RemoteRoot string `toml:"remote_root"`

	// Per-profile section overrides (completely replace global sections).
	Filter    *FilterConfig    `toml:"filter,omitempty"`
	Transfers *TransfersConfig `toml:"transfers,omitempty"`
	Sync      *SyncConfig      `toml:"sync,omitempty"`
	Logging   *LoggingConfig   `toml:"logging,omitempty"`
	Remote    *RemoteConfig    `toml:"remote,omitempty"`
}

// ResolvedProfile contains profile fields plus effective config sections
// after merging global defaults with per-profile overrides. This is the
// final product consumed by the CLI and sync orchestrator.
type ResolvedProfile struct {
	Name       string
	LocalRoot  string
	RemoteRoot string

	Filter    FilterConfig
	Transfers TransfersConfig
	Sync      SyncConfig
	Logging   LoggingConfig
	Remote    RemoteConfig
}

// ResolveProfile merges global defaults with profile-specific overrides.
// If profileName is empty, the default profile is selected. Section-level
// override semantics are "replace, not merge" - if a profile defines
// [profile.work.filter], that entire FilterConfig replaces the global one.
func ResolveProfile(cfg *Config, profileName string) (*ResolvedProfile, error) {
	name, err := resolveProfileName(cfg, profileName)
	if err != nil {
		return nil, err
	}

	profile := cfg.Profiles[name]

	resolved := &ResolvedProfile{
		Name:       name,
		LocalRoot:  expandTilde(profile.LocalRoot),
		RemoteRoot: profile.RemoteRoot,
	}

	if resolved.RemoteRoot == "" {
		resolved.RemoteRoot = defaultRemoteRoot
	}

	resolveProfileSections(resolved, &profile, cfg)

	return resolved, nil
}

// resolveProfileSections fills effective config sections on the resolved profile.
func resolveProfileSections(resolved *ResolvedProfile, profile *Profile, cfg *Config) {
	resolved.Filter = resolveSection(profile.Filter, cfg.Filter)
	resolved.Transfers = resolveSection(profile.Transfers, cfg.Transfers)
	resolved.Sync = resolveSection(profile.Sync, cfg.Sync)
	resolved.Logging = resolveSection(profile.Logging, cfg.Logging)
	resolved.Remote = resolveSection(profile.Remote, cfg.Remote)
}

// resolveSection returns the profile override if present, otherwise the global value.
func resolveSection[T any](profileOverride *T, global T) T {
	if profileOverride != nil {
		return *profileOverride
	}

	return global
}

// resolveProfileName determines which profile to use.
func resolveProfileName(cfg *Config, profileName string) (string, error) {
	if len(cfg.Profiles) == 0 {
		return "", fmt.Errorf("no profiles defined in config")
	}

	if profileName != "" {
		return lookupExplicitProfile(cfg, profileName)
	}

	return lookupDefaultProfile(cfg)
}

// lookupExplicitProfile validates that the named profile exists.
func lookupExplicitProfile(cfg *Config, name string) (string, error) {
	if _, ok := cfg.Profiles[name]; !ok {
		return "", fmt.Errorf("profile %q not found in config", name)
	}

	return name, nil
}

// lookupDefaultProfile finds the default profile when no name is given.
func lookupDefaultProfile(cfg *Config) (string, error) {
	if _, ok := cfg.Profiles[defaultProfileName]; ok {
		return defaultProfileName, nil
	}

	if len(cfg.Profiles) == 1 {
		for name := range cfg.Profiles {
			return name, nil
		}
	}

	return "", fmt.Errorf(
		"multiple profiles defined but none named %q; use --profile to select one",
		defaultProfileName)
}

// expandTilde replaces a leading "~/" with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[2:])
}

// ProfileDBPath returns the sync-state database path for a profile.
// Format: {dataDir}/state/{profile}.db
func ProfileDBPath(profileName string) string {
	dataDir := DefaultDataDir()
	if dataDir == "" {
		return ""
	}

	return filepath.Join(dataDir, "state", profileName+".db")
}

// ProfileCredentialPath returns the credential store path for a profile.
// Format: {configDir}/credentials/{profile}.json
func ProfileCredentialPath(profileName string) string {
	configDir := DefaultConfigDir()
	if configDir == "" {
		return ""
	}

	return filepath.Join(configDir, "credentials", profileName+".json")
}

// ProfileHashCachePath returns the content-hash cache path for a profile.
// Format: {dataDir}/hashcache/{profile}.json
func ProfileHashCachePath(profileName string) string {
	dataDir := DefaultDataDir()
	if dataDir == "" {
		return ""
	}

	return filepath.Join(dataDir, "hashcache", profileName+".json")
}

// ProfileConflictLedgerPath returns the conflict ledger path for a profile.
// Format: {dataDir}/conflicts/{profile}.json
func ProfileConflictLedgerPath(profileName string) string {
	dataDir := DefaultDataDir()
	if dataDir == "" {
		return ""
	}

	return filepath.Join(dataDir, "conflicts", profileName+".json")
}

// ProfilePIDPath returns the path for the watch daemon's lock/PID file.
// Format: {dataDir}/run/{profile}.pid
func ProfilePIDPath(profileName string) string {
	dataDir := DefaultDataDir()
	if dataDir == "" {
		return ""
	}

	return filepath.Join(dataDir, "run", profileName+".pid")
}
